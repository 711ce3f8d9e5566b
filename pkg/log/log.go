// Package log configures the process-wide slog logger and hands out
// module-scoped loggers.
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/pkg/errors"
)

// Config describes log output. An empty Path logs to stderr only.
type Config struct {
	Path           string `toml:"path"`
	RotationTime   string `toml:"rotation_time"`
	MaxAge         string `toml:"max_age"`
	DefaultPattern string `toml:"default_pattern"`
	Level          string `toml:"level"`
	Format         string `toml:"format"` // text or json
}

// DefaultConfig logs info and above as text to stderr.
func DefaultConfig() Config {
	return Config{
		RotationTime:   "24h",
		MaxAge:         "168h",
		DefaultPattern: "base-%Y-%m-%d.log",
		Level:          "info",
		Format:         "text",
	}
}

// Validate checks the configuration.
func (cfg *Config) Validate() error {
	if !slices.Contains([]string{"", "debug", "info", "warn", "error"}, strings.ToLower(cfg.Level)) {
		return errors.New("invalid level: " + cfg.Level)
	}
	if !slices.Contains([]string{"", "text", "json"}, strings.ToLower(cfg.Format)) {
		return errors.New("invalid format: " + cfg.Format)
	}
	if strings.TrimSpace(cfg.Path) == "" {
		return nil
	}
	if _, err := time.ParseDuration(cfg.RotationTime); err != nil {
		return errors.New("rotation_time is invalid: " + err.Error())
	}
	if _, err := time.ParseDuration(cfg.MaxAge); err != nil {
		return errors.New("max_age is invalid: " + err.Error())
	}
	return nil
}

// Init installs the configured handler as the slog default.
func Init(cfg Config) error {
	logger, err := New(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}

// New builds a logger from cfg without touching the slog default.
func New(cfg Config) (*slog.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var out io.Writer = os.Stderr
	if strings.TrimSpace(cfg.Path) != "" {
		fileWriter, err := configureFileLogger(cfg)
		if err != nil {
			return nil, errors.WithMessage(err, "failed to configure file logger")
		}
		out = io.MultiWriter(os.Stderr, fileWriter)
	}

	return slog.New(NewHandler(out, cfg)), nil
}

// NewHandler builds the handler Init installs, writing to out.
func NewHandler(out io.Writer, cfg Config) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: mapLevel(cfg.Level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String(a.Key, t.Format("2006-01-02 15:04:05.000000"))
				}
			}
			return a
		},
	}
	if strings.ToLower(cfg.Format) == "json" {
		return slog.NewJSONHandler(out, opts)
	}
	return slog.NewTextHandler(out, opts)
}

func configureFileLogger(cfg Config) (io.Writer, error) {
	rotationTime, err := time.ParseDuration(cfg.RotationTime)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rotation_time: %w", err)
	}
	maxAge, err := time.ParseDuration(cfg.MaxAge)
	if err != nil {
		return nil, fmt.Errorf("failed to parse max_age: %w", err)
	}
	pattern := cfg.DefaultPattern
	if pattern == "" {
		pattern = DefaultConfig().DefaultPattern
	}

	return rotatelogs.New(
		filepath.Join(cfg.Path, pattern),
		rotatelogs.WithRotationTime(rotationTime),
		rotatelogs.WithMaxAge(maxAge),
	)
}

func mapLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger returns the default logger tagged with a module field.
func Logger(module string) *slog.Logger {
	return slog.Default().With("module", module)
}
