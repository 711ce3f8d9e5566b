package base

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/basekit/base_sdk_go/internal/httpx"
	"github.com/basekit/base_sdk_go/pkg/log"
)

// Config holds client settings loaded from a TOML file.
type Config struct {
	DataKey   string      `toml:"data_key"`
	BaseName  string      `toml:"base_name"`
	APIURL    string      `toml:"api_url"`
	Timeout   string      `toml:"timeout"`
	BatchSize int         `toml:"batch_size"`
	PageSize  int         `toml:"page_size"`
	Retry     RetryConfig `toml:"retry"`
	Log       log.Config  `toml:"log"`
}

// RetryConfig mirrors RetryPolicy with durations as strings.
type RetryConfig struct {
	MaxRetries *int    `toml:"max_retries"`
	BaseDelay  string  `toml:"base_delay"`
	MaxDelay   string  `toml:"max_delay"`
	Jitter     float64 `toml:"jitter"`
}

// Validate checks retry configuration
func (r *RetryConfig) Validate() error {
	if r.MaxRetries != nil && *r.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if r.Jitter < 0 || r.Jitter > 1 {
		return fmt.Errorf("jitter must be between 0 and 1")
	}
	if err := validDuration(r.BaseDelay); err != nil {
		return fmt.Errorf("base_delay: %w", err)
	}
	if err := validDuration(r.MaxDelay); err != nil {
		return fmt.Errorf("max_delay: %w", err)
	}
	return nil
}

func (r *RetryConfig) set() bool {
	return r.MaxRetries != nil || r.BaseDelay != "" || r.MaxDelay != "" || r.Jitter != 0
}

func (r *RetryConfig) policy() RetryPolicy {
	p := DefaultRetryPolicy()
	if r.MaxRetries != nil {
		p.MaxRetries = *r.MaxRetries
	}
	if d, _ := parseDuration(r.BaseDelay); d > 0 {
		p.BaseDelay = d
	}
	if d, _ := parseDuration(r.MaxDelay); d > 0 {
		p.MaxDelay = d
	}
	if r.Jitter != 0 {
		p.Jitter = r.Jitter
	}
	return p
}

// Validate checks all configuration fields
func (c *Config) Validate() error {
	if _, err := ParseDataKey(c.DataKey); err != nil {
		return fmt.Errorf("data_key: %w", err)
	}
	if strings.TrimSpace(c.BaseName) == "" {
		return fmt.Errorf("base_name is required")
	}
	if err := validDuration(c.Timeout); err != nil {
		return fmt.Errorf("timeout: %w", err)
	}
	if c.BatchSize < 0 || c.BatchSize > MaxBatchSize {
		return fmt.Errorf("batch_size must be between 1 and %d", MaxBatchSize)
	}
	if c.PageSize < 0 {
		return fmt.Errorf("page_size must not be negative")
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

// Options converts the configuration into client options.
func (c *Config) Options() []Option {
	var opts []Option
	if c.APIURL != "" {
		opts = append(opts, WithAPIURL(c.APIURL))
	}
	if d, _ := parseDuration(c.Timeout); d > 0 {
		opts = append(opts, WithTimeout(d))
	}
	if c.Retry.set() {
		opts = append(opts, WithRetryPolicy(c.Retry.policy()))
	}
	if c.BatchSize > 0 {
		opts = append(opts, WithBatchOptions(WithChunkSize(c.BatchSize)))
	}
	if c.PageSize > 0 {
		opts = append(opts, WithQueryOptions(WithPageSize(c.PageSize)))
	}
	return opts
}

// LoadConfig reads and parses the configuration file
func LoadConfig(filename string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(filename)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// NewFromConfig returns a client for the configured base. A [log] section
// gives the client its own logger; opts are applied after the configured
// options.
func NewFromConfig(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	configured := cfg.Options()
	if cfg.Log != (log.Config{}) {
		logger, err := log.New(cfg.Log)
		if err != nil {
			return nil, fmt.Errorf("log: %w", err)
		}
		configured = append(configured, WithLogger(logger.With("module", "base")))
	}
	return New(cfg.DataKey, cfg.BaseName, append(configured, opts...)...)
}

// DefaultRetryPolicy returns the retry policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return httpx.DefaultRetryPolicy
}

func validDuration(s string) error {
	_, err := parseDuration(s)
	return err
}

func parseDuration(s string) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q must not be negative", s)
	}
	return d, nil
}
