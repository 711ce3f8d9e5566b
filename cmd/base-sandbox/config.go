package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/basekit/base_sdk_go/pkg/log"
)

// Config holds all sandbox configuration values. Flags override the file.
type Config struct {
	Server ServerConfig `toml:"server"`
	Log    log.Config   `toml:"log"`
}

// ServerConfig contains server configuration
type ServerConfig struct {
	Addr    string `toml:"addr"`
	Prefix  string `toml:"prefix"`
	Seed    string `toml:"seed"`
	Latency string `toml:"latency"`
	Fail    string `toml:"fail"`
}

// DefaultConfig serves /v1 on :8787 and logs text to stderr.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{Addr: ":8787", Prefix: "/v1"},
		Log:    log.DefaultConfig(),
	}
}

// Validate checks server configuration
func (s *ServerConfig) Validate() error {
	if strings.TrimSpace(s.Addr) == "" {
		return fmt.Errorf("addr is required")
	}
	if s.Prefix != "" && !strings.HasPrefix(s.Prefix, "/") {
		return fmt.Errorf("prefix must start with /")
	}
	if s.Latency != "" {
		if _, err := time.ParseDuration(s.Latency); err != nil {
			return fmt.Errorf("latency: %w", err)
		}
	}
	if _, err := parseFailConfig(s.Fail); err != nil {
		return fmt.Errorf("fail: %w", err)
	}
	return nil
}

// Validate checks all configuration fields
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

// LoadConfig reads and parses the configuration file on top of the defaults
func LoadConfig(filename string) (Config, error) {
	cfg := DefaultConfig()

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

type failConfig struct {
	rate float64
	code int
}

// parseFailConfig parses "rate=<float>,code=<httpStatus>".
func parseFailConfig(raw string) (failConfig, error) {
	if strings.TrimSpace(raw) == "" {
		return failConfig{}, nil
	}
	cfg := failConfig{code: 500}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, val, ok := strings.Cut(part, "=")
		if !ok {
			return failConfig{}, fmt.Errorf("invalid fail segment %q", part)
		}
		val = strings.TrimSpace(val)
		switch strings.TrimSpace(key) {
		case "rate":
			rate, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return failConfig{}, err
			}
			if rate < 0 || rate > 1 {
				return failConfig{}, fmt.Errorf("rate %v is outside [0, 1]", rate)
			}
			cfg.rate = rate
		case "code":
			code, err := strconv.Atoi(val)
			if err != nil {
				return failConfig{}, err
			}
			if code < 400 || code > 599 {
				return failConfig{}, fmt.Errorf("code %d is not an error status", code)
			}
			cfg.code = code
		default:
			return failConfig{}, fmt.Errorf("unknown fail key %q", key)
		}
	}
	return cfg, nil
}
