// Package config loads daemon settings from an optional YAML file and environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// History drivers.
const (
	HistoryNone     = "none"
	HistoryPostgres = "postgres"
	HistorySQLite   = "sqlite"
)

// Config holds all configuration values for the daemon.
type Config struct {
	// HTTP server port for the run API
	HTTPPort int `mapstructure:"http_port"`

	LogLevel string `mapstructure:"log_level"`

	// Where finalized run records are persisted: none, postgres or sqlite
	HistoryDriver string `mapstructure:"history_driver"`
	DatabaseURL   string `mapstructure:"database_url"`
	SQLitePath    string `mapstructure:"sqlite_path"`

	// OTLP gRPC collector address. Empty disables trace export.
	OTELEndpoint string `mapstructure:"otel_endpoint"`

	// SHA-256 hex digest of the bearer token accepted by the API. Empty disables auth.
	APITokenHash string `mapstructure:"api_token_hash"`

	// Requests per second allowed per client, and the burst on top of it
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`

	// Finished records retained in memory
	MaxFinishedRecords int `mapstructure:"max_finished_records"`

	// Shell used by pty runs. Empty uses $SHELL.
	ShellPath string `mapstructure:"shell_path"`

	// Timeouts applied to runs that do not set their own
	DefaultTimeout         time.Duration `mapstructure:"default_timeout"`
	DefaultNoOutputTimeout time.Duration `mapstructure:"default_no_output_timeout"`
}

// envKeys maps config keys to the environment variables that override them.
var envKeys = map[string]string{
	"http_port":                 "PORT",
	"log_level":                 "LOG_LEVEL",
	"history_driver":            "HISTORY_DRIVER",
	"database_url":              "DATABASE_URL",
	"sqlite_path":               "SQLITE_PATH",
	"otel_endpoint":             "OTEL_EXPORTER_OTLP_ENDPOINT",
	"api_token_hash":            "API_TOKEN_HASH",
	"rate_limit":                "RATE_LIMIT",
	"rate_limit_burst":          "RATE_LIMIT_BURST",
	"max_finished_records":      "MAX_FINISHED_RECORDS",
	"shell_path":                "SHELL_PATH",
	"default_timeout":           "DEFAULT_TIMEOUT",
	"default_no_output_timeout": "DEFAULT_NO_OUTPUT_TIMEOUT",
}

// Load reads configuration from path (if non-empty) and the environment.
// Environment variables take precedence over the file.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("http_port", 6161)
	v.SetDefault("log_level", "info")
	v.SetDefault("history_driver", HistoryNone)
	v.SetDefault("sqlite_path", "runplane.db")
	v.SetDefault("rate_limit", 20.0)
	v.SetDefault("rate_limit_burst", 40)
	v.SetDefault("max_finished_records", 2000)
	v.SetDefault("default_timeout", time.Duration(0))
	v.SetDefault("default_no_output_timeout", time.Duration(0))

	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.HistoryDriver = strings.ToLower(c.HistoryDriver)
	switch c.HistoryDriver {
	case HistoryNone:
	case HistoryPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database_url is required (env: DATABASE_URL)")
		}
	case HistorySQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite_path is required (env: SQLITE_PATH)")
		}
	default:
		return fmt.Errorf("invalid history_driver %q: must be none, postgres or sqlite", c.HistoryDriver)
	}

	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port %d", c.HTTPPort)
	}
	if c.RateLimit < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("rate limits must not be negative")
	}
	if c.DefaultTimeout < 0 || c.DefaultNoOutputTimeout < 0 {
		return fmt.Errorf("default timeouts must not be negative")
	}
	return nil
}
