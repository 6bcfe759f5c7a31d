// Package config loads process settings from the environment and mailing
// list definitions from CUE files.
package config

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
)

// LogFormats lists the accepted LISTFLOW_LOG_FORMAT values.
var LogFormats = []string{"text", "json"}

// Config holds settings shared by every command.
type Config struct {
	// DB is the SQLite database path.
	DB string `env:"LISTFLOW_DB" envDefault:"listflow.db"`

	// PendingLifetime is how long a subscription token stays confirmable.
	PendingLifetime time.Duration `env:"LISTFLOW_PENDING_LIFETIME" envDefault:"87600h"`

	LogLevel  string `env:"LISTFLOW_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LISTFLOW_LOG_FORMAT" envDefault:"text"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses and validates Config from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field values that the env tags cannot express.
func (c Config) Validate() error {
	if c.DB == "" {
		return fmt.Errorf("LISTFLOW_DB must not be empty")
	}
	if c.PendingLifetime <= 0 {
		return fmt.Errorf("LISTFLOW_PENDING_LIFETIME must be positive, got %s", c.PendingLifetime)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if !slices.Contains(LogFormats, c.LogFormat) {
		return fmt.Errorf("invalid LISTFLOW_LOG_FORMAT %q: must be one of %v", c.LogFormat, LogFormats)
	}
	return nil
}

// Level returns LogLevel as a slog.Level.
func (c Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid LISTFLOW_LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}
