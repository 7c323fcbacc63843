// Package config defines the meshdb configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete meshdb configuration.
type Config struct {
	// BasePath is the directory holding the per-node store files.
	BasePath string `yaml:"base_path"`

	// LockWait bounds how long a write waits for the per-store writer lock
	// before surfacing a write conflict.
	LockWait time.Duration `yaml:"lock_wait"`

	// Query configures the read side.
	Query QueryConfig `yaml:"query"`

	// Export configures the Parquet history export.
	Export ExportConfig `yaml:"export"`
}

// QueryConfig configures the read side.
type QueryConfig struct {
	// HistoryLimit caps the number of rows a single history query returns
	// when the caller does not specify a limit.
	HistoryLimit int `yaml:"history_limit"`

	// Timeout is the default timeout for read queries.
	Timeout time.Duration `yaml:"timeout"`
}

// ExportConfig configures the Parquet history export.
type ExportConfig struct {
	// Compression is the Parquet compression codec: snappy, zstd, none.
	Compression string `yaml:"compression"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BasePath: ".",
		LockWait: 5 * time.Second,
		Query: QueryConfig{
			HistoryLimit: 1000,
			Timeout:      30 * time.Second,
		},
		Export: ExportConfig{
			Compression: "snappy",
		},
	}
}

// Load reads a configuration file, applying defaults for absent fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.BasePath == "" {
		errs = append(errs, errors.New("base_path is required"))
	}
	if c.LockWait <= 0 {
		errs = append(errs, errors.New("lock_wait must be positive"))
	}
	if err := c.Query.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("query: %w", err))
	}
	if err := c.Export.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("export: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the query configuration.
func (c *QueryConfig) Validate() error {
	var errs []error

	if c.HistoryLimit <= 0 {
		errs = append(errs, errors.New("history_limit must be positive"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the export configuration.
func (c *ExportConfig) Validate() error {
	switch c.Compression {
	case "snappy", "zstd", "none":
		return nil
	default:
		return fmt.Errorf("unknown compression %q", c.Compression)
	}
}
