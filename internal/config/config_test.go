package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Query.HistoryLimit != 1000 {
		t.Errorf("expected history limit 1000, got %d", cfg.Query.HistoryLimit)
	}
	if cfg.LockWait != 5*time.Second {
		t.Errorf("expected lock wait 5s, got %v", cfg.LockWait)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	data := `
base_path: /var/lib/meshdb
lock_wait: 2s
query:
  history_limit: 500
  timeout: 10s
export:
  compression: zstd
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.BasePath != "/var/lib/meshdb" {
		t.Errorf("base_path: got %q", cfg.BasePath)
	}
	if cfg.LockWait != 2*time.Second {
		t.Errorf("lock_wait: got %v", cfg.LockWait)
	}
	if cfg.Query.HistoryLimit != 500 {
		t.Errorf("history_limit: got %d", cfg.Query.HistoryLimit)
	}
	if cfg.Export.Compression != "zstd" {
		t.Errorf("compression: got %q", cfg.Export.Compression)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(path, []byte("base_path: /tmp/mesh\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Query.Timeout != 30*time.Second {
		t.Errorf("expected default query timeout, got %v", cfg.Query.Timeout)
	}
	if cfg.Export.Compression != "snappy" {
		t.Errorf("expected default compression, got %q", cfg.Export.Compression)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty base path", func(c *Config) { c.BasePath = "" }},
		{"zero lock wait", func(c *Config) { c.LockWait = 0 }},
		{"zero history limit", func(c *Config) { c.Query.HistoryLimit = 0 }},
		{"bad compression", func(c *Config) { c.Export.Compression = "lzma" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}
