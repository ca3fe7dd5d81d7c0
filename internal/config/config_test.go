package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("backend = %q, want sqlite", cfg.Storage.Backend)
	}
	if cfg.Sync.BatchSize != 100 {
		t.Errorf("batch_size = %d, want 100", cfg.Sync.BatchSize)
	}
	if cfg.Sync.Interval.Duration != 15*time.Minute {
		t.Errorf("interval = %v, want 15m", cfg.Sync.Interval.Duration)
	}
	if !cfg.Filter.Channel.Enabled {
		t.Error("channel filter should be enabled by default")
	}
	if cfg.Media.MaxBytes != 100<<20 {
		t.Errorf("max_bytes = %d, want 100MiB", cfg.Media.MaxBytes)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
[storage]
backend = "postgres"

[storage.postgres]
dsn = "postgres://tgvault:secret@db:5432/tgvault"
max_conns = 10

[sync]
batch_size = 50
interval = "5m"
initial = "new"
workers = 4

[sync.reconcile]
enabled = true
window = 500
interval = "1h"

[media]
download = false

[filter]
exclude = [777000]

[filter.channel]
enabled = false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Backend != "postgres" || cfg.Storage.Postgres.MaxConns != 10 {
		t.Errorf("postgres config not applied: %+v", cfg.Storage)
	}
	if cfg.Sync.Interval.Duration != 5*time.Minute {
		t.Errorf("interval = %v, want 5m", cfg.Sync.Interval.Duration)
	}
	if !cfg.Sync.Reconcile.Enabled || cfg.Sync.Reconcile.Window != 500 {
		t.Errorf("reconcile config not applied: %+v", cfg.Sync.Reconcile)
	}
	if cfg.Filter.Channel.Enabled {
		t.Error("channel filter should be disabled")
	}
	if len(cfg.Filter.Exclude) != 1 || cfg.Filter.Exclude[0] != 777000 {
		t.Errorf("exclude = %v, want [777000]", cfg.Filter.Exclude)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load("/nonexistent/config.toml"); err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "mysql" }},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = "postgres" }},
		{"zero batch size", func(c *Config) { c.Sync.BatchSize = 0 }},
		{"zero workers", func(c *Config) { c.Sync.Workers = 0 }},
		{"bad initial policy", func(c *Config) { c.Sync.Initial = "resume" }},
		{"reconcile without window", func(c *Config) {
			c.Sync.Reconcile.Enabled = true
			c.Sync.Reconcile.Window = 0
		}},
		{"zero media concurrency", func(c *Config) { c.Media.Concurrency = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() expected error")
			}
		})
	}
}

func TestInvalidDuration(t *testing.T) {
	path := writeConfig(t, `
[sync]
interval = "every day"
`)
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid duration")
	}
}
