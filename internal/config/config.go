package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/matheus3301/tgvault/internal/paths"
)

// Duration wraps time.Duration so interval fields can be written as "15m" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the immutable runtime configuration, read once at startup.
type Config struct {
	Storage StorageConfig `toml:"storage"`
	Remote  RemoteConfig  `toml:"remote"`
	Sync    SyncConfig    `toml:"sync"`
	Media   MediaConfig   `toml:"media"`
	Filter  FilterConfig  `toml:"filter"`
}

// StorageConfig selects and parameterizes the storage backend.
type StorageConfig struct {
	Backend  string         `toml:"backend"` // sqlite or postgres
	SQLite   SQLiteConfig   `toml:"sqlite"`
	Postgres PostgresConfig `toml:"postgres"`
}

// SQLiteConfig holds embedded-backend settings.
type SQLiteConfig struct {
	Path string `toml:"path"`
}

// PostgresConfig holds networked-backend settings.
type PostgresConfig struct {
	DSN      string `toml:"dsn"`
	MaxConns int32  `toml:"max_conns"`
}

// RemoteConfig points at the session bridge that owns the remote transport.
type RemoteConfig struct {
	BaseURL string   `toml:"base_url"`
	Token   string   `toml:"token"`
	Timeout Duration `toml:"timeout"`
}

// SyncConfig controls the fetch-and-persist pipeline.
type SyncConfig struct {
	BatchSize int             `toml:"batch_size"`
	Interval  Duration        `toml:"interval"`
	Initial   string          `toml:"initial"` // full or new
	Workers   int             `toml:"workers"`
	Reconcile ReconcileConfig `toml:"reconcile"`
}

// ReconcileConfig controls the optional edit/deletion reconciliation pass.
type ReconcileConfig struct {
	Enabled  bool     `toml:"enabled"`
	Window   int      `toml:"window"` // most-recent messages re-listed per conversation
	Interval Duration `toml:"interval"`
}

// MediaConfig controls attachment acquisition.
type MediaConfig struct {
	Download    bool   `toml:"download"`
	MaxBytes    int64  `toml:"max_bytes"`
	Dir         string `toml:"dir"`
	Concurrency int    `toml:"concurrency"`
}

// FilterConfig holds per-kind enable flags and include/exclude identifier lists.
type FilterConfig struct {
	Include []int64    `toml:"include"`
	Exclude []int64    `toml:"exclude"`
	Direct  KindConfig `toml:"direct"`
	Group   KindConfig `toml:"group"`
	Channel KindConfig `toml:"channel"`
}

// KindConfig scopes filtering to a single conversation kind.
type KindConfig struct {
	Enabled bool    `toml:"enabled"`
	Include []int64 `toml:"include"`
	Exclude []int64 `toml:"exclude"`
}

// Default returns the configuration used when fields are absent from the file.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend: "sqlite",
			SQLite:  SQLiteConfig{Path: paths.DBPath()},
			Postgres: PostgresConfig{
				MaxConns: 5,
			},
		},
		Remote: RemoteConfig{
			BaseURL: "http://127.0.0.1:8543",
			Timeout: Duration{60 * time.Second},
		},
		Sync: SyncConfig{
			BatchSize: 100,
			Interval:  Duration{15 * time.Minute},
			Initial:   "full",
			Workers:   1,
			Reconcile: ReconcileConfig{
				Enabled:  false,
				Window:   200,
				Interval: Duration{6 * time.Hour},
			},
		},
		Media: MediaConfig{
			Download:    true,
			MaxBytes:    100 << 20,
			Dir:         paths.MediaDir(),
			Concurrency: 3,
		},
		Filter: FilterConfig{
			Direct:  KindConfig{Enabled: true},
			Group:   KindConfig{Enabled: true},
			Channel: KindConfig{Enabled: true},
		},
	}
}

// Load reads and validates config from the given path, applying defaults first.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants the rest of the system assumes.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			return fmt.Errorf("storage.sqlite.path is required")
		}
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required")
		}
		if c.Storage.Postgres.MaxConns <= 0 {
			return fmt.Errorf("storage.postgres.max_conns must be positive")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	if c.Remote.BaseURL == "" {
		return fmt.Errorf("remote.base_url is required")
	}
	if c.Sync.BatchSize <= 0 {
		return fmt.Errorf("sync.batch_size must be positive")
	}
	if c.Sync.Workers <= 0 {
		return fmt.Errorf("sync.workers must be positive")
	}
	if c.Sync.Initial != "full" && c.Sync.Initial != "new" {
		return fmt.Errorf("sync.initial must be %q or %q", "full", "new")
	}
	if c.Sync.Reconcile.Enabled && c.Sync.Reconcile.Window <= 0 {
		return fmt.Errorf("sync.reconcile.window must be positive")
	}
	if c.Media.Download && c.Media.Dir == "" {
		return fmt.Errorf("media.dir is required when media.download is on")
	}
	if c.Media.Concurrency <= 0 {
		return fmt.Errorf("media.concurrency must be positive")
	}
	return nil
}
