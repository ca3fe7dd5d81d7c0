// Package factory opens the configured storage backend behind the shared
// contract, keeping backend selection out of the pipeline.
package factory

import (
	"context"
	"fmt"

	"github.com/matheus3301/tgvault/internal/config"
	"github.com/matheus3301/tgvault/internal/storage"
	"github.com/matheus3301/tgvault/internal/storage/postgres"
	"github.com/matheus3301/tgvault/internal/storage/sqlite"
)

// Open creates and returns the backend named by cfg. Schema initialization
// is left to the caller so startup can treat it as its own fatal phase.
func Open(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return sqlite.Open(cfg.SQLite.Path)
	case "postgres":
		return postgres.Open(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
