// Package postgres implements the storage contract on a PostgreSQL server
// through a bounded pgx connection pool. Pool acquisition performs liveness
// checks, so a dead connection is recycled instead of hanging a batch.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/matheus3301/tgvault/internal/storage"
	"github.com/matheus3301/tgvault/internal/storage/postgres/migrations"
)

// DB implements storage.Store over a pgx connection pool.
type DB struct {
	pool *pgxpool.Pool
	dsn  string
}

var _ storage.Store = (*DB)(nil)

// Open connects to PostgreSQL with a bounded pool and verifies liveness.
func Open(ctx context.Context, dsn string, maxConns int32) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = maxConns
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &DB{pool: pool, dsn: dsn}, nil
}

// Migrate runs all pending migrations. It uses a short-lived database/sql
// handle because the migrate driver manages its own advisory locking.
func (d *DB) Migrate(_ context.Context) (*storage.MigrateResult, error) {
	sqlDB, err := sql.Open("pgx", d.dsn)
	if err != nil {
		return nil, &storage.SchemaError{Err: fmt.Errorf("open migration conn: %w", err)}
	}
	defer func() { _ = sqlDB.Close() }()

	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, &storage.SchemaError{Err: fmt.Errorf("migration source: %w", err)}
	}

	driver, err := migratepgx.WithInstance(sqlDB, &migratepgx.Config{})
	if err != nil {
		return nil, &storage.SchemaError{Err: fmt.Errorf("migration driver: %w", err)}
	}

	m, err := migrate.NewWithInstance("iofs", source, "pgx5", driver)
	if err != nil {
		return nil, &storage.SchemaError{Err: fmt.Errorf("migration instance: %w", err)}
	}

	err = m.Up()
	changed := true
	if err == migrate.ErrNoChange {
		changed = false
		err = nil
	}
	if err != nil {
		return nil, &storage.SchemaError{Err: fmt.Errorf("migration up: %w", err)}
	}

	version, dirty, _ := m.Version()
	if dirty {
		return nil, &storage.SchemaError{Err: fmt.Errorf("schema dirty at version %d", version)}
	}
	return &storage.MigrateResult{
		Version: version,
		Dirty:   dirty,
		Changed: changed,
	}, nil
}

// Close releases the connection pool.
func (d *DB) Close() error {
	d.pool.Close()
	return nil
}

// wrapErr maps native pgx errors onto the shared StorageError taxonomy so
// the pipeline stays backend-blind. The SQLSTATE code is kept in the
// operation name for the audit trail.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return storage.NewStorageError(fmt.Sprintf("%s (SQLSTATE %s)", op, pgErr.Code), err)
	}
	return storage.NewStorageError(op, err)
}
