// Package sqlite implements the storage contract on an embedded SQLite
// database. SQLite allows a single writer, so all writes are serialized
// through one connection guarded by a process-wide mutex.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"github.com/matheus3301/tgvault/internal/storage"
	"github.com/matheus3301/tgvault/internal/storage/sqlite/migrations"
)

// DB implements storage.Store over a single SQLite connection.
type DB struct {
	db *sql.DB

	// Serializes writers. SQLite with one connection would already queue
	// them, but the mutex keeps transactions from interleaving with the
	// busy-timeout retry path.
	mu sync.Mutex
}

var _ storage.Store = (*DB)(nil)

// Open creates a new SQLite connection with WAL mode and recommended pragmas.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Single logical connection: the engine is single-writer.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{db: db}, nil
}

// Migrate runs all pending migrations on the database.
func (d *DB) Migrate(_ context.Context) (*storage.MigrateResult, error) {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, &storage.SchemaError{Err: fmt.Errorf("migration source: %w", err)}
	}

	driver, err := migratesqlite.WithInstance(d.db, &migratesqlite.Config{})
	if err != nil {
		return nil, &storage.SchemaError{Err: fmt.Errorf("migration driver: %w", err)}
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
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

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}
