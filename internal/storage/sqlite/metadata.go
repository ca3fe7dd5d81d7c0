package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/matheus3301/tgvault/internal/storage"
)

// GetMetadata returns the stored value for key, empty string if unset.
func (d *DB) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := d.db.QueryRowContext(ctx, `
		SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", storage.NewStorageError("get metadata", err)
	}
	return value, nil
}

// SetMetadata stores an archive-level key/value pair, last write wins.
func (d *DB) SetMetadata(ctx context.Context, key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now().UnixMilli()
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		key, value, now)
	if err != nil {
		return storage.NewStorageError("set metadata", err)
	}
	return nil
}
