package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// GetMetadata returns the stored value for key, empty string if unset.
func (d *DB) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := d.pool.QueryRow(ctx, `
		SELECT value FROM metadata WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", wrapErr("get metadata", err)
	}
	return value, nil
}

// SetMetadata stores an archive-level key/value pair, last write wins.
func (d *DB) SetMetadata(ctx context.Context, key, value string) error {
	now := time.Now().UnixMilli()
	_, err := d.pool.Exec(ctx, `
		INSERT INTO metadata (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		key, value, now)
	return wrapErr("set metadata", err)
}
