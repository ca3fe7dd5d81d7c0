package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/matheus3301/tgvault/internal/storage"
)

// UpsertSender inserts or updates a sender (last-write-wins on name fields).
func (d *DB) UpsertSender(ctx context.Context, s *storage.Sender) error {
	return wrapErr("upsert sender", upsertSenderTx(ctx, d.pool, s))
}

func upsertSenderTx(ctx context.Context, e execer, s *storage.Sender) error {
	now := time.Now().UnixMilli()
	_, err := e.Exec(ctx, `
		INSERT INTO senders (id, display_name, username, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			display_name = excluded.display_name,
			username = excluded.username,
			updated_at = excluded.updated_at`,
		s.ID, s.DisplayName, s.Username, now)
	return err
}

// ListSenders pages through all senders in id order.
func (d *DB) ListSenders(ctx context.Context, limit, offset int) ([]storage.Sender, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.pool.Query(ctx, `
		SELECT id, display_name, username FROM senders
		ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, wrapErr("list senders", err)
	}
	defer rows.Close()

	var senders []storage.Sender
	for rows.Next() {
		var s storage.Sender
		if err := rows.Scan(&s.ID, &s.DisplayName, &s.Username); err != nil {
			return nil, wrapErr("scan sender", err)
		}
		senders = append(senders, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list senders", err)
	}
	return senders, nil
}

// GetSender returns a sender by identifier, or nil if absent.
func (d *DB) GetSender(ctx context.Context, id int64) (*storage.Sender, error) {
	var s storage.Sender
	err := d.pool.QueryRow(ctx, `
		SELECT id, display_name, username FROM senders WHERE id = $1`, id).
		Scan(&s.ID, &s.DisplayName, &s.Username)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get sender", err)
	}
	return &s, nil
}
