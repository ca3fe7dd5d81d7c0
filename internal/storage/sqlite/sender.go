package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/matheus3301/tgvault/internal/storage"
)

// UpsertSender inserts or updates a sender (last-write-wins on name fields).
func (d *DB) UpsertSender(ctx context.Context, s *storage.Sender) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := upsertSenderTx(ctx, d.db, s); err != nil {
		return storage.NewStorageError("upsert sender", err)
	}
	return nil
}

// execer covers *sql.DB and *sql.Tx so batch commits reuse the same SQL.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertSenderTx(ctx context.Context, e execer, s *storage.Sender) error {
	now := time.Now().UnixMilli()
	_, err := e.ExecContext(ctx, `
		INSERT INTO senders (id, display_name, username, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
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
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, display_name, username FROM senders
		ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, storage.NewStorageError("list senders", err)
	}
	defer func() { _ = rows.Close() }()

	var senders []storage.Sender
	for rows.Next() {
		var s storage.Sender
		if err := rows.Scan(&s.ID, &s.DisplayName, &s.Username); err != nil {
			return nil, storage.NewStorageError("scan sender", err)
		}
		senders = append(senders, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.NewStorageError("list senders", err)
	}
	return senders, nil
}

// GetSender returns a sender by identifier, or nil if absent.
func (d *DB) GetSender(ctx context.Context, id int64) (*storage.Sender, error) {
	var s storage.Sender
	err := d.db.QueryRowContext(ctx, `
		SELECT id, display_name, username FROM senders WHERE id = ?`, id).
		Scan(&s.ID, &s.DisplayName, &s.Username)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storage.NewStorageError("get sender", err)
	}
	return &s, nil
}
