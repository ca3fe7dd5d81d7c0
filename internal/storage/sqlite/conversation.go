package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/matheus3301/tgvault/internal/storage"
)

// UpsertConversation inserts or updates a conversation record. The sync
// cursor lives in sync_status and is untouched here.
func (d *DB) UpsertConversation(ctx context.Context, c *storage.Conversation) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now().UnixMilli()
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO conversations (id, kind, title, username, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			title = excluded.title,
			username = excluded.username,
			updated_at = excluded.updated_at`,
		c.ID, string(c.Kind), c.Title, c.Username, now, now)
	if err != nil {
		return storage.NewStorageError("upsert conversation", err)
	}
	return nil
}

// GetConversation returns a single conversation, or nil if absent.
func (d *DB) GetConversation(ctx context.Context, id int64) (*storage.Conversation, error) {
	var c storage.Conversation
	var kind string
	err := d.db.QueryRowContext(ctx, `
		SELECT id, kind, title, username FROM conversations WHERE id = ?`, id).
		Scan(&c.ID, &kind, &c.Title, &c.Username)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storage.NewStorageError("get conversation", err)
	}
	c.Kind = storage.Kind(kind)
	return &c, nil
}

// ListConversations returns conversations ordered by most recent activity.
func (d *DB) ListConversations(ctx context.Context, limit, offset int) ([]storage.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, kind, title, username
		FROM conversations
		ORDER BY updated_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, storage.NewStorageError("list conversations", err)
	}
	defer func() { _ = rows.Close() }()

	var convs []storage.Conversation
	for rows.Next() {
		var c storage.Conversation
		var kind string
		if err := rows.Scan(&c.ID, &kind, &c.Title, &c.Username); err != nil {
			return nil, storage.NewStorageError("scan conversation", err)
		}
		c.Kind = storage.Kind(kind)
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.NewStorageError("list conversations", err)
	}
	return convs, nil
}
