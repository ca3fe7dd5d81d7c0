package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/matheus3301/tgvault/internal/storage"
)

// execer covers *pgxpool.Pool and pgx.Tx so batch commits reuse the same SQL.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// UpsertConversation inserts or updates a conversation record. The sync
// cursor lives in sync_status and is untouched here.
func (d *DB) UpsertConversation(ctx context.Context, c *storage.Conversation) error {
	now := time.Now().UnixMilli()
	_, err := d.pool.Exec(ctx, `
		INSERT INTO conversations (id, kind, title, username, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (id) DO UPDATE SET
			kind = excluded.kind,
			title = excluded.title,
			username = excluded.username,
			updated_at = excluded.updated_at`,
		c.ID, string(c.Kind), c.Title, c.Username, now)
	return wrapErr("upsert conversation", err)
}

// GetConversation returns a single conversation, or nil if absent.
func (d *DB) GetConversation(ctx context.Context, id int64) (*storage.Conversation, error) {
	var c storage.Conversation
	var kind string
	err := d.pool.QueryRow(ctx, `
		SELECT id, kind, title, username FROM conversations WHERE id = $1`, id).
		Scan(&c.ID, &kind, &c.Title, &c.Username)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get conversation", err)
	}
	c.Kind = storage.Kind(kind)
	return &c, nil
}

// ListConversations returns conversations ordered by most recent activity.
func (d *DB) ListConversations(ctx context.Context, limit, offset int) ([]storage.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.pool.Query(ctx, `
		SELECT id, kind, title, username
		FROM conversations
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, wrapErr("list conversations", err)
	}
	defer rows.Close()

	var convs []storage.Conversation
	for rows.Next() {
		var c storage.Conversation
		var kind string
		if err := rows.Scan(&c.ID, &kind, &c.Title, &c.Username); err != nil {
			return nil, wrapErr("scan conversation", err)
		}
		c.Kind = storage.Kind(kind)
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list conversations", err)
	}
	return convs, nil
}
