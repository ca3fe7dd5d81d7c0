package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/matheus3301/tgvault/internal/storage"
)

// InsertMessages inserts a batch of messages, ignoring rows whose
// (conversation, remote id) key already exists. Returns rows inserted.
func (d *DB) InsertMessages(ctx context.Context, msgs []storage.Message) (int, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return 0, wrapErr("begin insert messages", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	inserted, err := insertMessagesTx(ctx, tx, msgs)
	if err != nil {
		return 0, wrapErr("insert messages", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, wrapErr("commit insert messages", err)
	}
	return inserted, nil
}

func insertMessagesTx(ctx context.Context, e execer, msgs []storage.Message) (int, error) {
	now := time.Now().UnixMilli()
	inserted := 0
	for _, m := range msgs {
		tag, err := e.Exec(ctx, `
			INSERT INTO messages (conversation_id, remote_id, sender_id, body, sent_at, edited_at, has_attachment, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (conversation_id, remote_id) DO NOTHING`,
			m.ConversationID, m.RemoteID, m.SenderID, m.Body, m.SentAt, m.EditedAt, m.HasAttachment, now)
		if err != nil {
			return 0, err
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// MarkMessageDeleted sets the soft-delete flag. Reconciliation only.
func (d *DB) MarkMessageDeleted(ctx context.Context, conversationID, remoteID int64) error {
	_, err := d.pool.Exec(ctx, `
		UPDATE messages SET deleted = TRUE
		WHERE conversation_id = $1 AND remote_id = $2`, conversationID, remoteID)
	return wrapErr("mark message deleted", err)
}

// UpdateMessageEdit replaces the body with the latest revision. Reconciliation only.
func (d *DB) UpdateMessageEdit(ctx context.Context, conversationID, remoteID int64, body string, editedAt int64) error {
	_, err := d.pool.Exec(ctx, `
		UPDATE messages SET body = $1, edited_at = $2
		WHERE conversation_id = $3 AND remote_id = $4`, body, editedAt, conversationID, remoteID)
	return wrapErr("update message edit", err)
}

// ListMessages returns messages strictly after afterID in ascending remote id order.
func (d *DB) ListMessages(ctx context.Context, conversationID, afterID int64, limit int) ([]storage.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.pool.Query(ctx, `
		SELECT conversation_id, remote_id, sender_id, body, sent_at, edited_at, has_attachment, deleted
		FROM messages
		WHERE conversation_id = $1 AND remote_id > $2
		ORDER BY remote_id ASC
		LIMIT $3`, conversationID, afterID, limit)
	if err != nil {
		return nil, wrapErr("list messages", err)
	}
	return scanMessages(rows)
}

// ListMessagesBefore returns messages sent before the given timestamp,
// newest first. Keyset pagination for the interactive viewer.
func (d *DB) ListMessagesBefore(ctx context.Context, conversationID, beforeSentAt int64, limit int) ([]storage.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeSentAt <= 0 {
		beforeSentAt = time.Now().UnixMilli() + 1
	}
	rows, err := d.pool.Query(ctx, `
		SELECT conversation_id, remote_id, sender_id, body, sent_at, edited_at, has_attachment, deleted
		FROM messages
		WHERE conversation_id = $1 AND sent_at < $2
		ORDER BY sent_at DESC
		LIMIT $3`, conversationID, beforeSentAt, limit)
	if err != nil {
		return nil, wrapErr("list messages before", err)
	}
	return scanMessages(rows)
}

// ListRecentMessages returns the newest messages by remote id, ascending.
// Used by reconciliation to bound its re-scan window.
func (d *DB) ListRecentMessages(ctx context.Context, conversationID int64, limit int) ([]storage.Message, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := d.pool.Query(ctx, `
		SELECT conversation_id, remote_id, sender_id, body, sent_at, edited_at, has_attachment, deleted
		FROM (
			SELECT * FROM messages
			WHERE conversation_id = $1
			ORDER BY remote_id DESC
			LIMIT $2
		) recent
		ORDER BY remote_id ASC`, conversationID, limit)
	if err != nil {
		return nil, wrapErr("list recent messages", err)
	}
	return scanMessages(rows)
}

// SearchMessages matches query as a case-insensitive substring of the body,
// newest first. conversationID 0 searches every conversation.
func (d *DB) SearchMessages(ctx context.Context, conversationID int64, query string, limit int) ([]storage.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + query + "%"
	rows, err := d.pool.Query(ctx, `
		SELECT conversation_id, remote_id, sender_id, body, sent_at, edited_at, has_attachment, deleted
		FROM messages
		WHERE ($1 = 0 OR conversation_id = $1) AND body ILIKE $2
		ORDER BY sent_at DESC
		LIMIT $3`, conversationID, pattern, limit)
	if err != nil {
		return nil, wrapErr("search messages", err)
	}
	return scanMessages(rows)
}

// CountMessages counts messages, optionally restricted to a conversation and
// a body substring. Empty query counts everything in scope.
func (d *DB) CountMessages(ctx context.Context, conversationID int64, query string) (int64, error) {
	pattern := "%" + query + "%"
	var n int64
	err := d.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE ($1 = 0 OR conversation_id = $1) AND ($2 = '' OR body ILIKE $3)`,
		conversationID, query, pattern).Scan(&n)
	if err != nil {
		return 0, wrapErr("count messages", err)
	}
	return n, nil
}

func scanMessages(rows pgx.Rows) ([]storage.Message, error) {
	defer rows.Close()

	var msgs []storage.Message
	for rows.Next() {
		var m storage.Message
		if err := rows.Scan(&m.ConversationID, &m.RemoteID, &m.SenderID, &m.Body, &m.SentAt, &m.EditedAt, &m.HasAttachment, &m.Deleted); err != nil {
			return nil, wrapErr("scan message", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list messages", err)
	}
	return msgs, nil
}
