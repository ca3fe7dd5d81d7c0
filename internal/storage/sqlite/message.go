package sqlite

import (
	"context"
	"time"

	"github.com/matheus3301/tgvault/internal/storage"
)

// InsertMessages inserts a batch of messages, ignoring rows whose
// (conversation, remote id) key already exists. Returns rows inserted.
func (d *DB) InsertMessages(ctx context.Context, msgs []storage.Message) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storage.NewStorageError("begin insert messages", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted, err := insertMessagesTx(ctx, tx, msgs)
	if err != nil {
		return 0, storage.NewStorageError("insert messages", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, storage.NewStorageError("commit insert messages", err)
	}
	return inserted, nil
}

func insertMessagesTx(ctx context.Context, e execer, msgs []storage.Message) (int, error) {
	now := time.Now().UnixMilli()
	inserted := 0
	for _, m := range msgs {
		res, err := e.ExecContext(ctx, `
			INSERT INTO messages (conversation_id, remote_id, sender_id, body, sent_at, edited_at, has_attachment, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(conversation_id, remote_id) DO NOTHING`,
			m.ConversationID, m.RemoteID, m.SenderID, m.Body, m.SentAt, m.EditedAt, m.HasAttachment, now)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(n)
	}
	return inserted, nil
}

// MarkMessageDeleted sets the soft-delete flag. Reconciliation only.
func (d *DB) MarkMessageDeleted(ctx context.Context, conversationID, remoteID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.db.ExecContext(ctx, `
		UPDATE messages SET deleted = 1
		WHERE conversation_id = ? AND remote_id = ?`, conversationID, remoteID)
	if err != nil {
		return storage.NewStorageError("mark message deleted", err)
	}
	return nil
}

// UpdateMessageEdit replaces the body with the latest revision. Reconciliation only.
func (d *DB) UpdateMessageEdit(ctx context.Context, conversationID, remoteID int64, body string, editedAt int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.db.ExecContext(ctx, `
		UPDATE messages SET body = ?, edited_at = ?
		WHERE conversation_id = ? AND remote_id = ?`, body, editedAt, conversationID, remoteID)
	if err != nil {
		return storage.NewStorageError("update message edit", err)
	}
	return nil
}

// ListMessages returns messages strictly after afterID in ascending remote id order.
func (d *DB) ListMessages(ctx context.Context, conversationID, afterID int64, limit int) ([]storage.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT conversation_id, remote_id, sender_id, body, sent_at, edited_at, has_attachment, deleted
		FROM messages
		WHERE conversation_id = ? AND remote_id > ?
		ORDER BY remote_id ASC
		LIMIT ?`, conversationID, afterID, limit)
	if err != nil {
		return nil, storage.NewStorageError("list messages", err)
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
	rows, err := d.db.QueryContext(ctx, `
		SELECT conversation_id, remote_id, sender_id, body, sent_at, edited_at, has_attachment, deleted
		FROM messages
		WHERE conversation_id = ? AND sent_at < ?
		ORDER BY sent_at DESC
		LIMIT ?`, conversationID, beforeSentAt, limit)
	if err != nil {
		return nil, storage.NewStorageError("list messages before", err)
	}
	return scanMessages(rows)
}

// ListRecentMessages returns the newest messages by remote id, ascending.
// Used by reconciliation to bound its re-scan window.
func (d *DB) ListRecentMessages(ctx context.Context, conversationID int64, limit int) ([]storage.Message, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT conversation_id, remote_id, sender_id, body, sent_at, edited_at, has_attachment, deleted
		FROM (
			SELECT * FROM messages
			WHERE conversation_id = ?
			ORDER BY remote_id DESC
			LIMIT ?
		)
		ORDER BY remote_id ASC`, conversationID, limit)
	if err != nil {
		return nil, storage.NewStorageError("list recent messages", err)
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
	rows, err := d.db.QueryContext(ctx, `
		SELECT conversation_id, remote_id, sender_id, body, sent_at, edited_at, has_attachment, deleted
		FROM messages
		WHERE (? = 0 OR conversation_id = ?) AND body LIKE ?
		ORDER BY sent_at DESC
		LIMIT ?`, conversationID, conversationID, pattern, limit)
	if err != nil {
		return nil, storage.NewStorageError("search messages", err)
	}
	return scanMessages(rows)
}

// CountMessages counts messages, optionally restricted to a conversation and
// a body substring. Empty query counts everything in scope.
func (d *DB) CountMessages(ctx context.Context, conversationID int64, query string) (int64, error) {
	pattern := "%" + query + "%"
	var n int64
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE (? = 0 OR conversation_id = ?) AND (? = '' OR body LIKE ?)`,
		conversationID, conversationID, query, pattern).Scan(&n)
	if err != nil {
		return 0, storage.NewStorageError("count messages", err)
	}
	return n, nil
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
	Err() error
}

func scanMessages(rows rowScanner) ([]storage.Message, error) {
	defer func() { _ = rows.Close() }()

	var msgs []storage.Message
	for rows.Next() {
		var m storage.Message
		if err := rows.Scan(&m.ConversationID, &m.RemoteID, &m.SenderID, &m.Body, &m.SentAt, &m.EditedAt, &m.HasAttachment, &m.Deleted); err != nil {
			return nil, storage.NewStorageError("scan message", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.NewStorageError("list messages", err)
	}
	return msgs, nil
}
