package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/matheus3301/tgvault/internal/storage"
)

// UpsertAttachment inserts or updates attachment metadata. An existing
// downloaded row keeps its local path and status so replays are harmless.
func (d *DB) UpsertAttachment(ctx context.Context, a *storage.Attachment) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := upsertAttachmentTx(ctx, d.db, a); err != nil {
		return storage.NewStorageError("upsert attachment", err)
	}
	return nil
}

func upsertAttachmentTx(ctx context.Context, e execer, a *storage.Attachment) error {
	status := a.Status
	if status == "" {
		status = storage.AttachmentPending
	}
	now := time.Now().UnixMilli()
	_, err := e.ExecContext(ctx, `
		INSERT INTO attachments (conversation_id, remote_id, ref, kind, size_bytes, file_name, local_path, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id, remote_id) DO UPDATE SET
			ref = excluded.ref,
			kind = excluded.kind,
			size_bytes = excluded.size_bytes,
			file_name = excluded.file_name,
			updated_at = excluded.updated_at`,
		a.ConversationID, a.RemoteID, a.Ref, a.Kind, a.SizeBytes, a.FileName, a.LocalPath, status, now)
	return err
}

// GetAttachment returns attachment metadata, or nil if absent.
func (d *DB) GetAttachment(ctx context.Context, conversationID, remoteID int64) (*storage.Attachment, error) {
	var a storage.Attachment
	err := d.db.QueryRowContext(ctx, `
		SELECT conversation_id, remote_id, ref, kind, size_bytes, file_name, local_path, status
		FROM attachments
		WHERE conversation_id = ? AND remote_id = ?`, conversationID, remoteID).
		Scan(&a.ConversationID, &a.RemoteID, &a.Ref, &a.Kind, &a.SizeBytes, &a.FileName, &a.LocalPath, &a.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storage.NewStorageError("get attachment", err)
	}
	return &a, nil
}

// ListAttachments pages through every attachment regardless of state,
// download outcome included.
func (d *DB) ListAttachments(ctx context.Context, limit, offset int) ([]storage.Attachment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT conversation_id, remote_id, ref, kind, size_bytes, file_name, local_path, status
		FROM attachments
		ORDER BY conversation_id, remote_id
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, storage.NewStorageError("list attachments", err)
	}
	return scanAttachments(rows)
}

// ListAttachmentsByStatus returns attachments in the given download state.
func (d *DB) ListAttachmentsByStatus(ctx context.Context, status string, limit int) ([]storage.Attachment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT conversation_id, remote_id, ref, kind, size_bytes, file_name, local_path, status
		FROM attachments
		WHERE status = ?
		ORDER BY conversation_id, remote_id
		LIMIT ?`, status, limit)
	if err != nil {
		return nil, storage.NewStorageError("list attachments", err)
	}
	return scanAttachments(rows)
}

func scanAttachments(rows *sql.Rows) ([]storage.Attachment, error) {
	defer func() { _ = rows.Close() }()

	var atts []storage.Attachment
	for rows.Next() {
		var a storage.Attachment
		if err := rows.Scan(&a.ConversationID, &a.RemoteID, &a.Ref, &a.Kind, &a.SizeBytes, &a.FileName, &a.LocalPath, &a.Status); err != nil {
			return nil, storage.NewStorageError("scan attachment", err)
		}
		atts = append(atts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.NewStorageError("list attachments", err)
	}
	return atts, nil
}

// SetAttachmentState records the outcome of a download attempt.
func (d *DB) SetAttachmentState(ctx context.Context, conversationID, remoteID int64, status, localPath string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now().UnixMilli()
	_, err := d.db.ExecContext(ctx, `
		UPDATE attachments SET status = ?, local_path = ?, updated_at = ?
		WHERE conversation_id = ? AND remote_id = ?`,
		status, localPath, now, conversationID, remoteID)
	if err != nil {
		return storage.NewStorageError("set attachment state", err)
	}
	return nil
}
