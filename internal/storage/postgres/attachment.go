package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/matheus3301/tgvault/internal/storage"
)

// UpsertAttachment inserts or updates attachment metadata. An existing
// downloaded row keeps its local path and status so replays are harmless.
func (d *DB) UpsertAttachment(ctx context.Context, a *storage.Attachment) error {
	return wrapErr("upsert attachment", upsertAttachmentTx(ctx, d.pool, a))
}

func upsertAttachmentTx(ctx context.Context, e execer, a *storage.Attachment) error {
	status := a.Status
	if status == "" {
		status = storage.AttachmentPending
	}
	now := time.Now().UnixMilli()
	_, err := e.Exec(ctx, `
		INSERT INTO attachments (conversation_id, remote_id, ref, kind, size_bytes, file_name, local_path, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (conversation_id, remote_id) DO UPDATE SET
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
	err := d.pool.QueryRow(ctx, `
		SELECT conversation_id, remote_id, ref, kind, size_bytes, file_name, local_path, status
		FROM attachments
		WHERE conversation_id = $1 AND remote_id = $2`, conversationID, remoteID).
		Scan(&a.ConversationID, &a.RemoteID, &a.Ref, &a.Kind, &a.SizeBytes, &a.FileName, &a.LocalPath, &a.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get attachment", err)
	}
	return &a, nil
}

// ListAttachments pages through every attachment regardless of state,
// download outcome included.
func (d *DB) ListAttachments(ctx context.Context, limit, offset int) ([]storage.Attachment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.pool.Query(ctx, `
		SELECT conversation_id, remote_id, ref, kind, size_bytes, file_name, local_path, status
		FROM attachments
		ORDER BY conversation_id, remote_id
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, wrapErr("list attachments", err)
	}
	return scanAttachments(rows)
}

// ListAttachmentsByStatus returns attachments in the given download state.
func (d *DB) ListAttachmentsByStatus(ctx context.Context, status string, limit int) ([]storage.Attachment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.pool.Query(ctx, `
		SELECT conversation_id, remote_id, ref, kind, size_bytes, file_name, local_path, status
		FROM attachments
		WHERE status = $1
		ORDER BY conversation_id, remote_id
		LIMIT $2`, status, limit)
	if err != nil {
		return nil, wrapErr("list attachments", err)
	}
	return scanAttachments(rows)
}

func scanAttachments(rows pgx.Rows) ([]storage.Attachment, error) {
	defer rows.Close()

	var atts []storage.Attachment
	for rows.Next() {
		var a storage.Attachment
		if err := rows.Scan(&a.ConversationID, &a.RemoteID, &a.Ref, &a.Kind, &a.SizeBytes, &a.FileName, &a.LocalPath, &a.Status); err != nil {
			return nil, wrapErr("scan attachment", err)
		}
		atts = append(atts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list attachments", err)
	}
	return atts, nil
}

// SetAttachmentState records the outcome of a download attempt.
func (d *DB) SetAttachmentState(ctx context.Context, conversationID, remoteID int64, status, localPath string) error {
	now := time.Now().UnixMilli()
	_, err := d.pool.Exec(ctx, `
		UPDATE attachments SET status = $1, local_path = $2, updated_at = $3
		WHERE conversation_id = $4 AND remote_id = $5`,
		status, localPath, now, conversationID, remoteID)
	return wrapErr("set attachment state", err)
}
