package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/matheus3301/tgvault/internal/storage"
)

// GetSyncCursor returns the durable watermark for a conversation, 0 if none.
func (d *DB) GetSyncCursor(ctx context.Context, conversationID int64) (int64, error) {
	var cursor int64
	err := d.db.QueryRowContext(ctx, `
		SELECT cursor FROM sync_status WHERE conversation_id = ?`, conversationID).
		Scan(&cursor)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, storage.NewStorageError("get sync cursor", err)
	}
	return cursor, nil
}

// SetSyncCursor advances the watermark after a batch committed. It stamps the
// run time and clears the error fields; the cursor never moves backwards.
func (d *DB) SetSyncCursor(ctx context.Context, conversationID, cursor int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now().UnixMilli()
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO sync_status (conversation_id, cursor, last_run_at, last_error, failure_count)
		VALUES (?, ?, ?, '', 0)
		ON CONFLICT(conversation_id) DO UPDATE SET
			cursor = MAX(sync_status.cursor, excluded.cursor),
			last_run_at = excluded.last_run_at,
			last_error = '',
			failure_count = 0`,
		conversationID, cursor, now)
	if err != nil {
		return storage.NewStorageError("set sync cursor", err)
	}
	return nil
}

// RecordSyncError stores the failure and bumps the consecutive-failure count.
// The cursor is left untouched.
func (d *DB) RecordSyncError(ctx context.Context, conversationID int64, message string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now().UnixMilli()
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO sync_status (conversation_id, cursor, last_run_at, last_error, failure_count)
		VALUES (?, 0, ?, ?, 1)
		ON CONFLICT(conversation_id) DO UPDATE SET
			last_run_at = excluded.last_run_at,
			last_error = excluded.last_error,
			failure_count = sync_status.failure_count + 1`,
		conversationID, now, message)
	if err != nil {
		return storage.NewStorageError("record sync error", err)
	}
	return nil
}

// RecordSyncSuccess stamps the run time and clears the error fields without
// moving the cursor. Runs that found nothing new still count as runs.
func (d *DB) RecordSyncSuccess(ctx context.Context, conversationID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now().UnixMilli()
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO sync_status (conversation_id, cursor, last_run_at, last_error, failure_count)
		VALUES (?, 0, ?, '', 0)
		ON CONFLICT(conversation_id) DO UPDATE SET
			last_run_at = excluded.last_run_at,
			last_error = '',
			failure_count = 0`,
		conversationID, now)
	if err != nil {
		return storage.NewStorageError("record sync success", err)
	}
	return nil
}

// GetSyncStatus returns the resumability record, or nil if never synced.
func (d *DB) GetSyncStatus(ctx context.Context, conversationID int64) (*storage.SyncStatus, error) {
	var s storage.SyncStatus
	err := d.db.QueryRowContext(ctx, `
		SELECT conversation_id, cursor, last_run_at, last_error, failure_count
		FROM sync_status WHERE conversation_id = ?`, conversationID).
		Scan(&s.ConversationID, &s.Cursor, &s.LastRunAt, &s.LastError, &s.FailureCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storage.NewStorageError("get sync status", err)
	}
	return &s, nil
}

// ListSyncStatus returns all per-conversation sync records.
func (d *DB) ListSyncStatus(ctx context.Context) ([]storage.SyncStatus, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT conversation_id, cursor, last_run_at, last_error, failure_count
		FROM sync_status ORDER BY conversation_id`)
	if err != nil {
		return nil, storage.NewStorageError("list sync status", err)
	}
	defer func() { _ = rows.Close() }()

	var statuses []storage.SyncStatus
	for rows.Next() {
		var s storage.SyncStatus
		if err := rows.Scan(&s.ConversationID, &s.Cursor, &s.LastRunAt, &s.LastError, &s.FailureCount); err != nil {
			return nil, storage.NewStorageError("scan sync status", err)
		}
		statuses = append(statuses, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.NewStorageError("list sync status", err)
	}
	return statuses, nil
}

// PutSyncStatus writes the record verbatim, overwriting whatever is there.
// Only the backend copier uses it.
func (d *DB) PutSyncStatus(ctx context.Context, s *storage.SyncStatus) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO sync_status (conversation_id, cursor, last_run_at, last_error, failure_count)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			cursor = excluded.cursor,
			last_run_at = excluded.last_run_at,
			last_error = excluded.last_error,
			failure_count = excluded.failure_count`,
		s.ConversationID, s.Cursor, s.LastRunAt, s.LastError, s.FailureCount)
	if err != nil {
		return storage.NewStorageError("put sync status", err)
	}
	return nil
}

// Stats summarizes archive contents.
func (d *DB) Stats(ctx context.Context) (*storage.Stats, error) {
	var st storage.Stats
	row := d.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM conversations),
			(SELECT COUNT(*) FROM messages),
			(SELECT COUNT(*) FROM senders),
			(SELECT COUNT(*) FROM attachments),
			(SELECT COALESCE(SUM(size_bytes), 0) FROM attachments WHERE status = 'downloaded')`)
	var downloadedBytes int64
	if err := row.Scan(&st.Conversations, &st.Messages, &st.Senders, &st.Attachments, &downloadedBytes); err != nil {
		return nil, storage.NewStorageError("stats", err)
	}
	st.DownloadedMB = float64(downloadedBytes) / (1 << 20)
	return &st, nil
}
