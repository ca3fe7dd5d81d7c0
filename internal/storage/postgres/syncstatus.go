package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/matheus3301/tgvault/internal/storage"
)

// GetSyncCursor returns the durable watermark for a conversation, 0 if none.
func (d *DB) GetSyncCursor(ctx context.Context, conversationID int64) (int64, error) {
	var cursor int64
	err := d.pool.QueryRow(ctx, `
		SELECT cursor FROM sync_status WHERE conversation_id = $1`, conversationID).
		Scan(&cursor)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, wrapErr("get sync cursor", err)
	}
	return cursor, nil
}

// SetSyncCursor advances the watermark after a batch committed. It stamps the
// run time and clears the error fields; the cursor never moves backwards.
func (d *DB) SetSyncCursor(ctx context.Context, conversationID, cursor int64) error {
	now := time.Now().UnixMilli()
	_, err := d.pool.Exec(ctx, `
		INSERT INTO sync_status (conversation_id, cursor, last_run_at, last_error, failure_count)
		VALUES ($1, $2, $3, '', 0)
		ON CONFLICT (conversation_id) DO UPDATE SET
			cursor = GREATEST(sync_status.cursor, excluded.cursor),
			last_run_at = excluded.last_run_at,
			last_error = '',
			failure_count = 0`,
		conversationID, cursor, now)
	return wrapErr("set sync cursor", err)
}

// RecordSyncError stores the failure and bumps the consecutive-failure count.
// The cursor is left untouched.
func (d *DB) RecordSyncError(ctx context.Context, conversationID int64, message string) error {
	now := time.Now().UnixMilli()
	_, err := d.pool.Exec(ctx, `
		INSERT INTO sync_status (conversation_id, cursor, last_run_at, last_error, failure_count)
		VALUES ($1, 0, $2, $3, 1)
		ON CONFLICT (conversation_id) DO UPDATE SET
			last_run_at = excluded.last_run_at,
			last_error = excluded.last_error,
			failure_count = sync_status.failure_count + 1`,
		conversationID, now, message)
	return wrapErr("record sync error", err)
}

// RecordSyncSuccess stamps the run time and clears the error fields without
// moving the cursor. Runs that found nothing new still count as runs.
func (d *DB) RecordSyncSuccess(ctx context.Context, conversationID int64) error {
	now := time.Now().UnixMilli()
	_, err := d.pool.Exec(ctx, `
		INSERT INTO sync_status (conversation_id, cursor, last_run_at, last_error, failure_count)
		VALUES ($1, 0, $2, '', 0)
		ON CONFLICT (conversation_id) DO UPDATE SET
			last_run_at = excluded.last_run_at,
			last_error = '',
			failure_count = 0`,
		conversationID, now)
	return wrapErr("record sync success", err)
}

// GetSyncStatus returns the resumability record, or nil if never synced.
func (d *DB) GetSyncStatus(ctx context.Context, conversationID int64) (*storage.SyncStatus, error) {
	var s storage.SyncStatus
	err := d.pool.QueryRow(ctx, `
		SELECT conversation_id, cursor, last_run_at, last_error, failure_count
		FROM sync_status WHERE conversation_id = $1`, conversationID).
		Scan(&s.ConversationID, &s.Cursor, &s.LastRunAt, &s.LastError, &s.FailureCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get sync status", err)
	}
	return &s, nil
}

// ListSyncStatus returns all per-conversation sync records.
func (d *DB) ListSyncStatus(ctx context.Context) ([]storage.SyncStatus, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT conversation_id, cursor, last_run_at, last_error, failure_count
		FROM sync_status ORDER BY conversation_id`)
	if err != nil {
		return nil, wrapErr("list sync status", err)
	}
	defer rows.Close()

	var statuses []storage.SyncStatus
	for rows.Next() {
		var s storage.SyncStatus
		if err := rows.Scan(&s.ConversationID, &s.Cursor, &s.LastRunAt, &s.LastError, &s.FailureCount); err != nil {
			return nil, wrapErr("scan sync status", err)
		}
		statuses = append(statuses, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list sync status", err)
	}
	return statuses, nil
}

// PutSyncStatus writes the record verbatim, overwriting whatever is there.
// Only the backend copier uses it.
func (d *DB) PutSyncStatus(ctx context.Context, s *storage.SyncStatus) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO sync_status (conversation_id, cursor, last_run_at, last_error, failure_count)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (conversation_id) DO UPDATE SET
			cursor = excluded.cursor,
			last_run_at = excluded.last_run_at,
			last_error = excluded.last_error,
			failure_count = excluded.failure_count`,
		s.ConversationID, s.Cursor, s.LastRunAt, s.LastError, s.FailureCount)
	return wrapErr("put sync status", err)
}

// Stats summarizes archive contents.
func (d *DB) Stats(ctx context.Context) (*storage.Stats, error) {
	var st storage.Stats
	var downloadedBytes int64
	err := d.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM conversations),
			(SELECT COUNT(*) FROM messages),
			(SELECT COUNT(*) FROM senders),
			(SELECT COUNT(*) FROM attachments),
			(SELECT COALESCE(SUM(size_bytes), 0) FROM attachments WHERE status = 'downloaded')`).
		Scan(&st.Conversations, &st.Messages, &st.Senders, &st.Attachments, &downloadedBytes)
	if err != nil {
		return nil, wrapErr("stats", err)
	}
	st.DownloadedMB = float64(downloadedBytes) / (1 << 20)
	return &st, nil
}
