// Package storage defines the backend-blind persistence contract for the
// archive. Two implementations exist: an embedded single-writer SQLite store
// and a pooled PostgreSQL store. The sync pipeline depends only on Store;
// transaction boundaries live entirely behind it.
package storage

import "context"

// Store is the storage adapter contract shared by both backends.
//
// Every write surfaces failures as *StorageError. ApplyBatch is the only
// multi-row write and commits all of its effects in one transaction;
// SetSyncCursor must be called only after the corresponding batch committed.
type Store interface {
	// Migrate initializes the schema idempotently. Incompatible existing
	// schemas surface as *SchemaError.
	Migrate(ctx context.Context) (*MigrateResult, error)
	Close() error

	UpsertConversation(ctx context.Context, c *Conversation) error
	GetConversation(ctx context.Context, id int64) (*Conversation, error)
	ListConversations(ctx context.Context, limit, offset int) ([]Conversation, error)

	// InsertMessages inserts with per-row conflict policy "ignore if
	// (conversation, remote id) already present" and returns the number of
	// rows actually inserted. Replaying a committed batch inserts zero.
	InsertMessages(ctx context.Context, msgs []Message) (int, error)

	// ApplyBatch commits senders, messages, attachment placeholders and
	// reaction sets in a single transaction. Returns inserted message count.
	ApplyBatch(ctx context.Context, b *Batch) (int, error)

	GetSyncCursor(ctx context.Context, conversationID int64) (int64, error)
	// SetSyncCursor persists the watermark, stamps the run time and clears
	// the error/failure fields.
	SetSyncCursor(ctx context.Context, conversationID, cursor int64) error
	// RecordSyncError stores the failure and bumps the consecutive counter.
	RecordSyncError(ctx context.Context, conversationID int64, message string) error
	// RecordSyncSuccess stamps the run time and clears the error/failure
	// fields without touching the cursor. Called after every successful
	// conversation sync, including ones that found nothing new.
	RecordSyncSuccess(ctx context.Context, conversationID int64) error
	GetSyncStatus(ctx context.Context, conversationID int64) (*SyncStatus, error)
	ListSyncStatus(ctx context.Context) ([]SyncStatus, error)
	// PutSyncStatus replaces the whole resumability record. Used when
	// copying an archive between backends, never by the sync pipeline.
	PutSyncStatus(ctx context.Context, s *SyncStatus) error

	UpsertSender(ctx context.Context, s *Sender) error
	GetSender(ctx context.Context, id int64) (*Sender, error)
	ListSenders(ctx context.Context, limit, offset int) ([]Sender, error)

	UpsertAttachment(ctx context.Context, a *Attachment) error
	GetAttachment(ctx context.Context, conversationID, remoteID int64) (*Attachment, error)
	ListAttachments(ctx context.Context, limit, offset int) ([]Attachment, error)
	ListAttachmentsByStatus(ctx context.Context, status string, limit int) ([]Attachment, error)
	SetAttachmentState(ctx context.Context, conversationID, remoteID int64, status, localPath string) error

	ReplaceReactions(ctx context.Context, r *ReactionSet) error
	GetReactions(ctx context.Context, conversationID, remoteID int64) (map[string]int, error)
	ListReactionSets(ctx context.Context, conversationID int64) ([]ReactionSet, error)

	// Archive-level key/value metadata (schema stamps, provenance).
	GetMetadata(ctx context.Context, key string) (string, error)
	SetMetadata(ctx context.Context, key, value string) error

	// Reconciliation-only writers.
	MarkMessageDeleted(ctx context.Context, conversationID, remoteID int64) error
	UpdateMessageEdit(ctx context.Context, conversationID, remoteID int64, body string, editedAt int64) error

	// Query side, consumed by the CLI and viewer collaborators.
	ListMessages(ctx context.Context, conversationID, afterID int64, limit int) ([]Message, error)
	ListMessagesBefore(ctx context.Context, conversationID, beforeSentAt int64, limit int) ([]Message, error)
	ListRecentMessages(ctx context.Context, conversationID int64, limit int) ([]Message, error)
	// SearchMessages matches query as a case-insensitive substring of the
	// body. conversationID 0 searches the whole archive.
	SearchMessages(ctx context.Context, conversationID int64, query string, limit int) ([]Message, error)
	CountMessages(ctx context.Context, conversationID int64, query string) (int64, error)
	Stats(ctx context.Context) (*Stats, error)
}
