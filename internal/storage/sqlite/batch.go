package sqlite

import (
	"context"

	"github.com/matheus3301/tgvault/internal/storage"
)

// ApplyBatch commits senders, messages, attachment placeholders and reaction
// sets in one transaction. Message inserts are conflict-ignored so replaying
// a previously committed batch inserts nothing.
func (d *DB) ApplyBatch(ctx context.Context, b *storage.Batch) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storage.NewStorageError("begin batch", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := range b.Senders {
		if err := upsertSenderTx(ctx, tx, &b.Senders[i]); err != nil {
			return 0, storage.NewStorageError("batch upsert sender", err)
		}
	}

	inserted, err := insertMessagesTx(ctx, tx, b.Messages)
	if err != nil {
		return 0, storage.NewStorageError("batch insert messages", err)
	}

	for i := range b.Attachments {
		if err := upsertAttachmentTx(ctx, tx, &b.Attachments[i]); err != nil {
			return 0, storage.NewStorageError("batch upsert attachment", err)
		}
	}

	for i := range b.Reactions {
		if err := replaceReactionsTx(ctx, tx, &b.Reactions[i]); err != nil {
			return 0, storage.NewStorageError("batch replace reactions", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, storage.NewStorageError("commit batch", err)
	}
	return inserted, nil
}
