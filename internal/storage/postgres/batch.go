package postgres

import (
	"context"

	"github.com/matheus3301/tgvault/internal/storage"
)

// ApplyBatch commits senders, messages, attachment placeholders and reaction
// sets in one transaction. Message inserts are conflict-ignored so replaying
// a previously committed batch inserts nothing.
func (d *DB) ApplyBatch(ctx context.Context, b *storage.Batch) (int, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return 0, wrapErr("begin batch", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i := range b.Senders {
		if err := upsertSenderTx(ctx, tx, &b.Senders[i]); err != nil {
			return 0, wrapErr("batch upsert sender", err)
		}
	}

	inserted, err := insertMessagesTx(ctx, tx, b.Messages)
	if err != nil {
		return 0, wrapErr("batch insert messages", err)
	}

	for i := range b.Attachments {
		if err := upsertAttachmentTx(ctx, tx, &b.Attachments[i]); err != nil {
			return 0, wrapErr("batch upsert attachment", err)
		}
	}

	for i := range b.Reactions {
		if err := replaceReactionsTx(ctx, tx, &b.Reactions[i]); err != nil {
			return 0, wrapErr("batch replace reactions", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, wrapErr("commit batch", err)
	}
	return inserted, nil
}
