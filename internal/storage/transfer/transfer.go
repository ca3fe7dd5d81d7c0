// Package transfer copies a whole archive from one storage backend into
// another, typically SQLite to Postgres when an archive outgrows a single
// file. The copy is idempotent: re-running it upserts rather than duplicates.
package transfer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/matheus3301/tgvault/internal/storage"
)

const batchSize = 500

// Result counts the rows copied out of each table.
type Result struct {
	Conversations int
	Senders       int
	Messages      int
	Attachments   int
	ReactionSets  int
	SyncStatuses  int
}

// Copy moves every conversation, sender, message, attachment, reaction set
// and sync record from src into dst. The target must already be migrated.
// Cursors are carried over verbatim so the daemon resumes from where the
// source left off.
func Copy(ctx context.Context, src, dst storage.Store, logger *zap.Logger) (*Result, error) {
	res := &Result{}

	for offset := 0; ; offset += batchSize {
		senders, err := src.ListSenders(ctx, batchSize, offset)
		if err != nil {
			return nil, fmt.Errorf("read senders: %w", err)
		}
		for i := range senders {
			if err := dst.UpsertSender(ctx, &senders[i]); err != nil {
				return nil, fmt.Errorf("write sender %d: %w", senders[i].ID, err)
			}
		}
		res.Senders += len(senders)
		if len(senders) < batchSize {
			break
		}
	}
	logger.Info("senders copied", zap.Int("count", res.Senders))

	var convs []storage.Conversation
	for offset := 0; ; offset += batchSize {
		page, err := src.ListConversations(ctx, batchSize, offset)
		if err != nil {
			return nil, fmt.Errorf("read conversations: %w", err)
		}
		for i := range page {
			if err := dst.UpsertConversation(ctx, &page[i]); err != nil {
				return nil, fmt.Errorf("write conversation %d: %w", page[i].ID, err)
			}
		}
		convs = append(convs, page...)
		if len(page) < batchSize {
			break
		}
	}
	res.Conversations = len(convs)
	logger.Info("conversations copied", zap.Int("count", res.Conversations))

	for _, conv := range convs {
		n, sets, err := copyConversation(ctx, src, dst, conv.ID)
		if err != nil {
			return nil, fmt.Errorf("conversation %d: %w", conv.ID, err)
		}
		res.Messages += n
		res.ReactionSets += sets
	}
	logger.Info("messages copied",
		zap.Int("count", res.Messages),
		zap.Int("reaction_sets", res.ReactionSets))

	for offset := 0; ; offset += batchSize {
		atts, err := src.ListAttachments(ctx, batchSize, offset)
		if err != nil {
			return nil, fmt.Errorf("read attachments: %w", err)
		}
		for i := range atts {
			a := atts[i]
			if err := dst.UpsertAttachment(ctx, &a); err != nil {
				return nil, fmt.Errorf("write attachment %d/%d: %w", a.ConversationID, a.RemoteID, err)
			}
			// Upserts never downgrade download state, so stamp it
			// explicitly in case the target row pre-existed as pending.
			if a.Status != storage.AttachmentPending {
				if err := dst.SetAttachmentState(ctx, a.ConversationID, a.RemoteID, a.Status, a.LocalPath); err != nil {
					return nil, fmt.Errorf("stamp attachment %d/%d: %w", a.ConversationID, a.RemoteID, err)
				}
			}
		}
		res.Attachments += len(atts)
		if len(atts) < batchSize {
			break
		}
	}
	logger.Info("attachments copied", zap.Int("count", res.Attachments))

	statuses, err := src.ListSyncStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("read sync status: %w", err)
	}
	for i := range statuses {
		if err := dst.PutSyncStatus(ctx, &statuses[i]); err != nil {
			return nil, fmt.Errorf("write sync status %d: %w", statuses[i].ConversationID, err)
		}
	}
	res.SyncStatuses = len(statuses)
	logger.Info("sync records copied", zap.Int("count", res.SyncStatuses))

	return res, nil
}

// copyConversation pages one conversation's messages and reactions across.
func copyConversation(ctx context.Context, src, dst storage.Store, convID int64) (msgs, sets int, err error) {
	afterID := int64(0)
	for {
		page, err := src.ListMessages(ctx, convID, afterID, batchSize)
		if err != nil {
			return 0, 0, fmt.Errorf("read messages: %w", err)
		}
		if len(page) == 0 {
			break
		}
		if _, err := dst.InsertMessages(ctx, page); err != nil {
			return 0, 0, fmt.Errorf("write messages: %w", err)
		}
		// Inserts don't carry the soft-delete flag; restore it per row.
		for _, m := range page {
			if !m.Deleted {
				continue
			}
			if err := dst.MarkMessageDeleted(ctx, m.ConversationID, m.RemoteID); err != nil {
				return 0, 0, fmt.Errorf("restore deleted flag %d: %w", m.RemoteID, err)
			}
		}
		msgs += len(page)
		afterID = page[len(page)-1].RemoteID
		if len(page) < batchSize {
			break
		}
	}

	reactions, err := src.ListReactionSets(ctx, convID)
	if err != nil {
		return 0, 0, fmt.Errorf("read reactions: %w", err)
	}
	for i := range reactions {
		if err := dst.ReplaceReactions(ctx, &reactions[i]); err != nil {
			return 0, 0, fmt.Errorf("write reactions %d: %w", reactions[i].RemoteID, err)
		}
	}
	return msgs, len(reactions), nil
}

// Verify compares per-table counts between the two stores and returns an
// error naming the first mismatch.
func Verify(ctx context.Context, src, dst storage.Store) error {
	ss, err := src.Stats(ctx)
	if err != nil {
		return fmt.Errorf("source stats: %w", err)
	}
	ds, err := dst.Stats(ctx)
	if err != nil {
		return fmt.Errorf("target stats: %w", err)
	}
	checks := []struct {
		table   string
		src, ds int64
	}{
		{"conversations", ss.Conversations, ds.Conversations},
		{"senders", ss.Senders, ds.Senders},
		{"messages", ss.Messages, ds.Messages},
		{"attachments", ss.Attachments, ds.Attachments},
	}
	for _, c := range checks {
		if c.src != c.ds {
			return fmt.Errorf("%s: source has %d rows, target has %d", c.table, c.src, c.ds)
		}
	}
	return nil
}
