// Package sync drives the incremental fetch-and-persist pipeline: for every
// eligible conversation it pages remote messages strictly after the durable
// cursor, commits them in bounded batches through the storage contract and
// advances the cursor only after each batch is committed.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matheus3301/tgvault/internal/bus"
	"github.com/matheus3301/tgvault/internal/config"
	"github.com/matheus3301/tgvault/internal/filter"
	"github.com/matheus3301/tgvault/internal/remote"
	"github.com/matheus3301/tgvault/internal/status"
	"github.com/matheus3301/tgvault/internal/storage"
)

// BatchCommitted is the bus payload published after each committed batch.
// Pending carries the attachment placeholders the media pipeline should
// acquire.
type BatchCommitted struct {
	ConversationID int64
	Inserted       int
	Cursor         int64
	Pending        []storage.Attachment
}

// Engine runs one full sync pass over all eligible conversations.
type Engine struct {
	store   storage.Store
	client  remote.Client
	rules   *filter.Rules
	cursors *Tracker
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger

	batchSize int
	workers   int

	// sleep is swapped in tests to avoid real rate-limit waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine creates a sync engine. machine may be nil (tests).
func NewEngine(
	store storage.Store,
	client remote.Client,
	rules *filter.Rules,
	cursors *Tracker,
	b *bus.Bus,
	machine *status.Machine,
	logger *zap.Logger,
	cfg config.SyncConfig,
) *Engine {
	return &Engine{
		store:     store,
		client:    client,
		rules:     rules,
		cursors:   cursors,
		bus:       b,
		machine:   machine,
		logger:    logger,
		batchSize: cfg.BatchSize,
		workers:   cfg.Workers,
		sleep:     ctxSleep,
	}
}

// Run executes one full sync pass. A remote transport failure aborts the
// pass; per-conversation failures are isolated and recorded in the
// conversation's sync status.
func (e *Engine) Run(ctx context.Context) error {
	e.transition(status.Syncing)
	e.publish(bus.KindRunStarted, nil)

	convs, err := e.client.Conversations(ctx)
	if err != nil {
		e.transition(status.Error)
		return fmt.Errorf("list conversations: %w", err)
	}

	var eligible []remote.ConversationInfo
	for _, conv := range convs {
		if e.rules.ShouldSync(conv.Kind, conv.ID) {
			eligible = append(eligible, conv)
		}
	}
	e.logger.Info("sync pass started",
		zap.Int("remote_conversations", len(convs)),
		zap.Int("eligible", len(eligible)))

	// One worker per conversation, conversations are distinct, so no two
	// workers ever share a cursor.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, conv := range eligible {
		g.Go(func() error {
			return e.runConversation(gctx, conv)
		})
	}
	if err := g.Wait(); err != nil {
		e.transition(status.Error)
		e.publish(bus.KindRunFinished, err.Error())
		return err
	}

	e.transition(status.Idle)
	e.publish(bus.KindRunFinished, nil)
	e.logger.Info("sync pass finished")
	return nil
}

// runConversation isolates one conversation's failure from the rest of the
// run. Only a remote-unavailable error propagates and aborts the pass.
func (e *Engine) runConversation(ctx context.Context, conv remote.ConversationInfo) error {
	err := e.syncConversation(ctx, conv)
	if err == nil {
		return nil
	}

	var unavailable *remote.UnavailableError
	if errors.As(err, &unavailable) {
		return err
	}
	if ctx.Err() != nil {
		// Another conversation aborted the run; don't record a failure here.
		return nil
	}

	e.logger.Error("conversation sync failed",
		zap.Int64("conversation_id", conv.ID),
		zap.Error(err))
	if rerr := e.store.RecordSyncError(ctx, conv.ID, err.Error()); rerr != nil {
		e.logger.Error("failed to record sync error", zap.Error(rerr))
	}
	e.publish(bus.KindConvFailed, conv.ID)
	return nil
}

func (e *Engine) syncConversation(ctx context.Context, conv remote.ConversationInfo) error {
	if err := e.store.UpsertConversation(ctx, &storage.Conversation{
		ID:       conv.ID,
		Kind:     conv.Kind,
		Title:    conv.Title,
		Username: conv.Username,
	}); err != nil {
		return err
	}

	cursor, err := e.cursors.Resume(ctx, conv)
	if err != nil {
		return err
	}

	for {
		page, err := e.client.Messages(ctx, conv.ID, cursor, e.batchSize)
		var rl *remote.RateLimitError
		if errors.As(err, &rl) {
			// Mandatory suspend-then-resume. Cursors advanced by prior
			// batches in this run stay committed.
			e.logger.Warn("rate limited, pausing",
				zap.Int64("conversation_id", conv.ID),
				zap.Duration("retry_after", rl.RetryAfter))
			e.transition(status.RateLimited)
			if err := e.sleep(ctx, rl.RetryAfter); err != nil {
				return err
			}
			e.transition(status.Syncing)
			continue
		}
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return e.store.RecordSyncSuccess(ctx, conv.ID)
		}

		batch, pending := normalize(conv.ID, page)
		inserted, err := e.store.ApplyBatch(ctx, batch)
		if err != nil {
			// Batch not committed: stop paging, keep the cursor where the
			// last committed batch left it. Retry next scheduled run.
			return err
		}

		maxID := page[len(page)-1].ID
		if err := e.cursors.Advance(ctx, conv.ID, maxID); err != nil {
			return err
		}
		cursor = maxID

		e.logger.Info("batch committed",
			zap.Int64("conversation_id", conv.ID),
			zap.Int("messages", len(page)),
			zap.Int("inserted", inserted),
			zap.Int64("cursor", cursor))
		e.publish(bus.KindBatchCommitted, BatchCommitted{
			ConversationID: conv.ID,
			Inserted:       inserted,
			Cursor:         cursor,
			Pending:        pending,
		})

		if len(page) < e.batchSize {
			// A short page means the conversation is drained.
			return e.store.RecordSyncSuccess(ctx, conv.ID)
		}
	}
}

// normalize maps one remote page into the storage batch shape, deduplicating
// senders within the page. It also returns the attachment placeholders that
// need acquisition.
func normalize(conversationID int64, page []remote.MessageRecord) (*storage.Batch, []storage.Attachment) {
	batch := &storage.Batch{}
	seen := make(map[int64]struct{})

	for _, rec := range page {
		if rec.SenderID != 0 {
			if _, ok := seen[rec.SenderID]; !ok {
				seen[rec.SenderID] = struct{}{}
				batch.Senders = append(batch.Senders, storage.Sender{
					ID:          rec.SenderID,
					DisplayName: rec.SenderName,
					Username:    rec.SenderUsername,
				})
			}
		}

		batch.Messages = append(batch.Messages, storage.Message{
			ConversationID: conversationID,
			RemoteID:       rec.ID,
			SenderID:       rec.SenderID,
			Body:           rec.Body,
			SentAt:         rec.SentAt,
			EditedAt:       rec.EditedAt,
			HasAttachment:  rec.Attachment != nil,
		})

		if rec.Attachment != nil {
			batch.Attachments = append(batch.Attachments, storage.Attachment{
				ConversationID: conversationID,
				RemoteID:       rec.ID,
				Ref:            rec.Attachment.Ref,
				Kind:           rec.Attachment.Kind,
				SizeBytes:      rec.Attachment.SizeBytes,
				FileName:       rec.Attachment.FileName,
				Status:         storage.AttachmentPending,
			})
		}

		if len(rec.Reactions) > 0 {
			batch.Reactions = append(batch.Reactions, storage.ReactionSet{
				ConversationID: conversationID,
				RemoteID:       rec.ID,
				Counts:         rec.Reactions,
			})
		}
	}
	return batch, batch.Attachments
}

func (e *Engine) transition(to status.State) {
	if e.machine == nil {
		return
	}
	_ = e.machine.Transition(to)
}

func (e *Engine) publish(kind string, payload any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
