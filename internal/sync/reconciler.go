package sync

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/tgvault/internal/bus"
	"github.com/matheus3301/tgvault/internal/remote"
	"github.com/matheus3301/tgvault/internal/storage"
)

// Reconciled is the bus payload published after a conversation's tail has
// been reconciled.
type Reconciled struct {
	ConversationID int64
	Deleted        int
	Edited         int
}

// Reconciler walks the most recent messages of each synced conversation and
// repairs drift the forward sync cannot see: remote deletions become local
// soft-deletes, and newer remote edits replace the stored body and reactions.
type Reconciler struct {
	store  storage.Store
	client remote.Client
	bus    *bus.Bus
	logger *zap.Logger
	window int
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewReconciler creates a reconciler covering the last window messages per
// conversation.
func NewReconciler(store storage.Store, client remote.Client, b *bus.Bus, logger *zap.Logger, window int) *Reconciler {
	return &Reconciler{
		store:  store,
		client: client,
		bus:    b,
		logger: logger,
		window: window,
		sleep:  ctxSleep,
	}
}

// Run reconciles every conversation that has synced at least one message.
// A remote transport failure aborts the pass; anything already repaired
// stays repaired.
func (r *Reconciler) Run(ctx context.Context) error {
	statuses, err := r.store.ListSyncStatus(ctx)
	if err != nil {
		return err
	}

	for _, st := range statuses {
		if st.Cursor == 0 {
			continue
		}
		if err := r.reconcileConversation(ctx, st.ConversationID); err != nil {
			var unavailable *remote.UnavailableError
			if errors.As(err, &unavailable) || ctx.Err() != nil {
				return err
			}
			r.logger.Error("reconcile failed",
				zap.Int64("conversation_id", st.ConversationID),
				zap.Error(err))
		}
	}
	return nil
}

func (r *Reconciler) reconcileConversation(ctx context.Context, conversationID int64) error {
	locals, err := r.store.ListRecentMessages(ctx, conversationID, r.window)
	if err != nil {
		return err
	}
	if len(locals) == 0 {
		return nil
	}

	// Re-fetch the same id range from the remote. Locals come back in
	// ascending id order, oldest of the window first.
	lowest := locals[0].RemoteID
	highest := locals[len(locals)-1].RemoteID
	byID := make(map[int64]remote.MessageRecord, len(locals))
	after := lowest - 1
	for {
		page, err := r.fetch(ctx, conversationID, after)
		if err != nil {
			return err
		}
		for _, rec := range page {
			byID[rec.ID] = rec
		}
		if len(page) < r.window {
			break
		}
		after = page[len(page)-1].ID
		if after >= highest {
			break
		}
	}

	var deleted, edited int
	for _, local := range locals {
		rec, ok := byID[local.RemoteID]
		if !ok {
			if local.Deleted {
				continue
			}
			if err := r.store.MarkMessageDeleted(ctx, conversationID, local.RemoteID); err != nil {
				return err
			}
			deleted++
			continue
		}
		if rec.EditedAt > local.EditedAt {
			if err := r.store.UpdateMessageEdit(ctx, conversationID, local.RemoteID, rec.Body, rec.EditedAt); err != nil {
				return err
			}
			if err := r.store.ReplaceReactions(ctx, &storage.ReactionSet{
				ConversationID: conversationID,
				RemoteID:       local.RemoteID,
				Counts:         rec.Reactions,
			}); err != nil {
				return err
			}
			edited++
		}
	}

	if deleted > 0 || edited > 0 {
		r.logger.Info("reconciled conversation",
			zap.Int64("conversation_id", conversationID),
			zap.Int("deleted", deleted),
			zap.Int("edited", edited))
	}
	if r.bus != nil {
		r.bus.Publish(bus.Event{
			Kind:      bus.KindReconciled,
			Timestamp: time.Now(),
			Payload: Reconciled{
				ConversationID: conversationID,
				Deleted:        deleted,
				Edited:         edited,
			},
		})
	}
	return nil
}

// fetch pages the remote once, honoring rate-limit suspensions.
func (r *Reconciler) fetch(ctx context.Context, conversationID, afterID int64) ([]remote.MessageRecord, error) {
	for {
		page, err := r.client.Messages(ctx, conversationID, afterID, r.window)
		var rl *remote.RateLimitError
		if errors.As(err, &rl) {
			r.logger.Warn("rate limited during reconcile",
				zap.Int64("conversation_id", conversationID),
				zap.Duration("retry_after", rl.RetryAfter))
			if err := r.sleep(ctx, rl.RetryAfter); err != nil {
				return nil, err
			}
			continue
		}
		return page, err
	}
}
