package sync

import (
	"context"

	"github.com/matheus3301/tgvault/internal/remote"
	"github.com/matheus3301/tgvault/internal/storage"
)

// Tracker supplies the per-conversation resume point and advances it after
// batches commit. The cursor means "last remote identifier known to be
// durably persisted", never "last attempted".
type Tracker struct {
	store   storage.Store
	initial string // full or new
}

// NewTracker creates a cursor tracker with the given first-sync policy.
func NewTracker(store storage.Store, initial string) *Tracker {
	return &Tracker{store: store, initial: initial}
}

// Resume returns the cursor to page from. On the first sync of a
// conversation the policy applies: "full" starts from the oldest retrievable
// message, "new" seeds the cursor at the conversation's newest message so
// only future messages are mirrored.
func (t *Tracker) Resume(ctx context.Context, conv remote.ConversationInfo) (int64, error) {
	st, err := t.store.GetSyncStatus(ctx, conv.ID)
	if err != nil {
		return 0, err
	}
	if st != nil && st.Cursor > 0 {
		return st.Cursor, nil
	}
	// A cursor of zero can also mean a failed run was recorded before the
	// first message ever persisted. Seed only when nothing is mirrored yet,
	// so the policy survives an early failure without re-triggering on a
	// conversation that already holds history.
	if t.initial == "new" && conv.LastMessageID > 0 {
		mirrored, err := t.store.ListRecentMessages(ctx, conv.ID, 1)
		if err != nil {
			return 0, err
		}
		if len(mirrored) == 0 {
			if err := t.store.SetSyncCursor(ctx, conv.ID, conv.LastMessageID); err != nil {
				return 0, err
			}
			return conv.LastMessageID, nil
		}
	}
	return 0, nil
}

// Advance persists the watermark. Must be called only after the
// corresponding batch has durably committed.
func (t *Tracker) Advance(ctx context.Context, conversationID, cursor int64) error {
	return t.store.SetSyncCursor(ctx, conversationID, cursor)
}
