package sqlite

import (
	"context"

	"github.com/matheus3301/tgvault/internal/storage"
)

// ReplaceReactions replaces the full aggregate reaction set for a message.
func (d *DB) ReplaceReactions(ctx context.Context, r *storage.ReactionSet) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.NewStorageError("begin replace reactions", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := replaceReactionsTx(ctx, tx, r); err != nil {
		return storage.NewStorageError("replace reactions", err)
	}
	if err := tx.Commit(); err != nil {
		return storage.NewStorageError("commit replace reactions", err)
	}
	return nil
}

func replaceReactionsTx(ctx context.Context, e execer, r *storage.ReactionSet) error {
	if _, err := e.ExecContext(ctx, `
		DELETE FROM reactions WHERE conversation_id = ? AND remote_id = ?`,
		r.ConversationID, r.RemoteID); err != nil {
		return err
	}
	for emoji, count := range r.Counts {
		if _, err := e.ExecContext(ctx, `
			INSERT INTO reactions (conversation_id, remote_id, emoji, count)
			VALUES (?, ?, ?, ?)`,
			r.ConversationID, r.RemoteID, emoji, count); err != nil {
			return err
		}
	}
	return nil
}

// ListReactionSets returns every reacted message in a conversation with its
// aggregate counts, grouped per message.
func (d *DB) ListReactionSets(ctx context.Context, conversationID int64) ([]storage.ReactionSet, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT remote_id, emoji, count FROM reactions
		WHERE conversation_id = ?
		ORDER BY remote_id`, conversationID)
	if err != nil {
		return nil, storage.NewStorageError("list reactions", err)
	}
	defer func() { _ = rows.Close() }()

	var sets []storage.ReactionSet
	for rows.Next() {
		var remoteID int64
		var emoji string
		var count int
		if err := rows.Scan(&remoteID, &emoji, &count); err != nil {
			return nil, storage.NewStorageError("scan reaction", err)
		}
		if len(sets) == 0 || sets[len(sets)-1].RemoteID != remoteID {
			sets = append(sets, storage.ReactionSet{
				ConversationID: conversationID,
				RemoteID:       remoteID,
				Counts:         make(map[string]int),
			})
		}
		sets[len(sets)-1].Counts[emoji] = count
	}
	if err := rows.Err(); err != nil {
		return nil, storage.NewStorageError("list reactions", err)
	}
	return sets, nil
}

// GetReactions returns the aggregate reaction counts for a message.
func (d *DB) GetReactions(ctx context.Context, conversationID, remoteID int64) (map[string]int, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT emoji, count FROM reactions
		WHERE conversation_id = ? AND remote_id = ?`, conversationID, remoteID)
	if err != nil {
		return nil, storage.NewStorageError("get reactions", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var emoji string
		var count int
		if err := rows.Scan(&emoji, &count); err != nil {
			return nil, storage.NewStorageError("scan reaction", err)
		}
		counts[emoji] = count
	}
	if err := rows.Err(); err != nil {
		return nil, storage.NewStorageError("get reactions", err)
	}
	return counts, nil
}
