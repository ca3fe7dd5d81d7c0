package postgres

import (
	"context"

	"github.com/matheus3301/tgvault/internal/storage"
)

// ReplaceReactions replaces the full aggregate reaction set for a message.
func (d *DB) ReplaceReactions(ctx context.Context, r *storage.ReactionSet) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return wrapErr("begin replace reactions", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := replaceReactionsTx(ctx, tx, r); err != nil {
		return wrapErr("replace reactions", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapErr("commit replace reactions", err)
	}
	return nil
}

func replaceReactionsTx(ctx context.Context, e execer, r *storage.ReactionSet) error {
	if _, err := e.Exec(ctx, `
		DELETE FROM reactions WHERE conversation_id = $1 AND remote_id = $2`,
		r.ConversationID, r.RemoteID); err != nil {
		return err
	}
	for emoji, count := range r.Counts {
		if _, err := e.Exec(ctx, `
			INSERT INTO reactions (conversation_id, remote_id, emoji, count)
			VALUES ($1, $2, $3, $4)`,
			r.ConversationID, r.RemoteID, emoji, count); err != nil {
			return err
		}
	}
	return nil
}

// ListReactionSets returns every reacted message in a conversation with its
// aggregate counts, grouped per message.
func (d *DB) ListReactionSets(ctx context.Context, conversationID int64) ([]storage.ReactionSet, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT remote_id, emoji, count FROM reactions
		WHERE conversation_id = $1
		ORDER BY remote_id`, conversationID)
	if err != nil {
		return nil, wrapErr("list reactions", err)
	}
	defer rows.Close()

	var sets []storage.ReactionSet
	for rows.Next() {
		var remoteID int64
		var emoji string
		var count int
		if err := rows.Scan(&remoteID, &emoji, &count); err != nil {
			return nil, wrapErr("scan reaction", err)
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
		return nil, wrapErr("list reactions", err)
	}
	return sets, nil
}

// GetReactions returns the aggregate reaction counts for a message.
func (d *DB) GetReactions(ctx context.Context, conversationID, remoteID int64) (map[string]int, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT emoji, count FROM reactions
		WHERE conversation_id = $1 AND remote_id = $2`, conversationID, remoteID)
	if err != nil {
		return nil, wrapErr("get reactions", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var emoji string
		var count int
		if err := rows.Scan(&emoji, &count); err != nil {
			return nil, wrapErr("scan reaction", err)
		}
		counts[emoji] = count
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("get reactions", err)
	}
	return counts, nil
}
