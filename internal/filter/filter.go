// Package filter decides which conversations the engine syncs. The decision
// is a pure function of the immutable configuration: no side effects, so it
// is testable standalone.
package filter

import (
	"github.com/matheus3301/tgvault/internal/config"
	"github.com/matheus3301/tgvault/internal/storage"
)

type idSet map[int64]struct{}

func newIDSet(ids []int64) idSet {
	s := make(idSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s idSet) has(id int64) bool {
	_, ok := s[id]
	return ok
}

type kindRules struct {
	enabled bool
	include idSet
	exclude idSet
}

// Rules holds the compiled include/exclude decision tables.
type Rules struct {
	include idSet
	exclude idSet
	kinds   map[storage.Kind]kindRules
}

// New compiles filter rules from configuration.
func New(cfg config.FilterConfig) *Rules {
	return &Rules{
		include: newIDSet(cfg.Include),
		exclude: newIDSet(cfg.Exclude),
		kinds: map[storage.Kind]kindRules{
			storage.KindDirect: {
				enabled: cfg.Direct.Enabled,
				include: newIDSet(cfg.Direct.Include),
				exclude: newIDSet(cfg.Direct.Exclude),
			},
			storage.KindGroup: {
				enabled: cfg.Group.Enabled,
				include: newIDSet(cfg.Group.Include),
				exclude: newIDSet(cfg.Group.Exclude),
			},
			storage.KindChannel: {
				enabled: cfg.Channel.Enabled,
				include: newIDSet(cfg.Channel.Include),
				exclude: newIDSet(cfg.Channel.Exclude),
			},
		},
	}
}

// ShouldSync reports whether a conversation is eligible for syncing.
// Exclude always wins over include; an empty include list means "allow all"
// for that scope.
func (r *Rules) ShouldSync(kind storage.Kind, id int64) bool {
	kr, ok := r.kinds[kind]
	if !ok || !kr.enabled {
		return false
	}
	if r.exclude.has(id) || kr.exclude.has(id) {
		return false
	}
	if len(r.include) == 0 && len(kr.include) == 0 {
		return true
	}
	return r.include.has(id) || kr.include.has(id)
}
