package filter

import (
	"testing"

	"github.com/matheus3301/tgvault/internal/config"
	"github.com/matheus3301/tgvault/internal/storage"
)

func allEnabled() config.FilterConfig {
	return config.FilterConfig{
		Direct:  config.KindConfig{Enabled: true},
		Group:   config.KindConfig{Enabled: true},
		Channel: config.KindConfig{Enabled: true},
	}
}

func TestDefaultAllowsAll(t *testing.T) {
	r := New(allEnabled())
	for _, kind := range []storage.Kind{storage.KindDirect, storage.KindGroup, storage.KindChannel} {
		if !r.ShouldSync(kind, 42) {
			t.Errorf("ShouldSync(%s, 42) = false, want true", kind)
		}
	}
}

func TestDisabledKind(t *testing.T) {
	cfg := allEnabled()
	cfg.Channel.Enabled = false
	r := New(cfg)

	if r.ShouldSync(storage.KindChannel, 1) {
		t.Error("disabled kind should not sync")
	}
	if !r.ShouldSync(storage.KindGroup, 1) {
		t.Error("other kinds should be unaffected")
	}
}

// Exclude must win even when the same identifier is explicitly included.
func TestExcludePrecedence(t *testing.T) {
	cfg := allEnabled()
	cfg.Include = []int64{100}
	cfg.Exclude = []int64{100, 200}
	r := New(cfg)

	if r.ShouldSync(storage.KindDirect, 100) {
		t.Error("id 100 is excluded; exclude must beat include")
	}
	if r.ShouldSync(storage.KindDirect, 200) {
		t.Error("id 200 is excluded")
	}
}

func TestIncludeListRestricts(t *testing.T) {
	cfg := allEnabled()
	cfg.Group.Include = []int64{10}
	r := New(cfg)

	if !r.ShouldSync(storage.KindGroup, 10) {
		t.Error("included id should sync")
	}
	if r.ShouldSync(storage.KindGroup, 11) {
		t.Error("non-included id should not sync when an include list exists")
	}
}

func TestGlobalIncludeAppliesAcrossKinds(t *testing.T) {
	cfg := allEnabled()
	cfg.Include = []int64{7}
	r := New(cfg)

	if !r.ShouldSync(storage.KindChannel, 7) {
		t.Error("globally included id should sync in any kind")
	}
	if r.ShouldSync(storage.KindChannel, 8) {
		t.Error("id outside the global include list should not sync")
	}
}

func TestPerKindExclude(t *testing.T) {
	cfg := allEnabled()
	cfg.Direct.Exclude = []int64{5}
	r := New(cfg)

	if r.ShouldSync(storage.KindDirect, 5) {
		t.Error("per-kind excluded id should not sync")
	}
	if !r.ShouldSync(storage.KindGroup, 5) {
		t.Error("exclude is scoped to its kind")
	}
}

func TestUnknownKind(t *testing.T) {
	r := New(allEnabled())
	if r.ShouldSync(storage.Kind("bot"), 1) {
		t.Error("unknown kind should not sync")
	}
}
