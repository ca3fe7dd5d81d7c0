package status

import (
	"testing"

	"github.com/matheus3301/tgvault/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Booting {
		t.Errorf("initial state = %s, want BOOTING", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		name string
		path []State
	}{
		{"boot to idle", []State{Idle}},
		{"full sync run", []State{Idle, Syncing, Idle}},
		{"rate limited run resumes", []State{Idle, Syncing, RateLimited, Syncing, Idle}},
		{"rate limited run cancelled", []State{Idle, Syncing, RateLimited, Idle}},
		{"reconcile pass", []State{Idle, Reconciling, Idle}},
		{"error recovery", []State{Idle, Syncing, Error, Idle}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine(nil)
			for _, s := range tt.path {
				if err := m.Transition(s); err != nil {
					t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
				}
			}
			if m.Current() != tt.path[len(tt.path)-1] {
				t.Errorf("final state = %s, want %s", m.Current(), tt.path[len(tt.path)-1])
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Syncing); err == nil {
		t.Error("Transition(BOOTING -> SYNCING) should fail")
	}
}

// TestSyncRequiresIdle verifies a run cannot start before boot completes and
// that two runs cannot overlap: SYNCING is only reachable from IDLE or
// RATE_LIMITED, so the runner's in-flight check is backed by the machine.
func TestSyncRequiresIdle(t *testing.T) {
	m := NewMachine(nil)
	_ = m.Transition(Idle)
	if err := m.Transition(Syncing); err != nil {
		t.Fatal(err)
	}
	if err := m.Transition(Syncing); err == nil {
		t.Error("Transition(SYNCING -> SYNCING) should fail")
	}
	if m.Current() != Syncing {
		t.Errorf("state = %s, want SYNCING (should not have changed)", m.Current())
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("status.", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Idle); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != bus.KindStatusChanged {
		t.Errorf("event kind = %q, want %q", evt.Kind, bus.KindStatusChanged)
	}
	change, ok := evt.Payload.(StatusChange)
	if !ok {
		t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
	}
	if change.From != Booting || change.To != Idle {
		t.Errorf("change = %v -> %v, want BOOTING -> IDLE", change.From, change.To)
	}
}
