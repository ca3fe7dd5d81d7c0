package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/tgvault/internal/bus"
	"github.com/matheus3301/tgvault/internal/config"
	"github.com/matheus3301/tgvault/internal/filter"
	"github.com/matheus3301/tgvault/internal/remote/httpbridge"
	"github.com/matheus3301/tgvault/internal/status"
	"github.com/matheus3301/tgvault/internal/storage/sqlite"
	intsync "github.com/matheus3301/tgvault/internal/sync"
)

// bridgeFixture serves a small fixed history over the bridge JSON API.
func bridgeFixture(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/conversations", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": 10, "kind": "direct", "title": "alice", "last_message_id": 5},
		})
	})
	mux.HandleFunc("/v1/conversations/10/messages", func(w http.ResponseWriter, r *http.Request) {
		after, _ := strconv.ParseInt(r.URL.Query().Get("after_id"), 10, 64)
		var page []map[string]any
		for id := after + 1; id <= 5; id++ {
			page = append(page, map[string]any{
				"id": id, "sender_id": 7, "sender_name": "Alice",
				"body": fmt.Sprintf("msg %d", id), "sent_at": id * 1000,
			})
		}
		_ = json.NewEncoder(w).Encode(page)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// TestRunnerEndToEnd drives the scheduler against a fixture bridge and a
// real embedded store: the full daemon path minus fx.
func TestRunnerEndToEnd(t *testing.T) {
	srv := bridgeFixture(t)

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, err := db.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Remote.BaseURL = srv.URL
	cfg.Sync.Interval = config.Duration{Duration: 50 * time.Millisecond}

	client := httpbridge.New(cfg.Remote)
	defer client.Close()
	b := bus.New()
	machine := status.NewMachine(b)
	if err := machine.Transition(status.Idle); err != nil {
		t.Fatal(err)
	}
	logger := zap.NewNop()

	engine := intsync.NewEngine(db, client, filter.New(cfg.Filter),
		intsync.NewTracker(db, cfg.Sync.Initial), b, machine, logger, cfg.Sync)
	reconciler := intsync.NewReconciler(db, client, b, logger, cfg.Sync.Reconcile.Window)

	runner := NewRunner(engine, reconciler, machine, logger, cfg)
	runner.Start(context.Background())
	defer runner.Stop()

	deadline := time.After(5 * time.Second)
	for {
		stats, err := db.Stats(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if stats.Messages == 5 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out with %d messages, want 5", stats.Messages)
		case <-time.After(20 * time.Millisecond):
		}
	}

	cursor, err := db.GetSyncCursor(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if cursor != 5 {
		t.Errorf("cursor = %d, want 5", cursor)
	}
	if got := machine.Current(); got != status.Idle && got != status.Syncing {
		t.Errorf("state = %s, want Idle between passes", got)
	}
}

// TestRunnerRecoversFromError verifies a failed pass does not wedge the
// state machine.
func TestRunnerRecoversFromError(t *testing.T) {
	// Bridge that always refuses.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, err := db.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Remote.BaseURL = srv.URL

	client := httpbridge.New(cfg.Remote)
	defer client.Close()
	b := bus.New()
	machine := status.NewMachine(b)
	if err := machine.Transition(status.Idle); err != nil {
		t.Fatal(err)
	}
	logger := zap.NewNop()

	engine := intsync.NewEngine(db, client, filter.New(cfg.Filter),
		intsync.NewTracker(db, cfg.Sync.Initial), b, machine, logger, cfg.Sync)
	runner := NewRunner(engine, intsync.NewReconciler(db, client, b, logger, cfg.Sync.Reconcile.Window), machine, logger, cfg)

	runner.runSync(context.Background())
	if machine.Current() != status.Error {
		t.Fatalf("state = %s, want Error after failed pass", machine.Current())
	}

	// The next tick recovers and fails again, but never gets stuck.
	runner.runSync(context.Background())
	if machine.Current() != status.Error {
		t.Errorf("state = %s, want Error again (recovered then failed)", machine.Current())
	}
}
