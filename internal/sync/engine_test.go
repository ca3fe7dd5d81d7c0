package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/tgvault/internal/bus"
	"github.com/matheus3301/tgvault/internal/config"
	"github.com/matheus3301/tgvault/internal/filter"
	"github.com/matheus3301/tgvault/internal/remote"
	"github.com/matheus3301/tgvault/internal/storage"
	"github.com/matheus3301/tgvault/internal/storage/sqlite"
)

func testDB(t *testing.T) *sqlite.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sqlite.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// fakeClient serves a fixed message history and records the afterID of every
// page request.
type fakeClient struct {
	mu       sync.Mutex
	convs    []remote.ConversationInfo
	msgs     map[int64][]remote.MessageRecord
	afterIDs []int64

	// msgErr, when set, is consulted per Messages call (1-based counter)
	// and returned instead of a page.
	msgErr  func(call int) error
	calls   int
	convErr error
}

func (f *fakeClient) Conversations(ctx context.Context) ([]remote.ConversationInfo, error) {
	if f.convErr != nil {
		return nil, f.convErr
	}
	return f.convs, nil
}

func (f *fakeClient) Messages(ctx context.Context, conversationID, afterID int64, limit int) ([]remote.MessageRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.msgErr != nil {
		if err := f.msgErr(f.calls); err != nil {
			return nil, err
		}
	}
	f.afterIDs = append(f.afterIDs, afterID)

	var page []remote.MessageRecord
	for _, rec := range f.msgs[conversationID] {
		if rec.ID > afterID {
			page = append(page, rec)
			if len(page) == limit {
				break
			}
		}
	}
	return page, nil
}

func (f *fakeClient) OpenAttachment(ctx context.Context, ref string) (io.ReadCloser, int64, error) {
	return nil, 0, errors.New("no media in fake")
}

func (f *fakeClient) Close() error { return nil }

func history(n int) []remote.MessageRecord {
	msgs := make([]remote.MessageRecord, 0, n)
	for i := 1; i <= n; i++ {
		msgs = append(msgs, remote.MessageRecord{
			ID:       int64(i),
			SenderID: int64(1 + i%3),
			Body:     fmt.Sprintf("message %d", i),
			SentAt:   int64(1000 * i),
		})
	}
	return msgs
}

func testEngine(db storage.Store, client remote.Client, b *bus.Bus, cfg config.SyncConfig) *Engine {
	rules := filter.New(config.Default().Filter)
	e := NewEngine(db, client, rules, NewTracker(db, cfg.Initial), b, nil, zap.NewNop(), cfg)
	e.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return e
}

func TestEngineFullSync(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	client := &fakeClient{
		convs: []remote.ConversationInfo{{ID: 10, Kind: storage.KindDirect, Title: "alice"}},
		msgs:  map[int64][]remote.MessageRecord{10: history(250)},
	}
	e := testEngine(db, client, b, config.SyncConfig{BatchSize: 100, Initial: "full", Workers: 1})

	ch, unsub := b.Subscribe(bus.KindBatchCommitted, 10)
	defer unsub()

	if err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	cursor, err := db.GetSyncCursor(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if cursor != 250 {
		t.Errorf("cursor = %d, want 250", cursor)
	}

	stats, err := db.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Messages != 250 {
		t.Errorf("stored %d messages, want 250", stats.Messages)
	}
	if stats.Conversations != 1 {
		t.Errorf("stored %d conversations, want 1", stats.Conversations)
	}

	// 250 messages at batch size 100 commit as 100+100+50.
	var batches []BatchCommitted
	for i := 0; i < 3; i++ {
		select {
		case evt := <-ch:
			batches = append(batches, evt.Payload.(BatchCommitted))
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for batch event %d", i+1)
		}
	}
	wantInserted := []int{100, 100, 50}
	wantCursor := []int64{100, 200, 250}
	for i, batch := range batches {
		if batch.Inserted != wantInserted[i] {
			t.Errorf("batch %d inserted = %d, want %d", i+1, batch.Inserted, wantInserted[i])
		}
		if batch.Cursor != wantCursor[i] {
			t.Errorf("batch %d cursor = %d, want %d", i+1, batch.Cursor, wantCursor[i])
		}
	}
}

func TestEngineResumeAfterFailure(t *testing.T) {
	db := testDB(t)
	client := &fakeClient{
		convs: []remote.ConversationInfo{{ID: 10, Kind: storage.KindDirect}},
		msgs:  map[int64][]remote.MessageRecord{10: history(250)},
	}
	// The second page request fails mid-run.
	client.msgErr = func(call int) error {
		if call == 2 {
			return errors.New("boom")
		}
		return nil
	}
	e := testEngine(db, client, bus.New(), config.SyncConfig{BatchSize: 100, Initial: "full", Workers: 1})

	// First run: batch 1 committed, then the failure is recorded and
	// isolated, so the run itself succeeds.
	if err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	cursor, _ := db.GetSyncCursor(context.Background(), 10)
	if cursor != 100 {
		t.Fatalf("cursor after failed run = %d, want 100", cursor)
	}
	st, err := db.GetSyncStatus(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if st.FailureCount != 1 || st.LastError == "" {
		t.Errorf("sync status = %+v, want failure recorded", st)
	}

	// Second run resumes from the committed cursor, not from zero.
	client.msgErr = nil
	client.afterIDs = nil
	if err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(client.afterIDs) == 0 || client.afterIDs[0] != 100 {
		t.Errorf("resume afterIDs = %v, want first request after 100", client.afterIDs)
	}

	stats, _ := db.Stats(context.Background())
	if stats.Messages != 250 {
		t.Errorf("stored %d messages, want 250", stats.Messages)
	}
	st, _ = db.GetSyncStatus(context.Background(), 10)
	if st.FailureCount != 0 || st.LastError != "" {
		t.Errorf("sync status after recovery = %+v, want cleared", st)
	}
}

// failCursorStore simulates a crash between batch commit and cursor write:
// the batch transaction lands, the cursor write does not.
type failCursorStore struct {
	storage.Store
	fail bool
}

func (s *failCursorStore) SetSyncCursor(ctx context.Context, conversationID, cursor int64) error {
	if s.fail {
		s.fail = false
		return errors.New("crash before cursor write")
	}
	return s.Store.SetSyncCursor(ctx, conversationID, cursor)
}

func TestEngineReplayAfterCursorLoss(t *testing.T) {
	db := testDB(t)
	wrapped := &failCursorStore{Store: db, fail: true}
	client := &fakeClient{
		convs: []remote.ConversationInfo{{ID: 10, Kind: storage.KindDirect}},
		msgs:  map[int64][]remote.MessageRecord{10: history(150)},
	}
	cfg := config.SyncConfig{BatchSize: 100, Initial: "full", Workers: 1}
	rules := filter.New(config.Default().Filter)
	e := NewEngine(wrapped, client, rules, NewTracker(wrapped, cfg.Initial), bus.New(), nil, zap.NewNop(), cfg)

	// First run: batch 1 commits, cursor write is lost.
	if err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	cursor, _ := db.GetSyncCursor(context.Background(), 10)
	if cursor != 0 {
		t.Fatalf("cursor = %d, want 0 after lost write", cursor)
	}

	// Replay: batch 1 is re-fetched and conflict-ignored, no duplicates,
	// cursor repaired.
	if err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	stats, _ := db.Stats(context.Background())
	if stats.Messages != 150 {
		t.Errorf("stored %d messages, want 150 (no duplicates on replay)", stats.Messages)
	}
	cursor, _ = db.GetSyncCursor(context.Background(), 10)
	if cursor != 150 {
		t.Errorf("cursor = %d, want 150", cursor)
	}
}

func TestEngineRateLimitResume(t *testing.T) {
	db := testDB(t)
	client := &fakeClient{
		convs: []remote.ConversationInfo{{ID: 10, Kind: storage.KindDirect}},
		msgs:  map[int64][]remote.MessageRecord{10: history(150)},
	}
	client.msgErr = func(call int) error {
		if call == 2 {
			return &remote.RateLimitError{RetryAfter: 42 * time.Second}
		}
		return nil
	}
	e := testEngine(db, client, bus.New(), config.SyncConfig{BatchSize: 100, Initial: "full", Workers: 1})

	var slept []time.Duration
	e.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	if err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(slept) != 1 || slept[0] != 42*time.Second {
		t.Errorf("slept %v, want one 42s pause", slept)
	}
	stats, _ := db.Stats(context.Background())
	if stats.Messages != 150 {
		t.Errorf("stored %d messages, want 150 after resume", stats.Messages)
	}
}

func TestEngineUnavailableAbortsRun(t *testing.T) {
	db := testDB(t)
	client := &fakeClient{
		convs: []remote.ConversationInfo{{ID: 10, Kind: storage.KindDirect}},
		msgs:  map[int64][]remote.MessageRecord{10: history(10)},
	}
	client.msgErr = func(call int) error {
		return &remote.UnavailableError{Err: errors.New("bridge down")}
	}
	e := testEngine(db, client, bus.New(), config.SyncConfig{BatchSize: 100, Initial: "full", Workers: 1})

	err := e.Run(context.Background())
	var unavailable *remote.UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("err = %v, want UnavailableError", err)
	}
}

func TestEngineFilterExcludes(t *testing.T) {
	db := testDB(t)
	client := &fakeClient{
		convs: []remote.ConversationInfo{
			{ID: 10, Kind: storage.KindDirect},
			{ID: 20, Kind: storage.KindChannel},
		},
		msgs: map[int64][]remote.MessageRecord{
			10: history(5),
			20: history(5),
		},
	}
	fcfg := config.Default().Filter
	fcfg.Exclude = []int64{20}
	cfg := config.SyncConfig{BatchSize: 100, Initial: "full", Workers: 1}
	e := NewEngine(db, client, filter.New(fcfg), NewTracker(db, cfg.Initial), bus.New(), nil, zap.NewNop(), cfg)

	if err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if conv, _ := db.GetConversation(context.Background(), 20); conv != nil {
		t.Error("excluded conversation was stored")
	}
	msgs, _ := db.ListMessages(context.Background(), 10, 0, 50)
	if len(msgs) != 5 {
		t.Errorf("stored %d messages for included conversation, want 5", len(msgs))
	}
}

func TestEngineInitialNewSkipsBackfill(t *testing.T) {
	db := testDB(t)
	client := &fakeClient{
		convs: []remote.ConversationInfo{{ID: 10, Kind: storage.KindDirect, LastMessageID: 200}},
		msgs:  map[int64][]remote.MessageRecord{10: history(200)},
	}
	e := testEngine(db, client, bus.New(), config.SyncConfig{BatchSize: 100, Initial: "new", Workers: 1})

	if err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	stats, _ := db.Stats(context.Background())
	if stats.Messages != 0 {
		t.Errorf("stored %d messages, want 0 (history skipped)", stats.Messages)
	}
	cursor, _ := db.GetSyncCursor(context.Background(), 10)
	if cursor != 200 {
		t.Errorf("cursor = %d, want 200 (seeded at newest)", cursor)
	}

	// Later messages still arrive.
	client.msgs[10] = append(client.msgs[10], remote.MessageRecord{ID: 201, Body: "fresh", SentAt: 9000})
	if err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	stats, _ = db.Stats(context.Background())
	if stats.Messages != 1 {
		t.Errorf("stored %d messages, want 1 (new message only)", stats.Messages)
	}
}

func TestEngineEmptyRunClearsFailure(t *testing.T) {
	db := testDB(t)
	client := &fakeClient{
		convs: []remote.ConversationInfo{{ID: 10, Kind: storage.KindDirect}},
		msgs:  map[int64][]remote.MessageRecord{10: nil},
	}
	client.msgErr = func(call int) error {
		if call == 1 {
			return errors.New("boom")
		}
		return nil
	}
	e := testEngine(db, client, bus.New(), config.SyncConfig{BatchSize: 100, Initial: "full", Workers: 1})

	// First run fails before anything commits.
	if err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	st, err := db.GetSyncStatus(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if st == nil || st.FailureCount != 1 {
		t.Fatalf("sync status = %+v, want recorded failure", st)
	}

	// Second run finds nothing new. That is still a successful run, so the
	// failure record must clear even though no batch ever commits.
	client.msgErr = nil
	if err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	st, err = db.GetSyncStatus(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if st == nil || st.FailureCount != 0 || st.LastError != "" {
		t.Errorf("sync status = %+v, want failure cleared by empty run", st)
	}
	if st != nil && st.LastRunAt == 0 {
		t.Error("empty run did not stamp last_run_at")
	}
	if cursor, _ := db.GetSyncCursor(context.Background(), 10); cursor != 0 {
		t.Errorf("cursor = %d, want 0 untouched", cursor)
	}
}

func TestEngineInitialNewSurvivesEarlyFailure(t *testing.T) {
	db := testDB(t)
	// A failed attempt recorded before the first message ever landed leaves
	// a cursor-zero status row behind. The skip-history policy must still
	// apply on the next run instead of backfilling everything.
	if err := db.RecordSyncError(context.Background(), 10, "bridge down"); err != nil {
		t.Fatal(err)
	}

	client := &fakeClient{
		convs: []remote.ConversationInfo{{ID: 10, Kind: storage.KindDirect, LastMessageID: 200}},
		msgs:  map[int64][]remote.MessageRecord{10: history(200)},
	}
	e := testEngine(db, client, bus.New(), config.SyncConfig{BatchSize: 100, Initial: "new", Workers: 1})

	if err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	stats, _ := db.Stats(context.Background())
	if stats.Messages != 0 {
		t.Errorf("stored %d messages, want 0 (history skipped)", stats.Messages)
	}
	cursor, _ := db.GetSyncCursor(context.Background(), 10)
	if cursor != 200 {
		t.Errorf("cursor = %d, want 200 (seeded despite earlier failure)", cursor)
	}

	// A conversation that already holds history keeps resuming from its
	// committed cursor even when that cursor write was lost.
	tr := NewTracker(db, "new")
	if _, err := db.InsertMessages(context.Background(), []storage.Message{
		{ConversationID: 20, RemoteID: 5, Body: "old", SentAt: 1000},
	}); err != nil {
		t.Fatal(err)
	}
	got, err := tr.Resume(context.Background(), remote.ConversationInfo{ID: 20, LastMessageID: 300})
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Errorf("resume = %d, want 0 (mirrored history wins over seeding)", got)
	}
}

func TestEngineBatchNormalization(t *testing.T) {
	db := testDB(t)
	client := &fakeClient{
		convs: []remote.ConversationInfo{{ID: 10, Kind: storage.KindGroup, Title: "team"}},
		msgs: map[int64][]remote.MessageRecord{10: {
			{
				ID: 1, SenderID: 7, SenderName: "Bob", Body: "look",
				SentAt: 1000,
				Attachment: &remote.AttachmentInfo{
					Ref: "ref-1", Kind: "photo", SizeBytes: 2048, FileName: "cat.jpg",
				},
				Reactions: map[string]int{"👍": 3},
			},
			{ID: 2, SenderID: 7, SenderName: "Bob", Body: "again", SentAt: 2000},
		}},
	}
	e := testEngine(db, client, bus.New(), config.SyncConfig{BatchSize: 100, Initial: "full", Workers: 1})

	if err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	sender, err := db.GetSender(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if sender == nil || sender.DisplayName != "Bob" {
		t.Fatalf("sender = %+v, want Bob", sender)
	}

	att, err := db.GetAttachment(context.Background(), 10, 1)
	if err != nil {
		t.Fatal(err)
	}
	if att == nil || att.Status != storage.AttachmentPending || att.Ref != "ref-1" {
		t.Fatalf("attachment = %+v, want pending ref-1", att)
	}

	reactions, err := db.GetReactions(context.Background(), 10, 1)
	if err != nil {
		t.Fatal(err)
	}
	if reactions["👍"] != 3 {
		t.Errorf("reactions = %v, want 👍=3", reactions)
	}

	msgs, _ := db.ListMessages(context.Background(), 10, 0, 10)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if !msgs[0].HasAttachment || msgs[1].HasAttachment {
		t.Error("has_attachment flags wrong")
	}
}
