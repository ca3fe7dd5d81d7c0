package transfer

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/matheus3301/tgvault/internal/storage"
	"github.com/matheus3301/tgvault/internal/storage/sqlite"
)

func testDB(t *testing.T, name string) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), name))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// seedArchive fills the source with two conversations' worth of history,
// including state that a naive row copy would lose: a soft-deleted message,
// a downloaded attachment and a failing sync record.
func seedArchive(t *testing.T, db *sqlite.DB) {
	t.Helper()
	ctx := context.Background()

	for _, c := range []storage.Conversation{
		{ID: 10, Kind: "direct", Title: "Ana"},
		{ID: 20, Kind: "group", Title: "book club"},
	} {
		c := c
		if err := db.UpsertConversation(ctx, &c); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.UpsertSender(ctx, &storage.Sender{ID: 7, DisplayName: "Ana", Username: "ana"}); err != nil {
		t.Fatal(err)
	}

	var msgs []storage.Message
	for i := int64(1); i <= 120; i++ {
		msgs = append(msgs, storage.Message{
			ConversationID: 10, RemoteID: i, SenderID: 7,
			Body: fmt.Sprintf("message %d", i), SentAt: i * 1000,
		})
	}
	if _, err := db.InsertMessages(ctx, msgs); err != nil {
		t.Fatal(err)
	}
	if _, err := db.InsertMessages(ctx, []storage.Message{
		{ConversationID: 20, RemoteID: 1, SenderID: 7, Body: "hello", SentAt: 500},
	}); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkMessageDeleted(ctx, 10, 3); err != nil {
		t.Fatal(err)
	}
	if err := db.ReplaceReactions(ctx, &storage.ReactionSet{
		ConversationID: 10, RemoteID: 5, Counts: map[string]int{"👍": 2},
	}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertAttachment(ctx, &storage.Attachment{
		ConversationID: 10, RemoteID: 9, Ref: "ref-9", Kind: "photo",
		SizeBytes: 1024, FileName: "cat.jpg",
		LocalPath: "/media/10/9_cat.jpg", Status: storage.AttachmentDownloaded,
	}); err != nil {
		t.Fatal(err)
	}
	if err := db.SetSyncCursor(ctx, 10, 120); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordSyncError(ctx, 20, "remote unavailable"); err != nil {
		t.Fatal(err)
	}
}

func TestCopyMovesWholeArchive(t *testing.T) {
	ctx := context.Background()
	src := testDB(t, "source.db")
	dst := testDB(t, "target.db")
	seedArchive(t, src)

	res, err := Copy(ctx, src, dst, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if res.Conversations != 2 || res.Senders != 1 || res.Messages != 121 {
		t.Errorf("result = %+v", res)
	}
	if res.Attachments != 1 || res.ReactionSets != 1 || res.SyncStatuses != 2 {
		t.Errorf("result = %+v", res)
	}
	if err := Verify(ctx, src, dst); err != nil {
		t.Errorf("verify: %v", err)
	}

	// Soft-delete flag survives the copy.
	got, err := dst.ListMessages(ctx, 10, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || !got[0].Deleted {
		t.Errorf("message 3 = %+v, want deleted", got)
	}

	// Download state survives, so media is not re-fetched.
	att, err := dst.GetAttachment(ctx, 10, 9)
	if err != nil {
		t.Fatal(err)
	}
	if att == nil || att.Status != storage.AttachmentDownloaded || att.LocalPath != "/media/10/9_cat.jpg" {
		t.Errorf("attachment = %+v", att)
	}

	// Cursors and failure counts carry over verbatim.
	st, err := dst.GetSyncStatus(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if st == nil || st.Cursor != 120 {
		t.Errorf("status 10 = %+v, want cursor 120", st)
	}
	st, err = dst.GetSyncStatus(ctx, 20)
	if err != nil {
		t.Fatal(err)
	}
	if st == nil || st.FailureCount != 1 || st.LastError != "remote unavailable" {
		t.Errorf("status 20 = %+v, want recorded failure", st)
	}

	reactions, err := dst.GetReactions(ctx, 10, 5)
	if err != nil {
		t.Fatal(err)
	}
	if reactions["👍"] != 2 {
		t.Errorf("reactions = %v", reactions)
	}
}

func TestCopyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	src := testDB(t, "source.db")
	dst := testDB(t, "target.db")
	seedArchive(t, src)

	if _, err := Copy(ctx, src, dst, zap.NewNop()); err != nil {
		t.Fatal(err)
	}
	if _, err := Copy(ctx, src, dst, zap.NewNop()); err != nil {
		t.Fatal(err)
	}
	if err := Verify(ctx, src, dst); err != nil {
		t.Errorf("verify after rerun: %v", err)
	}
}

func TestVerifyReportsMismatch(t *testing.T) {
	ctx := context.Background()
	src := testDB(t, "source.db")
	dst := testDB(t, "target.db")
	seedArchive(t, src)

	err := Verify(ctx, src, dst)
	if err == nil {
		t.Fatal("expected mismatch against empty target")
	}
}
