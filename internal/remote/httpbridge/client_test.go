package httpbridge

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/matheus3301/tgvault/internal/config"
	"github.com/matheus3301/tgvault/internal/remote"
	"github.com/matheus3301/tgvault/internal/storage"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(config.RemoteConfig{BaseURL: srv.URL, Token: "secret"})
}

func TestConversations(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/conversations" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("auth header = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[
			{"id": 10, "kind": "direct", "title": "alice", "last_message_id": 42},
			{"id": 20, "kind": "channel", "title": "news", "username": "daily"}
		]`)
	}))

	convs, err := c.Conversations(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 2 {
		t.Fatalf("got %d conversations, want 2", len(convs))
	}
	if convs[0].Kind != storage.KindDirect || convs[0].LastMessageID != 42 {
		t.Errorf("conv 0 = %+v", convs[0])
	}
	if convs[1].Username != "daily" {
		t.Errorf("conv 1 = %+v", convs[1])
	}
}

func TestMessagesQueryAndDecode(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/conversations/10/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("after_id") != "100" || q.Get("limit") != "50" {
			t.Errorf("query = %v", q)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[
			{"id": 101, "sender_id": 7, "sender_name": "Bob", "body": "hi",
			 "sent_at": 1700000000000,
			 "attachment": {"ref": "r1", "kind": "photo", "size_bytes": 2048, "file_name": "a.jpg"},
			 "reactions": {"👍": 2}}
		]`)
	}))

	msgs, err := c.Messages(context.Background(), 10, 100, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	m := msgs[0]
	if m.ID != 101 || m.SenderName != "Bob" || m.Reactions["👍"] != 2 {
		t.Errorf("message = %+v", m)
	}
	if m.Attachment == nil || m.Attachment.Ref != "r1" || m.Attachment.SizeBytes != 2048 {
		t.Errorf("attachment = %+v", m.Attachment)
	}
}

func TestRateLimitMapping(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := c.Messages(context.Background(), 10, 0, 50)
	var rl *remote.RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("err = %v, want RateLimitError", err)
	}
	if rl.RetryAfter != 30*time.Second {
		t.Errorf("retry after = %s, want 30s", rl.RetryAfter)
	}
}

func TestServerErrorMapsUnavailable(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "session expired", http.StatusBadGateway)
	}))

	_, err := c.Conversations(context.Background())
	var unavailable *remote.UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("err = %v, want UnavailableError", err)
	}
}

func TestConnectionRefusedMapsUnavailable(t *testing.T) {
	c := New(config.RemoteConfig{BaseURL: "http://127.0.0.1:1"})
	_, err := c.Conversations(context.Background())
	var unavailable *remote.UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("err = %v, want UnavailableError", err)
	}
}

func TestOpenAttachment(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/media/ref%2F1" && r.URL.Path != "/v1/media/ref/1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_, _ = w.Write([]byte("bytes"))
	}))

	rc, size, err := c.OpenAttachment(context.Background(), "ref/1")
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "bytes" || size != 5 {
		t.Errorf("got %q (%d bytes)", data, size)
	}
}
