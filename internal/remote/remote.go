// Package remote defines the collaborator interface to the messaging
// service. The transport, session and authentication live in an external
// bridge process; the engine only consumes this interface and its error
// taxonomy.
package remote

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/matheus3301/tgvault/internal/storage"
)

// ConversationInfo is remote conversation metadata. LastMessageID is the
// newest message identifier the service reports for the conversation, 0 if
// unknown.
type ConversationInfo struct {
	ID            int64
	Kind          storage.Kind
	Title         string
	Username      string
	LastMessageID int64
}

// AttachmentInfo describes media carried by a message, before download.
type AttachmentInfo struct {
	Ref       string // opaque handle for byte-stream retrieval
	Kind      string // photo, video, document, audio, sticker, gif
	SizeBytes int64
	FileName  string
}

// MessageRecord is one remote message as listed by the bridge.
// Timestamps are millisecond epochs; EditedAt zero means never edited.
type MessageRecord struct {
	ID             int64
	SenderID       int64
	SenderName     string
	SenderUsername string
	Body           string
	SentAt         int64
	EditedAt       int64
	Attachment     *AttachmentInfo
	Reactions      map[string]int
}

// Client is the remote collaborator consumed by the sync pipeline.
//
// Messages returns up to limit records with identifiers strictly greater
// than afterID, in ascending identifier order. A short page signals the end
// of available history.
type Client interface {
	Conversations(ctx context.Context) ([]ConversationInfo, error)
	Messages(ctx context.Context, conversationID, afterID int64, limit int) ([]MessageRecord, error)
	// OpenAttachment returns the media byte stream and its reported size.
	OpenAttachment(ctx context.Context, ref string) (io.ReadCloser, int64, error)
	Close() error
}

// RateLimitError is the structured cooldown signal: not a failure, but a
// mandatory suspend-then-resume point for the engine.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("remote: rate limited, retry after %s", e.RetryAfter)
}

// UnavailableError indicates a transport or auth failure. It is fatal to the
// current run; the scheduler retries at the next cycle.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("remote: unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}
