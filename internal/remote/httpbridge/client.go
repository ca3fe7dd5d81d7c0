// Package httpbridge implements the remote collaborator against a session
// bridge process. The bridge owns the provider transport, session store and
// authentication; this client only speaks its local JSON API.
package httpbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/matheus3301/tgvault/internal/config"
	"github.com/matheus3301/tgvault/internal/remote"
	"github.com/matheus3301/tgvault/internal/storage"
)

// Client talks to the session bridge over HTTP.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	// Streaming downloads get no client-level timeout; cancellation comes
	// from the request context.
	stream *http.Client
}

var _ remote.Client = (*Client)(nil)

// New creates a bridge client from configuration.
func New(cfg config.RemoteConfig) *Client {
	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		stream:  &http.Client{},
	}
}

type conversationPayload struct {
	ID            int64  `json:"id"`
	Kind          string `json:"kind"`
	Title         string `json:"title"`
	Username      string `json:"username"`
	LastMessageID int64  `json:"last_message_id"`
}

type attachmentPayload struct {
	Ref       string `json:"ref"`
	Kind      string `json:"kind"`
	SizeBytes int64  `json:"size_bytes"`
	FileName  string `json:"file_name"`
}

type messagePayload struct {
	ID             int64              `json:"id"`
	SenderID       int64              `json:"sender_id"`
	SenderName     string             `json:"sender_name"`
	SenderUsername string             `json:"sender_username"`
	Body           string             `json:"body"`
	SentAt         int64              `json:"sent_at"`
	EditedAt       int64              `json:"edited_at"`
	Attachment     *attachmentPayload `json:"attachment"`
	Reactions      map[string]int     `json:"reactions"`
}

// Conversations lists remote conversations with their classification.
func (c *Client) Conversations(ctx context.Context) ([]remote.ConversationInfo, error) {
	var payload []conversationPayload
	if err := c.getJSON(ctx, "/v1/conversations", nil, &payload); err != nil {
		return nil, err
	}
	infos := make([]remote.ConversationInfo, 0, len(payload))
	for _, p := range payload {
		infos = append(infos, remote.ConversationInfo{
			ID:            p.ID,
			Kind:          storage.Kind(p.Kind),
			Title:         p.Title,
			Username:      p.Username,
			LastMessageID: p.LastMessageID,
		})
	}
	return infos, nil
}

// Messages lists up to limit messages strictly after afterID, ascending.
func (c *Client) Messages(ctx context.Context, conversationID, afterID int64, limit int) ([]remote.MessageRecord, error) {
	query := url.Values{}
	query.Set("after_id", strconv.FormatInt(afterID, 10))
	query.Set("limit", strconv.Itoa(limit))

	var payload []messagePayload
	path := fmt.Sprintf("/v1/conversations/%d/messages", conversationID)
	if err := c.getJSON(ctx, path, query, &payload); err != nil {
		return nil, err
	}

	records := make([]remote.MessageRecord, 0, len(payload))
	for _, p := range payload {
		rec := remote.MessageRecord{
			ID:             p.ID,
			SenderID:       p.SenderID,
			SenderName:     p.SenderName,
			SenderUsername: p.SenderUsername,
			Body:           p.Body,
			SentAt:         p.SentAt,
			EditedAt:       p.EditedAt,
			Reactions:      p.Reactions,
		}
		if p.Attachment != nil {
			rec.Attachment = &remote.AttachmentInfo{
				Ref:       p.Attachment.Ref,
				Kind:      p.Attachment.Kind,
				SizeBytes: p.Attachment.SizeBytes,
				FileName:  p.Attachment.FileName,
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// OpenAttachment streams media bytes by reference.
func (c *Client) OpenAttachment(ctx context.Context, ref string) (io.ReadCloser, int64, error) {
	req, err := c.newRequest(ctx, "/v1/media/"+url.PathEscape(ref), nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, 0, &remote.UnavailableError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		return nil, 0, statusError(resp)
	}
	return resp.Body, resp.ContentLength, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	c.stream.CloseIdleConnections()
	return nil
}

func (c *Client) newRequest(ctx context.Context, path string, query url.Values) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, path, query)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &remote.UnavailableError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &remote.UnavailableError{Err: fmt.Errorf("decode %s: %w", path, err)}
	}
	return nil
}

// statusError maps HTTP status codes onto the remote error taxonomy.
// 429 carries Retry-After in seconds; everything else non-2xx means the
// bridge (or its upstream session) is unavailable.
func statusError(resp *http.Response) error {
	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := 60 * time.Second
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return &remote.RateLimitError{RetryAfter: retryAfter}
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &remote.UnavailableError{
		Err: fmt.Errorf("bridge returned %s: %s", resp.Status, string(body)),
	}
}
