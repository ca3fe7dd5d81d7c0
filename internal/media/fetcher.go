package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matheus3301/tgvault/internal/bus"
	"github.com/matheus3301/tgvault/internal/config"
	"github.com/matheus3301/tgvault/internal/remote"
	"github.com/matheus3301/tgvault/internal/storage"
)

// Downloaded is the bus payload for a completed attachment download.
type Downloaded struct {
	ConversationID int64
	RemoteID       int64
	LocalPath      string
	SizeBytes      int64
}

// Fetcher downloads pending attachments. It drains the backlog on start and
// then reacts to committed batches published on the bus.
type Fetcher struct {
	store  storage.Store
	client remote.Client
	bus    *bus.Bus
	logger *zap.Logger
	policy Policy
	dir    string
	conc   int

	cancel context.CancelFunc
	done   chan struct{}
}

// NewFetcher creates a media fetcher writing into cfg.Dir.
func NewFetcher(store storage.Store, client remote.Client, b *bus.Bus, logger *zap.Logger, cfg config.MediaConfig) *Fetcher {
	conc := cfg.Concurrency
	if conc < 1 {
		conc = 1
	}
	return &Fetcher{
		store:  store,
		client: client,
		bus:    b,
		logger: logger,
		policy: NewPolicy(cfg),
		dir:    cfg.Dir,
		conc:   conc,
	}
}

// Start drains the pending backlog and begins reacting to batch events.
func (f *Fetcher) Start(ctx context.Context) {
	ctx, f.cancel = context.WithCancel(ctx)
	f.done = make(chan struct{})
	ch, unsub := f.bus.Subscribe(bus.KindBatchCommitted, 64)
	go func() {
		defer close(f.done)
		defer unsub()
		f.drain(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				// A committed batch may have recorded new placeholders;
				// the store is the queue, the event is just the nudge.
				f.drain(ctx)
			}
		}
	}()
}

// Stop cancels in-flight downloads and waits for the loop to exit.
func (f *Fetcher) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
	if f.done != nil {
		<-f.done
	}
}

// drain processes every pending attachment currently recorded.
func (f *Fetcher) drain(ctx context.Context) {
	for {
		pending, err := f.store.ListAttachmentsByStatus(ctx, storage.AttachmentPending, 100)
		if err != nil {
			f.logger.Error("failed to list pending attachments", zap.Error(err))
			return
		}
		if len(pending) == 0 {
			return
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(f.conc)
		for _, att := range pending {
			g.Go(func() error {
				f.fetchOne(gctx, att)
				return nil
			})
		}
		_ = g.Wait()
		if ctx.Err() != nil {
			return
		}
		if len(pending) < 100 {
			return
		}
	}
}

// fetchOne downloads a single attachment, or records the policy skip. Every
// outcome is terminal: the row never stays pending after a decision.
func (f *Fetcher) fetchOne(ctx context.Context, att storage.Attachment) {
	// Another drain may have raced us.
	current, err := f.store.GetAttachment(ctx, att.ConversationID, att.RemoteID)
	if err != nil {
		f.logger.Error("failed to load attachment", zap.Error(err))
		return
	}
	if current == nil || current.Status != storage.AttachmentPending {
		return
	}

	if decided := f.policy.Decide(att.SizeBytes); decided != storage.AttachmentPending {
		f.setState(ctx, att, decided, "")
		return
	}

	path, size, status, err := f.download(ctx, att)
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown, not a failure: leave the row pending for the next
			// drain.
			return
		}
		f.logger.Error("attachment download failed",
			zap.Int64("conversation_id", att.ConversationID),
			zap.Int64("remote_id", att.RemoteID),
			zap.Error(err))
		f.setState(ctx, att, storage.AttachmentFailed, "")
		f.publish(bus.KindMediaFailed, att)
		return
	}
	if status != storage.AttachmentDownloaded {
		f.setState(ctx, att, status, "")
		return
	}

	f.setState(ctx, att, storage.AttachmentDownloaded, path)
	f.logger.Info("attachment downloaded",
		zap.Int64("conversation_id", att.ConversationID),
		zap.Int64("remote_id", att.RemoteID),
		zap.String("path", path),
		zap.Int64("bytes", size))
	f.publish(bus.KindMediaDone, Downloaded{
		ConversationID: att.ConversationID,
		RemoteID:       att.RemoteID,
		LocalPath:      path,
		SizeBytes:      size,
	})
}

// download streams the bytes to a temp file and moves it into place under
// <dir>/<conversation>/<remote id>_<name>. The returned status is
// downloaded on success, or a skip state when the stream reports a size the
// policy rejects.
func (f *Fetcher) download(ctx context.Context, att storage.Attachment) (string, int64, string, error) {
	rc, reported, err := f.client.OpenAttachment(ctx, att.Ref)
	if err != nil {
		return "", 0, "", err
	}
	defer rc.Close()

	// The stream may report a bigger size than the listing did.
	if decided := f.policy.Decide(reported); decided != storage.AttachmentPending {
		return "", 0, decided, nil
	}

	convDir := filepath.Join(f.dir, strconv.FormatInt(att.ConversationID, 10))
	if err := os.MkdirAll(convDir, 0o755); err != nil {
		return "", 0, "", err
	}

	tmp := filepath.Join(convDir, "."+uuid.NewString()+".part")
	out, err := os.Create(tmp)
	if err != nil {
		return "", 0, "", err
	}
	size, err := io.Copy(out, rc)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return "", 0, "", err
	}

	final := filepath.Join(convDir, f.fileName(att, tmp))
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return "", 0, "", err
	}
	return final, size, storage.AttachmentDownloaded, nil
}

// fileName builds the on-disk name, sniffing an extension from the bytes
// when the remote didn't provide one.
func (f *Fetcher) fileName(att storage.Attachment, tmp string) string {
	name := att.FileName
	if name == "" {
		name = att.Kind
	}
	if filepath.Ext(name) == "" {
		if mt, err := mimetype.DetectFile(tmp); err == nil && mt.Extension() != "" {
			name += mt.Extension()
		}
	}
	return fmt.Sprintf("%d_%s", att.RemoteID, filepath.Base(name))
}

func (f *Fetcher) setState(ctx context.Context, att storage.Attachment, status, path string) {
	if err := f.store.SetAttachmentState(ctx, att.ConversationID, att.RemoteID, status, path); err != nil {
		f.logger.Error("failed to update attachment state",
			zap.Int64("conversation_id", att.ConversationID),
			zap.Int64("remote_id", att.RemoteID),
			zap.Error(err))
	}
}

func (f *Fetcher) publish(kind string, payload any) {
	f.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}
