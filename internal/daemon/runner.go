package daemon

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/tgvault/internal/config"
	"github.com/matheus3301/tgvault/internal/status"
	intsync "github.com/matheus3301/tgvault/internal/sync"
)

// Runner schedules sync passes and, when enabled, reconciliation passes. A
// pass that is still in flight when its ticker fires is not stacked; the
// tick is dropped.
type Runner struct {
	engine     *intsync.Engine
	reconciler *intsync.Reconciler
	machine    *status.Machine
	logger     *zap.Logger

	syncInterval  time.Duration
	reconInterval time.Duration
	reconEnabled  bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRunner creates the pass scheduler.
func NewRunner(engine *intsync.Engine, reconciler *intsync.Reconciler, machine *status.Machine, logger *zap.Logger, cfg *config.Config) *Runner {
	return &Runner{
		engine:        engine,
		reconciler:    reconciler,
		machine:       machine,
		logger:        logger,
		syncInterval:  cfg.Sync.Interval.Duration,
		reconInterval: cfg.Sync.Reconcile.Interval.Duration,
		reconEnabled:  cfg.Sync.Reconcile.Enabled,
	}
}

// Start runs an immediate sync pass, then keeps both tickers going until
// Stop.
func (r *Runner) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.loop(ctx)
}

// Stop cancels the in-flight pass and waits for the loop to exit.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.done != nil {
		<-r.done
	}
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.done)

	syncTicker := time.NewTicker(r.syncInterval)
	defer syncTicker.Stop()

	var reconCh <-chan time.Time
	if r.reconEnabled {
		reconTicker := time.NewTicker(r.reconInterval)
		defer reconTicker.Stop()
		reconCh = reconTicker.C
	}

	r.runSync(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-syncTicker.C:
			r.runSync(ctx)
		case <-reconCh:
			r.runReconcile(ctx)
		}
	}
}

func (r *Runner) runSync(ctx context.Context) {
	if !r.mu.TryLock() {
		r.logger.Warn("sync pass still running, skipping tick")
		return
	}
	defer r.mu.Unlock()

	r.recoverFromError()
	if err := r.engine.Run(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error("sync pass failed", zap.Error(err))
	}
}

func (r *Runner) runReconcile(ctx context.Context) {
	if !r.mu.TryLock() {
		r.logger.Warn("pass still running, skipping reconcile tick")
		return
	}
	defer r.mu.Unlock()

	r.recoverFromError()
	if err := r.machine.Transition(status.Reconciling); err != nil {
		r.logger.Warn("cannot start reconcile", zap.Error(err))
		return
	}
	if err := r.reconciler.Run(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error("reconcile pass failed", zap.Error(err))
		_ = r.machine.Transition(status.Error)
		return
	}
	_ = r.machine.Transition(status.Idle)
}

// recoverFromError moves the machine back to Idle after a failed pass so
// the next one can start.
func (r *Runner) recoverFromError() {
	if r.machine.Current() == status.Error {
		_ = r.machine.Transition(status.Idle)
	}
}
