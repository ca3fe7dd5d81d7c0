// Package daemon composes the archiver's components into a long-running fx
// application: storage, remote bridge client, sync scheduler and media
// fetcher, guarded by a single-instance lock.
package daemon

import (
	"context"
	"strconv"

	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/matheus3301/tgvault/internal/bus"
	"github.com/matheus3301/tgvault/internal/config"
	"github.com/matheus3301/tgvault/internal/filter"
	"github.com/matheus3301/tgvault/internal/lock"
	"github.com/matheus3301/tgvault/internal/logging"
	"github.com/matheus3301/tgvault/internal/media"
	"github.com/matheus3301/tgvault/internal/paths"
	"github.com/matheus3301/tgvault/internal/remote"
	"github.com/matheus3301/tgvault/internal/remote/httpbridge"
	"github.com/matheus3301/tgvault/internal/status"
	"github.com/matheus3301/tgvault/internal/storage"
	"github.com/matheus3301/tgvault/internal/storage/factory"
	intsync "github.com/matheus3301/tgvault/internal/sync"
)

// Params holds the resolved startup configuration passed to the fx module.
type Params struct {
	ConfigPath string
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideClient,
			provideRules,
			provideTracker,
			provideEngine,
			provideReconciler,
			provideFetcher,
			NewRunner,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if err := paths.EnsureDirs(); err != nil {
		return nil, err
	}
	return config.Load(p.ConfigPath)
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(paths.LogPath())
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring archive lock", zap.String("dir", paths.BaseDir()))
	l, err := lock.Acquire(paths.BaseDir())
	if err != nil {
		return nil, err
	}
	logger.Info("archive lock acquired")
	return l, nil
}

func provideStore(cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	store, err := factory.Open(context.Background(), cfg.Storage)
	if err != nil {
		return nil, err
	}
	result, err := store.Migrate(context.Background())
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	if err := store.SetMetadata(context.Background(), "schema_version", strconv.FormatUint(uint64(result.Version), 10)); err != nil {
		logger.Warn("failed to stamp schema version", zap.Error(err))
	}
	logger.Info("store initialized", zap.String("backend", cfg.Storage.Backend))
	return store, nil
}

func provideClient(cfg *config.Config) remote.Client {
	return httpbridge.New(cfg.Remote)
}

func provideRules(cfg *config.Config) *filter.Rules {
	return filter.New(cfg.Filter)
}

func provideTracker(store storage.Store, cfg *config.Config) *intsync.Tracker {
	return intsync.NewTracker(store, cfg.Sync.Initial)
}

func provideEngine(store storage.Store, client remote.Client, rules *filter.Rules, tracker *intsync.Tracker, b *bus.Bus, machine *status.Machine, logger *zap.Logger, cfg *config.Config) *intsync.Engine {
	return intsync.NewEngine(store, client, rules, tracker, b, machine, logger, cfg.Sync)
}

func provideReconciler(store storage.Store, client remote.Client, b *bus.Bus, logger *zap.Logger, cfg *config.Config) *intsync.Reconciler {
	return intsync.NewReconciler(store, client, b, logger, cfg.Sync.Reconcile.Window)
}

func provideFetcher(store storage.Store, client remote.Client, b *bus.Bus, logger *zap.Logger, cfg *config.Config) *media.Fetcher {
	mcfg := cfg.Media
	if mcfg.Dir == "" {
		mcfg.Dir = paths.MediaDir()
	}
	return media.NewFetcher(store, client, b, logger, mcfg)
}

func registerLifecycle(lc fx.Lifecycle, runner *Runner, fetcher *media.Fetcher, client remote.Client, store storage.Store, lk *lock.Lock, machine *status.Machine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if err := machine.Transition(status.Idle); err != nil {
				return err
			}
			fetcher.Start(context.Background())
			runner.Start(context.Background())
			logger.Info("daemon started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			runner.Stop()
			fetcher.Stop()

			var errs error
			errs = multierr.Append(errs, client.Close())
			errs = multierr.Append(errs, store.Close())
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return errs
		},
	})
}
