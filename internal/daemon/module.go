package daemon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/matheus3301/cipherlog/internal/api"
	"github.com/matheus3301/cipherlog/internal/bus"
	"github.com/matheus3301/cipherlog/internal/config"
	"github.com/matheus3301/cipherlog/internal/ingest"
	"github.com/matheus3301/cipherlog/internal/lock"
	"github.com/matheus3301/cipherlog/internal/logging"
	"github.com/matheus3301/cipherlog/internal/outbox"
	"github.com/matheus3301/cipherlog/internal/profile"
	"github.com/matheus3301/cipherlog/internal/protocol"
	"github.com/matheus3301/cipherlog/internal/status"
	"github.com/matheus3301/cipherlog/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// PasswordEnv names the variable the store password is read from.
const PasswordEnv = "CIPHERLOG_PASSWORD"

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	Password    string
	SocketPath  string         // optional override for testing; empty = use default
	Config      *config.Config // optional; nil = load from the config file

	// InitIdentity creates a fresh store owned by this id when none exists yet.
	InitIdentity protocol.ContactID
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
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
			provideSupervisor,
			provideIngestEngine,
			provideStoreService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config != nil {
		return p.Config, nil
	}
	return config.LoadOrDefault(profile.ConfigPath())
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName, cfg.Log.Level)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// provideStore depends on the lock so the store is never opened by two daemons.
func provideStore(p Params, _ *lock.Lock, machine *status.Machine, b *bus.Bus, logger *zap.Logger) (*store.DB, error) {
	path := profile.StorePath(p.ProfileName)
	opts := store.Options{Events: b, Logger: logger, Lifecycle: machine}
	ctx := context.Background()

	_, err := os.Stat(path)
	switch {
	case err == nil:
		return store.Open(ctx, path, p.Password, opts)
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("stat store: %w", err)
	case p.InitIdentity == "":
		return nil, fmt.Errorf("no store at %s: initialize it with an identity first", path)
	}

	keys, err := protocol.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return store.Create(ctx, path, p.Password, p.InitIdentity, keys, opts)
}

func provideSupervisor(db *store.DB, machine *status.Machine, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *outbox.Supervisor {
	return outbox.NewSupervisor(db, machine, b, cfg.Queue.SweepInterval.Duration, cfg.Queue.StaleAfter.Duration, logger)
}

func provideIngestEngine(db *store.DB, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *ingest.Engine {
	return ingest.NewEngine(db, machine, b, logger)
}

func provideStoreService(p Params, db *store.DB, machine *status.Machine, logger *zap.Logger) *api.StoreService {
	return api.NewStoreService(p.ProfileName, db, machine, logger)
}

func registerLifecycle(lc fx.Lifecycle, b *bus.Bus, srv *Server, lk *lock.Lock, db *store.DB, engine *ingest.Engine, supervisor *outbox.Supervisor, machine *status.Machine, cfg *config.Config, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Start ingest engine (subscribes to ingest.* bus events).
			engine.Start(context.Background())

			// Start gRPC server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			// The supervisor only sweeps once the machine is live.
			supervisor.Start(context.Background())
			if cfg.Queue.EnableTimers {
				if err := machine.Transition(status.Live); err != nil {
					return err
				}
				logger.Info("timers enabled")
			} else {
				logger.Info("timers disabled until enabled over the admin API")
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			supervisor.Stop()
			engine.Stop()
			srv.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := machine.Transition(status.Closed); err != nil {
				logger.Warn("lifecycle", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped", zap.Uint64("dropped_events", b.Dropped()))
			return nil
		},
	})
}
