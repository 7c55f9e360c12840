package daemon

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/deltadent/ServicePro-sub000/internal/bus"
	"github.com/deltadent/ServicePro-sub000/internal/config"
	"github.com/deltadent/ServicePro-sub000/internal/control"
	"github.com/deltadent/ServicePro-sub000/internal/lock"
	"github.com/deltadent/ServicePro-sub000/internal/logging"
	"github.com/deltadent/ServicePro-sub000/internal/profile"
	"github.com/deltadent/ServicePro-sub000/internal/queue"
	"github.com/deltadent/ServicePro-sub000/internal/remote"
	"github.com/deltadent/ServicePro-sub000/internal/repo"
	"github.com/deltadent/ServicePro-sub000/internal/status"
	"github.com/deltadent/ServicePro-sub000/internal/store"
	intsync "github.com/deltadent/ServicePro-sub000/internal/sync"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile    string
	Config     *config.Config
	SocketPath string // optional override for testing; empty = use default

	// Backend and Blobs replace the configured remote clients when set.
	Backend remote.Backend
	Blobs   remote.BlobStore
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	if p.Config == nil {
		p.Config = config.Default()
	}
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideOpener,
			provideStore,
			provideBackend,
			provideBlobs,
			provideRepos,
			provideQueue,
			provideEngine,
			provideMonitor,
			provideControlService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.Profile), p.Profile, p.Config.LogLevel)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(profile.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// provideOpener depends on the lock so the store is only touched by the
// process holding it.
func provideOpener(p Params, _ *lock.Lock, logger *zap.Logger) *store.Opener {
	return store.NewOpener(profile.StorePath(p.Profile), logger)
}

func provideStore(o *store.Opener, logger *zap.Logger) (*store.DB, error) {
	db, err := o.Open(context.Background())
	if err != nil {
		return nil, err
	}
	logger.Info("store initialized", zap.String("path", db.Path()))
	return db, nil
}

func provideBackend(p Params, logger *zap.Logger) (remote.Backend, error) {
	if p.Backend != nil {
		return p.Backend, nil
	}
	if p.Config.Remote.URL == "" {
		return nil, fmt.Errorf("remote.url is not configured")
	}
	return remote.NewClient(remote.ClientOptions{
		BaseURL:     p.Config.Remote.URL,
		APIKey:      p.Config.Remote.APIKey,
		AccessToken: p.Config.Remote.AccessToken,
		Timeout:     p.Config.Remote.Timeout.Duration,
	}, logger.Named("remote"))
}

func provideBlobs(p Params, logger *zap.Logger) (remote.BlobStore, error) {
	if p.Blobs != nil {
		return p.Blobs, nil
	}
	b := p.Config.Blob
	blobs, err := remote.NewBlobStore(remote.BlobOptions{
		Endpoint:      b.Endpoint,
		Bucket:        b.Bucket,
		Region:        b.Region,
		AccessKey:     b.AccessKey,
		SecretKey:     b.SecretKey,
		UseSSL:        b.UseSSL,
		PublicBaseURL: b.PublicBaseURL,
	})
	if err != nil {
		return nil, err
	}
	if b.Bucket == "" {
		logger.Warn("blob storage not configured, photo uploads will fail")
	}
	return blobs, nil
}

func provideRepos(p Params, db *store.DB, backend remote.Backend, logger *zap.Logger) *repo.Set {
	return repo.NewSet(repo.Deps{
		DB:         db,
		Backend:    backend,
		Logger:     logger.Named("repo"),
		ReadBudget: p.Config.Remote.ReadBudget.Duration,
	})
}

func provideQueue(db *store.DB, b *bus.Bus, logger *zap.Logger) *queue.Queue {
	return queue.New(db, b, logger.Named("queue"))
}

func provideEngine(db *store.DB, q *queue.Queue, repos *repo.Set, backend remote.Backend, blobs remote.BlobStore, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(intsync.Deps{
		DB:      db,
		Queue:   q,
		Repos:   repos,
		Backend: backend,
		Blobs:   blobs,
		Bus:     b,
		Logger:  logger.Named("sync"),
	})
}

func provideMonitor(p Params, db *store.DB, backend remote.Backend, engine *intsync.Engine, b *bus.Bus, logger *zap.Logger) *status.Monitor {
	return status.NewMonitor(status.Deps{
		Pinger:  backend,
		Drainer: engine,
		DB:      db,
		Bus:     b,
		Logger:  logger.Named("connectivity"),
	}, status.Options{
		ProbeInterval: p.Config.Sync.ProbeInterval.Duration,
		ProbeTimeout:  p.Config.Sync.ProbeTimeout.Duration,
		AutoDrain:     p.Config.Sync.AutoDrain,
	})
}

func provideControlService(p Params, db *store.DB, m *status.Monitor, engine *intsync.Engine, q *queue.Queue, repos *repo.Set, b *bus.Bus, logger *zap.Logger) *control.Service {
	return control.NewService(control.Deps{
		Profile: p.Profile,
		DB:      db,
		Monitor: m,
		Engine:  engine,
		Queue:   q,
		Repos:   repos,
		Bus:     b,
		Logger:  logger.Named("control"),
	})
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, opener *store.Opener, monitor *status.Monitor, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Start gRPC server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			// Probe the backend; the first Online observation drains the queue.
			monitor.Start(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			// Waits for a drain the monitor started, so the store outlives it.
			monitor.Stop()
			srv.Stop(ctx)
			if err := opener.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
