// Package app assembles the service from configuration: storage backends,
// the dispatcher with its subscribers, and the application services. Both
// binaries build on it.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/warden/pkg/accounts"
	"github.com/platinummonkey/warden/pkg/api"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/config"
	"github.com/platinummonkey/warden/pkg/credentials"
	"github.com/platinummonkey/warden/pkg/dispatch"
	"github.com/platinummonkey/warden/pkg/eventstore"
	"github.com/platinummonkey/warden/pkg/middleware"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/projection"
	"github.com/platinummonkey/warden/pkg/serviceaccount"
	"github.com/platinummonkey/warden/pkg/storage"
	"github.com/platinummonkey/warden/pkg/sweeper"
	"github.com/platinummonkey/warden/pkg/tenants"
)

// trail is an audit sink that can also be searched
type trail interface {
	audit.Logger
	audit.Searcher
}

// App holds the wired components
type App struct {
	Config   *config.Config
	Logger   *logrus.Logger
	Registry *prometheus.Registry
	Metrics  *observability.Metrics

	DB    *sql.DB
	Redis *redis.Client

	Events     eventstore.Store
	Views      projection.ViewStore
	Projector  *projection.Projector
	Dispatcher *dispatch.Dispatcher
	Tenants    *tenants.Service
	Accounts   *accounts.Service
	Trail      trail
	Policy     dispatch.PolicySource

	conn      *storage.ConnectionManager
	watcher   *config.PolicyWatcher
	authLimit *middleware.RateLimitConfig
	limiter   middleware.Limiter
}

// New connects the configured backends and wires every component. On error
// anything already opened is closed.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	if logger == nil {
		logger = logrus.New()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: registry,
		Metrics:  observability.NewMetrics(registry),
	}
	ready := false
	defer func() {
		if !ready {
			a.Close()
		}
	}()

	if err := a.openStorage(ctx); err != nil {
		return nil, err
	}
	if err := a.loadPolicy(); err != nil {
		return nil, err
	}

	creds := credentials.NewService(cfg.Credentials)

	var dedup dispatch.Deduplicator
	switch cfg.Dispatch.DedupBackend {
	case "redis":
		if a.Redis == nil {
			return nil, fmt.Errorf("redis dedup backend requires WARDEN_REDIS_URL")
		}
		dedup = dispatch.NewRedisDeduplicator(a.Redis, "", cfg.Dispatch.DedupTTL)
	case "memory":
		dedup = dispatch.NewMemoryDeduplicator(cfg.Dispatch.DedupCacheSize, cfg.Dispatch.DedupTTL)
	}

	a.Projector = projection.NewProjector(a.Events, a.Views, logger)
	dispatcher, err := dispatch.New(dispatch.Options{
		Store:          a.Events,
		Decider:        serviceaccount.NewDecider(creds, nil),
		Policy:         a.Policy,
		Dedup:          dedup,
		StateCacheSize: cfg.Dispatch.StateCacheSize,
		Subscribers: []dispatch.Subscriber{
			a.Projector,
			audit.NewRecorder(audit.NewMultiLogger(a.Trail, audit.NewLogrusLogger(logger)), logger),
		},
		Metrics: a.Metrics,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	a.Dispatcher = dispatcher

	a.Accounts = accounts.NewService(a.Dispatcher, a.Views, a.Tenants, creds, a.Metrics, logger)
	a.buildLimiter()
	ready = true
	return a, nil
}

func (a *App) openStorage(ctx context.Context) error {
	cfg := a.Config

	if cfg.Storage.RedisURL != "" {
		client, err := storage.NewRedisClient(cfg.Storage)
		if err != nil {
			return err
		}
		a.Redis = client
	}

	switch cfg.Storage.Type {
	case "postgres":
		conn, err := storage.NewConnectionManager(storage.ConnectionConfigFrom(cfg.Storage), a.Logger)
		if err != nil {
			return err
		}
		a.conn = conn
		a.DB = conn.Primary()

		if err := storage.RunMigrations(ctx, a.DB, a.Logger); err != nil {
			return err
		}

		dbTrail, err := audit.NewDBLogger(a.DB)
		if err != nil {
			return err
		}
		a.Events = eventstore.NewPostgresStore(a.DB)
		a.Views = projection.NewPostgresStore(a.DB)
		a.Tenants = tenants.NewService(tenants.NewPostgresStore(a.DB), a.Logger)
		a.Trail = dbTrail
	case "memory":
		a.Events = eventstore.NewMemoryStore()
		a.Views = projection.NewMemoryStore()
		a.Tenants = tenants.NewService(tenants.NewMemoryStore(), a.Logger)
		a.Trail = audit.NewMemoryLogger()
	default:
		return fmt.Errorf("unsupported storage type %q", cfg.Storage.Type)
	}

	if a.Redis != nil && cfg.Dispatch.ViewCacheTTL > 0 {
		a.Views = projection.NewCachedStore(a.Views, a.Redis, cfg.Dispatch.ViewCacheTTL, a.Metrics, a.Logger)
	}
	return nil
}

func (a *App) loadPolicy() error {
	base := a.Config.Policy.Policy()
	if a.Config.Policy.File == "" {
		a.Policy = dispatch.StaticPolicy(base)
		return nil
	}

	watcher, err := config.NewPolicyWatcher(a.Config.Policy.File, base, a.Logger)
	if err != nil {
		return err
	}
	a.watcher = watcher
	a.Policy = watcher
	return nil
}

// buildLimiter picks the authentication rate limiter: shared through Redis
// when available, per process otherwise
func (a *App) buildLimiter() {
	if a.Config.Server.AuthRateLimit <= 0 {
		return
	}
	a.authLimit = &middleware.RateLimitConfig{
		RequestsPerWindow: a.Config.Server.AuthRateLimit,
		WindowDuration:    time.Minute,
		BurstSize:         a.Config.Server.AuthRateBurst,
	}
	if a.Redis != nil {
		a.limiter = middleware.NewDistributedRateLimiter(a.Redis, a.authLimit, "warden:ratelimit")
		return
	}
	a.limiter = middleware.NewRateLimiter(a.authLimit)
}

// Start runs background work (policy file reloads, rate limiter cleanup)
// until ctx is done
func (a *App) Start(ctx context.Context) {
	if a.watcher != nil {
		go a.watcher.Run(ctx)
	}
	if rl, ok := a.limiter.(*middleware.RateLimiter); ok {
		rl.StartCleanup(ctx)
	}
}

// APIServer builds the REST server over the wired services
func (a *App) APIServer(httpLogger *observability.Logger) *api.Server {
	return api.NewServer(api.Options{
		Accounts:    a.Accounts,
		Tenants:     a.Tenants,
		Audit:       a.Trail,
		AuthLimiter: a.limiter,
		AuthLimit:   a.authLimit,
		Logger:      httpLogger,
		Metrics:     a.Metrics,

		TrustProxyHeaders: a.Config.Server.TrustProxyHeaders,
	})
}

// HealthChecker probes the configured backends
func (a *App) HealthChecker(version string) *observability.HealthChecker {
	return observability.NewHealthChecker(version, a.DB, a.Redis)
}

// Sweeper builds the expiry sweeper
func (a *App) Sweeper() (*sweeper.Sweeper, error) {
	return sweeper.New(sweeper.Options{
		Views:    a.Views,
		Executor: a.Dispatcher,
		Actor:    a.Config.Sweeper.Actor,
		Workers:  a.Config.Sweeper.Workers,
		Timeout:  a.Config.Sweeper.Timeout,
		Metrics:  a.Metrics,
		Logger:   a.Logger,
	})
}

// Archiver builds the audit archiver over the configured bucket
func (a *App) Archiver(ctx context.Context) (*audit.S3Archiver, error) {
	client, err := storage.NewS3Client(ctx, a.Config.Storage)
	if err != nil {
		return nil, err
	}
	return audit.NewS3Archiver(client, a.Trail, a.Config.Archive.Prefix, a.Logger), nil
}

// Close releases every opened backend
func (a *App) Close() error {
	var errs []error
	if a.watcher != nil {
		errs = append(errs, a.watcher.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.conn != nil {
		errs = append(errs, a.conn.Close())
	}
	return errors.Join(errs...)
}
