package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/application/ports"
	"github.com/Inventorum/ebay-sub000/internal/application/publishing"
	"github.com/Inventorum/ebay-sub000/internal/application/reconcile"
	"github.com/Inventorum/ebay-sub000/internal/application/sideeffect"
	"github.com/Inventorum/ebay-sub000/internal/domain/shared"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/cache"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/config"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/coreapi"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/ebay"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/logger"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/persistence"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/storage"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// App is the wired service graph shared by every command.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	DB         *persistence.Database
	Store      *persistence.GormStore
	Caches     *cache.Factory
	Runner     *reconcile.Runner
	Publishing *publishing.Service
	Processor  *sideeffect.Processor
	Sweeper    *sideeffect.Sweeper

	dbMetrics *telemetry.DBMetrics
}

// buildApp connects to the database and wires the reconciliation, publishing
// and side-effect services.
func buildApp(ctx context.Context, cfg *config.Config, obs *observability) (*App, error) {
	log := obs.logger
	app := &App{Config: cfg, Logger: log}

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	db, err := persistence.Open(ctx, &cfg.Database, gormLog)
	if err != nil {
		return nil, err
	}
	app.DB = db

	if err := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:          cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:       cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh:  cfg.Telemetry.DBSlowQueryThresh,
		DBSystem:         "postgresql",
		WithoutVariables: !cfg.Telemetry.DBLogFullSQL,
	}, log).RegisterOtelGorm(db.DB); err != nil {
		app.Close()
		return nil, fmt.Errorf("db tracing: %w", err)
	}

	if obs.meter.IsEnabled() {
		if err := app.instrumentDB(ctx, obs); err != nil {
			app.Close()
			return nil, err
		}
	}

	app.Store = persistence.NewGormStore(db.DB)

	app.Caches = cache.NewFactory(cache.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, cache.WithLogger(log), cache.WithInMemoryFallback(cfg.Redis.Host == ""))
	locker, err := app.Caches.CreateLocker()
	if err != nil {
		app.Close()
		return nil, err
	}
	idempotency, err := app.Caches.CreateIdempotencyStore()
	if err != nil {
		app.Close()
		return nil, err
	}

	var guard ports.PublishGuard
	switch cfg.Publishing.Guard {
	case "redis":
		guard = ports.NewLockerGuard(locker, cfg.Publishing.GuardLockTTL)
	default:
		guard = persistence.NewRowLockGuard(db.DB)
	}

	market, err := ebay.NewClient(cfg.Ebay, ebay.WithLogger(log))
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("ebay client: %w", err)
	}
	coreClient, err := coreapi.NewClient(cfg.Core, coreapi.WithLogger(log))
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("core client: %w", err)
	}
	sources, err := coreapi.NewSources(coreClient, market)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("page sources: %w", err)
	}

	pubOpts := []publishing.Option{publishing.WithMetrics(obs.sync)}
	if cfg.Storage.Enabled {
		archive, err := storage.NewS3SnapshotArchive(cfg.Storage, storage.WithLogger(log))
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("snapshot archive: %w", err)
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			app.Close()
			return nil, fmt.Errorf("snapshot archive: %w", err)
		}
		pubOpts = append(pubOpts, publishing.WithArchive(archive))
	}
	app.Publishing = publishing.NewService(app.Store, guard, market, coreClient,
		publishing.Config{MinimumPrice: cfg.Publishing.MinimumPrice}, log, pubOpts...)

	pusher := sideeffect.NewStatePusher(app.Store, coreClient)
	once := sideeffect.NewOnce(idempotency, shared.IdempotencyConfig{
		Enabled: true,
		TTL:     cfg.Tasks.IdempotencyTTL,
	}, log)
	publishHandler := sideeffect.NewPublishHandler(app.Store, app.Publishing, pusher, log)
	registry := sideeffect.NewRegistry(
		publishHandler,
		sideeffect.NewUnpublishHandler(app.Store, app.Publishing, pusher, log),
		sideeffect.NewReviseHandler(app.Publishing),
		sideeffect.NewStatusPushHandler(app.Store, market),
		sideeffect.NewMarketplaceEventHandler(app.Store, market, once),
		sideeffect.NewCoreOrderPushHandler(app.Store, coreClient),
		sideeffect.NewRefundHandler(app.Store, market, once),
	)

	app.Processor = sideeffect.NewProcessor(app.Store.Tasks(), registry, sideeffect.ProcessorConfig{
		BatchSize:        cfg.Tasks.BatchSize,
		PollInterval:     cfg.Tasks.PollInterval,
		Workers:          cfg.Tasks.Workers,
		Lease:            cfg.Tasks.Lease,
		CleanupEnabled:   cfg.Tasks.CleanupEnabled,
		CleanupRetention: cfg.Tasks.CleanupRetention,
		CleanupInterval:  cfg.Tasks.CleanupInterval,
	}, obs.sync, log)

	app.Sweeper = sideeffect.NewSweeper(app.Store, app.Publishing, publishHandler, pusher, sideeffect.SweeperConfig{
		PublishTimeout: cfg.Sweep.PublishTimeout,
		BatchSize:      cfg.Sweep.BatchSize,
		Interval:       cfg.Sweep.Interval,
	}, log)

	app.Runner = reconcile.NewRunner(app.Store, locker, sources, reconcile.RunConfig{
		InitialLookback: cfg.Sync.InitialLookback,
		PageLimit:       cfg.Sync.PageLimit,
		LockTTL:         cfg.Sync.RunLockTTL,
	}, obs.sync, log)

	return app, nil
}

func (a *App) instrumentDB(ctx context.Context, obs *observability) error {
	m, err := telemetry.NewDBMetrics(obs.meter.Meter("ebaysync/db"), telemetry.DBMetricsConfig{
		Enabled:            true,
		SlowQueryThreshold: a.Config.Telemetry.DBSlowQueryThresh,
		PoolStatsInterval:  15 * time.Second,
	}, a.Logger)
	if err != nil {
		return fmt.Errorf("db metrics: %w", err)
	}
	m.SetSQLDB(a.DB.SQL())
	if err := a.DB.DB.Use(telemetry.NewDBMetricsPlugin(m, a.Logger)); err != nil {
		return fmt.Errorf("db metrics: %w", err)
	}
	m.StartPoolStatsCollection(ctx)
	a.dbMetrics = m
	return nil
}

// PingDatabase is the database health check.
func (a *App) PingDatabase(ctx context.Context) error {
	return a.DB.Ping(ctx)
}

// Close releases the connections the app holds.
func (a *App) Close() error {
	var errs []error
	if a.dbMetrics != nil {
		a.dbMetrics.Stop()
	}
	if a.Caches != nil {
		errs = append(errs, a.Caches.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
