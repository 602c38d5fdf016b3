package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/infrastructure/logger"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/scheduler"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/telemetry"
	"github.com/Inventorum/ebay-sub000/internal/interfaces/http/handler"
	"github.com/Inventorum/ebay-sub000/internal/interfaces/http/middleware"
	"github.com/Inventorum/ebay-sub000/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// WorkerOptions holds flags for the worker command.
type WorkerOptions struct {
	*RootOptions
	NoHTTP          bool
	NoTrigger       bool
	ShutdownTimeout time.Duration
}

// NewWorkerCommand creates the worker command.
func NewWorkerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WorkerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the sync service",
		Long: `Run the long-lived sync service: the HTTP API, the run scheduler with its
interval trigger, the side-effect task processor and the stuck-publish sweeper.

Example:
  ebaysync worker --config /etc/ebaysync/config.toml
  ebaysync worker --no-trigger`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.NoHTTP, "no-http", false, "do not serve the HTTP API")
	cmd.Flags().BoolVar(&opts.NoTrigger, "no-trigger", false, "do not queue runs on the sync interval")
	cmd.Flags().DurationVar(&opts.ShutdownTimeout, "shutdown-timeout", 30*time.Second, "grace period for in-flight work on shutdown")

	return cmd
}

func runWorker(parent context.Context, opts *WorkerOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, base, err := opts.load()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync(base) }()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs, err := setupObservability(ctx, cfg, base)
	if err != nil {
		return err
	}
	log := obs.logger
	log.Info("Starting ebaysync worker",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("version", Version),
	)

	app, err := buildApp(ctx, cfg, obs)
	if err != nil {
		obs.shutdown(context.Background())
		return err
	}

	sched, err := scheduler.NewRunScheduler(scheduler.RunSchedulerConfig{
		MaxConcurrentJobs: cfg.Sync.Workers,
		QueueSize:         cfg.Sync.QueueSize,
		JobTimeout:        cfg.Sync.JobTimeout,
		RetryAttempts:     cfg.Sync.RetryAttempts,
		RetryDelay:        cfg.Sync.RetryDelay,
		HistorySize:       cfg.Sync.HistorySize,
	}, app.Runner, log)
	if err != nil {
		_ = app.Close()
		obs.shutdown(context.Background())
		return fmt.Errorf("run scheduler: %w", err)
	}
	trigger, err := scheduler.NewIntervalTrigger(scheduler.IntervalTriggerConfig{
		Interval:   cfg.Sync.Interval,
		Kinds:      cfg.Sync.Kinds,
		RunOnStart: cfg.Sync.RunOnStart,
	}, sched, app.Store.Accounts(), log)
	if err != nil {
		_ = app.Close()
		obs.shutdown(context.Background())
		return fmt.Errorf("interval trigger: %w", err)
	}

	// Components stop in reverse start order.
	var stops []func(context.Context) error
	start := func(name string, startFn func(context.Context) error, stopFn func(context.Context) error) error {
		if err := startFn(ctx); err != nil {
			return fmt.Errorf("start %s: %w", name, err)
		}
		stops = append(stops, stopFn)
		return nil
	}

	err = start("processor", app.Processor.Start, app.Processor.Stop)
	if err == nil {
		err = start("sweeper", app.Sweeper.Start, app.Sweeper.Stop)
	}
	if err == nil {
		err = start("scheduler", sched.Start, sched.Stop)
	}
	if err == nil && !opts.NoTrigger {
		err = start("trigger", trigger.Start, trigger.Stop)
	}
	obs.sync.StartPeriodicCollection(ctx, app.Store, 30*time.Second)

	var (
		srv       *http.Server
		serverErr = make(chan error, 1)
	)
	if err == nil && !opts.NoHTTP {
		srv, err = newHTTPServer(app, sched)
		if err == nil {
			go func() {
				log.Info("HTTP server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()
		}
	}

	if err == nil {
		select {
		case <-ctx.Done():
			log.Info("Shutting down worker...")
		case err = <-serverErr:
			log.Error("HTTP server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
	defer cancel()
	if srv != nil {
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			log.Warn("HTTP server shutdown failed", zap.Error(serr))
		}
	}
	for i := len(stops) - 1; i >= 0; i-- {
		if serr := stops[i](shutdownCtx); serr != nil {
			log.Warn("component stop failed", zap.Error(serr))
		}
	}
	if cerr := app.Close(); cerr != nil {
		log.Warn("closing connections failed", zap.Error(cerr))
	}
	obs.shutdown(shutdownCtx)
	log.Info("Worker exited")
	return err
}

func newHTTPServer(app *App, sched *scheduler.RunScheduler) (*http.Server, error) {
	cfg := app.Config
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	prom, err := telemetry.NewPrometheusMetrics(telemetry.PrometheusConfig{
		Tasks:  app.Store,
		Logger: app.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("prometheus metrics: %w", err)
	}

	health := handler.NewHealthHandler(cfg.App.Name, Version).
		AddCheck("database", app.PingDatabase).
		AddCheck("redis", app.Caches.Ping)

	var limiter *middleware.RateLimiter
	if cfg.HTTP.RateLimitPerSecond > 0 {
		limiter = middleware.NewRateLimiter(cfg.HTTP.RateLimitPerSecond, cfg.HTTP.RateLimitBurst)
	}

	engine, err := router.New(router.Options{
		ServiceName:    cfg.Telemetry.ServiceName,
		Logger:         app.Logger,
		Listings:       handler.NewListingHandler(app.Publishing),
		Sync:           handler.NewSyncHandler(app.Runner, sched),
		Health:         health,
		Metrics:        prom,
		RateLimiter:    limiter,
		Tracing:        cfg.Telemetry.Enabled,
		Profiling:      cfg.Telemetry.ProfilingEnabled,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		TrustedProxies: cfg.HTTP.TrustedProxies,
	})
	if err != nil {
		return nil, err
	}

	return &http.Server{
		Addr:           ":" + cfg.HTTP.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}, nil
}
