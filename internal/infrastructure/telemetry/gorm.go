package telemetry

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultSlowQuery = 200 * time.Millisecond

// ----------------------------------------------------------------------------
// Callback plumbing shared by the metrics and tracing plugins
// ----------------------------------------------------------------------------

type queryStartKey struct{}

func withQueryStart(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	db.Statement.Context = context.WithValue(ctx, queryStartKey{}, time.Now())
}

func queryElapsed(ctx context.Context) (time.Duration, bool) {
	if ctx == nil {
		return 0, false
	}
	start, ok := ctx.Value(queryStartKey{}).(time.Time)
	if !ok {
		return 0, false
	}
	return time.Since(start), true
}

// registrar is what gorm returns from Before and After on a processor
type registrar interface {
	Register(name string, fn func(*gorm.DB)) error
}

// processor binds one gorm callback chain to the operation it performs.
// Row and Raw carry arbitrary SQL, so their operation is read from it.
// The after hook runs ahead of otelgorm's, which ends the statement span.
type processor struct {
	name      string
	operation string
	hooks     func(db *gorm.DB) (before, after registrar)
}

var processors = []processor{
	{"create", "INSERT", func(db *gorm.DB) (registrar, registrar) {
		cb := db.Callback().Create()
		return cb.Before("gorm:create"), cb.After("gorm:create").Before("otel:after:create")
	}},
	{"query", "SELECT", func(db *gorm.DB) (registrar, registrar) {
		cb := db.Callback().Query()
		return cb.Before("gorm:query"), cb.After("gorm:query").Before("otel:after:select")
	}},
	{"update", "UPDATE", func(db *gorm.DB) (registrar, registrar) {
		cb := db.Callback().Update()
		return cb.Before("gorm:update"), cb.After("gorm:update").Before("otel:after:update")
	}},
	{"delete", "DELETE", func(db *gorm.DB) (registrar, registrar) {
		cb := db.Callback().Delete()
		return cb.Before("gorm:delete"), cb.After("gorm:delete").Before("otel:after:delete")
	}},
	{"row", "", func(db *gorm.DB) (registrar, registrar) {
		cb := db.Callback().Row()
		return cb.Before("gorm:row"), cb.After("gorm:row").Before("otel:after:row")
	}},
	{"raw", "", func(db *gorm.DB) (registrar, registrar) {
		cb := db.Callback().Raw()
		return cb.Before("gorm:raw"), cb.After("gorm:raw").Before("otel:after:raw")
	}},
}

// registerAround hooks before and after every gorm processor under prefix
func registerAround(db *gorm.DB, prefix string, before func(*gorm.DB), after func(*gorm.DB, string)) error {
	for _, p := range processors {
		p := p
		beforeHook, afterHook := p.hooks(db)
		if err := beforeHook.Register(prefix+":before_"+p.name, before); err != nil {
			return err
		}
		err := afterHook.Register(prefix+":after_"+p.name, func(tx *gorm.DB) {
			op := p.operation
			if op == "" {
				op = sqlOperation(tx.Statement.SQL.String())
			}
			after(tx, op)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func sqlOperation(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "OTHER"
	}
	switch op := strings.ToUpper(fields[0]); op {
	case "SELECT", "INSERT", "UPDATE", "DELETE":
		return op
	case "WITH":
		return "SELECT"
	default:
		return "OTHER"
	}
}

// ----------------------------------------------------------------------------
// Metrics
// ----------------------------------------------------------------------------

// DBMetricsConfig configures query and pool metrics
type DBMetricsConfig struct {
	Enabled            bool
	SlowQueryThreshold time.Duration // default 200ms
	PoolStatsInterval  time.Duration // default 15s
}

// DBMetrics records query counts, latencies and connection pool gauges
type DBMetrics struct {
	pool        *Gauge
	poolMax     *Gauge
	queries     *Counter
	latency     *Histogram
	slowByTable *Counter

	config DBMetricsConfig
	logger *zap.Logger

	mu    sync.RWMutex
	sqlDB *sql.DB

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewDBMetrics creates the instruments on meter
func NewDBMetrics(meter metric.Meter, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if cfg.SlowQueryThreshold <= 0 {
		cfg.SlowQueryThreshold = defaultSlowQuery
	}
	if cfg.PoolStatsInterval <= 0 {
		cfg.PoolStatsInterval = 15 * time.Second
	}
	m := &DBMetrics{config: cfg, logger: nopIfNil(logger), stopCh: make(chan struct{})}

	var err error
	if m.pool, err = NewGauge(meter, "db_pool_connections", "Connections in the pool by state", "{connection}"); err != nil {
		return nil, err
	}
	if m.poolMax, err = NewGauge(meter, "db_pool_connections_max", "Connection pool capacity", "{connection}"); err != nil {
		return nil, err
	}
	if m.queries, err = NewCounter(meter, "db_query_total", "Queries by operation", "{query}"); err != nil {
		return nil, err
	}
	if m.latency, err = NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Query latency by operation",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.slowByTable, err = NewCounter(meter, "db_slow_query_total", "Queries slower than the threshold by table", "{query}"); err != nil {
		return nil, err
	}
	return m, nil
}

// SetSQLDB sets the pool StartPoolStatsCollection samples
func (m *DBMetrics) SetSQLDB(db *sql.DB) {
	m.mu.Lock()
	m.sqlDB = db
	m.mu.Unlock()
}

// StartPoolStatsCollection samples pool stats until Stop or ctx ends
func (m *DBMetrics) StartPoolStatsCollection(ctx context.Context) {
	m.mu.RLock()
	db := m.sqlDB
	m.mu.RUnlock()
	if db == nil {
		m.logger.Warn("Pool stats collection not started: no sql.DB set")
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.config.PoolStatsInterval)
		defer ticker.Stop()
		for {
			m.recordPool(ctx, db.Stats())
			select {
			case <-ticker.C:
			case <-m.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (m *DBMetrics) recordPool(ctx context.Context, s sql.DBStats) {
	m.poolMax.Record(ctx, int64(s.MaxOpenConnections))
	m.pool.Record(ctx, int64(s.Idle), AttrDBState.String("idle"))
	m.pool.Record(ctx, int64(s.InUse), AttrDBState.String("in_use"))
	m.pool.Record(ctx, int64(s.OpenConnections), AttrDBState.String("open"))
}

// Stop ends pool sampling; safe to call more than once
func (m *DBMetrics) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
	})
}

// RecordQuery records one finished statement
func (m *DBMetrics) RecordQuery(ctx context.Context, operation, table string, d time.Duration) {
	operation = strings.ToUpper(operation)
	if operation == "" {
		operation = "OTHER"
	}
	m.queries.Inc(ctx, AttrDBOperation.String(operation))
	m.latency.RecordDuration(ctx, d, AttrDBOperation.String(operation))
	if d > m.config.SlowQueryThreshold {
		if table == "" {
			table = "unknown"
		}
		m.slowByTable.Inc(ctx, AttrDBTable.String(table))
	}
}

// DBMetricsPlugin feeds every gorm statement into DBMetrics
type DBMetricsPlugin struct {
	metrics *DBMetrics
	logger  *zap.Logger
}

// NewDBMetricsPlugin wraps metrics as a gorm plugin
func NewDBMetricsPlugin(metrics *DBMetrics, logger *zap.Logger) *DBMetricsPlugin {
	return &DBMetricsPlugin{metrics: metrics, logger: nopIfNil(logger)}
}

// Name implements gorm.Plugin
func (p *DBMetricsPlugin) Name() string { return "ebaysync:db_metrics" }

// Initialize implements gorm.Plugin
func (p *DBMetricsPlugin) Initialize(db *gorm.DB) error {
	return registerAround(db, "db_metrics", withQueryStart, func(tx *gorm.DB, op string) {
		ctx := tx.Statement.Context
		d, ok := queryElapsed(ctx)
		if !ok {
			return
		}
		p.metrics.RecordQuery(ctx, op, tx.Statement.Table, d)
	})
}

// ----------------------------------------------------------------------------
// Tracing
// ----------------------------------------------------------------------------

// DBTracingConfig configures statement spans
type DBTracingConfig struct {
	Enabled bool
	// LogFullSQL keeps bound values in db.statement
	LogFullSQL      bool
	SlowQueryThresh time.Duration
	DBSystem        string
	// WithoutVariables strips bound values even when LogFullSQL is set
	WithoutVariables bool
}

// DBTracingPlugin installs otelgorm and marks its spans with the operation
// and, past the threshold, as slow.
type DBTracingPlugin struct {
	config DBTracingConfig
	logger *zap.Logger
}

// NewDBTracingPlugin creates the plugin; RegisterOtelGorm installs it
func NewDBTracingPlugin(cfg DBTracingConfig, logger *zap.Logger) *DBTracingPlugin {
	if cfg.SlowQueryThresh <= 0 {
		cfg.SlowQueryThresh = defaultSlowQuery
	}
	if cfg.DBSystem == "" {
		cfg.DBSystem = "postgresql"
	}
	return &DBTracingPlugin{config: cfg, logger: nopIfNil(logger)}
}

// RegisterOtelGorm is a no-op while tracing is disabled
func (p *DBTracingPlugin) RegisterOtelGorm(db *gorm.DB) error {
	if !p.config.Enabled {
		return nil
	}
	opts := []otelgorm.Option{otelgorm.WithDBName(p.config.DBSystem)}
	if !p.config.LogFullSQL || p.config.WithoutVariables {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}
	if err := registerAround(db, "db_tracing", withQueryStart, p.decorate); err != nil {
		return err
	}
	p.logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", p.config.LogFullSQL),
		zap.Duration("slow_query_threshold", p.config.SlowQueryThresh),
	)
	return nil
}

func (p *DBTracingPlugin) decorate(tx *gorm.DB, operation string) {
	ctx := tx.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(AttrDBOperation.String(operation))
	if d, ok := queryElapsed(ctx); ok && d > p.config.SlowQueryThresh {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", d.Milliseconds()),
		)
		span.AddEvent("slow_query", trace.WithAttributes(
			attribute.Int64("threshold_ms", p.config.SlowQueryThresh.Milliseconds()),
		))
	}
}
