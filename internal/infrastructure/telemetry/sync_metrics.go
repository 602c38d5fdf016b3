package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// SyncMetrics tracks reconciliation runs, delta records and side-effect
// tasks. A nil *SyncMetrics records nothing.
type SyncMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	runsTotal    *Counter
	runDuration  *Histogram
	recordsTotal *Counter
	stagesTotal  *Counter
	publishTotal *Counter

	tasksByStatus *Gauge

	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once
}

// TaskStatsProvider reports the task backlog for periodic collection
type TaskStatsProvider interface {
	CountTasksByStatus(ctx context.Context) (map[string]int64, error)
}

// SyncMetricsConfig holds configuration for sync metrics.
type SyncMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
}

// NewSyncMetrics creates a new SyncMetrics instance.
func NewSyncMetrics(cfg SyncMetricsConfig) (*SyncMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sm := &SyncMetrics{
		meter:    cfg.Meter,
		logger:   logger,
		stopChan: make(chan struct{}),
	}

	var err error
	sm.runsTotal, err = NewCounter(cfg.Meter, "ebaysync_runs_total", "Total number of reconciliation runs", "{runs}")
	if err != nil {
		return nil, err
	}

	sm.runDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "ebaysync_run_duration_seconds",
		Description: "Duration of reconciliation runs",
		Unit:        "s",
		Boundaries:  RunDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	sm.recordsTotal, err = NewCounter(cfg.Meter, "ebaysync_records_total", "Delta records processed by result", "{records}")
	if err != nil {
		return nil, err
	}

	sm.stagesTotal, err = NewCounter(cfg.Meter, "ebaysync_task_stages_total", "Side-effect task stage executions by result", "{stages}")
	if err != nil {
		return nil, err
	}

	sm.publishTotal, err = NewCounter(cfg.Meter, "ebaysync_publish_total", "Publish attempts by result", "{attempts}")
	if err != nil {
		return nil, err
	}

	sm.tasksByStatus, err = NewGauge(cfg.Meter, "ebaysync_tasks", "Current number of tasks per status", "{tasks}")
	if err != nil {
		return nil, err
	}

	return sm, nil
}

// RecordRun records a finished run
func (sm *SyncMetrics) RecordRun(ctx context.Context, kind, outcome string, d time.Duration) {
	if sm == nil {
		return
	}
	attrs := []attribute.KeyValue{AttrSyncKind.String(kind), AttrOutcome.String(outcome)}
	sm.runsTotal.Inc(ctx, attrs...)
	sm.runDuration.RecordDuration(ctx, d, attrs...)
}

// RecordRecords adds n records of a kind with a result (applied, skipped, failed)
func (sm *SyncMetrics) RecordRecords(ctx context.Context, kind, result string, n int) {
	if sm == nil || n == 0 {
		return
	}
	sm.recordsTotal.Add(ctx, int64(n), AttrSyncKind.String(kind), AttrResult.String(result))
}

// RecordTaskStage records one stage attempt
func (sm *SyncMetrics) RecordTaskStage(ctx context.Context, taskKind, stage, result string) {
	if sm == nil {
		return
	}
	sm.stagesTotal.Inc(ctx, AttrTaskKind.String(taskKind), AttrTaskStage.String(stage), AttrResult.String(result))
}

// RecordPublish records the result of a publish attempt (published, failed, rejected, retry)
func (sm *SyncMetrics) RecordPublish(ctx context.Context, result string) {
	if sm == nil {
		return
	}
	sm.publishTotal.Inc(ctx, AttrResult.String(result))
}

// RecordTaskBacklog records the number of tasks in a status
func (sm *SyncMetrics) RecordTaskBacklog(ctx context.Context, status string, n int64) {
	if sm == nil {
		return
	}
	sm.tasksByStatus.Record(ctx, n, AttrTaskStatus.String(status))
}

// StartPeriodicCollection starts periodic collection of the task backlog
// gauge. It is non-blocking; use Stop to end it.
func (sm *SyncMetrics) StartPeriodicCollection(ctx context.Context, provider TaskStatsProvider, interval time.Duration) {
	if sm == nil || provider == nil {
		return
	}
	sm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = time.Minute
		}
		go sm.runPeriodicCollection(ctx, provider, interval)
	})
}

func (sm *SyncMetrics) runPeriodicCollection(ctx context.Context, provider TaskStatsProvider, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sm.collectTaskBacklog(ctx, provider)

	for {
		select {
		case <-sm.stopChan:
			sm.logger.Info("Stopping periodic sync metrics collection")
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			sm.collectTaskBacklog(ctx, provider)
		}
	}
}

func (sm *SyncMetrics) collectTaskBacklog(ctx context.Context, provider TaskStatsProvider) {
	counts, err := provider.CountTasksByStatus(ctx)
	if err != nil {
		sm.logger.Warn("Failed to count tasks for metrics", zap.Error(err))
		return
	}
	for status, n := range counts {
		sm.RecordTaskBacklog(ctx, status, n)
	}
}

// Stop stops the periodic collection.
func (sm *SyncMetrics) Stop() {
	if sm == nil {
		return
	}
	sm.stopOnce.Do(func() {
		close(sm.stopChan)
	})
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewSyncMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
