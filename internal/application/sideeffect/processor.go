package sideeffect

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/domain/shared"
	"github.com/Inventorum/ebay-sub000/internal/domain/task"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/logger"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ProcessorConfig holds configuration for the task processor
type ProcessorConfig struct {
	BatchSize    int
	PollInterval time.Duration
	Workers      int
	// Lease is how long a claimed task stays invisible to other workers
	Lease            time.Duration
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
	Policy           task.Policy
}

// DefaultProcessorConfig returns default configuration
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		BatchSize:        50,
		PollInterval:     2 * time.Second,
		Workers:          4,
		Lease:            5 * time.Minute,
		CleanupEnabled:   true,
		CleanupRetention: 7 * 24 * time.Hour, // 7 days
		CleanupInterval:  1 * time.Hour,
		Policy:           task.DefaultPolicy(),
	}
}

// Processor claims due tasks and runs their stages in the background
type Processor struct {
	tasks    task.Repository
	registry *Registry
	config   ProcessorConfig
	metrics  *telemetry.SyncMetrics
	logger   *zap.Logger
	now      func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProcessor creates a new task processor
func NewProcessor(
	tasks task.Repository,
	registry *Registry,
	config ProcessorConfig,
	metrics *telemetry.SyncMetrics,
	logger *zap.Logger,
) *Processor {
	def := DefaultProcessorConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.Workers <= 0 {
		config.Workers = def.Workers
	}
	if config.Lease <= 0 {
		config.Lease = def.Lease
	}
	if config.Policy == (task.Policy{}) {
		config.Policy = def.Policy
	}
	return &Processor{
		tasks:    tasks,
		registry: registry,
		config:   config,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the time source
func (p *Processor) WithClock(now func() time.Time) *Processor {
	p.now = now
	return p
}

// Start starts the background processing
func (p *Processor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.processLoop(ctx)

	if p.config.CleanupEnabled {
		p.wg.Add(1)
		go p.cleanupLoop(ctx)
	}

	p.logger.Info("task processor started",
		zap.Int("batch_size", p.config.BatchSize),
		zap.Int("workers", p.config.Workers),
		zap.Duration("poll_interval", p.config.PollInterval),
	)
	return nil
}

// Stop gracefully stops the processor
func (p *Processor) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("task processor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Processor) processLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.RunOnce(ctx); err != nil {
				p.logger.Error("failed to claim due tasks", zap.Error(err))
			}
		}
	}
}

// RunOnce claims one batch of due tasks and processes it with the worker
// pool. It returns the number of tasks claimed.
func (p *Processor) RunOnce(ctx context.Context) (int, error) {
	claimed, err := p.tasks.ClaimDue(ctx, p.now(), p.config.Lease, p.config.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(claimed) == 0 {
		return 0, nil
	}

	queue := make(chan *task.Task)
	var wg sync.WaitGroup
	workers := min(p.config.Workers, len(claimed))
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range queue {
				p.processTask(ctx, t)
			}
		}()
	}
	for _, t := range claimed {
		queue <- t
	}
	close(queue)
	wg.Wait()
	return len(claimed), nil
}

// Drain runs batches until nothing is due. Tasks waiting for a retry delay
// are left for later.
func (p *Processor) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := p.RunOnce(ctx)
		total += n
		if err != nil || n == 0 {
			return total, err
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

// processTask runs stages of t for as long as they succeed immediately
func (p *Processor) processTask(ctx context.Context, t *task.Task) {
	ctx = shared.WithExecution(ctx, t.Execution())
	ctx = logger.WithContext(ctx, p.logger.With(
		zap.String("task_id", t.ID.String()),
		zap.String("task_kind", string(t.Kind)),
	))
	ctx, span := telemetry.StartServiceSpan(ctx, "sideeffect", string(t.Kind),
		telemetry.WithAttribute(telemetry.SpanAttrTaskID, t.ID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrTaskKind, string(t.Kind)),
		telemetry.WithAttribute(telemetry.SpanAttrAccountID, t.AccountID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrUserID, t.UserID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrRequestID, t.RequestID),
	)
	defer span.End()
	log := logger.L(ctx)

	for {
		stage := t.Stage
		telemetry.AddEvent(span, "stage", telemetry.SpanAttrTaskStage, string(stage))
		var err error
		telemetry.WithProfilingLabels(ctx, telemetry.TaskLabels(string(t.Kind)), func(ctx context.Context) {
			err = p.runStage(ctx, t)
		})
		now := p.now()

		if err == nil {
			t.CompleteStage(now)
			p.metrics.RecordTaskStage(ctx, string(t.Kind), string(stage), "succeeded")
		} else {
			result := t.FailStage(err, p.config.Policy.For(stage), now)
			switch result {
			case task.FailureRetry:
				p.metrics.RecordTaskStage(ctx, string(t.Kind), string(stage), "retry")
				log.Warn("Task stage failed, will retry",
					zap.String("stage", string(stage)),
					zap.Int("attempt", t.Attempt),
					zap.Time("next_run_at", t.NextRunAt),
					zap.Error(err),
				)
			case task.FailureEscalated:
				p.metrics.RecordTaskStage(ctx, string(t.Kind), string(stage), "failed")
				log.Warn("Task stage gave up, finalizing as failed",
					zap.String("stage", string(stage)),
					zap.Bool("permanent", task.IsPermanent(err)),
					zap.Error(err),
				)
			case task.FailureDead:
				p.metrics.RecordTaskStage(ctx, string(t.Kind), string(stage), "dead")
				telemetry.RecordError(span, err)
				log.Error("Task finalize exhausted, task is dead",
					zap.String("entity_type", t.EntityType),
					zap.String("entity_id", t.EntityID.String()),
					zap.Error(err),
				)
			}
		}

		if uerr := p.tasks.Update(ctx, t); uerr != nil {
			// the lease expires and another worker picks the task up again
			log.Error("Failed to update task", zap.Error(uerr))
			telemetry.RecordError(span, uerr)
			return
		}
		if t.IsFinished() || t.Status != task.StatusPending || t.NextRunAt.After(now) || ctx.Err() != nil {
			return
		}
		t.Claim(now, p.config.Lease)
	}
}

func (p *Processor) runStage(ctx context.Context, t *task.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sideeffect: %s %s panicked: %v", t.Kind, t.Stage, r)
		}
	}()
	h, err := p.registry.Get(t.Kind)
	if err != nil {
		return err
	}
	return runStage(ctx, h, t)
}

func (p *Processor) cleanupLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.cleanup(ctx)
		}
	}
}

// cleanup removes old finished tasks
func (p *Processor) cleanup(ctx context.Context) {
	cutoff := p.now().Add(-p.config.CleanupRetention)
	deleted, err := p.tasks.DeleteFinishedBefore(ctx, cutoff)
	if err != nil {
		p.logger.Error("failed to cleanup old tasks", zap.Error(err))
		return
	}

	if deleted > 0 {
		p.logger.Info("cleaned up old tasks",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
}
