// Package scheduler queues reconciliation runs onto a bounded worker pool
// and triggers them on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/application/reconcile"
	"github.com/Inventorum/ebay-sub000/internal/domain/delta"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RunExecutor executes one reconciliation run. *reconcile.Runner satisfies it.
type RunExecutor interface {
	Execute(ctx context.Context, accountID uuid.UUID, kind delta.SyncKind) (*reconcile.RunReport, error)
}

// RunSchedulerConfig holds configuration for the run scheduler
type RunSchedulerConfig struct {
	// MaxConcurrentJobs is the number of workers
	MaxConcurrentJobs int `mapstructure:"max_concurrent_jobs"`
	// QueueSize bounds the number of waiting jobs
	QueueSize int `mapstructure:"queue_size"`
	// JobTimeout is the maximum time one run can take
	JobTimeout time.Duration `mapstructure:"job_timeout"`
	// RetryAttempts is the number of retries after a failed run
	RetryAttempts int `mapstructure:"retry_attempts"`
	// RetryDelay is the base delay between retries (with exponential backoff)
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	// HistorySize bounds the in-memory job history
	HistorySize int `mapstructure:"history_size"`
}

// DefaultRunSchedulerConfig returns default configuration
func DefaultRunSchedulerConfig() RunSchedulerConfig {
	return RunSchedulerConfig{
		MaxConcurrentJobs: 4,
		QueueSize:         256,
		JobTimeout:        15 * time.Minute,
		RetryAttempts:     3,
		RetryDelay:        time.Minute,
		HistorySize:       100,
	}
}

// Validate validates the configuration
func (c *RunSchedulerConfig) Validate() error {
	if c.MaxConcurrentJobs <= 0 || c.QueueSize <= 0 {
		return ErrInvalidConfig
	}
	if c.JobTimeout <= 0 {
		return ErrInvalidConfig
	}
	if c.RetryAttempts < 0 || c.RetryDelay < 0 {
		return ErrInvalidConfig
	}
	if c.HistorySize <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// RunScheduler runs queued (account, kind) jobs on a worker pool. A job for
// an (account, kind) pair is not accepted while an earlier one is still
// waiting, running or scheduled for retry.
type RunScheduler struct {
	config   RunSchedulerConfig
	executor RunExecutor
	logger   *zap.Logger

	jobs      chan *RunJob
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	pending   map[string]bool

	historyMu sync.RWMutex
	history   []*RunJob
}

// NewRunScheduler creates a new run scheduler
func NewRunScheduler(config RunSchedulerConfig, executor RunExecutor, logger *zap.Logger) (*RunScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &RunScheduler{
		config:   config,
		executor: executor,
		logger:   logger,
		jobs:     make(chan *RunJob, config.QueueSize),
		pending:  make(map[string]bool),
		history:  make([]*RunJob, 0, config.HistorySize),
	}, nil
}

// Start starts the worker pool
func (s *RunScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.config.MaxConcurrentJobs; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.logger.Info("Run scheduler started",
		zap.Int("workers", s.config.MaxConcurrentJobs),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop gracefully stops the scheduler. Waiting jobs are dropped.
func (s *RunScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	close(s.jobs)
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Run scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Run scheduler stop timed out")
		return ctx.Err()
	}
}

// Schedule queues a run of kind for the account
func (s *RunScheduler) Schedule(accountID uuid.UUID, kind delta.SyncKind) (*RunJob, error) {
	if !kind.IsValid() {
		return nil, reconcile.ErrUnknownKind
	}
	job := NewRunJob(accountID, kind, s.config.RetryAttempts)
	if err := s.SubmitJob(job); err != nil {
		return nil, err
	}
	return job, nil
}

// SubmitJob submits a job for execution
func (s *RunScheduler) SubmitJob(job *RunJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return ErrSchedulerNotRunning
	}
	key := job.key()
	if s.pending[key] {
		return ErrJobAlreadyQueued
	}

	select {
	case s.jobs <- job:
		s.pending[key] = true
		s.logger.Debug("Sync job submitted",
			zap.String("job_id", job.ID.String()),
			zap.String("account_id", job.AccountID.String()),
			zap.String("kind", string(job.Kind)),
		)
		return nil
	default:
		return ErrJobQueueFull
	}
}

// requeue puts a retrying job back on the queue
func (s *RunScheduler) requeue(job *RunJob) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		delete(s.pending, job.key())
		return
	}
	select {
	case s.jobs <- job:
	default:
		delete(s.pending, job.key())
		s.logger.Warn("Failed to re-queue sync job for retry",
			zap.String("job_id", job.ID.String()),
		)
	}
}

func (s *RunScheduler) release(job *RunJob) {
	s.mu.Lock()
	delete(s.pending, job.key())
	s.mu.Unlock()
}

// worker processes jobs from the queue
func (s *RunScheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-s.jobs:
			if !ok {
				return
			}
			s.processJob(ctx, job, workerID)
		}
	}
}

// processJob executes a single job
func (s *RunScheduler) processJob(ctx context.Context, job *RunJob, workerID int) {
	job.Start()
	s.logger.Info("Processing sync job",
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("account_id", job.AccountID.String()),
		zap.String("kind", string(job.Kind)),
		zap.Int("retry_count", job.RetryCount),
	)

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	var (
		report *reconcile.RunReport
		err    error
	)
	telemetry.WithProfilingLabels(jobCtx, telemetry.RunLabels(job.AccountID.String(), string(job.Kind)), func(ctx context.Context) {
		report, err = s.executor.Execute(ctx, job.AccountID, job.Kind)
	})
	switch {
	case errors.Is(err, reconcile.ErrRunInProgress):
		job.Skip(err.Error())
		s.logger.Info("Sync job skipped, run already in progress",
			zap.String("job_id", job.ID.String()),
			zap.String("account_id", job.AccountID.String()),
			zap.String("kind", string(job.Kind)),
		)
	case err != nil:
		job.Fail(err.Error())
		s.logger.Error("Sync job failed",
			zap.Int("worker_id", workerID),
			zap.String("job_id", job.ID.String()),
			zap.String("account_id", job.AccountID.String()),
			zap.String("kind", string(job.Kind)),
			zap.Error(err),
		)
		if job.ShouldRetry() && ctx.Err() == nil {
			s.addToHistory(job)
			delay := job.ScheduleRetry(s.config.RetryDelay)
			s.logger.Info("Sync job scheduled for retry",
				zap.String("job_id", job.ID.String()),
				zap.Int("retry_count", job.RetryCount),
				zap.Int("max_retries", job.MaxRetries),
				zap.Duration("delay", delay),
			)
			time.AfterFunc(delay, func() { s.requeue(job) })
			return
		}
	default:
		job.Complete(report)
		s.logger.Info("Sync job completed",
			zap.Int("worker_id", workerID),
			zap.String("job_id", job.ID.String()),
			zap.String("account_id", job.AccountID.String()),
			zap.String("kind", string(job.Kind)),
			zap.String("status", string(job.Status)),
			zap.Int("applied", report.Applied),
			zap.Int("failed", report.Failed),
		)
	}

	s.release(job)
	s.addToHistory(job)
}

// addToHistory records a snapshot of the job
func (s *RunScheduler) addToHistory(job *RunJob) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	entry := *job
	s.history = append([]*RunJob{&entry}, s.history...)
	if len(s.history) > s.config.HistorySize {
		s.history = s.history[:s.config.HistorySize]
	}
}

// GetJobHistory returns recent job history, newest first
func (s *RunScheduler) GetJobHistory(limit int) []*RunJob {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	result := make([]*RunJob, limit)
	copy(result, s.history[:limit])
	return result
}

// GetJobHistoryByAccount returns job history for one account
func (s *RunScheduler) GetJobHistoryByAccount(accountID uuid.UUID, limit int) []*RunJob {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	result := make([]*RunJob, 0, limit)
	for _, job := range s.history {
		if job.AccountID == accountID {
			result = append(result, job)
			if len(result) >= limit {
				break
			}
		}
	}
	return result
}
