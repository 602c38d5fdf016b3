package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/domain/account"
	"github.com/Inventorum/ebay-sub000/internal/domain/delta"
	"go.uber.org/zap"
)

// AccountLister lists the accounts to sync. account.Repository satisfies it.
type AccountLister interface {
	ListActive(ctx context.Context) ([]account.Account, error)
}

// IntervalTriggerConfig holds configuration for the interval trigger
type IntervalTriggerConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	// Kinds are the enabled sync kinds, in the order they are queued
	Kinds []delta.SyncKind `mapstructure:"kinds"`
	// RunOnStart queues a round immediately instead of after one interval
	RunOnStart bool `mapstructure:"run_on_start"`
}

// DefaultIntervalTriggerConfig returns default configuration
func DefaultIntervalTriggerConfig() IntervalTriggerConfig {
	return IntervalTriggerConfig{
		Interval:   5 * time.Minute,
		Kinds:      append([]delta.SyncKind(nil), delta.AllKinds...),
		RunOnStart: true,
	}
}

// Validate validates the configuration
func (c *IntervalTriggerConfig) Validate() error {
	if c.Interval <= 0 || len(c.Kinds) == 0 {
		return ErrInvalidConfig
	}
	for _, k := range c.Kinds {
		if !k.IsValid() {
			return ErrInvalidConfig
		}
	}
	return nil
}

// TriggerReport summarizes one round of queued jobs
type TriggerReport struct {
	Accounts int
	Queued   int
	Skipped  int
	Failed   int
}

// IntervalTrigger queues every enabled kind for every active account once
// per interval
type IntervalTrigger struct {
	config    IntervalTriggerConfig
	scheduler *RunScheduler
	accounts  AccountLister
	logger    *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewIntervalTrigger creates a new interval trigger
func NewIntervalTrigger(config IntervalTriggerConfig, scheduler *RunScheduler, accounts AccountLister, logger *zap.Logger) (*IntervalTrigger, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &IntervalTrigger{
		config:    config,
		scheduler: scheduler,
		accounts:  accounts,
		logger:    logger,
	}, nil
}

// Start starts the trigger loop
func (t *IntervalTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = true
	t.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go t.runLoop(ctx)

	t.logger.Info("Interval trigger started",
		zap.Duration("interval", t.config.Interval),
		zap.Int("kinds", len(t.config.Kinds)),
	)
	return nil
}

// Stop stops the trigger loop
func (t *IntervalTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Interval trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *IntervalTrigger) runLoop(ctx context.Context) {
	defer t.wg.Done()

	if t.config.RunOnStart {
		t.TriggerNow(ctx)
	}

	ticker := time.NewTicker(t.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.TriggerNow(ctx)
		}
	}
}

// TriggerNow queues one round. Pairs still queued from an earlier round are
// skipped.
func (t *IntervalTrigger) TriggerNow(ctx context.Context) TriggerReport {
	var report TriggerReport

	accounts, err := t.accounts.ListActive(ctx)
	if err != nil {
		t.logger.Error("Failed to list active accounts", zap.Error(err))
		return report
	}
	report.Accounts = len(accounts)

	for _, acct := range accounts {
		for _, kind := range t.config.Kinds {
			_, err := t.scheduler.Schedule(acct.ID, kind)
			switch {
			case err == nil:
				report.Queued++
			case errors.Is(err, ErrJobAlreadyQueued):
				report.Skipped++
			default:
				report.Failed++
				t.logger.Warn("Failed to queue sync job",
					zap.String("account_id", acct.ID.String()),
					zap.String("kind", string(kind)),
					zap.Error(err),
				)
			}
		}
	}

	t.logger.Debug("Sync round queued",
		zap.Int("accounts", report.Accounts),
		zap.Int("queued", report.Queued),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report
}
