package sideeffect

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/application/ports"
	"github.com/Inventorum/ebay-sub000/internal/domain/listing"
	"github.com/Inventorum/ebay-sub000/internal/domain/shared"
	"github.com/Inventorum/ebay-sub000/internal/domain/task"
	"go.uber.org/zap"
)

// SweeperConfig holds configuration for the sweeps
type SweeperConfig struct {
	// PublishTimeout is how long an item may stay in progress
	PublishTimeout time.Duration
	BatchSize      int
	Interval       time.Duration
}

// DefaultSweeperConfig returns default configuration
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		PublishTimeout: 30 * time.Minute,
		BatchSize:      100,
		Interval:       time.Minute,
	}
}

// SweepReport counts what one sweep pass did
type SweepReport struct {
	Stuck   int `json:"stuck"`
	Pushed  int `json:"pushed"`
	Cleared int `json:"cleared"`
	// Dropped counts marks removed because core refused the state for good
	Dropped int `json:"dropped"`
	Errors  int `json:"errors"`
}

// Sweeper fails items stuck in progress and flushes dirty marks to core
type Sweeper struct {
	store     ports.Store
	publisher Publisher
	finalizer *PublishHandler
	pusher    *StatePusher
	config    SweeperConfig
	logger    *zap.Logger
	now       func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a Sweeper
func NewSweeper(store ports.Store, publisher Publisher, finalizer *PublishHandler, pusher *StatePusher, config SweeperConfig, logger *zap.Logger) *Sweeper {
	def := DefaultSweeperConfig()
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = def.PublishTimeout
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	return &Sweeper{
		store:     store,
		publisher: publisher,
		finalizer: finalizer,
		pusher:    pusher,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock replaces the time source
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Start runs both sweeps every interval
func (s *Sweeper) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()

	s.logger.Info("sweeper started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("publish_timeout", s.config.PublishTimeout),
	)
	return nil
}

// Stop gracefully stops the sweeper
func (s *Sweeper) Stop(ctx context.Context) error {
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
		s.logger.Info("sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce runs the stuck sweep, then the dirty flush
func (s *Sweeper) RunOnce(ctx context.Context) SweepReport {
	var report SweepReport
	s.SweepStuck(ctx, &report)
	s.FlushDirty(ctx, &report)
	if report != (SweepReport{}) {
		s.logger.Info("sweep finished",
			zap.Int("stuck", report.Stuck),
			zap.Int("pushed", report.Pushed),
			zap.Int("cleared", report.Cleared),
			zap.Int("dropped", report.Dropped),
			zap.Int("errors", report.Errors),
		)
	}
	return report
}

// SweepStuck fails items whose dirty mark is older than the publish timeout
// while they are still in progress, then finalizes them out of band.
func (s *Sweeper) SweepStuck(ctx context.Context, report *SweepReport) {
	cutoff := s.now().Add(-s.config.PublishTimeout)
	marks, err := s.store.Dirty().ListStuckItems(ctx, cutoff, s.config.BatchSize)
	if err != nil {
		s.logger.Error("failed to list stale dirty marks", zap.Error(err))
		report.Errors++
		return
	}

	for _, m := range marks {
		item, err := s.store.Items().FindByID(ctx, m.EntityID)
		if errors.Is(err, shared.ErrNotFound) {
			continue
		}
		if err != nil {
			s.logger.Error("failed to load item", zap.String("item_id", m.EntityID.String()), zap.Error(err))
			report.Errors++
			continue
		}
		if item.Status != listing.StatusInProgress {
			continue
		}

		details := listing.FailureDetails{Reason: listing.ReasonPublishTimeout, OccurredAt: s.now()}
		if err := s.publisher.Fail(ctx, item.ID, details); err != nil {
			s.logger.Error("failed to fail stuck item", zap.String("item_id", item.ID.String()), zap.Error(err))
			report.Errors++
			continue
		}
		report.Stuck++
		s.logger.Warn("publish timed out",
			zap.String("item_id", item.ID.String()),
			zap.Time("marked_at", m.MarkedAt),
		)
		if err := s.finalizer.FinalizeItem(ctx, item.ID, task.OutcomeFailed, ""); err != nil {
			// the dirty flush reports the state later
			s.logger.Warn("failed to finalize stuck item", zap.String("item_id", item.ID.String()), zap.Error(err))
		}
	}
}

// FlushDirty pushes the state of every dirty item to core. A mark is removed
// only if nobody marked the item again meanwhile; marks of items still in
// progress stay so the stuck sweep can find them. Marks whose push core
// rejects for good are dropped so they do not fill every batch.
func (s *Sweeper) FlushDirty(ctx context.Context, report *SweepReport) {
	marks, err := s.store.Dirty().List(ctx, s.config.BatchSize)
	if err != nil {
		s.logger.Error("failed to list dirty marks", zap.Error(err))
		report.Errors++
		return
	}

	for _, m := range marks {
		if m.EntityType != listing.EntityTypeItem {
			continue
		}
		item, err := s.pusher.PushItem(ctx, m.EntityID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				_, _ = s.store.Dirty().Clear(ctx, m.EntityType, m.EntityID, m.MarkedAt)
				continue
			}
			report.Errors++
			if task.IsPermanent(err) && item != nil && item.Status != listing.StatusInProgress {
				s.logger.Error("core rejected item state, dropping dirty mark",
					zap.String("item_id", m.EntityID.String()),
					zap.String("status", item.Status.String()),
					zap.Error(err),
				)
				if dropped, cerr := s.store.Dirty().Clear(ctx, m.EntityType, m.EntityID, m.MarkedAt); cerr == nil && dropped {
					report.Dropped++
				}
				continue
			}
			s.logger.Warn("failed to push item state", zap.String("item_id", m.EntityID.String()), zap.Error(err))
			continue
		}
		report.Pushed++
		if item.Status == listing.StatusInProgress {
			continue
		}
		cleared, err := s.store.Dirty().Clear(ctx, m.EntityType, m.EntityID, m.MarkedAt)
		if err != nil {
			s.logger.Error("failed to clear dirty mark", zap.String("item_id", m.EntityID.String()), zap.Error(err))
			report.Errors++
			continue
		}
		if cleared {
			report.Cleared++
		}
	}
}
