// Package reconcile pulls delta pages from either side, resolves every
// record to a local entity and applies it. A run is serialized per account
// and sync kind, and its cursor only moves when every page was read.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/application/ports"
	"github.com/Inventorum/ebay-sub000/internal/domain/account"
	"github.com/Inventorum/ebay-sub000/internal/domain/delta"
	"github.com/Inventorum/ebay-sub000/internal/domain/shared"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrRunInProgress is returned when a run of the same kind is already
	// going for the account
	ErrRunInProgress   = shared.NewDomainError("RUN_IN_PROGRESS", "a sync run of this kind is already in progress for the account")
	ErrInactiveAccount = shared.NewDomainError("ACCOUNT_INACTIVE", "account is not active")
	ErrUnknownKind     = shared.NewDomainError("UNKNOWN_SYNC_KIND", "unknown sync kind")
)

// SourceProvider returns the delta endpoint of a kind for an account
type SourceProvider interface {
	Source(acct *account.Account, kind delta.SyncKind) (delta.PageSource, error)
}

// RunConfig tunes reconciliation runs
type RunConfig struct {
	// InitialLookback is how far back the first run of a kind reaches
	InitialLookback time.Duration
	PageLimit       int
	// LockTTL bounds how long a crashed run blocks the next one
	LockTTL time.Duration
}

// DefaultRunConfig returns the defaults
func DefaultRunConfig() RunConfig {
	return RunConfig{
		InitialLookback: 30 * 24 * time.Hour,
		PageLimit:       DefaultPageLimit,
		LockTTL:         30 * time.Minute,
	}
}

// RunReport summarizes one run
type RunReport struct {
	RunID      uuid.UUID      `json:"run_id"`
	AccountID  uuid.UUID      `json:"account_id"`
	Kind       delta.SyncKind `json:"kind"`
	Since      time.Time      `json:"since"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Pages      int            `json:"pages"`
	Applied    int            `json:"applied"`
	Imported   int            `json:"imported"`
	Unchanged  int            `json:"unchanged"`
	Skipped    int            `json:"skipped"`
	Failed     int            `json:"failed"`
}

func (r *RunReport) count(res Result) {
	switch res {
	case ResultApplied:
		r.Applied++
	case ResultImported:
		r.Imported++
	case ResultUnchanged:
		r.Unchanged++
	case ResultSkipped:
		r.Skipped++
	case ResultFailed:
		r.Failed++
	}
}

// Runner executes reconciliation runs
type Runner struct {
	store    ports.Store
	locker   ports.Locker
	sources  SourceProvider
	orders   *OrderReconciler
	products *ProductReconciler
	returns  *ReturnReconciler
	config   RunConfig
	metrics  *telemetry.SyncMetrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewRunner creates a Runner
func NewRunner(store ports.Store, locker ports.Locker, sources SourceProvider, config RunConfig, metrics *telemetry.SyncMetrics, logger *zap.Logger) *Runner {
	if config.PageLimit <= 0 {
		config.PageLimit = DefaultPageLimit
	}
	if config.InitialLookback <= 0 {
		config.InitialLookback = DefaultRunConfig().InitialLookback
	}
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultRunConfig().LockTTL
	}
	return &Runner{
		store:    store,
		locker:   locker,
		sources:  sources,
		orders:   NewOrderReconciler(store, logger),
		products: NewProductReconciler(store),
		returns:  NewReturnReconciler(store),
		config:   config,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the time source
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// Execute runs one reconciliation of kind for the account
func (r *Runner) Execute(ctx context.Context, accountID uuid.UUID, kind delta.SyncKind) (*RunReport, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	acct, err := r.store.Accounts().FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", accountID, err)
	}
	if !acct.Active {
		return nil, ErrInactiveAccount
	}

	release, err := r.locker.TryLock(ctx, ports.RunLockKey(accountID, kind.String()), r.config.LockTTL)
	if errors.Is(err, ports.ErrLockBusy) {
		return nil, ErrRunInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	defer release()

	runID := uuid.New()
	ctx = shared.WithExecution(ctx, shared.ExecutionContext{AccountID: accountID, RequestID: "run-" + runID.String()})
	ctx, span := telemetry.StartServiceSpan(ctx, "reconcile", "run",
		telemetry.WithAttribute(telemetry.SpanAttrAccountID, accountID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrSyncKind, kind.String()),
	)
	defer span.End()

	log := r.logger.With(
		zap.String("run_id", runID.String()),
		zap.String("account_id", accountID.String()),
		zap.String("kind", kind.String()),
	)

	cursor, err := r.store.Cursors().Get(ctx, accountID, kind)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("read cursor: %w", err)
	}
	startedAt := r.now()
	report := &RunReport{
		RunID:     runID,
		AccountID: accountID,
		Kind:      kind,
		Since:     delta.Since(cursor, startedAt, r.config.InitialLookback),
		StartedAt: startedAt,
	}
	telemetry.SetAttribute(span, telemetry.SpanAttrSince, report.Since.Format(time.RFC3339))

	source, err := r.sources.Source(acct, kind)
	if err != nil {
		return nil, fmt.Errorf("delta source: %w", err)
	}

	log.Info("Starting reconciliation run", zap.Time("since", report.Since))

	switch kind {
	case delta.KindProductsFromCore:
		err = runKind(ctx, r, acct, runID, source, DecodeProduct, report, r.products.ApplyProductDelta)
	case delta.KindOrdersFromMarketplace:
		err = runKind(ctx, r, acct, runID, source, DecodeOrder, report, r.orders.ApplyMarketplaceDelta)
	case delta.KindOrdersFromCore:
		err = runKind(ctx, r, acct, runID, source, DecodeOrder, report, r.orders.ApplyCoreDelta)
	case delta.KindReturnsFromCore:
		err = runKind(ctx, r, acct, runID, source, DecodeReturn, report, r.returns.ApplyReturnDelta)
	}
	report.FinishedAt = r.now()

	if err != nil {
		telemetry.RecordError(span, err)
		r.metrics.RecordRun(ctx, kind.String(), "failed", report.FinishedAt.Sub(startedAt))
		log.Error("Reconciliation run failed, cursor not advanced", zap.Error(err), zap.Int("pages", report.Pages))
		return report, err
	}

	if err := r.store.Cursors().Advance(ctx, accountID, kind, startedAt); err != nil {
		telemetry.RecordError(span, err)
		r.metrics.RecordRun(ctx, kind.String(), "failed", report.FinishedAt.Sub(startedAt))
		return report, fmt.Errorf("advance cursor: %w", err)
	}

	r.metrics.RecordRun(ctx, kind.String(), "success", report.FinishedAt.Sub(startedAt))
	for res, n := range map[Result]int{
		ResultApplied: report.Applied, ResultImported: report.Imported, ResultUnchanged: report.Unchanged,
		ResultSkipped: report.Skipped, ResultFailed: report.Failed,
	} {
		r.metrics.RecordRecords(ctx, kind.String(), string(res), n)
	}
	log.Info("Reconciliation run finished",
		zap.Int("pages", report.Pages),
		zap.Int("applied", report.Applied),
		zap.Int("imported", report.Imported),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.FinishedAt.Sub(startedAt)),
	)
	return report, nil
}

type applyFunc[R any] func(ctx context.Context, res *Resolver, rec R) (Result, error)

// runKind reads every page and applies every record. Undecodable records
// and record errors are logged and counted; only paginator errors fail the
// run.
func runKind[R any](ctx context.Context, r *Runner, acct *account.Account, runID uuid.UUID, source delta.PageSource, decode DecodeFunc[R], report *RunReport, apply applyFunc[R]) error {
	pager, err := NewPaginator(ctx, source, decode, report.Since, r.config.PageLimit)
	if err != nil {
		return err
	}
	res, err := NewResolver(ctx, r.store.Items(), acct, runID)
	if err != nil {
		return err
	}
	r.logger.Debug("Delta paging prepared",
		zap.String("run_id", runID.String()),
		zap.Int("total_items", pager.TotalItems()),
		zap.Int("total_pages", pager.TotalPages()),
		zap.Int("published", res.PublishedCount()),
	)

	for page, err := range pager.All(ctx) {
		if err != nil {
			return err
		}
		report.Pages++
		for _, rejected := range page.Rejected {
			r.logger.Warn("Failed to decode delta record",
				zap.String("run_id", runID.String()),
				zap.String("kind", report.Kind.String()),
				zap.Int("page", rejected.Page),
				zap.Int("index", rejected.Index),
				zap.Error(rejected.Err),
			)
			report.count(ResultFailed)
		}
		for _, rec := range page.Records {
			result, err := apply(ctx, res, rec)
			if err != nil {
				r.logger.Warn("Failed to apply delta record",
					zap.String("run_id", runID.String()),
					zap.String("kind", report.Kind.String()),
					zap.Int("page", page.PageNumber),
					zap.Error(err),
				)
				result = ResultFailed
			}
			report.count(result)
		}
	}
	return nil
}
