// Package publishing drives publishable items through their lifecycle:
// validation, preparation of a point-in-time snapshot, the marketplace call
// and the terminal outcomes. Every publish of a product runs under an
// exclusive guard so concurrent attempts are rejected instead of queued.
package publishing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/application/ports"
	"github.com/Inventorum/ebay-sub000/internal/domain/account"
	"github.com/Inventorum/ebay-sub000/internal/domain/core"
	"github.com/Inventorum/ebay-sub000/internal/domain/listing"
	"github.com/Inventorum/ebay-sub000/internal/domain/marketplace"
	"github.com/Inventorum/ebay-sub000/internal/domain/shared"
	"github.com/Inventorum/ebay-sub000/internal/domain/task"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/logger"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config tunes the publishing service
type Config struct {
	// MinimumPrice is the lowest gross price the marketplace accepts
	MinimumPrice decimal.Decimal
}

// DefaultConfig returns the defaults
func DefaultConfig() Config {
	return Config{MinimumPrice: decimal.NewFromInt(1)}
}

// Service implements the publishing operations
type Service struct {
	store   ports.Store
	guard   ports.PublishGuard
	market  marketplace.Client
	core    core.Client
	archive ports.SnapshotArchive
	metrics *telemetry.SyncMetrics
	logger  *zap.Logger
	config  Config
	now     func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithArchive stores every prepared snapshot in archive
func WithArchive(archive ports.SnapshotArchive) Option {
	return func(s *Service) {
		s.archive = archive
	}
}

// WithMetrics records publish outcomes
func WithMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(s *Service) {
		s.metrics = metrics
	}
}

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a publishing service
func NewService(store ports.Store, guard ports.PublishGuard, market marketplace.Client, coreClient core.Client, config Config, log *zap.Logger, opts ...Option) *Service {
	if config.MinimumPrice.IsZero() {
		config.MinimumPrice = DefaultConfig().MinimumPrice
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		store:  store,
		guard:  guard,
		market: market,
		core:   coreClient,
		config: config,
		logger: log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PublishKey is the idempotency key of an item's publish task
func PublishKey(itemID uuid.UUID) string {
	return fmt.Sprintf("item:%s:publish", itemID)
}

// UnpublishKey is the idempotency key of an item's unpublish task
func UnpublishKey(itemID uuid.UUID) string {
	return fmt.Sprintf("item:%s:unpublish", itemID)
}

// Validate reports every unmet publish precondition of the product as a
// *listing.ValidationError. It changes nothing except importing the product
// projection from core on first use.
func (s *Service) Validate(ctx context.Context, accountID uuid.UUID, coreProductID string) error {
	acct, product, err := s.loadProduct(ctx, accountID, coreProductID)
	if err != nil {
		return err
	}
	return s.validate(ctx, s.store, acct, product)
}

// Prepare validates the product and stores a Draft item carrying a snapshot
// of the product and the account settings.
func (s *Service) Prepare(ctx context.Context, accountID uuid.UUID, coreProductID string) (*listing.PublishableItem, error) {
	acct, product, err := s.loadProduct(ctx, accountID, coreProductID)
	if err != nil {
		return nil, err
	}
	var item *listing.PublishableItem
	err = s.store.Execute(ctx, func(repos ports.Repositories) error {
		var err error
		item, err = s.prepare(ctx, repos, acct, product)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.archiveSnapshot(ctx, item)
	return item, nil
}

// RequestPublish is the synchronous publish entry point. Under the product's
// guard it validates, prepares and starts an item, then schedules the
// publish task that talks to the marketplace.
func (s *Service) RequestPublish(ctx context.Context, accountID uuid.UUID, coreProductID string) (*listing.PublishableItem, error) {
	ctx = withAccount(ctx, accountID)
	acct, product, err := s.loadProduct(ctx, accountID, coreProductID)
	if err != nil {
		return nil, err
	}

	var item *listing.PublishableItem
	err = s.guard.WithExclusivePublishLock(ctx, product.ID, func(ctx context.Context) error {
		return s.store.Execute(ctx, func(repos ports.Repositories) error {
			var err error
			if item, err = s.prepare(ctx, repos, acct, product); err != nil {
				return err
			}
			if err := item.StartPublishing(); err != nil {
				return err
			}
			if err := repos.Items().Save(ctx, item); err != nil {
				return err
			}
			_, err = task.Schedule(ctx, repos.Tasks(), task.Spec{
				Kind:           task.KindPublish,
				EntityType:     task.EntityItem,
				EntityID:       item.ID,
				IdempotencyKey: PublishKey(item.ID),
			})
			return err
		})
	})
	if errors.Is(err, listing.ErrConcurrentPublishRejected) {
		s.metrics.RecordPublish(ctx, "rejected")
		s.log(ctx).Info("Concurrent publish rejected", zap.String("product_id", product.ID.String()))
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	s.archiveSnapshot(ctx, item)
	s.log(ctx).Info("Publish requested",
		zap.String("product_id", product.ID.String()),
		zap.String("item_id", item.ID.String()),
	)
	return item, nil
}

// Publish lists a Draft or InProgress item on the marketplace. It runs under
// the product's guard for the whole remote call. A business rejection marks
// the item Failed and is returned as a permanent error; a transport failure
// leaves it InProgress and is returned as is so the caller can retry.
func (s *Service) Publish(ctx context.Context, itemID uuid.UUID) error {
	item, err := s.store.Items().FindByID(ctx, itemID)
	if err != nil {
		return err
	}
	ctx, span := telemetry.StartServiceSpan(ctx, "publishing", "publish",
		telemetry.WithAttribute(telemetry.SpanAttrItemID, itemID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrProductID, item.ProductID.String()),
	)
	defer span.End()

	err = s.guard.WithExclusivePublishLock(ctx, item.ProductID, func(ctx context.Context) error {
		return s.publishLocked(ctx, itemID)
	})
	if err != nil {
		telemetry.RecordError(span, err)
	}
	return err
}

func (s *Service) publishLocked(ctx context.Context, itemID uuid.UUID) error {
	item, err := s.store.Items().FindByID(ctx, itemID)
	if err != nil {
		return err
	}
	switch item.Status {
	case listing.StatusPublished:
		return nil
	case listing.StatusFailed, listing.StatusUnpublished:
		return task.Permanent(fmt.Errorf("%w: item %s is %s", listing.ErrInvalidTransition, item.ID, item.Status))
	}

	acct, err := s.store.Accounts().FindByID(ctx, item.AccountID)
	if err != nil {
		return err
	}

	if item.Status == listing.StatusDraft {
		if err := item.StartPublishing(); err != nil {
			return err
		}
		if err := s.saveItem(ctx, item); err != nil {
			return err
		}
	}

	result, err := s.market.PublishListing(ctx, acct, item.ID.String(), item.Snapshot)
	if err != nil {
		if be, ok := marketplace.AsBusinessError(err); ok {
			if ferr := item.MarkFailed(be.FailureDetails()); ferr != nil {
				return ferr
			}
			if serr := s.saveItem(ctx, item); serr != nil {
				return serr
			}
			s.metrics.RecordPublish(ctx, "failed")
			s.log(ctx).Warn("Marketplace rejected listing",
				zap.String("item_id", item.ID.String()),
				zap.String("classification", be.Classification),
				zap.String("code", be.Code),
			)
			return task.Permanent(err)
		}
		return fmt.Errorf("publish item %s: %w", item.ID, err)
	}

	if err := item.MarkPublished(result.ItemID, result.StartedAt, result.EndsAt); err != nil {
		return err
	}
	if err := s.saveItem(ctx, item); err != nil {
		return err
	}
	s.metrics.RecordPublish(ctx, "published")
	s.log(ctx).Info("Item published",
		zap.String("item_id", item.ID.String()),
		zap.String("listing_id", result.ItemID),
	)
	return nil
}

// Unpublish ends the listing of a Published item. A listing the marketplace
// already ended counts as success.
func (s *Service) Unpublish(ctx context.Context, itemID uuid.UUID) error {
	item, err := s.store.Items().FindByID(ctx, itemID)
	if err != nil {
		return err
	}
	if item.Status == listing.StatusUnpublished {
		return nil
	}
	if !item.IsPublished() {
		return task.Permanent(fmt.Errorf("%w: item %s is %s", listing.ErrNotPublished, item.ID, item.Status))
	}
	acct, err := s.store.Accounts().FindByID(ctx, item.AccountID)
	if err != nil {
		return err
	}

	err = s.market.EndListing(ctx, acct, item.MarketplaceItemID())
	if err != nil && !errors.Is(err, marketplace.ErrListingAlreadyEnded) {
		if _, ok := marketplace.AsBusinessError(err); ok {
			return task.Permanent(err)
		}
		return fmt.Errorf("end listing of item %s: %w", item.ID, err)
	}

	if err := item.MarkUnpublished(s.now()); err != nil {
		return err
	}
	if err := s.saveItem(ctx, item); err != nil {
		return err
	}
	s.metrics.RecordPublish(ctx, "unpublished")
	s.log(ctx).Info("Item unpublished", zap.String("item_id", item.ID.String()))
	return nil
}

// RequestUnpublish schedules the unpublish of a Published item of the account
func (s *Service) RequestUnpublish(ctx context.Context, accountID, itemID uuid.UUID) error {
	ctx = withAccount(ctx, accountID)
	return s.store.Execute(ctx, func(repos ports.Repositories) error {
		item, err := repos.Items().FindByID(ctx, itemID)
		if err != nil {
			return err
		}
		if !item.BelongsTo(accountID) {
			return fmt.Errorf("%w: item %s", shared.ErrNotFound, itemID)
		}
		if !item.IsPublished() {
			return fmt.Errorf("%w: item %s is %s", listing.ErrNotPublished, item.ID, item.Status)
		}
		_, err = task.Schedule(ctx, repos.Tasks(), task.Spec{
			Kind:           task.KindUnpublish,
			EntityType:     task.EntityItem,
			EntityID:       item.ID,
			IdempotencyKey: UnpublishKey(item.ID),
		})
		return err
	})
}

// Fail records a terminal failure. Items that already reached a terminal
// state or were published are left alone, so calling Fail twice is harmless.
func (s *Service) Fail(ctx context.Context, itemID uuid.UUID, details listing.FailureDetails) error {
	item, err := s.store.Items().FindByID(ctx, itemID)
	if err != nil {
		return err
	}
	if item.Status.IsTerminal() || item.IsPublished() {
		return nil
	}
	if details.OccurredAt.IsZero() {
		details.OccurredAt = s.now()
	}
	if err := item.MarkFailed(details); err != nil {
		return err
	}
	if err := s.saveItem(ctx, item); err != nil {
		return err
	}
	s.metrics.RecordPublish(ctx, "failed")
	s.log(ctx).Warn("Item failed",
		zap.String("item_id", item.ID.String()),
		zap.String("reason", details.Reason),
	)
	return nil
}

// Revise sends the current catalog data of a Published item to the
// marketplace. Items that are no longer published are skipped.
func (s *Service) Revise(ctx context.Context, itemID uuid.UUID) error {
	item, err := s.store.Items().FindByID(ctx, itemID)
	if err != nil {
		return err
	}
	if !item.IsPublished() {
		s.log(ctx).Debug("Skipping revise of unpublished item", zap.String("item_id", item.ID.String()))
		return nil
	}
	product, err := s.store.Products().FindByID(ctx, item.ProductID)
	if err != nil {
		return err
	}
	acct, err := s.store.Accounts().FindByID(ctx, item.AccountID)
	if err != nil {
		return err
	}

	snapshot := item.Snapshot.WithProduct(product)
	if err := s.market.ReviseListing(ctx, acct, item.MarketplaceItemID(), snapshot); err != nil {
		if _, ok := marketplace.AsBusinessError(err); ok {
			return task.Permanent(err)
		}
		return fmt.Errorf("revise item %s: %w", item.ID, err)
	}
	if err := item.Revise(snapshot); err != nil {
		return err
	}
	return s.store.Items().Save(ctx, item)
}

func (s *Service) prepare(ctx context.Context, repos ports.Repositories, acct *account.Account, product *listing.CatalogProduct) (*listing.PublishableItem, error) {
	if err := s.validate(ctx, repos, acct, product); err != nil {
		return nil, err
	}
	item := listing.NewPublishableItem(acct.ID, product.ID, listing.NewSnapshot(product, acct.Settings))
	if err := repos.Items().Create(ctx, item); err != nil {
		return nil, err
	}
	if err := repos.Dirty().Mark(ctx, listing.EntityTypeItem, item.ID, s.now()); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Service) validate(ctx context.Context, repos ports.Repositories, acct *account.Account, product *listing.CatalogProduct) error {
	active, err := repos.Items().FindActiveByProduct(ctx, product.ID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return err
	}
	return listing.Validate(product, acct.Settings, active, s.config.MinimumPrice)
}

// saveItem persists a status change together with its dirty mark
func (s *Service) saveItem(ctx context.Context, item *listing.PublishableItem) error {
	return s.store.Execute(ctx, func(repos ports.Repositories) error {
		if err := repos.Items().Save(ctx, item); err != nil {
			return err
		}
		return repos.Dirty().Mark(ctx, listing.EntityTypeItem, item.ID, s.now())
	})
}

// loadProduct returns the account and its product projection, importing the
// product from core the first time it is seen.
func (s *Service) loadProduct(ctx context.Context, accountID uuid.UUID, coreProductID string) (*account.Account, *listing.CatalogProduct, error) {
	acct, err := s.store.Accounts().FindByID(ctx, accountID)
	if err != nil {
		return nil, nil, fmt.Errorf("load account %s: %w", accountID, err)
	}
	product, err := s.store.Products().FindByCoreID(ctx, accountID, coreProductID)
	if err == nil {
		return acct, product, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, nil, err
	}

	remote, err := s.core.GetProduct(ctx, acct.CoreAccountID, coreProductID)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch product %s from core: %w", coreProductID, err)
	}
	product = projectProduct(accountID, remote)
	if err := s.store.Products().Create(ctx, product); err != nil {
		if !errors.Is(err, shared.ErrAlreadyExists) {
			return nil, nil, err
		}
		// imported concurrently
		product, err = s.store.Products().FindByCoreID(ctx, accountID, coreProductID)
		if err != nil {
			return nil, nil, err
		}
	}
	return acct, product, nil
}

func (s *Service) archiveSnapshot(ctx context.Context, item *listing.PublishableItem) {
	if s.archive == nil {
		return
	}
	if err := s.archive.ArchiveSnapshot(ctx, item); err != nil {
		s.log(ctx).Warn("Failed to archive listing snapshot",
			zap.String("item_id", item.ID.String()),
			zap.Error(err),
		)
	}
}

func projectProduct(accountID uuid.UUID, remote *core.Product) *listing.CatalogProduct {
	p := listing.NewCatalogProduct(accountID, remote.ID, remote.Name, remote.GrossPrice, remote.Quantity)
	p.Description = remote.Description
	p.TaxRate = remote.TaxRate
	p.CategoryID = remote.CategoryID
	p.Images = remote.Images
	p.Specifics = remote.Specifics
	for _, v := range remote.Variations {
		p.Variations = append(p.Variations, listing.ProductVariation{
			ID:             uuid.New(),
			CoreProductID:  v.ID,
			Name:           v.Name,
			GrossPrice:     v.GrossPrice,
			Quantity:       v.Quantity,
			MarketplaceSKU: v.SKU,
			Specifics:      v.Specifics,
		})
	}
	return p
}

func withAccount(ctx context.Context, accountID uuid.UUID) context.Context {
	if _, ok := shared.ExecutionFromContext(ctx); ok {
		return ctx
	}
	return shared.WithExecution(ctx, shared.ExecutionContext{AccountID: accountID})
}

func (s *Service) log(ctx context.Context) *logger.ContextLogger {
	return logger.WithLogger(ctx, s.logger)
}
