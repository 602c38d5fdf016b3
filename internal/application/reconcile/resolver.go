package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/Inventorum/ebay-sub000/internal/domain/account"
	"github.com/Inventorum/ebay-sub000/internal/domain/delta"
	"github.com/Inventorum/ebay-sub000/internal/domain/listing"
	"github.com/Inventorum/ebay-sub000/internal/domain/order"
	"github.com/Inventorum/ebay-sub000/internal/domain/shared"
	"github.com/google/uuid"
)

// ResolvedProduct is the local counterpart of a product delta. Variation
// is set when the delta was a variation child.
type ResolvedProduct struct {
	Item      *listing.PublishableItem
	Variation *listing.Variation
}

// Resolver maps remote records of one run to local entities. Products are
// resolved against the published items captured when the run started, so
// items published while the run is going are not seen until the next run.
// Not finding an entity is a normal outcome and never an error.
type Resolver struct {
	RunID    uuid.UUID
	Account  *account.Account
	snapshot *listing.PublishedSnapshot
}

// NewResolver captures the published items of the account
func NewResolver(ctx context.Context, items listing.ItemRepository, acct *account.Account, runID uuid.UUID) (*Resolver, error) {
	published, err := items.ListPublished(ctx, acct.ID)
	if err != nil {
		return nil, fmt.Errorf("capture published snapshot: %w", err)
	}
	return &Resolver{
		RunID:    runID,
		Account:  acct,
		snapshot: listing.NewPublishedSnapshot(published),
	}, nil
}

// PublishedCount is the number of published items in the run's snapshot
func (r *Resolver) PublishedCount() int {
	return r.snapshot.Len()
}

// ResolveProduct finds the published item of a product delta. Variation
// children only resolve through their parent.
func (r *Resolver) ResolveProduct(d delta.ProductDelta) (*ResolvedProduct, bool) {
	if d.IsVariation() {
		v, ok := r.snapshot.VariationOf(*d.ParentRemoteID, d.RemoteID)
		if !ok {
			return nil, false
		}
		return &ResolvedProduct{Item: v.Item, Variation: v}, true
	}
	item, ok := r.snapshot.ByCoreProductID(d.RemoteID)
	if !ok {
		return nil, false
	}
	return &ResolvedProduct{Item: item}, true
}

// ResolveOrderable finds what a marketplace basket line refers to
func (r *Resolver) ResolveOrderable(ref string) (order.Orderable, bool) {
	return r.snapshot.Orderable(ref)
}

// OrderByMarketplaceID looks the order up within the run's account
func (r *Resolver) OrderByMarketplaceID(ctx context.Context, repo order.Repository, d delta.OrderDelta) (*order.Order, bool, error) {
	if d.AccountRef != "" && d.AccountRef != r.Account.MarketplaceSellerID {
		return nil, false, nil
	}
	return found(repo.FindByMarketplaceID(ctx, r.Account.ID, d.RemoteID))
}

// OrderByCoreID looks the order up within the run's account
func (r *Resolver) OrderByCoreID(ctx context.Context, repo order.Repository, accountRef, coreID string) (*order.Order, bool, error) {
	if accountRef != "" && accountRef != r.Account.CoreAccountID {
		return nil, false, nil
	}
	return found(repo.FindByCoreID(ctx, r.Account.ID, coreID))
}

func found(o *order.Order, err error) (*order.Order, bool, error) {
	if errors.Is(err, shared.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return o, true, nil
}
