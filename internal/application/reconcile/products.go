package reconcile

import (
	"context"
	"fmt"

	"github.com/Inventorum/ebay-sub000/internal/application/ports"
	"github.com/Inventorum/ebay-sub000/internal/application/publishing"
	"github.com/Inventorum/ebay-sub000/internal/domain/delta"
	"github.com/Inventorum/ebay-sub000/internal/domain/listing"
	"github.com/Inventorum/ebay-sub000/internal/domain/task"
	"github.com/google/uuid"
)

// ProductReconciler applies catalog changes to published products
type ProductReconciler struct {
	store ports.Store
}

// NewProductReconciler creates a ProductReconciler
func NewProductReconciler(store ports.Store) *ProductReconciler {
	return &ProductReconciler{store: store}
}

// ReviseKey limits revisions of an item to one per run
func ReviseKey(itemID, runID uuid.UUID) string {
	return fmt.Sprintf("item:%s:revise:%s", itemID, runID)
}

// ApplyProductDelta copies a changed product onto its projection and
// schedules a revision, or schedules an unpublish for a deleted product.
func (r *ProductReconciler) ApplyProductDelta(ctx context.Context, res *Resolver, d delta.ProductDelta) (Result, error) {
	resolved, ok := res.ResolveProduct(d)
	if !ok {
		return ResultSkipped, nil
	}
	item := resolved.Item

	result := ResultUnchanged
	err := r.store.Execute(ctx, func(repos ports.Repositories) error {
		if d.State == delta.RecordStateDeleted && resolved.Variation == nil {
			inserted, err := task.Schedule(ctx, repos.Tasks(), task.Spec{
				Kind:           task.KindUnpublish,
				EntityType:     task.EntityItem,
				EntityID:       item.ID,
				IdempotencyKey: publishing.UnpublishKey(item.ID),
			})
			if inserted {
				result = ResultApplied
			}
			return err
		}

		product, err := repos.Products().FindByID(ctx, item.ProductID)
		if err != nil {
			return fmt.Errorf("load product of item %s: %w", item.ID, err)
		}

		var changed bool
		switch {
		case resolved.Variation != nil && d.State == delta.RecordStateDeleted:
			changed = removeVariation(product, d.RemoteID)
		case resolved.Variation != nil:
			changed = product.ApplyVariationChanges(d.RemoteID, d.Name, d.Price, d.Quantity)
		default:
			changed = product.ApplyChanges(d.Name, d.Price, d.Quantity)
		}
		if !changed {
			return nil
		}
		if err := repos.Products().Save(ctx, product); err != nil {
			return err
		}
		result = ResultApplied

		_, err = task.Schedule(ctx, repos.Tasks(), task.Spec{
			Kind:           task.KindListingRevise,
			EntityType:     task.EntityItem,
			EntityID:       item.ID,
			IdempotencyKey: ReviseKey(item.ID, res.RunID),
		})
		return err
	})
	if err != nil {
		return ResultFailed, err
	}
	return result, nil
}

func removeVariation(p *listing.CatalogProduct, coreProductID string) bool {
	for i, v := range p.Variations {
		if v.CoreProductID == coreProductID {
			p.Variations = append(p.Variations[:i], p.Variations[i+1:]...)
			return true
		}
	}
	return false
}
