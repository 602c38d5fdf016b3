package reconcile

import (
	"context"
	"fmt"

	"github.com/Inventorum/ebay-sub000/internal/application/ports"
	"github.com/Inventorum/ebay-sub000/internal/domain/delta"
	"github.com/Inventorum/ebay-sub000/internal/domain/order"
	"github.com/Inventorum/ebay-sub000/internal/domain/task"
	"go.uber.org/zap"
)

// OrderReconciler applies order snapshots from either side. State and the
// side effects it triggers are written in one transaction.
type OrderReconciler struct {
	store  ports.Store
	logger *zap.Logger
}

// NewOrderReconciler creates an OrderReconciler
func NewOrderReconciler(store ports.Store, logger *zap.Logger) *OrderReconciler {
	return &OrderReconciler{store: store, logger: logger}
}

// PickupEventKey is the idempotency key of a pickup event task
func PickupEventKey(o *order.Order, event order.PickupEvent) string {
	return fmt.Sprintf("order:%s:event:%s", o.ID, event)
}

// ApplyCoreDelta applies a snapshot pulled from core
func (r *OrderReconciler) ApplyCoreDelta(ctx context.Context, res *Resolver, d delta.OrderDelta) (Result, error) {
	result := ResultUnchanged
	err := r.store.Execute(ctx, func(repos ports.Repositories) error {
		o, ok, err := res.OrderByCoreID(ctx, repos.Orders(), d.AccountRef, d.RemoteID)
		if err != nil {
			return err
		}
		if !ok {
			result = ResultSkipped
			return nil
		}

		change := o.ApplyCoreStatus(order.DecodeState(d.BinaryState, o.FulfillmentMethod))
		if !change.Changed() {
			return nil
		}
		if err := repos.Orders().Save(ctx, o); err != nil {
			return err
		}
		result = ResultApplied

		if o.IsPickup() {
			for _, event := range change.PickupEvents() {
				if _, err := task.Schedule(ctx, repos.Tasks(), task.Spec{
					Kind:           task.KindMarketplaceEvent,
					EntityType:     task.EntityOrder,
					EntityID:       o.ID,
					IdempotencyKey: PickupEventKey(o, event),
					Payload:        task.MarketplaceEventPayload{Event: string(event)},
				}); err != nil {
					return err
				}
			}
			return nil
		}

		if change.PaidOrShippedChanged() {
			if _, err := task.Schedule(ctx, repos.Tasks(), task.Spec{
				Kind:       task.KindMarketplaceStatusPush,
				EntityType: task.EntityOrder,
				EntityID:   o.ID,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ResultFailed, err
	}
	return result, nil
}

// ApplyMarketplaceDelta applies a snapshot pulled from the marketplace.
// Unknown orders are imported when every basket line resolves.
func (r *OrderReconciler) ApplyMarketplaceDelta(ctx context.Context, res *Resolver, d delta.OrderDelta) (Result, error) {
	result := ResultUnchanged
	err := r.store.Execute(ctx, func(repos ports.Repositories) error {
		o, ok, err := res.OrderByMarketplaceID(ctx, repos.Orders(), d)
		if err != nil {
			return err
		}

		if !ok {
			if d.AccountRef != "" && d.AccountRef != res.Account.MarketplaceSellerID {
				result = ResultSkipped
				return nil
			}
			o, ok, err = r.importOrder(ctx, repos, res, d)
			if err != nil || !ok {
				result = ResultSkipped
				return err
			}
			result = ResultImported
		} else {
			change := o.ApplyMarketplaceStatus(order.DecodeState(d.BinaryState, o.FulfillmentMethod))
			if !change.Changed() {
				return nil
			}
			if err := repos.Orders().Save(ctx, o); err != nil {
				return err
			}
			result = ResultApplied
		}

		_, err = task.Schedule(ctx, repos.Tasks(), task.Spec{
			Kind:       task.KindCoreOrderPush,
			EntityType: task.EntityOrder,
			EntityID:   o.ID,
		})
		return err
	})
	if err != nil {
		return ResultFailed, err
	}
	return result, nil
}

func (r *OrderReconciler) importOrder(ctx context.Context, repos ports.Repositories, res *Resolver, d delta.OrderDelta) (*order.Order, bool, error) {
	items := make([]order.LineItem, 0, len(d.Items))
	for _, line := range d.Items {
		orderable, ok := res.ResolveOrderable(line.ItemRef)
		if !ok {
			r.logger.Debug("Skipping order with unresolvable line item",
				zap.String("order", d.RemoteID),
				zap.String("item_ref", line.ItemRef),
			)
			return nil, false, nil
		}
		items = append(items, order.NewLineItem(line.RemoteID, orderable, line.Quantity, line.UnitPrice, line.TaxRate))
	}

	method := order.ParseFulfillmentMethod(d.FulfillmentMethod)
	code := ""
	if method == order.FulfillmentPickup {
		code = d.PickupCode
	}
	o, err := order.NewOrder(res.Account.ID, d.RemoteID, method, code, items)
	if err != nil {
		return nil, false, err
	}
	o.ApplyMarketplaceStatus(order.DecodeState(d.BinaryState, method))
	if err := repos.Orders().Create(ctx, o); err != nil {
		return nil, false, err
	}
	return o, true, nil
}
