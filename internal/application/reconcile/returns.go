package reconcile

import (
	"context"
	"fmt"

	"github.com/Inventorum/ebay-sub000/internal/application/ports"
	"github.com/Inventorum/ebay-sub000/internal/domain/delta"
	"github.com/Inventorum/ebay-sub000/internal/domain/order"
	"github.com/Inventorum/ebay-sub000/internal/domain/task"
)

// ReturnReconciler records returns booked in core and schedules refunds
type ReturnReconciler struct {
	store ports.Store
}

// NewReturnReconciler creates a ReturnReconciler
func NewReturnReconciler(store ports.Store) *ReturnReconciler {
	return &ReturnReconciler{store: store}
}

// RefundKey is the idempotency key of a return's refund task
func RefundKey(returnRemoteID string) string {
	return fmt.Sprintf("return:%s", returnRemoteID)
}

// ApplyReturnDelta records the return on its order once
func (r *ReturnReconciler) ApplyReturnDelta(ctx context.Context, res *Resolver, d delta.ReturnDelta) (Result, error) {
	result := ResultUnchanged
	err := r.store.Execute(ctx, func(repos ports.Repositories) error {
		o, ok, err := res.OrderByCoreID(ctx, repos.Orders(), "", d.OrderRemoteID)
		if err != nil {
			return err
		}
		if !ok {
			result = ResultSkipped
			return nil
		}

		lines := make([]order.ReturnedLine, 0, len(d.Items))
		for _, item := range d.Items {
			lines = append(lines, order.ReturnedLine{LineItemExternalID: item.LineItemRemoteID, Quantity: item.Quantity})
		}
		_, recorded, err := o.RecordReturn(d.RemoteID, lines, d.RefundAmount)
		if err != nil || !recorded {
			return err
		}
		if err := repos.Orders().Save(ctx, o); err != nil {
			return err
		}
		result = ResultApplied

		_, err = task.Schedule(ctx, repos.Tasks(), task.Spec{
			Kind:           task.KindMarketplaceRefund,
			EntityType:     task.EntityOrder,
			EntityID:       o.ID,
			IdempotencyKey: RefundKey(d.RemoteID),
			Payload:        task.RefundPayload{ReturnRemoteID: d.RemoteID},
		})
		return err
	})
	if err != nil {
		return ResultFailed, err
	}
	return result, nil
}
