package sideeffect

import (
	"context"
	"errors"
	"fmt"

	"github.com/Inventorum/ebay-sub000/internal/application/ports"
	"github.com/Inventorum/ebay-sub000/internal/domain/account"
	"github.com/Inventorum/ebay-sub000/internal/domain/core"
	"github.com/Inventorum/ebay-sub000/internal/domain/marketplace"
	"github.com/Inventorum/ebay-sub000/internal/domain/order"
	"github.com/Inventorum/ebay-sub000/internal/domain/shared"
	"github.com/Inventorum/ebay-sub000/internal/domain/task"
	"github.com/google/uuid"
)

// orderDeps is what every order handler needs
type orderDeps struct {
	store  ports.Store
	market marketplace.Client
}

func (d orderDeps) load(ctx context.Context, id uuid.UUID) (*order.Order, *account.Account, error) {
	o, err := d.store.Orders().FindByID(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil, task.Permanent(err)
	}
	if err != nil {
		return nil, nil, err
	}
	acct, err := d.store.Accounts().FindByID(ctx, o.AccountID)
	if err != nil {
		return nil, nil, err
	}
	return o, acct, nil
}

func classifyMarketplaceError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := marketplace.AsBusinessError(err); ok {
		return task.Permanent(err)
	}
	return err
}

// StatusPushHandler mirrors core's paid and shipped flags to the marketplace
type StatusPushHandler struct {
	noopStages
	orderDeps
}

// NewStatusPushHandler creates a StatusPushHandler
func NewStatusPushHandler(store ports.Store, market marketplace.Client) *StatusPushHandler {
	return &StatusPushHandler{orderDeps: orderDeps{store: store, market: market}}
}

// Kind implements Handler
func (h *StatusPushHandler) Kind() task.Kind { return task.KindMarketplaceStatusPush }

// Execute pushes the status as it is now, so coalesced changes go out as one
func (h *StatusPushHandler) Execute(ctx context.Context, t *task.Task) error {
	o, acct, err := h.load(ctx, t.EntityID)
	if err != nil {
		return err
	}
	err = h.market.PushOrderStatus(ctx, acct, o.ExternalMarketplaceID, o.CoreStatus)
	return classifyMarketplaceError(err)
}

// MarketplaceEventHandler sends pickup events
type MarketplaceEventHandler struct {
	noopStages
	orderDeps
	once *Once
}

// NewMarketplaceEventHandler creates a MarketplaceEventHandler
func NewMarketplaceEventHandler(store ports.Store, market marketplace.Client, once *Once) *MarketplaceEventHandler {
	return &MarketplaceEventHandler{orderDeps: orderDeps{store: store, market: market}, once: once}
}

// Kind implements Handler
func (h *MarketplaceEventHandler) Kind() task.Kind { return task.KindMarketplaceEvent }

// Initialize implements Handler
func (h *MarketplaceEventHandler) Initialize(ctx context.Context, t *task.Task) error {
	var p task.MarketplaceEventPayload
	if err := t.DecodePayload(&p); err != nil {
		return err
	}
	switch order.PickupEvent(p.Event) {
	case order.PickupReadyForPickup, order.PickupPickedUp, order.PickupCanceled:
		return nil
	}
	return task.Permanent(fmt.Errorf("sideeffect: unknown marketplace event %q", p.Event))
}

// Execute implements Handler
func (h *MarketplaceEventHandler) Execute(ctx context.Context, t *task.Task) error {
	var p task.MarketplaceEventPayload
	if err := t.DecodePayload(&p); err != nil {
		return err
	}
	o, acct, err := h.load(ctx, t.EntityID)
	if err != nil {
		return err
	}
	key := DoneKey(fmt.Sprintf("order:%s:event:%s", o.ID, p.Event))
	_, err = h.once.Do(ctx, key, func(ctx context.Context) error {
		return h.market.SendPickupEvent(ctx, acct, o.ExternalMarketplaceID, order.PickupEvent(p.Event))
	})
	return classifyMarketplaceError(err)
}

// CoreOrderPushHandler creates marketplace orders in core and keeps their
// status in sync afterwards
type CoreOrderPushHandler struct {
	noopStages
	orderDeps
	core core.Client
}

// NewCoreOrderPushHandler creates a CoreOrderPushHandler
func NewCoreOrderPushHandler(store ports.Store, coreClient core.Client) *CoreOrderPushHandler {
	return &CoreOrderPushHandler{orderDeps: orderDeps{store: store}, core: coreClient}
}

// Kind implements Handler
func (h *CoreOrderPushHandler) Kind() task.Kind { return task.KindCoreOrderPush }

// Execute implements Handler
func (h *CoreOrderPushHandler) Execute(ctx context.Context, t *task.Task) error {
	o, acct, err := h.load(ctx, t.EntityID)
	if err != nil {
		return err
	}
	if o.HasCoreID() {
		err := h.core.UpdateOrderStatus(ctx, acct.CoreAccountID, *o.ExternalCoreID, o.MarketplaceStatus)
		return classifyCoreError(err)
	}

	// a create whose answer was lost already left the order in core
	created, err := h.core.FindOrder(ctx, acct.CoreAccountID, o.ExternalMarketplaceID)
	if errors.Is(err, shared.ErrNotFound) {
		created, err = h.core.CreateOrder(ctx, acct.CoreAccountID, newCoreOrder(o))
		if err != nil {
			return classifyCoreError(fmt.Errorf("create order %s in core: %w", o.ID, err))
		}
	} else if err != nil {
		return classifyCoreError(fmt.Errorf("find order %s in core: %w", o.ID, err))
	}
	return h.assignCoreIDs(ctx, o.ID, created)
}

// assignCoreIDs stores core's ids, retrying when a reconcile run saved the
// order in between
func (h *CoreOrderPushHandler) assignCoreIDs(ctx context.Context, orderID uuid.UUID, created *core.CreatedOrder) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		err = h.store.Execute(ctx, func(repos ports.Repositories) error {
			o, err := repos.Orders().FindByID(ctx, orderID)
			if err != nil {
				return err
			}
			o.AssignCoreID(created.CoreID)
			o.AssignLineCoreIDs(created.LineItemIDs)
			return repos.Orders().Save(ctx, o)
		})
		if !errors.Is(err, shared.ErrConcurrencyConflict) {
			return err
		}
	}
	return err
}

func newCoreOrder(o *order.Order) core.NewOrder {
	lines := make([]core.OrderLine, 0, len(o.LineItems))
	for _, l := range o.LineItems {
		lines = append(lines, core.OrderLine{
			ExternalID:    l.ExternalID,
			CoreProductID: l.Orderable.CoreProductID(),
			Quantity:      l.Quantity,
			UnitPrice:     l.UnitPrice,
			TaxRate:       l.TaxRate,
		})
	}
	no := core.NewOrder{
		MarketplaceOrderID: o.ExternalMarketplaceID,
		Channel:            core.ChannelEbay,
		FulfillmentMethod:  string(o.FulfillmentMethod),
		Lines:              lines,
		State:              o.MarketplaceStatus.Encode(),
	}
	if o.PickupCode != nil {
		no.PickupCode = *o.PickupCode
	}
	return no
}

// RefundHandler refunds returns booked in core on the marketplace
type RefundHandler struct {
	noopStages
	orderDeps
	once *Once
}

// NewRefundHandler creates a RefundHandler
func NewRefundHandler(store ports.Store, market marketplace.Client, once *Once) *RefundHandler {
	return &RefundHandler{orderDeps: orderDeps{store: store, market: market}, once: once}
}

// Kind implements Handler
func (h *RefundHandler) Kind() task.Kind { return task.KindMarketplaceRefund }

// Execute implements Handler
func (h *RefundHandler) Execute(ctx context.Context, t *task.Task) error {
	var p task.RefundPayload
	if err := t.DecodePayload(&p); err != nil {
		return err
	}
	o, acct, err := h.load(ctx, t.EntityID)
	if err != nil {
		return err
	}
	var ret *order.ReturnRecord
	for i := range o.Returns {
		if o.Returns[i].RemoteID == p.ReturnRemoteID {
			ret = &o.Returns[i]
		}
	}
	if ret == nil {
		return task.Permanent(fmt.Errorf("%w: return %s on order %s", shared.ErrNotFound, p.ReturnRemoteID, o.ID))
	}

	_, err = h.once.Do(ctx, DoneKey("return:"+ret.RemoteID), func(ctx context.Context) error {
		return h.market.IssueRefund(ctx, acct, marketplace.Refund{
			OrderID:  o.ExternalMarketplaceID,
			ReturnID: ret.RemoteID,
			Amount:   ret.RefundAmount,
			Currency: acct.Settings.Currency,
		})
	})
	return classifyMarketplaceError(err)
}

var (
	_ Handler = (*StatusPushHandler)(nil)
	_ Handler = (*MarketplaceEventHandler)(nil)
	_ Handler = (*CoreOrderPushHandler)(nil)
	_ Handler = (*RefundHandler)(nil)
)
