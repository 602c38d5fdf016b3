package sideeffect

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/domain/core"
	"github.com/Inventorum/ebay-sub000/internal/domain/listing"
	"github.com/Inventorum/ebay-sub000/internal/domain/marketplace"
	"github.com/Inventorum/ebay-sub000/internal/domain/order"
	"github.com/Inventorum/ebay-sub000/internal/domain/shared"
	"github.com/Inventorum/ebay-sub000/internal/domain/task"
	"github.com/Inventorum/ebay-sub000/tests/testutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	e := newEnv(t, fastPolicy())

	assert.Len(t, e.registry.Kinds(), 7)
	h, err := e.registry.Get(task.KindPublish)
	require.NoError(t, err)
	assert.Equal(t, task.KindPublish, h.Kind())

	_, err = e.registry.Get("nope")
	require.Error(t, err)
	assert.True(t, task.IsPermanent(err))
}

func TestPublishHandler_Initialize(t *testing.T) {
	e := newEnv(t, fastPolicy())
	ctx := context.Background()

	t.Run("missing item is permanent", func(t *testing.T) {
		tk := newTask(t, e.acct.ID, uuid.New(), task.Spec{Kind: task.KindPublish})
		err := e.publish.Initialize(ctx, tk)
		require.Error(t, err)
		assert.True(t, task.IsPermanent(err))
	})

	t.Run("terminal item is permanent", func(t *testing.T) {
		item, err := e.publisher.Prepare(ctx, e.acct.ID, "p-1")
		require.NoError(t, err)
		require.NoError(t, e.publisher.Fail(ctx, item.ID, listing.FailureDetails{Reason: "test"}))

		tk := newTask(t, e.acct.ID, item.ID, task.Spec{Kind: task.KindPublish})
		err = e.publish.Initialize(ctx, tk)
		require.Error(t, err)
		assert.True(t, task.IsPermanent(err))
	})
}

func TestUnpublishHandler_Chain(t *testing.T) {
	e := newEnv(t, fastPolicy())
	ctx := context.Background()
	_, item := testutil.SeedPublishedItem(t, e.store.Products(), e.store.Items(), e.acct, "p-7", "110000000007")

	require.NoError(t, e.publisher.RequestUnpublish(ctx, e.acct.ID, item.ID))
	_, err := e.processor.Drain(ctx)
	require.NoError(t, err)

	ends := e.market.Calls("EndListing")
	require.Len(t, ends, 1)
	assert.Equal(t, "110000000007", ends[0].Target)

	got, err := e.store.Items().FindByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, listing.StatusUnpublished, got.Status)

	pushes := e.core.Calls("PushProductState")
	require.Len(t, pushes, 1)
	assert.Equal(t, "p-7", pushes[0].Target)
	assert.Equal(t, listing.StatusUnpublished.String(), pushes[0].Args.(core.ProductState).State)
}

func TestStatusPushHandler_PushesCurrentCoreStatus(t *testing.T) {
	e := newEnv(t, fastPolicy())
	ctx := context.Background()
	o := e.seedOrder(t, order.FulfillmentShipping)

	o.ApplyCoreStatus(order.OrderStatus{IsPaid: true, IsShipped: true})
	require.NoError(t, e.store.Orders().Save(ctx, o))

	h := NewStatusPushHandler(e.store, e.market)
	tk := newTask(t, e.acct.ID, o.ID, task.Spec{Kind: task.KindMarketplaceStatusPush, EntityType: task.EntityOrder})
	require.NoError(t, h.Execute(ctx, tk))

	calls := e.market.Calls("PushOrderStatus")
	require.Len(t, calls, 1)
	assert.Equal(t, "m-order-1", calls[0].Target)
	status := calls[0].Args.(order.OrderStatus)
	assert.True(t, status.IsPaid)
	assert.True(t, status.IsShipped)
}

func TestStatusPushHandler_BusinessErrorIsPermanent(t *testing.T) {
	e := newEnv(t, fastPolicy())
	o := e.seedOrder(t, order.FulfillmentShipping)
	e.market.FailNext("PushOrderStatus", &marketplace.BusinessError{Classification: "RequestError", Code: "21916"})

	h := NewStatusPushHandler(e.store, e.market)
	tk := newTask(t, e.acct.ID, o.ID, task.Spec{Kind: task.KindMarketplaceStatusPush})
	err := h.Execute(context.Background(), tk)
	require.Error(t, err)
	assert.True(t, task.IsPermanent(err))
}

func TestMarketplaceEventHandler(t *testing.T) {
	e := newEnv(t, fastPolicy())
	ctx := context.Background()
	o := e.seedOrder(t, order.FulfillmentPickup)
	h := NewMarketplaceEventHandler(e.store, e.market, e.once)

	t.Run("unknown event is rejected", func(t *testing.T) {
		tk := newTask(t, e.acct.ID, o.ID, task.Spec{
			Kind:    task.KindMarketplaceEvent,
			Payload: task.MarketplaceEventPayload{Event: "LOST"},
		})
		err := h.Initialize(ctx, tk)
		require.Error(t, err)
		assert.True(t, task.IsPermanent(err))
	})

	t.Run("event is sent once", func(t *testing.T) {
		tk := newTask(t, e.acct.ID, o.ID, task.Spec{
			Kind:    task.KindMarketplaceEvent,
			Payload: task.MarketplaceEventPayload{Event: string(order.PickupReadyForPickup)},
		})
		require.NoError(t, h.Initialize(ctx, tk))
		require.NoError(t, h.Execute(ctx, tk))
		require.NoError(t, h.Execute(ctx, tk))

		calls := e.market.Calls("SendPickupEvent")
		require.Len(t, calls, 1)
		assert.Equal(t, order.PickupReadyForPickup, calls[0].Args.(order.PickupEvent))
	})

	t.Run("failed send can be retried", func(t *testing.T) {
		e.market.Reset()
		e.market.FailNext("SendPickupEvent", marketplace.ErrMarketplaceUnavailable)
		tk := newTask(t, e.acct.ID, o.ID, task.Spec{
			Kind:    task.KindMarketplaceEvent,
			Payload: task.MarketplaceEventPayload{Event: string(order.PickupPickedUp)},
		})
		err := h.Execute(ctx, tk)
		require.ErrorIs(t, err, marketplace.ErrMarketplaceUnavailable)
		assert.False(t, task.IsPermanent(err))

		require.NoError(t, h.Execute(ctx, tk))
		assert.Equal(t, 2, e.market.CallCount("SendPickupEvent"))
	})
}

func TestMarketplaceEventHandler_DeliveryMarkerIsNotTaskKey(t *testing.T) {
	tests := []struct {
		name      string
		failFirst bool
		premark   bool
	}{
		{name: "first delivery succeeds"},
		{name: "failed first delivery is retried", failFirst: true},
		{name: "task key already known to the store", premark: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, fastPolicy())
			ctx := context.Background()
			o := e.seedOrder(t, order.FulfillmentPickup)

			key := fmt.Sprintf("order:%s:event:%s", o.ID, order.PickupPickedUp)
			if tt.premark {
				_, err := e.idem.MarkProcessed(ctx, key, time.Hour)
				require.NoError(t, err)
			}
			if tt.failFirst {
				e.market.FailNext("SendPickupEvent", marketplace.ErrMarketplaceUnavailable)
			}
			tk := newTask(t, e.acct.ID, o.ID, task.Spec{
				Kind:           task.KindMarketplaceEvent,
				EntityType:     task.EntityOrder,
				IdempotencyKey: key,
				Payload:        task.MarketplaceEventPayload{Event: string(order.PickupPickedUp)},
			})
			created, err := e.store.Tasks().Enqueue(ctx, tk)
			require.NoError(t, err)
			require.True(t, created)

			_, err = e.processor.Drain(ctx)
			require.NoError(t, err)

			want := 1
			if tt.failFirst {
				want = 2
			}
			assert.Equal(t, want, e.market.CallCount("SendPickupEvent"))
			tasks, err := e.store.Tasks().FindByEntity(ctx, task.EntityOrder, o.ID)
			require.NoError(t, err)
			require.Len(t, tasks, 1)
			assert.Equal(t, task.OutcomeSucceeded, tasks[0].Outcome)

			done, err := e.idem.IsProcessed(ctx, DoneKey(key))
			require.NoError(t, err)
			assert.True(t, done)
		})
	}
}

func TestCoreOrderPushHandler_CreateThenUpdate(t *testing.T) {
	e := newEnv(t, fastPolicy())
	ctx := context.Background()
	o := e.seedOrder(t, order.FulfillmentShipping)
	o.ApplyMarketplaceStatus(order.OrderStatus{IsPaid: true})
	require.NoError(t, e.store.Orders().Save(ctx, o))

	h := NewCoreOrderPushHandler(e.store, e.core)
	tk := newTask(t, e.acct.ID, o.ID, task.Spec{Kind: task.KindCoreOrderPush, EntityType: task.EntityOrder})
	require.NoError(t, h.Execute(ctx, tk))

	creates := e.core.Calls("CreateOrder")
	require.Len(t, creates, 1)
	sent := creates[0].Args.(core.NewOrder)
	assert.Equal(t, "m-order-1", sent.MarketplaceOrderID)
	assert.Equal(t, core.ChannelEbay, sent.Channel)
	assert.Equal(t, order.FlagPaid, sent.State&order.FlagPaid)
	require.Len(t, sent.Lines, 1)
	assert.Equal(t, "p-9", sent.Lines[0].CoreProductID)
	assert.True(t, sent.Lines[0].Quantity.Equal(decimal.NewFromInt(2)))

	got := e.reloadOrder(t, o)
	require.True(t, got.HasCoreID())
	assert.Equal(t, "core-order-1", *got.ExternalCoreID)
	require.NotNil(t, got.LineItems[0].ExternalCoreID)
	assert.Equal(t, "core-line-line-1", *got.LineItems[0].ExternalCoreID)

	require.NoError(t, h.Execute(ctx, tk))
	assert.Equal(t, 1, e.core.CallCount("CreateOrder"))
	updates := e.core.Calls("UpdateOrderStatus")
	require.Len(t, updates, 1)
	assert.Equal(t, "core-order-1", updates[0].Target)
	assert.True(t, updates[0].Args.(order.OrderStatus).IsPaid)
}

func TestCoreOrderPushHandler_RejectedIsPermanent(t *testing.T) {
	e := newEnv(t, fastPolicy())
	o := e.seedOrder(t, order.FulfillmentShipping)
	e.core.FailNext("CreateOrder", core.ErrCoreRejected)

	h := NewCoreOrderPushHandler(e.store, e.core)
	tk := newTask(t, e.acct.ID, o.ID, task.Spec{Kind: task.KindCoreOrderPush})
	err := h.Execute(context.Background(), tk)
	require.ErrorIs(t, err, core.ErrCoreRejected)
	assert.True(t, task.IsPermanent(err))
	assert.False(t, e.reloadOrder(t, o).HasCoreID())
}

func TestCoreOrderPushHandler_LostReplyCreatesOneOrder(t *testing.T) {
	tests := []struct {
		name     string
		lost     []error
		attempts int
	}{
		{name: "answer arrives", attempts: 1},
		{name: "answer lost", lost: []error{core.ErrCoreUnavailable}, attempts: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, fastPolicy())
			ctx := context.Background()
			o := e.seedOrder(t, order.FulfillmentShipping)
			e.core.LoseNextCreateOrderReplies(tt.lost...)

			h := NewCoreOrderPushHandler(e.store, e.core)
			tk := newTask(t, e.acct.ID, o.ID, task.Spec{Kind: task.KindCoreOrderPush, EntityType: task.EntityOrder})
			var err error
			for i := 0; i < tt.attempts; i++ {
				err = h.Execute(ctx, tk)
				if i < tt.attempts-1 {
					require.ErrorIs(t, err, core.ErrCoreUnavailable)
					assert.False(t, task.IsPermanent(err))
				}
			}
			require.NoError(t, err)

			assert.Equal(t, 1, e.core.OrdersCreated())
			assert.Equal(t, 1, e.core.CallCount("CreateOrder"))
			got := e.reloadOrder(t, o)
			require.True(t, got.HasCoreID())
			assert.Equal(t, "core-order-1", *got.ExternalCoreID)
		})
	}
}

func TestRefundHandler(t *testing.T) {
	e := newEnv(t, fastPolicy())
	ctx := context.Background()
	o := e.seedOrder(t, order.FulfillmentShipping)
	_, recorded, err := o.RecordReturn("ret-1", []order.ReturnedLine{
		{LineItemExternalID: "line-1", Quantity: decimal.NewFromInt(1)},
	}, decimal.RequireFromString("12.50"))
	require.NoError(t, err)
	require.True(t, recorded)
	require.NoError(t, e.store.Orders().Save(ctx, o))

	h := NewRefundHandler(e.store, e.market, e.once)

	t.Run("refund is issued once", func(t *testing.T) {
		tk := newTask(t, e.acct.ID, o.ID, task.Spec{
			Kind:    task.KindMarketplaceRefund,
			Payload: task.RefundPayload{ReturnRemoteID: "ret-1"},
		})
		require.NoError(t, h.Execute(ctx, tk))
		require.NoError(t, h.Execute(ctx, tk))

		calls := e.market.Calls("IssueRefund")
		require.Len(t, calls, 1)
		refund := calls[0].Args.(marketplace.Refund)
		assert.Equal(t, "m-order-1", refund.OrderID)
		assert.Equal(t, "ret-1", refund.ReturnID)
		assert.Equal(t, "EUR", refund.Currency)
		assert.True(t, refund.Amount.Equal(decimal.RequireFromString("12.50")))
	})

	t.Run("unknown return is permanent", func(t *testing.T) {
		tk := newTask(t, e.acct.ID, o.ID, task.Spec{
			Kind:    task.KindMarketplaceRefund,
			Payload: task.RefundPayload{ReturnRemoteID: "ret-404"},
		})
		err := h.Execute(ctx, tk)
		require.ErrorIs(t, err, shared.ErrNotFound)
		assert.True(t, task.IsPermanent(err))
	})
}

func TestOrderHandlers_MissingOrderIsPermanent(t *testing.T) {
	e := newEnv(t, fastPolicy())
	h := NewStatusPushHandler(e.store, e.market)
	tk := newTask(t, e.acct.ID, uuid.New(), task.Spec{Kind: task.KindMarketplaceStatusPush})
	err := h.Execute(context.Background(), tk)
	require.ErrorIs(t, err, shared.ErrNotFound)
	assert.True(t, task.IsPermanent(err))
}
