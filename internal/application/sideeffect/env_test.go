package sideeffect

import (
	"context"
	"testing"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/application/ports"
	"github.com/Inventorum/ebay-sub000/internal/application/publishing"
	"github.com/Inventorum/ebay-sub000/internal/domain/account"
	"github.com/Inventorum/ebay-sub000/internal/domain/order"
	"github.com/Inventorum/ebay-sub000/internal/domain/shared"
	"github.com/Inventorum/ebay-sub000/internal/domain/task"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/cache"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/persistence/memory"
	"github.com/Inventorum/ebay-sub000/tests/testutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fastPolicy retries without delay so a whole chain runs in one Drain
func fastPolicy() task.Policy {
	return task.Policy{
		Initialize: task.StagePolicy{MaxAttempts: 2},
		Execute:    task.StagePolicy{MaxAttempts: 3},
		Finalize:   task.StagePolicy{MaxAttempts: 3},
	}
}

type env struct {
	store     *memory.Store
	market    *testutil.FakeMarketplace
	core      *testutil.FakeCore
	publisher *publishing.Service
	pusher    *StatePusher
	once      *Once
	idem      shared.IdempotencyStore
	publish   *PublishHandler
	registry  *Registry
	processor *Processor
	acct      *account.Account
}

func newEnv(t *testing.T, policy task.Policy) *env {
	t.Helper()
	log := zap.NewNop()
	e := &env{
		store:  memory.NewStore(),
		market: testutil.NewFakeMarketplace(),
		core:   testutil.NewFakeCore(),
	}
	idem := cache.NewInMemoryIdempotencyStore()
	t.Cleanup(func() { _ = idem.Close() })

	guard := ports.NewLockerGuard(cache.NewInMemoryLocker(), time.Minute)
	e.publisher = publishing.NewService(e.store, guard, e.market, e.core, publishing.DefaultConfig(), log)
	e.pusher = NewStatePusher(e.store, e.core)
	e.idem = idem
	e.once = NewOnce(idem, shared.DefaultIdempotencyConfig(), log)
	e.publish = NewPublishHandler(e.store, e.publisher, e.pusher, log)
	e.registry = NewRegistry(
		e.publish,
		NewUnpublishHandler(e.store, e.publisher, e.pusher, log),
		NewReviseHandler(e.publisher),
		NewStatusPushHandler(e.store, e.market),
		NewMarketplaceEventHandler(e.store, e.market, e.once),
		NewCoreOrderPushHandler(e.store, e.core),
		NewRefundHandler(e.store, e.market, e.once),
	)
	cfg := DefaultProcessorConfig()
	cfg.Policy = policy
	e.processor = NewProcessor(e.store.Tasks(), e.registry, cfg, nil, log)

	e.acct = testutil.SeedAccount(t, e.store.Accounts())
	e.core.AddProduct(testutil.NewCoreProduct("p-1", "19.99"))
	return e
}

func (e *env) seedOrder(t *testing.T, method order.FulfillmentMethod) *order.Order {
	t.Helper()
	ctx := context.Background()
	_, item := testutil.SeedPublishedItem(t, e.store.Products(), e.store.Items(), e.acct, "p-9", "110000000009")
	line := order.NewLineItem("line-1", item, decimal.NewFromInt(2), decimal.RequireFromString("12.50"), decimal.Zero)
	code := ""
	if method == order.FulfillmentPickup {
		code = "PICK-1"
	}
	o, err := order.NewOrder(e.acct.ID, "m-order-1", method, code, []order.LineItem{line})
	require.NoError(t, err)
	require.NoError(t, e.store.Orders().Create(ctx, o))
	return o
}

func (e *env) reloadOrder(t *testing.T, o *order.Order) *order.Order {
	t.Helper()
	got, err := e.store.Orders().FindByID(context.Background(), o.ID)
	require.NoError(t, err)
	return got
}

func newTask(t *testing.T, accountID, entity uuid.UUID, spec task.Spec) *task.Task {
	t.Helper()
	spec.EntityID = entity
	tk, err := task.New(shared.ExecutionContext{AccountID: accountID}, spec)
	require.NoError(t, err)
	return tk
}
