package publishing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/application/ports"
	"github.com/Inventorum/ebay-sub000/internal/domain/account"
	"github.com/Inventorum/ebay-sub000/internal/domain/listing"
	"github.com/Inventorum/ebay-sub000/internal/domain/marketplace"
	"github.com/Inventorum/ebay-sub000/internal/domain/task"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/cache"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/persistence/memory"
	"github.com/Inventorum/ebay-sub000/tests/testutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	store   *memory.Store
	market  *testutil.FakeMarketplace
	core    *testutil.FakeCore
	archive *recordingArchive
	svc     *Service
	acct    *account.Account
}

type recordingArchive struct {
	mu    sync.Mutex
	items []uuid.UUID
	err   error
}

func (a *recordingArchive) ArchiveSnapshot(ctx context.Context, item *listing.PublishableItem) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items = append(a.items, item.ID)
	return a.err
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   memory.NewStore(),
		market:  testutil.NewFakeMarketplace(),
		core:    testutil.NewFakeCore(),
		archive: &recordingArchive{},
	}
	guard := ports.NewLockerGuard(cache.NewInMemoryLocker(), time.Minute)
	f.svc = NewService(f.store, guard, f.market, f.core, DefaultConfig(), zap.NewNop(), WithArchive(f.archive))
	f.acct = testutil.SeedAccount(t, f.store.Accounts())
	f.core.AddProduct(testutil.NewCoreProduct("p-1", "19.99"))
	return f
}

func (f *fixture) tasks(t *testing.T, itemID uuid.UUID) []*task.Task {
	t.Helper()
	tasks, err := f.store.Tasks().FindByEntity(context.Background(), task.EntityItem, itemID)
	require.NoError(t, err)
	return tasks
}

func TestService_Validate(t *testing.T) {
	ctx := context.Background()

	t.Run("listable product passes", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.svc.Validate(ctx, f.acct.ID, "p-1"))

		p, err := f.store.Products().FindByCoreID(ctx, f.acct.ID, "p-1")
		require.NoError(t, err, "product is imported on first use")
		assert.Equal(t, "176973", p.CategoryID)
	})

	t.Run("reports every unmet precondition", func(t *testing.T) {
		f := newFixture(t)
		f.acct.Settings.BillingAddress = nil
		f.acct.Settings.ShippingServices = nil
		f.acct.Settings.PayPalEmail = ""
		require.NoError(t, f.store.Accounts().Save(ctx, f.acct))
		cheap := testutil.NewCoreProduct("p-2", "0.50")
		cheap.CategoryID = ""
		f.core.AddProduct(cheap)

		err := f.svc.Validate(ctx, f.acct.ID, "p-2")
		var verr *listing.ValidationError
		require.ErrorAs(t, err, &verr)
		for _, code := range []string{
			listing.PreconditionPriceBelowMinimum,
			listing.PreconditionMissingCategory,
			listing.PreconditionMissingShipping,
			listing.PreconditionMissingBilling,
			listing.PreconditionMissingPayPalMail,
		} {
			assert.True(t, verr.Has(code), code)
		}
	})

	t.Run("pickup only needs no shipping service", func(t *testing.T) {
		f := newFixture(t)
		f.acct.Settings.ShippingServices = nil
		f.acct.Settings.PickupEnabled = true
		f.acct.Settings.PickupOnly = true
		require.NoError(t, f.store.Accounts().Save(ctx, f.acct))

		assert.NoError(t, f.svc.Validate(ctx, f.acct.ID, "p-1"))
	})

	t.Run("unknown core product", func(t *testing.T) {
		f := newFixture(t)
		assert.Error(t, f.svc.Validate(ctx, f.acct.ID, "missing"))
	})
}

func TestService_Prepare(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	item, err := f.svc.Prepare(ctx, f.acct.ID, "p-1")
	require.NoError(t, err)
	assert.Equal(t, listing.StatusDraft, item.Status)
	assert.Equal(t, "Product p-1", item.Snapshot.Title)
	assert.True(t, decimal.RequireFromString("19.99").Equal(item.Snapshot.GrossPrice))
	assert.Equal(t, "EUR", item.Snapshot.Currency)
	assert.Equal(t, []uuid.UUID{item.ID}, f.archive.items)

	marks, err := f.store.Dirty().List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, marks, 1)
	assert.Equal(t, item.ID, marks[0].EntityID)

	_, err = f.svc.Prepare(ctx, f.acct.ID, "p-1")
	var verr *listing.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has(listing.PreconditionPublishInProgress))
}

func TestService_Prepare_ArchiveFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.archive.err = errors.New("s3 down")

	_, err := f.svc.Prepare(context.Background(), f.acct.ID, "p-1")
	assert.NoError(t, err)
}

func TestService_RequestPublish(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	item, err := f.svc.RequestPublish(ctx, f.acct.ID, "p-1")
	require.NoError(t, err)
	assert.Equal(t, listing.StatusInProgress, item.Status)

	tasks := f.tasks(t, item.ID)
	require.Len(t, tasks, 1)
	assert.Equal(t, task.KindPublish, tasks[0].Kind)
	assert.Equal(t, f.acct.ID, tasks[0].AccountID, "execution context travels with the task")
	assert.Equal(t, 0, f.market.CallCount("PublishListing"), "the remote call happens in the task")

	_, err = f.svc.RequestPublish(ctx, f.acct.ID, "p-1")
	var verr *listing.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has(listing.PreconditionPublishInProgress))
}

func TestService_Publish(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		f := newFixture(t)
		item, err := f.svc.Prepare(ctx, f.acct.ID, "p-1")
		require.NoError(t, err)

		require.NoError(t, f.svc.Publish(ctx, item.ID))

		got, err := f.store.Items().FindByID(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, listing.StatusPublished, got.Status)
		require.NotNil(t, got.ExternalMarketplaceID)
		assert.NotNil(t, got.PublishedAt)
		assert.NotNil(t, got.EndsAt)
		assert.Equal(t, 1, f.market.CallCount("PublishListing"))

		// publishing a published item again is a no-op
		require.NoError(t, f.svc.Publish(ctx, item.ID))
		assert.Equal(t, 1, f.market.CallCount("PublishListing"))
	})

	t.Run("business error fails the item", func(t *testing.T) {
		f := newFixture(t)
		item, err := f.svc.Prepare(ctx, f.acct.ID, "p-1")
		require.NoError(t, err)
		f.market.FailNext("PublishListing", &marketplace.BusinessError{
			Classification: "RequestError",
			Code:           "240",
			Messages:       []marketplace.Message{{Code: "21919303", Severity: "Error", Message: "Item specifics missing"}},
		})

		err = f.svc.Publish(ctx, item.ID)
		require.Error(t, err)
		assert.True(t, task.IsPermanent(err))

		got, _ := f.store.Items().FindByID(ctx, item.ID)
		assert.Equal(t, listing.StatusFailed, got.Status)
		require.NotNil(t, got.FailureDetails)
		assert.Equal(t, listing.ReasonMarketplaceFail, got.FailureDetails.Reason)
		assert.Equal(t, "RequestError", got.FailureDetails.Classification)
		require.Len(t, got.FailureDetails.Messages, 1)
		assert.Equal(t, "Item specifics missing", got.FailureDetails.Messages[0].Message)
	})

	t.Run("transport error leaves item in progress", func(t *testing.T) {
		f := newFixture(t)
		item, err := f.svc.Prepare(ctx, f.acct.ID, "p-1")
		require.NoError(t, err)
		f.market.FailNext("PublishListing", marketplace.ErrMarketplaceUnavailable)

		err = f.svc.Publish(ctx, item.ID)
		require.ErrorIs(t, err, marketplace.ErrMarketplaceUnavailable)
		assert.False(t, task.IsPermanent(err))

		got, _ := f.store.Items().FindByID(ctx, item.ID)
		assert.Equal(t, listing.StatusInProgress, got.Status)

		require.NoError(t, f.svc.Publish(ctx, item.ID), "retry continues from in progress")
		got, _ = f.store.Items().FindByID(ctx, item.ID)
		assert.Equal(t, listing.StatusPublished, got.Status)
	})

	t.Run("failed item is not retried", func(t *testing.T) {
		f := newFixture(t)
		item, err := f.svc.Prepare(ctx, f.acct.ID, "p-1")
		require.NoError(t, err)
		require.NoError(t, f.svc.Fail(ctx, item.ID, listing.FailureDetails{Reason: listing.ReasonPublishTimeout}))

		err = f.svc.Publish(ctx, item.ID)
		assert.True(t, task.IsPermanent(err))
		assert.ErrorIs(t, err, listing.ErrInvalidTransition)
		assert.Equal(t, 0, f.market.CallCount("PublishListing"))
	})
}

func TestService_Publish_Exclusive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	item, err := f.svc.Prepare(ctx, f.acct.ID, "p-1")
	require.NoError(t, err)

	entered, release := f.market.BlockPublish()
	winner := make(chan error, 1)
	go func() { winner <- f.svc.Publish(ctx, item.ID) }()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first publish never reached the marketplace")
	}

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.svc.Publish(ctx, item.ID)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.ErrorIs(t, err, listing.ErrConcurrentPublishRejected)
	}

	release()
	require.NoError(t, <-winner)
	assert.Equal(t, 1, f.market.CallCount("PublishListing"))
}

func TestService_RequestPublish_Concurrent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	// import up front so every attempt contends on the same product
	require.NoError(t, f.svc.Validate(ctx, f.acct.ID, "p-1"))

	const attempts = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	var items []*listing.PublishableItem
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			item, err := f.svc.RequestPublish(ctx, f.acct.ID, "p-1")
			if err != nil {
				var verr *listing.ValidationError
				if !errors.Is(err, listing.ErrConcurrentPublishRejected) && !errors.As(err, &verr) {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			mu.Lock()
			items = append(items, item)
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()

	require.Len(t, items, 1)
	assert.Len(t, f.tasks(t, items[0].ID), 1)
}

func TestService_Unpublish(t *testing.T) {
	ctx := context.Background()

	publish := func(t *testing.T, f *fixture) *listing.PublishableItem {
		item, err := f.svc.Prepare(ctx, f.acct.ID, "p-1")
		require.NoError(t, err)
		require.NoError(t, f.svc.Publish(ctx, item.ID))
		return item
	}

	t.Run("ends the listing", func(t *testing.T) {
		f := newFixture(t)
		item := publish(t, f)

		require.NoError(t, f.svc.Unpublish(ctx, item.ID))
		got, _ := f.store.Items().FindByID(ctx, item.ID)
		assert.Equal(t, listing.StatusUnpublished, got.Status)
		assert.NotNil(t, got.UnpublishedAt)

		require.NoError(t, f.svc.Unpublish(ctx, item.ID))
		assert.Equal(t, 1, f.market.CallCount("EndListing"))
	})

	t.Run("already ended counts as success", func(t *testing.T) {
		f := newFixture(t)
		item := publish(t, f)
		f.market.FailNext("EndListing", marketplace.ErrListingAlreadyEnded)

		require.NoError(t, f.svc.Unpublish(ctx, item.ID))
		got, _ := f.store.Items().FindByID(ctx, item.ID)
		assert.Equal(t, listing.StatusUnpublished, got.Status)
	})

	t.Run("transport error keeps it published", func(t *testing.T) {
		f := newFixture(t)
		item := publish(t, f)
		f.market.FailNext("EndListing", marketplace.ErrMarketplaceUnavailable)

		err := f.svc.Unpublish(ctx, item.ID)
		assert.ErrorIs(t, err, marketplace.ErrMarketplaceUnavailable)
		got, _ := f.store.Items().FindByID(ctx, item.ID)
		assert.Equal(t, listing.StatusPublished, got.Status)
	})

	t.Run("draft cannot be unpublished", func(t *testing.T) {
		f := newFixture(t)
		item, err := f.svc.Prepare(ctx, f.acct.ID, "p-1")
		require.NoError(t, err)

		err = f.svc.Unpublish(ctx, item.ID)
		assert.ErrorIs(t, err, listing.ErrNotPublished)
		assert.True(t, task.IsPermanent(err))
	})
}

func TestService_RequestUnpublish(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	item, err := f.svc.Prepare(ctx, f.acct.ID, "p-1")
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.RequestUnpublish(ctx, f.acct.ID, item.ID), listing.ErrNotPublished)

	require.NoError(t, f.svc.Publish(ctx, item.ID))
	assert.Error(t, f.svc.RequestUnpublish(ctx, uuid.New(), item.ID), "other accounts cannot see the item")

	require.NoError(t, f.svc.RequestUnpublish(ctx, f.acct.ID, item.ID))
	require.NoError(t, f.svc.RequestUnpublish(ctx, f.acct.ID, item.ID))

	var unpublish int
	for _, tk := range f.tasks(t, item.ID) {
		if tk.Kind == task.KindUnpublish {
			unpublish++
		}
	}
	assert.Equal(t, 1, unpublish, "duplicate requests collapse on the idempotency key")
}

func TestService_Fail_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	item, err := f.svc.Prepare(ctx, f.acct.ID, "p-1")
	require.NoError(t, err)

	details := listing.FailureDetails{Reason: listing.ReasonRetryExhausted}
	require.NoError(t, f.svc.Fail(ctx, item.ID, details))
	require.NoError(t, f.svc.Fail(ctx, item.ID, listing.FailureDetails{Reason: listing.ReasonPublishTimeout}))

	got, _ := f.store.Items().FindByID(ctx, item.ID)
	assert.Equal(t, listing.StatusFailed, got.Status)
	assert.Equal(t, listing.ReasonRetryExhausted, got.FailureDetails.Reason, "first failure wins")
	assert.False(t, got.FailureDetails.OccurredAt.IsZero())
}

func TestService_Revise(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	item, err := f.svc.Prepare(ctx, f.acct.ID, "p-1")
	require.NoError(t, err)
	require.NoError(t, f.svc.Publish(ctx, item.ID))

	product, err := f.store.Products().FindByCoreID(ctx, f.acct.ID, "p-1")
	require.NoError(t, err)
	product.ApplyChanges("Renamed", decimal.RequireFromString("24.00"), decimal.NewFromInt(2))
	require.NoError(t, f.store.Products().Save(ctx, product))

	require.NoError(t, f.svc.Revise(ctx, item.ID))
	calls := f.market.Calls("ReviseListing")
	require.Len(t, calls, 1)
	sent := calls[0].Args.(listing.ListingSnapshot)
	assert.Equal(t, "Renamed", sent.Title)

	got, _ := f.store.Items().FindByID(ctx, item.ID)
	assert.Equal(t, "Renamed", got.Snapshot.Title)
}
