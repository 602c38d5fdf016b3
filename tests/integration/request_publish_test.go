package integration

import (
	"context"
	"testing"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/application/publishing"
	"github.com/Inventorum/ebay-sub000/internal/domain/listing"
	"github.com/Inventorum/ebay-sub000/internal/domain/task"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/persistence"
	"github.com/Inventorum/ebay-sub000/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The guard transaction holds the product row while RequestPublish inserts
// an item referencing it from another transaction.
func TestRequestPublish_UnderRowLockGuard(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := NewTestDB(t)
	store := persistence.NewGormStore(testDB.DB)
	guard := persistence.NewRowLockGuard(testDB.DB)
	acct := testutil.SeedAccount(t, store.Accounts())

	coreClient := testutil.NewFakeCore()
	coreClient.AddProduct(testutil.NewCoreProduct("core-lamp", "39.90"))
	svc := publishing.NewService(store, guard, testutil.NewFakeMarketplace(), coreClient, publishing.DefaultConfig(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	item, err := svc.RequestPublish(ctx, acct.ID, "core-lamp")
	require.NoError(t, err, "RequestPublish must not block on its own row lock")
	assert.Equal(t, listing.StatusInProgress, item.Status)

	stored, err := store.Items().FindByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, listing.StatusInProgress, stored.Status)

	tasks, err := store.Tasks().FindByEntity(ctx, task.EntityItem, item.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, task.KindPublish, tasks[0].Kind)

	t.Run("second request is refused while the item is in progress", func(t *testing.T) {
		_, err := svc.RequestPublish(ctx, acct.ID, "core-lamp")
		var verr *listing.ValidationError
		assert.ErrorAs(t, err, &verr)
	})
}
