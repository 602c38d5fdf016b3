// Package ports declares what the application services need from
// infrastructure: transactional repositories, locks and guards.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/domain/account"
	"github.com/Inventorum/ebay-sub000/internal/domain/delta"
	"github.com/Inventorum/ebay-sub000/internal/domain/listing"
	"github.com/Inventorum/ebay-sub000/internal/domain/order"
	"github.com/Inventorum/ebay-sub000/internal/domain/task"
	"github.com/google/uuid"
)

// Repositories gives access to every repository. Inside a TransactionScope
// all of them share one database transaction.
type Repositories interface {
	Accounts() account.Repository
	Cursors() delta.CursorRepository
	Orders() order.Repository
	Products() listing.ProductRepository
	Items() listing.ItemRepository
	Dirty() listing.DirtyRepository
	Tasks() task.Repository
}

// TransactionScope runs fn inside a database transaction. If fn returns an
// error the transaction is rolled back, otherwise it is committed.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos Repositories) error) error
}

// Store is the persistence entry point: non-transactional repositories plus
// a way to open a transaction.
type Store interface {
	Repositories
	TransactionScope
}

// ErrLockBusy is returned by a Locker when another holder owns the key
var ErrLockBusy = errors.New("lock: busy")

// Locker hands out short-lived exclusive locks keyed by string
type Locker interface {
	// TryLock acquires key for at most ttl or fails fast with ErrLockBusy.
	// The returned release func is safe to call more than once.
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// PublishGuard lets exactly one caller at a time run fn for a product.
// Losers get listing.ErrConcurrentPublishRejected without waiting.
type PublishGuard interface {
	WithExclusivePublishLock(ctx context.Context, productID uuid.UUID, fn func(ctx context.Context) error) error
}

// SnapshotArchive keeps a copy of every prepared listing snapshot
type SnapshotArchive interface {
	ArchiveSnapshot(ctx context.Context, item *listing.PublishableItem) error
}
