package ports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/domain/listing"
	"github.com/google/uuid"
)

// LockerGuard is a PublishGuard built on a Locker
type LockerGuard struct {
	locker Locker
	ttl    time.Duration
}

// NewLockerGuard creates a guard whose locks expire after ttl
func NewLockerGuard(locker Locker, ttl time.Duration) *LockerGuard {
	return &LockerGuard{locker: locker, ttl: ttl}
}

// WithExclusivePublishLock implements PublishGuard
func (g *LockerGuard) WithExclusivePublishLock(ctx context.Context, productID uuid.UUID, fn func(ctx context.Context) error) error {
	release, err := g.locker.TryLock(ctx, PublishLockKey(productID), g.ttl)
	if errors.Is(err, ErrLockBusy) {
		return listing.ErrConcurrentPublishRejected
	}
	if err != nil {
		return fmt.Errorf("publish guard: %w", err)
	}
	defer release()
	return fn(ctx)
}

// PublishLockKey is the lock key of a product's publish guard
func PublishLockKey(productID uuid.UUID) string {
	return "publish:" + productID.String()
}

// RunLockKey is the lock key serializing runs of one kind for an account
func RunLockKey(accountID uuid.UUID, kind string) string {
	return "run:" + accountID.String() + ":" + kind
}

var _ PublishGuard = (*LockerGuard)(nil)
