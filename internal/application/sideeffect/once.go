package sideeffect

import (
	"context"
	"sync/atomic"

	"github.com/Inventorum/ebay-sub000/internal/domain/shared"
	"go.uber.org/zap"
)

// OnceStats is a snapshot of Once counters
type OnceStats struct {
	Performed int64 `json:"performed"`
	Duplicate int64 `json:"duplicate"`
	Failed    int64 `json:"failed"`
}

// Once runs remote side effects at most once per key. The key is claimed in
// the idempotency store before the call and released again if the call
// fails, so a later retry can try again.
type Once struct {
	store  shared.IdempotencyStore
	config shared.IdempotencyConfig
	logger *zap.Logger

	performed atomic.Int64
	duplicate atomic.Int64
	failed    atomic.Int64
}

// NewOnce creates a Once on store
func NewOnce(store shared.IdempotencyStore, config shared.IdempotencyConfig, logger *zap.Logger) *Once {
	if config.TTL <= 0 {
		config.TTL = shared.DefaultIdempotencyConfig().TTL
	}
	return &Once{store: store, config: config, logger: logger}
}

// DoneKey is the marker Once keeps for the side effect of a task enqueued
// under key. It never equals the task's own idempotency key.
func DoneKey(key string) string {
	return key + ":done"
}

// Do calls fn unless key was already performed. It reports whether fn ran.
func (o *Once) Do(ctx context.Context, key string, fn func(ctx context.Context) error) (bool, error) {
	if o == nil || o.store == nil || !o.config.Enabled || key == "" {
		return true, fn(ctx)
	}

	isNew, err := o.store.MarkProcessed(ctx, key, o.config.TTL)
	if err != nil {
		// a repeated side effect is better than a lost one
		o.logger.Warn("Idempotency store unavailable, performing side effect anyway",
			zap.String("key", key),
			zap.Error(err),
		)
	} else if !isNew {
		o.duplicate.Add(1)
		o.logger.Debug("Side effect already performed, skipping", zap.String("key", key))
		return false, nil
	}

	if err := fn(ctx); err != nil {
		o.failed.Add(1)
		if ferr := o.store.Forget(ctx, key); ferr != nil {
			o.logger.Warn("Failed to release idempotency key", zap.String("key", key), zap.Error(ferr))
		}
		return true, err
	}
	o.performed.Add(1)
	return true, nil
}

// Stats returns the counters
func (o *Once) Stats() OnceStats {
	return OnceStats{
		Performed: o.performed.Load(),
		Duplicate: o.duplicate.Load(),
		Failed:    o.failed.Load(),
	}
}
