package cache

import (
	"context"
	"fmt"

	"github.com/Inventorum/ebay-sub000/internal/application/ports"
	"github.com/Inventorum/ebay-sub000/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Factory creates the Redis-backed coordination primitives, falling back to
// in-process ones when Redis is not reachable and fallback is allowed.
type Factory struct {
	redisConfig           RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool

	client   *redis.Client
	clientOK bool
	tried    bool
}

// FactoryOption is a functional option for configuring the factory
type FactoryOption func(*Factory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to in-memory
// implementations when Redis is unavailable. Default is true.
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *Factory) {
		f.allowInMemoryFallback = allow
	}
}

// NewFactory creates a new factory
func NewFactory(cfg RedisConfig, opts ...FactoryOption) *Factory {
	f := &Factory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Factory) redisClient() (*redis.Client, error) {
	if f.redisConfig.Host == "" {
		return nil, fmt.Errorf("redis not configured")
	}
	if !f.tried {
		f.tried = true
		client, err := NewRedisClient(f.redisConfig)
		if err != nil {
			return nil, err
		}
		f.client = client
		f.clientOK = true
	}
	if !f.clientOK {
		return nil, fmt.Errorf("redis unavailable at %s:%d", f.redisConfig.Host, f.redisConfig.Port)
	}
	return f.client, nil
}

// CreateIdempotencyStore returns the Redis store or the in-memory fallback
func (f *Factory) CreateIdempotencyStore() (shared.IdempotencyStore, error) {
	client, err := f.redisClient()
	if err == nil {
		f.logger.Info("using Redis idempotency store")
		return NewRedisIdempotencyStoreWithClient(client, ""), nil
	}
	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for idempotency but unavailable: %w", err)
	}
	f.logger.Warn("Redis unavailable, falling back to in-memory idempotency store. "+
		"Side effects may repeat when several workers run.",
		zap.Error(err),
	)
	return NewInMemoryIdempotencyStore(), nil
}

// CreateLocker returns the Redis locker or the in-memory fallback
func (f *Factory) CreateLocker() (ports.Locker, error) {
	client, err := f.redisClient()
	if err == nil {
		f.logger.Info("using Redis locker")
		return NewRedisLocker(client, ""), nil
	}
	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for locking but unavailable: %w", err)
	}
	f.logger.Warn("Redis unavailable, falling back to in-memory locker. "+
		"Runs are only serialized within this process.",
		zap.Error(err),
	)
	return NewInMemoryLocker(), nil
}

// Ping checks the shared Redis client. It is a no-op when the factory fell
// back to in-memory primitives.
func (f *Factory) Ping(ctx context.Context) error {
	if f.client == nil {
		return nil
	}
	return f.client.Ping(ctx).Err()
}

// Close closes the shared Redis client, if any
func (f *Factory) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}
