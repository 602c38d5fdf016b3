package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/application/ports"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it still holds our token, so an
// expired lock taken over by someone else is left alone.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker implements ports.Locker with SET NX PX
type RedisLocker struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisLocker creates a locker on an existing client
func NewRedisLocker(client redis.UniversalClient, keyPrefix string) *RedisLocker {
	if keyPrefix == "" {
		keyPrefix = "ebaysync:lock:"
	}
	return &RedisLocker{client: client, keyPrefix: keyPrefix}
}

// TryLock implements ports.Locker
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	fullKey := l.keyPrefix + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ports.ErrLockBusy
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// the caller's ctx may already be canceled
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = releaseScript.Run(releaseCtx, l.client, []string{fullKey}, token).Err()
		})
	}, nil
}

var _ ports.Locker = (*RedisLocker)(nil)
