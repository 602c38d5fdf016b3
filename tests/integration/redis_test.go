package integration

import (
	"context"
	"testing"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/application/ports"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newTestRedis starts a throwaway Redis and returns its connection config
func newTestRedis(t *testing.T) cache.RedisConfig {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "Failed to start Redis container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return cache.RedisConfig{Host: host, Port: port.Int()}
}

func TestRedisLocker(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	factory := cache.NewFactory(newTestRedis(t), cache.WithInMemoryFallback(false))
	t.Cleanup(func() { _ = factory.Close() })
	locker, err := factory.CreateLocker()
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("second holder is rejected", func(t *testing.T) {
		release, err := locker.TryLock(ctx, "run:a:orders_from_core", time.Minute)
		require.NoError(t, err)

		_, err = locker.TryLock(ctx, "run:a:orders_from_core", time.Minute)
		assert.ErrorIs(t, err, ports.ErrLockBusy)

		release()
		release()
		again, err := locker.TryLock(ctx, "run:a:orders_from_core", time.Minute)
		require.NoError(t, err)
		again()
	})

	t.Run("expired lock can be taken over", func(t *testing.T) {
		stale, err := locker.TryLock(ctx, "publish:p", 100*time.Millisecond)
		require.NoError(t, err)
		time.Sleep(250 * time.Millisecond)

		fresh, err := locker.TryLock(ctx, "publish:p", time.Minute)
		require.NoError(t, err)

		// releasing the stale handle must not drop the new holder's lock
		stale()
		_, err = locker.TryLock(ctx, "publish:p", time.Minute)
		assert.ErrorIs(t, err, ports.ErrLockBusy)
		fresh()
	})
}

func TestRedisIdempotencyStore(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	factory := cache.NewFactory(newTestRedis(t), cache.WithInMemoryFallback(false))
	t.Cleanup(func() { _ = factory.Close() })
	store, err := factory.CreateIdempotencyStore()
	require.NoError(t, err)
	ctx := context.Background()

	first, err := store.MarkProcessed(ctx, "order:o-1:event:PICKED_UP", time.Hour)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := store.MarkProcessed(ctx, "order:o-1:event:PICKED_UP", time.Hour)
	require.NoError(t, err)
	assert.False(t, second)

	require.NoError(t, store.Forget(ctx, "order:o-1:event:PICKED_UP"))
	processed, err := store.IsProcessed(ctx, "order:o-1:event:PICKED_UP")
	require.NoError(t, err)
	assert.False(t, processed)
}
