package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualClock is advanced explicitly by tests.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClockedStore(t *testing.T) (*InMemoryIdempotencyStore, *manualClock) {
	t.Helper()
	clock := &manualClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := newInMemoryIdempotencyStore(time.Hour, clock.Now)
	t.Cleanup(func() { _ = store.Close() })
	return store, clock
}

func TestInMemoryIdempotencyStore_MarkProcessed(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		prepare func(*InMemoryIdempotencyStore, *manualClock)
		want    bool
	}{
		{
			name:    "first mark wins",
			prepare: func(*InMemoryIdempotencyStore, *manualClock) {},
			want:    true,
		},
		{
			name: "second mark within ttl loses",
			prepare: func(s *InMemoryIdempotencyStore, c *manualClock) {
				_, _ = s.MarkProcessed(ctx, "publish:item-1", time.Minute)
				c.Advance(59 * time.Second)
			},
			want: false,
		},
		{
			name: "mark after expiry wins again",
			prepare: func(s *InMemoryIdempotencyStore, c *manualClock) {
				_, _ = s.MarkProcessed(ctx, "publish:item-1", time.Minute)
				c.Advance(time.Minute)
			},
			want: true,
		},
		{
			name: "forgotten key can be marked again",
			prepare: func(s *InMemoryIdempotencyStore, _ *manualClock) {
				_, _ = s.MarkProcessed(ctx, "publish:item-1", time.Hour)
				_ = s.Forget(ctx, "publish:item-1")
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, clock := newClockedStore(t)
			tt.prepare(store, clock)

			got, err := store.MarkProcessed(ctx, "publish:item-1", time.Minute)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInMemoryIdempotencyStore_IsProcessed(t *testing.T) {
	ctx := context.Background()
	store, clock := newClockedStore(t)

	seen, err := store.IsProcessed(ctx, "unpublish:item-7")
	require.NoError(t, err)
	assert.False(t, seen)

	_, err = store.MarkProcessed(ctx, "unpublish:item-7", 10*time.Second)
	require.NoError(t, err)

	seen, _ = store.IsProcessed(ctx, "unpublish:item-7")
	assert.True(t, seen)

	clock.Advance(10 * time.Second)
	seen, _ = store.IsProcessed(ctx, "unpublish:item-7")
	assert.False(t, seen)
}

func TestInMemoryIdempotencyStore_Sweep(t *testing.T) {
	ctx := context.Background()
	store, clock := newClockedStore(t)

	_, _ = store.MarkProcessed(ctx, "short", time.Second)
	_, _ = store.MarkProcessed(ctx, "long", time.Hour)
	require.Equal(t, 2, store.Len())

	clock.Advance(time.Minute)
	store.sweep()

	assert.Equal(t, 1, store.Len())
	seen, _ := store.IsProcessed(ctx, "long")
	assert.True(t, seen)
}

func TestInMemoryIdempotencyStore_SweeperRuns(t *testing.T) {
	ctx := context.Background()
	store := newInMemoryIdempotencyStore(5*time.Millisecond, time.Now)
	defer store.Close()

	_, _ = store.MarkProcessed(ctx, "gone-soon", time.Millisecond)

	require.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestInMemoryIdempotencyStore_ConcurrentMarksHaveOneWinner(t *testing.T) {
	ctx := context.Background()
	store, _ := newClockedStore(t)

	const workers = 50
	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := store.MarkProcessed(ctx, "revise:item-3", time.Hour); ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestInMemoryIdempotencyStore_DistinctKeys(t *testing.T) {
	ctx := context.Background()
	store, _ := newClockedStore(t)

	for i := 0; i < 10; i++ {
		ok, err := store.MarkProcessed(ctx, fmt.Sprintf("publish:item-%d", i), time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 10, store.Len())
}

func TestInMemoryIdempotencyStore_CloseTwice(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}
