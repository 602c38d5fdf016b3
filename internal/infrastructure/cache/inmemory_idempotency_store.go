package cache

import (
	"context"
	"sync"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/domain/shared"
)

const defaultSweepInterval = 5 * time.Minute

// InMemoryIdempotencyStore keeps side-effect keys in process memory. Keys
// survive only as long as the process, so it serves single-instance
// deployments and tests; shared deployments use RedisIdempotencyStore.
type InMemoryIdempotencyStore struct {
	mu      sync.Mutex
	expiry  map[string]time.Time
	now     func() time.Time
	done    chan struct{}
	stopped sync.WaitGroup
	once    sync.Once
}

// NewInMemoryIdempotencyStore returns a store that sweeps expired keys every
// five minutes until Close.
func NewInMemoryIdempotencyStore() *InMemoryIdempotencyStore {
	return newInMemoryIdempotencyStore(defaultSweepInterval, time.Now)
}

func newInMemoryIdempotencyStore(sweep time.Duration, now func() time.Time) *InMemoryIdempotencyStore {
	s := &InMemoryIdempotencyStore{
		expiry: make(map[string]time.Time),
		now:    now,
		done:   make(chan struct{}),
	}
	s.stopped.Add(1)
	go s.sweepEvery(sweep)
	return s
}

// MarkProcessed records key for ttl. It reports false when the key is
// already recorded and not yet expired.
func (s *InMemoryIdempotencyStore) MarkProcessed(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if until, ok := s.expiry[key]; ok && now.Before(until) {
		return false, nil
	}
	s.expiry[key] = now.Add(ttl)
	return true, nil
}

func (s *InMemoryIdempotencyStore) IsProcessed(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	until, ok := s.expiry[key]
	return ok && s.now().Before(until), nil
}

func (s *InMemoryIdempotencyStore) Forget(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.expiry, key)
	s.mu.Unlock()
	return nil
}

// Close stops the sweeper. Further calls are no-ops.
func (s *InMemoryIdempotencyStore) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.stopped.Wait()
	})
	return nil
}

// Len reports how many keys are held, expired ones included until swept.
func (s *InMemoryIdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expiry)
}

func (s *InMemoryIdempotencyStore) sweepEvery(interval time.Duration) {
	defer s.stopped.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *InMemoryIdempotencyStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, until := range s.expiry {
		if !now.Before(until) {
			delete(s.expiry, key)
		}
	}
}

var _ shared.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)
