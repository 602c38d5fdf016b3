package cache

import (
	"context"
	"sync"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/application/ports"
)

// InMemoryLocker implements ports.Locker within one process
type InMemoryLocker struct {
	mu   sync.Mutex
	held map[string]lockEntry
	now  func() time.Time
	seq  uint64
}

type lockEntry struct {
	id        uint64
	expiresAt time.Time
}

// NewInMemoryLocker creates an in-memory locker
func NewInMemoryLocker() *InMemoryLocker {
	return &InMemoryLocker{held: make(map[string]lockEntry), now: time.Now}
}

// TryLock implements ports.Locker
func (l *InMemoryLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, ok := l.held[key]; ok && now.Before(e.expiresAt) {
		return nil, ports.ErrLockBusy
	}
	l.seq++
	id := l.seq
	l.held[key] = lockEntry{id: id, expiresAt: now.Add(ttl)}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if e, ok := l.held[key]; ok && e.id == id {
				delete(l.held, key)
			}
		})
	}, nil
}

// Held returns true while key is locked
func (l *InMemoryLocker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.held[key]
	return ok && l.now().Before(e.expiresAt)
}

var _ ports.Locker = (*InMemoryLocker)(nil)
