// Package memory is an in-process implementation of ports.Store used by
// tests and the single-node dev mode. Transactions are serialized; a failed
// transaction restores the state it started from.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/application/ports"
	"github.com/Inventorum/ebay-sub000/internal/domain/account"
	"github.com/Inventorum/ebay-sub000/internal/domain/delta"
	"github.com/Inventorum/ebay-sub000/internal/domain/listing"
	"github.com/Inventorum/ebay-sub000/internal/domain/order"
	"github.com/Inventorum/ebay-sub000/internal/domain/task"
	"github.com/google/uuid"
)

type cursorKey struct {
	accountID uuid.UUID
	kind      delta.SyncKind
}

type dirtyKey struct {
	entityType string
	entityID   uuid.UUID
}

type state struct {
	accounts map[uuid.UUID]account.Account
	cursors  map[cursorKey]delta.SyncCursor
	orders   map[uuid.UUID]order.Order
	products map[uuid.UUID]listing.CatalogProduct
	items    map[uuid.UUID]listing.PublishableItem
	dirty    map[dirtyKey]listing.DirtyMark
	tasks    map[uuid.UUID]task.Task
	taskKeys map[string]uuid.UUID
}

func newState() *state {
	return &state{
		accounts: make(map[uuid.UUID]account.Account),
		cursors:  make(map[cursorKey]delta.SyncCursor),
		orders:   make(map[uuid.UUID]order.Order),
		products: make(map[uuid.UUID]listing.CatalogProduct),
		items:    make(map[uuid.UUID]listing.PublishableItem),
		dirty:    make(map[dirtyKey]listing.DirtyMark),
		tasks:    make(map[uuid.UUID]task.Task),
		taskKeys: make(map[string]uuid.UUID),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.cursors {
		c.cursors[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = cloneOrder(v)
	}
	for k, v := range s.products {
		c.products[k] = cloneProduct(v)
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.dirty {
		c.dirty[k] = v
	}
	for k, v := range s.tasks {
		c.tasks[k] = v
	}
	for k, v := range s.taskKeys {
		c.taskKeys[k] = v
	}
	return c
}

// Store is an in-memory ports.Store
type Store struct {
	// txMu serializes transactions and standalone operations
	txMu sync.Mutex
	data *state
	now  func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{data: newState(), now: time.Now}
}

// view is a Repositories bound to the store. Inside a transaction the
// lock is already held by Execute.
type view struct {
	s    *Store
	inTx bool
}

func (v view) lock() func() {
	if v.inTx {
		return func() {}
	}
	v.s.txMu.Lock()
	return v.s.txMu.Unlock
}

func (v view) Accounts() account.Repository        { return accountRepo{v} }
func (v view) Cursors() delta.CursorRepository     { return cursorRepo{v} }
func (v view) Orders() order.Repository            { return orderRepo{v} }
func (v view) Products() listing.ProductRepository { return productRepo{v} }
func (v view) Items() listing.ItemRepository       { return itemRepo{v} }
func (v view) Dirty() listing.DirtyRepository      { return dirtyRepo{v} }
func (v view) Tasks() task.Repository              { return taskRepo{v} }

func (s *Store) Accounts() account.Repository        { return view{s: s}.Accounts() }
func (s *Store) Cursors() delta.CursorRepository     { return view{s: s}.Cursors() }
func (s *Store) Orders() order.Repository            { return view{s: s}.Orders() }
func (s *Store) Products() listing.ProductRepository { return view{s: s}.Products() }
func (s *Store) Items() listing.ItemRepository       { return view{s: s}.Items() }
func (s *Store) Dirty() listing.DirtyRepository      { return view{s: s}.Dirty() }
func (s *Store) Tasks() task.Repository              { return view{s: s}.Tasks() }

// Execute runs fn in a transaction. Repositories obtained from the store
// itself must not be used inside fn.
func (s *Store) Execute(ctx context.Context, fn func(repos ports.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	before := s.data.clone()
	if err := fn(view{s: s, inTx: true}); err != nil {
		s.data = before
		return err
	}
	return nil
}

// CountTasksByStatus reports the task backlog for metrics collection
func (s *Store) CountTasksByStatus(ctx context.Context) (map[string]int64, error) {
	counts, err := s.Tasks().CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(counts))
	for k, v := range counts {
		out[string(k)] = v
	}
	return out, nil
}

var (
	_ ports.Store        = (*Store)(nil)
	_ ports.Repositories = view{}
)
