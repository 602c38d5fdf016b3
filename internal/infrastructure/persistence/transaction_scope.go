package persistence

import (
	"context"

	"github.com/Inventorum/ebay-sub000/internal/application/ports"
	"github.com/Inventorum/ebay-sub000/internal/domain/account"
	"github.com/Inventorum/ebay-sub000/internal/domain/delta"
	"github.com/Inventorum/ebay-sub000/internal/domain/listing"
	"github.com/Inventorum/ebay-sub000/internal/domain/order"
	"github.com/Inventorum/ebay-sub000/internal/domain/task"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// It provides atomic execution of multiple repository operations.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos ports.Repositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepositories{db: tx})
	})
}

// gormRepositories provides access to all repositories over one connection
// or transaction.
type gormRepositories struct {
	db *gorm.DB
}

func (r *gormRepositories) Accounts() account.Repository {
	return NewGormAccountRepository(r.db)
}

func (r *gormRepositories) Cursors() delta.CursorRepository {
	return NewGormCursorRepository(r.db)
}

func (r *gormRepositories) Orders() order.Repository {
	return NewGormOrderRepository(r.db)
}

func (r *gormRepositories) Products() listing.ProductRepository {
	return NewGormCatalogProductRepository(r.db)
}

func (r *gormRepositories) Items() listing.ItemRepository {
	return NewGormPublishableItemRepository(r.db)
}

func (r *gormRepositories) Dirty() listing.DirtyRepository {
	return NewGormDirtyMarkRepository(r.db)
}

func (r *gormRepositories) Tasks() task.Repository {
	return NewGormTaskRepository(r.db)
}

// GormStore is the Postgres-backed ports.Store
type GormStore struct {
	*gormRepositories
	*GormTransactionScope
}

// NewGormStore creates a store over db
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		gormRepositories:     &gormRepositories{db: db},
		GormTransactionScope: NewGormTransactionScope(db),
	}
}

// CountTasksByStatus reports the task backlog for metrics collection
func (s *GormStore) CountTasksByStatus(ctx context.Context) (map[string]int64, error) {
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
	_ ports.TransactionScope = (*GormTransactionScope)(nil)
	_ ports.Repositories     = (*gormRepositories)(nil)
	_ ports.Store            = (*GormStore)(nil)
)
