package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/Inventorum/ebay-sub000/internal/application/ports"
	"github.com/Inventorum/ebay-sub000/internal/domain/listing"
	"github.com/Inventorum/ebay-sub000/internal/domain/shared"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// pgLockNotAvailable is the SQLSTATE of a failed NOWAIT lock
const pgLockNotAvailable = "55P03"

const lockStrength = "NO KEY UPDATE"

// RowLockGuard implements ports.PublishGuard with a row lock on the catalog
// product. The lock is held by an open transaction for as long as fn runs.
// FOR NO KEY UPDATE excludes other guards but not the KEY SHARE lock that a
// publishable_items insert takes through its foreign key, so fn may write
// items of the product in its own transactions.
type RowLockGuard struct {
	db *gorm.DB
}

// NewRowLockGuard creates a guard over db
func NewRowLockGuard(db *gorm.DB) *RowLockGuard {
	return &RowLockGuard{db: db}
}

// WithExclusivePublishLock runs fn while holding the product row lock.
// A caller finding the row locked fails with listing.ErrConcurrentPublishRejected.
func (g *RowLockGuard) WithExclusivePublishLock(ctx context.Context, productID uuid.UUID, fn func(ctx context.Context) error) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m models.CatalogProductModel
		err := tx.Clauses(clause.Locking{Strength: lockStrength, Options: "NOWAIT"}).
			Select("id").
			First(&m, "id = ?", productID).Error
		switch {
		case isLockNotAvailable(err):
			return listing.ErrConcurrentPublishRejected
		case errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("%w: product %s", shared.ErrNotFound, productID)
		case err != nil:
			return fmt.Errorf("publish guard: %w", err)
		}
		return fn(ctx)
	})
}

func isLockNotAvailable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable
}

var _ ports.PublishGuard = (*RowLockGuard)(nil)
