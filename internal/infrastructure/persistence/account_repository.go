package persistence

import (
	"context"

	"github.com/Inventorum/ebay-sub000/internal/domain/account"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormAccountRepository implements account.Repository using GORM
type GormAccountRepository struct {
	db *gorm.DB
}

// NewGormAccountRepository creates a new GormAccountRepository
func NewGormAccountRepository(db *gorm.DB) *GormAccountRepository {
	return &GormAccountRepository{db: db}
}

// FindByID finds an account by its ID
func (r *GormAccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	var m models.AccountModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, translate(err, "account", id)
	}
	return m.ToDomain(), nil
}

// FindByCoreAccountID finds an account by its core account id
func (r *GormAccountRepository) FindByCoreAccountID(ctx context.Context, coreAccountID string) (*account.Account, error) {
	var m models.AccountModel
	if err := r.db.WithContext(ctx).First(&m, "core_account_id = ?", coreAccountID).Error; err != nil {
		return nil, translate(err, "account", coreAccountID)
	}
	return m.ToDomain(), nil
}

// ListActive returns every active account
func (r *GormAccountRepository) ListActive(ctx context.Context) ([]account.Account, error) {
	var rows []models.AccountModel
	if err := r.db.WithContext(ctx).Where("active = ?", true).Order("created_at").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]account.Account, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].ToDomain())
	}
	return out, nil
}

// Save creates or replaces the account
func (r *GormAccountRepository) Save(ctx context.Context, a *account.Account) error {
	m := models.AccountModelFromDomain(a)
	m.CreatedAt = dbTime(m.CreatedAt)
	m.UpdatedAt = dbTime(m.UpdatedAt)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"marketplace_seller_id", "marketplace_token", "settings", "active", "last_active_at", "updated_at"}),
		}).
		Create(m).Error
}

var _ account.Repository = (*GormAccountRepository)(nil)
