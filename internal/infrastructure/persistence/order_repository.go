package persistence

import (
	"context"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/domain/order"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormOrderRepository implements order.Repository using GORM. Line items
// and returns are loaded and written together with the order.
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

func (r *GormOrderRepository) withChildren(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("LineItems", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Preload("Returns", func(db *gorm.DB) *gorm.DB { return db.Order("created_at") })
}

// FindByID finds an order by its ID
func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	var m models.OrderModel
	if err := r.withChildren(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, translate(err, "order", id)
	}
	return m.ToDomain(), nil
}

// FindByMarketplaceID finds an order by its marketplace id within the account
func (r *GormOrderRepository) FindByMarketplaceID(ctx context.Context, accountID uuid.UUID, externalID string) (*order.Order, error) {
	var m models.OrderModel
	err := r.withChildren(ctx).
		Where("account_id = ? AND external_marketplace_id = ?", accountID, externalID).
		First(&m).Error
	if err != nil {
		return nil, translate(err, "order", externalID)
	}
	return m.ToDomain(), nil
}

// FindByCoreID finds an order by its core id within the account
func (r *GormOrderRepository) FindByCoreID(ctx context.Context, accountID uuid.UUID, coreID string) (*order.Order, error) {
	var m models.OrderModel
	err := r.withChildren(ctx).
		Where("account_id = ? AND external_core_id = ?", accountID, coreID).
		First(&m).Error
	if err != nil {
		return nil, translate(err, "order", coreID)
	}
	return m.ToDomain(), nil
}

// Create inserts the order with its line items and returns
func (r *GormOrderRepository) Create(ctx context.Context, o *order.Order) error {
	m := models.OrderModelFromDomain(o)
	m.CreatedAt = dbTime(m.CreatedAt)
	m.UpdatedAt = dbTime(m.UpdatedAt)
	for i := range m.Returns {
		m.Returns[i].CreatedAt = dbTime(m.Returns[i].CreatedAt)
	}
	return translate(r.db.WithContext(ctx).Create(m).Error, "order", o.ExternalMarketplaceID)
}

// Save writes status, core ids and new returns with optimistic locking
func (r *GormOrderRepository) Save(ctx context.Context, o *order.Order) error {
	m := models.OrderModelFromDomain(o)
	updatedAt := dbTime(time.Now())

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.OrderModel{}).
			Where("id = ? AND version = ?", o.ID, o.Version).
			Updates(map[string]any{
				"external_core_id":   m.ExternalCoreID,
				"core_status":        m.CoreStatusJSON,
				"marketplace_status": m.MarketplaceStatusJSON,
				"version":            o.Version + 1,
				"updated_at":         updatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return versionMismatch(tx, &models.OrderModel{}, "order", o.ID)
		}

		for i := range m.LineItems {
			line := m.LineItems[i]
			if err := tx.Model(&models.OrderLineItemModel{}).
				Where("id = ?", line.ID).
				Updates(map[string]any{
					"external_core_id":  line.ExternalCoreID,
					"returned_quantity": line.ReturnedQuantity,
				}).Error; err != nil {
				return err
			}
		}

		if len(m.Returns) == 0 {
			return nil
		}
		for i := range m.Returns {
			m.Returns[i].CreatedAt = dbTime(m.Returns[i].CreatedAt)
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}, {Name: "remote_id"}},
			DoNothing: true,
		}).Create(&m.Returns).Error
	})
	if err != nil {
		return err
	}
	o.IncrementVersion()
	o.UpdatedAt = updatedAt
	return nil
}

var _ order.Repository = (*GormOrderRepository)(nil)
