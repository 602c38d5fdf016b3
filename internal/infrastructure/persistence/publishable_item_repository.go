package persistence

import (
	"context"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/domain/listing"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// activeStatuses are the statuses FindActiveByProduct considers
var activeStatuses = []listing.PublishStatus{listing.StatusDraft, listing.StatusInProgress, listing.StatusPublished}

// GormPublishableItemRepository implements listing.ItemRepository using GORM
type GormPublishableItemRepository struct {
	db *gorm.DB
}

// NewGormPublishableItemRepository creates a new GormPublishableItemRepository
func NewGormPublishableItemRepository(db *gorm.DB) *GormPublishableItemRepository {
	return &GormPublishableItemRepository{db: db}
}

// FindByID finds an item by its ID
func (r *GormPublishableItemRepository) FindByID(ctx context.Context, id uuid.UUID) (*listing.PublishableItem, error) {
	var m models.PublishableItemModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, translate(err, "item", id)
	}
	return m.ToDomain(), nil
}

// FindActiveByProduct returns the newest non-terminal item of the product
func (r *GormPublishableItemRepository) FindActiveByProduct(ctx context.Context, productID uuid.UUID) (*listing.PublishableItem, error) {
	var m models.PublishableItemModel
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND status IN ?", productID, activeStatuses).
		Order("created_at DESC").
		First(&m).Error
	if err != nil {
		return nil, translate(err, "active item of product", productID)
	}
	return m.ToDomain(), nil
}

// ListPublished returns the published items of an account
func (r *GormPublishableItemRepository) ListPublished(ctx context.Context, accountID uuid.UUID) ([]listing.PublishableItem, error) {
	var rows []models.PublishableItemModel
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND status = ?", accountID, listing.StatusPublished).
		Order("created_at").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]listing.PublishableItem, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].ToDomain())
	}
	return out, nil
}

// Create inserts a new item
func (r *GormPublishableItemRepository) Create(ctx context.Context, item *listing.PublishableItem) error {
	m := models.PublishableItemModelFromDomain(item)
	m.CreatedAt = dbTime(m.CreatedAt)
	m.UpdatedAt = dbTime(m.UpdatedAt)
	return translate(r.db.WithContext(ctx).Create(m).Error, "item", item.ID)
}

// Save updates the item with optimistic locking
func (r *GormPublishableItemRepository) Save(ctx context.Context, item *listing.PublishableItem) error {
	m := models.PublishableItemModelFromDomain(item)
	updatedAt := dbTime(time.Now())
	result := r.db.WithContext(ctx).
		Model(&models.PublishableItemModel{}).
		Where("id = ? AND version = ?", item.ID, item.Version).
		Updates(map[string]any{
			"status":                  m.Status,
			"external_marketplace_id": m.ExternalMarketplaceID,
			"published_at":            dbTimePtr(m.PublishedAt),
			"unpublished_at":          dbTimePtr(m.UnpublishedAt),
			"ends_at":                 dbTimePtr(m.EndsAt),
			"failure_details":         m.FailureDetailsJSON,
			"snapshot":                m.SnapshotJSON,
			"version":                 item.Version + 1,
			"updated_at":              updatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return versionMismatch(r.db.WithContext(ctx), &models.PublishableItemModel{}, "item", item.ID)
	}
	item.IncrementVersion()
	item.UpdatedAt = updatedAt
	return nil
}

var _ listing.ItemRepository = (*GormPublishableItemRepository)(nil)
