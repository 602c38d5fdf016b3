package persistence

import (
	"context"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/domain/listing"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormCatalogProductRepository implements listing.ProductRepository using GORM
type GormCatalogProductRepository struct {
	db *gorm.DB
}

// NewGormCatalogProductRepository creates a new GormCatalogProductRepository
func NewGormCatalogProductRepository(db *gorm.DB) *GormCatalogProductRepository {
	return &GormCatalogProductRepository{db: db}
}

// FindByID finds a product by its ID
func (r *GormCatalogProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*listing.CatalogProduct, error) {
	var m models.CatalogProductModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, translate(err, "product", id)
	}
	return m.ToDomain(), nil
}

// FindByCoreID finds a product by its core id within the account
func (r *GormCatalogProductRepository) FindByCoreID(ctx context.Context, accountID uuid.UUID, coreProductID string) (*listing.CatalogProduct, error) {
	var m models.CatalogProductModel
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND core_product_id = ?", accountID, coreProductID).
		First(&m).Error
	if err != nil {
		return nil, translate(err, "product", coreProductID)
	}
	return m.ToDomain(), nil
}

// Create inserts a new product. A second product with the same core id in
// the account fails with shared.ErrAlreadyExists.
func (r *GormCatalogProductRepository) Create(ctx context.Context, p *listing.CatalogProduct) error {
	m := models.CatalogProductModelFromDomain(p)
	m.CreatedAt = dbTime(m.CreatedAt)
	m.UpdatedAt = dbTime(m.UpdatedAt)
	return translate(r.db.WithContext(ctx).Create(m).Error, "product", p.CoreProductID)
}

// Save updates the product with optimistic locking
func (r *GormCatalogProductRepository) Save(ctx context.Context, p *listing.CatalogProduct) error {
	m := models.CatalogProductModelFromDomain(p)
	updatedAt := dbTime(time.Now())
	result := r.db.WithContext(ctx).
		Model(&models.CatalogProductModel{}).
		Where("id = ? AND version = ?", p.ID, p.Version).
		Updates(map[string]any{
			"name":        m.Name,
			"description": m.Description,
			"gross_price": m.GrossPrice,
			"quantity":    m.Quantity,
			"tax_rate":    m.TaxRate,
			"category_id": m.CategoryID,
			"images":      m.ImagesJSON,
			"specifics":   m.SpecificsJSON,
			"variations":  m.VariationsJSON,
			"version":     p.Version + 1,
			"updated_at":  updatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return versionMismatch(r.db.WithContext(ctx), &models.CatalogProductModel{}, "product", p.ID)
	}
	p.IncrementVersion()
	p.UpdatedAt = updatedAt
	return nil
}

var _ listing.ProductRepository = (*GormCatalogProductRepository)(nil)
