package listing

import (
	"context"

	"github.com/Inventorum/ebay-sub000/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductVariation is a variation child of a catalog product
type ProductVariation struct {
	ID             uuid.UUID
	CoreProductID  string
	Name           string
	GrossPrice     decimal.Decimal
	Quantity       decimal.Decimal
	MarketplaceSKU string
	Specifics      []ItemSpecific
}

// CatalogProduct is the local projection of a core product
type CatalogProduct struct {
	shared.AccountAggregateRoot
	CoreProductID string
	Name          string
	Description   string
	GrossPrice    decimal.Decimal
	Quantity      decimal.Decimal
	TaxRate       decimal.Decimal
	CategoryID    string
	Images        []string
	Specifics     []ItemSpecific
	Variations    []ProductVariation
}

// NewCatalogProduct creates a product projection
func NewCatalogProduct(accountID uuid.UUID, coreProductID, name string, grossPrice, quantity decimal.Decimal) *CatalogProduct {
	return &CatalogProduct{
		AccountAggregateRoot: shared.NewAccountAggregateRoot(accountID),
		CoreProductID:        coreProductID,
		Name:                 name,
		GrossPrice:           grossPrice,
		Quantity:             quantity,
	}
}

// Variation returns the variation with the core product id
func (p *CatalogProduct) Variation(coreProductID string) (*ProductVariation, bool) {
	for i := range p.Variations {
		if p.Variations[i].CoreProductID == coreProductID {
			return &p.Variations[i], true
		}
	}
	return nil, false
}

// ApplyChanges copies name, price and quantity and reports whether anything
// differed.
func (p *CatalogProduct) ApplyChanges(name string, grossPrice, quantity decimal.Decimal) bool {
	if p.Name == name && p.GrossPrice.Equal(grossPrice) && p.Quantity.Equal(quantity) {
		return false
	}
	p.Name = name
	p.GrossPrice = grossPrice
	p.Quantity = quantity
	p.Touch()
	return true
}

// ApplyVariationChanges is ApplyChanges for a variation child. It returns
// false when the variation is unknown.
func (p *CatalogProduct) ApplyVariationChanges(coreProductID, name string, grossPrice, quantity decimal.Decimal) bool {
	v, ok := p.Variation(coreProductID)
	if !ok {
		return false
	}
	if v.Name == name && v.GrossPrice.Equal(grossPrice) && v.Quantity.Equal(quantity) {
		return false
	}
	v.Name = name
	v.GrossPrice = grossPrice
	v.Quantity = quantity
	p.Touch()
	return true
}

// ProductRepository persists catalog products
type ProductRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*CatalogProduct, error)
	FindByCoreID(ctx context.Context, accountID uuid.UUID, coreProductID string) (*CatalogProduct, error)
	Create(ctx context.Context, p *CatalogProduct) error
	Save(ctx context.Context, p *CatalogProduct) error
}
