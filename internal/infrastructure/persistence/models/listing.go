package models

import (
	"encoding/json"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/domain/listing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CatalogProductModel is the persistence model for the CatalogProduct aggregate.
type CatalogProductModel struct {
	AggregateModel
	AccountID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_catalog_products_account_core,priority:1"`
	CoreProductID  string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_catalog_products_account_core,priority:2"`
	Name           string          `gorm:"type:varchar(255);not null"`
	Description    string          `gorm:"type:text"`
	GrossPrice     decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Quantity       decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	TaxRate        decimal.Decimal `gorm:"type:decimal(6,4);not null;default:0"`
	CategoryID     string          `gorm:"type:varchar(64)"`
	ImagesJSON     string          `gorm:"type:jsonb;column:images"`
	SpecificsJSON  string          `gorm:"type:jsonb;column:specifics"`
	VariationsJSON string          `gorm:"type:jsonb;column:variations"`
}

// TableName returns the table name for GORM
func (CatalogProductModel) TableName() string {
	return "catalog_products"
}

// ToDomain converts the persistence model to a domain CatalogProduct.
func (m *CatalogProductModel) ToDomain() *listing.CatalogProduct {
	p := &listing.CatalogProduct{
		AccountAggregateRoot: m.toAccountAggregateRoot(m.AccountID),
		CoreProductID:        m.CoreProductID,
		Name:                 m.Name,
		Description:          m.Description,
		GrossPrice:           m.GrossPrice,
		Quantity:             m.Quantity,
		TaxRate:              m.TaxRate,
		CategoryID:           m.CategoryID,
	}
	if m.ImagesJSON != "" {
		_ = json.Unmarshal([]byte(m.ImagesJSON), &p.Images)
	}
	if m.SpecificsJSON != "" {
		_ = json.Unmarshal([]byte(m.SpecificsJSON), &p.Specifics)
	}
	if m.VariationsJSON != "" {
		_ = json.Unmarshal([]byte(m.VariationsJSON), &p.Variations)
	}
	return p
}

// FromDomain populates the persistence model from a domain CatalogProduct.
func (m *CatalogProductModel) FromDomain(p *listing.CatalogProduct) {
	m.FromDomainAggregateRoot(p.BaseAggregateRoot)
	m.AccountID = p.AccountID
	m.CoreProductID = p.CoreProductID
	m.Name = p.Name
	m.Description = p.Description
	m.GrossPrice = p.GrossPrice
	m.Quantity = p.Quantity
	m.TaxRate = p.TaxRate
	m.CategoryID = p.CategoryID
	m.ImagesJSON = marshalJSON(p.Images, "[]")
	m.SpecificsJSON = marshalJSON(p.Specifics, "[]")
	m.VariationsJSON = marshalJSON(p.Variations, "[]")
}

// CatalogProductModelFromDomain creates a new persistence model from a domain CatalogProduct.
func CatalogProductModelFromDomain(p *listing.CatalogProduct) *CatalogProductModel {
	m := &CatalogProductModel{}
	m.FromDomain(p)
	return m
}

// PublishableItemModel is the persistence model for the PublishableItem aggregate.
type PublishableItemModel struct {
	AccountAggregateModel
	ProductID             uuid.UUID             `gorm:"type:uuid;not null;index:idx_publishable_items_product"`
	Status                listing.PublishStatus `gorm:"type:varchar(20);not null;index"`
	ExternalMarketplaceID *string               `gorm:"type:varchar(64);index"`
	PublishedAt           *time.Time
	UnpublishedAt         *time.Time
	EndsAt                *time.Time
	FailureDetailsJSON    *string `gorm:"type:jsonb;column:failure_details"`
	SnapshotJSON          string  `gorm:"type:jsonb;column:snapshot;not null"`
}

// TableName returns the table name for GORM
func (PublishableItemModel) TableName() string {
	return "publishable_items"
}

// ToDomain converts the persistence model to a domain PublishableItem.
func (m *PublishableItemModel) ToDomain() *listing.PublishableItem {
	item := &listing.PublishableItem{
		AccountAggregateRoot:  m.ToDomainAccountAggregateRoot(),
		ProductID:             m.ProductID,
		Status:                m.Status,
		ExternalMarketplaceID: m.ExternalMarketplaceID,
		PublishedAt:           m.PublishedAt,
		UnpublishedAt:         m.UnpublishedAt,
		EndsAt:                m.EndsAt,
	}
	if m.FailureDetailsJSON != nil && *m.FailureDetailsJSON != "" {
		var d listing.FailureDetails
		if err := json.Unmarshal([]byte(*m.FailureDetailsJSON), &d); err == nil {
			item.FailureDetails = &d
		}
	}
	_ = json.Unmarshal([]byte(m.SnapshotJSON), &item.Snapshot)
	return item
}

// FromDomain populates the persistence model from a domain PublishableItem.
func (m *PublishableItemModel) FromDomain(item *listing.PublishableItem) {
	m.FromDomainAccountAggregateRoot(item.AccountAggregateRoot)
	m.ProductID = item.ProductID
	m.Status = item.Status
	m.ExternalMarketplaceID = item.ExternalMarketplaceID
	m.PublishedAt = item.PublishedAt
	m.UnpublishedAt = item.UnpublishedAt
	m.EndsAt = item.EndsAt
	m.FailureDetailsJSON = nil
	if item.FailureDetails != nil {
		s := marshalJSON(item.FailureDetails, "{}")
		m.FailureDetailsJSON = &s
	}
	m.SnapshotJSON = marshalJSON(item.Snapshot, "{}")
}

// PublishableItemModelFromDomain creates a new persistence model from a domain PublishableItem.
func PublishableItemModelFromDomain(item *listing.PublishableItem) *PublishableItemModel {
	m := &PublishableItemModel{}
	m.FromDomain(item)
	return m
}

// DirtyMarkModel flags an entity core has not seen the latest state of.
type DirtyMarkModel struct {
	EntityType string    `gorm:"type:varchar(50);primaryKey"`
	EntityID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	MarkedAt   time.Time `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (DirtyMarkModel) TableName() string {
	return "dirty_marks"
}

// ToDomain converts the persistence model to a domain DirtyMark.
func (m *DirtyMarkModel) ToDomain() listing.DirtyMark {
	return listing.DirtyMark{EntityType: m.EntityType, EntityID: m.EntityID, MarkedAt: m.MarkedAt}
}
