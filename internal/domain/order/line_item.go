package order

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderableKind distinguishes main listing items from variations
type OrderableKind string

const (
	OrderableBaseItem  OrderableKind = "base_item"
	OrderableVariation OrderableKind = "variation"
)

// Orderable is anything a buyer can purchase: a base item or a variation
// of one. Both expose the same identifiers.
type Orderable interface {
	OrderableKind() OrderableKind
	OrderableID() uuid.UUID
	CoreProductID() string
	MarketplaceItemID() string
	TaxRate() decimal.Decimal
}

// OrderableRef is the persisted form of an Orderable
type OrderableRef struct {
	Kind            OrderableKind
	ID              uuid.UUID
	CoreProduct     string
	MarketplaceItem string
	Tax             decimal.Decimal
}

// RefOf captures an Orderable as a value
func RefOf(o Orderable) OrderableRef {
	return OrderableRef{
		Kind:            o.OrderableKind(),
		ID:              o.OrderableID(),
		CoreProduct:     o.CoreProductID(),
		MarketplaceItem: o.MarketplaceItemID(),
		Tax:             o.TaxRate(),
	}
}

func (r OrderableRef) OrderableKind() OrderableKind { return r.Kind }
func (r OrderableRef) OrderableID() uuid.UUID       { return r.ID }
func (r OrderableRef) CoreProductID() string        { return r.CoreProduct }
func (r OrderableRef) MarketplaceItemID() string    { return r.MarketplaceItem }
func (r OrderableRef) TaxRate() decimal.Decimal     { return r.Tax }

// LineItem is one purchased line. It is immutable after import apart from
// the core id and the returned quantity.
type LineItem struct {
	ID               uuid.UUID
	OrderID          uuid.UUID
	ExternalID       string
	Orderable        OrderableRef
	Quantity         decimal.Decimal
	UnitPrice        decimal.Decimal
	TaxRate          decimal.Decimal
	ExternalCoreID   *string
	ReturnedQuantity decimal.Decimal
}

// NewLineItem creates a line item for an orderable. A zero tax rate falls
// back to the orderable's own rate.
func NewLineItem(externalID string, orderable Orderable, quantity, unitPrice, taxRate decimal.Decimal) LineItem {
	if taxRate.IsZero() {
		taxRate = orderable.TaxRate()
	}
	return LineItem{
		ID:               uuid.New(),
		ExternalID:       externalID,
		Orderable:        RefOf(orderable),
		Quantity:         quantity,
		UnitPrice:        unitPrice,
		TaxRate:          taxRate,
		ReturnedQuantity: decimal.Zero,
	}
}

// Total is quantity times unit price
func (l LineItem) Total() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice)
}
