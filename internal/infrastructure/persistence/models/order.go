package models

import (
	"encoding/json"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/domain/order"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderModel is the persistence model for the Order aggregate.
type OrderModel struct {
	AggregateModel
	AccountID             uuid.UUID               `gorm:"type:uuid;not null;uniqueIndex:idx_orders_account_marketplace,priority:1;index:idx_orders_account_core,priority:1"`
	ExternalMarketplaceID string                  `gorm:"type:varchar(64);not null;uniqueIndex:idx_orders_account_marketplace,priority:2"`
	ExternalCoreID        *string                 `gorm:"type:varchar(64);index:idx_orders_account_core,priority:2"`
	CoreStatusJSON        string                  `gorm:"type:jsonb;column:core_status;not null"`
	MarketplaceStatusJSON string                  `gorm:"type:jsonb;column:marketplace_status;not null"`
	FulfillmentMethod     order.FulfillmentMethod `gorm:"type:varchar(20);not null"`
	PickupCode            *string                 `gorm:"type:varchar(64)"`
	LineItems             []OrderLineItemModel    `gorm:"foreignKey:OrderID;references:ID"`
	Returns               []OrderReturnModel      `gorm:"foreignKey:OrderID;references:ID"`
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// ToDomain converts the persistence model to a domain Order.
func (m *OrderModel) ToDomain() *order.Order {
	o := &order.Order{
		AccountAggregateRoot:  m.toAccountAggregateRoot(m.AccountID),
		ExternalMarketplaceID: m.ExternalMarketplaceID,
		ExternalCoreID:        m.ExternalCoreID,
		FulfillmentMethod:     m.FulfillmentMethod,
		PickupCode:            m.PickupCode,
		LineItems:             make([]order.LineItem, 0, len(m.LineItems)),
		Returns:               make([]order.ReturnRecord, 0, len(m.Returns)),
	}
	_ = json.Unmarshal([]byte(m.CoreStatusJSON), &o.CoreStatus)
	_ = json.Unmarshal([]byte(m.MarketplaceStatusJSON), &o.MarketplaceStatus)
	for i := range m.LineItems {
		o.LineItems = append(o.LineItems, m.LineItems[i].ToDomain())
	}
	for i := range m.Returns {
		o.Returns = append(o.Returns, m.Returns[i].ToDomain())
	}
	return o
}

// FromDomain populates the persistence model from a domain Order.
func (m *OrderModel) FromDomain(o *order.Order) {
	m.FromDomainAggregateRoot(o.BaseAggregateRoot)
	m.AccountID = o.AccountID
	m.ExternalMarketplaceID = o.ExternalMarketplaceID
	m.ExternalCoreID = o.ExternalCoreID
	m.CoreStatusJSON = marshalJSON(o.CoreStatus, "{}")
	m.MarketplaceStatusJSON = marshalJSON(o.MarketplaceStatus, "{}")
	m.FulfillmentMethod = o.FulfillmentMethod
	m.PickupCode = o.PickupCode
	m.LineItems = make([]OrderLineItemModel, len(o.LineItems))
	for i := range o.LineItems {
		m.LineItems[i].FromDomain(o.LineItems[i], i)
		m.LineItems[i].OrderID = o.ID
	}
	m.Returns = make([]OrderReturnModel, len(o.Returns))
	for i := range o.Returns {
		m.Returns[i].FromDomain(o.Returns[i])
		m.Returns[i].OrderID = o.ID
	}
}

// OrderModelFromDomain creates a new persistence model from a domain Order.
func OrderModelFromDomain(o *order.Order) *OrderModel {
	m := &OrderModel{}
	m.FromDomain(o)
	return m
}

// OrderLineItemModel is one purchased line of an order.
type OrderLineItemModel struct {
	ID                uuid.UUID           `gorm:"type:uuid;primary_key"`
	OrderID           uuid.UUID           `gorm:"type:uuid;not null;index"`
	Position          int                 `gorm:"not null;default:0"`
	ExternalID        string              `gorm:"type:varchar(64);not null"`
	OrderableKind     order.OrderableKind `gorm:"type:varchar(20);not null"`
	OrderableID       uuid.UUID           `gorm:"type:uuid;not null;index"`
	CoreProductID     string              `gorm:"type:varchar(64);not null"`
	MarketplaceItemID string              `gorm:"type:varchar(64)"`
	OrderableTaxRate  decimal.Decimal     `gorm:"type:decimal(6,4);not null;default:0"`
	Quantity          decimal.Decimal     `gorm:"type:decimal(18,4);not null"`
	UnitPrice         decimal.Decimal     `gorm:"type:decimal(18,4);not null"`
	TaxRate           decimal.Decimal     `gorm:"type:decimal(6,4);not null;default:0"`
	ExternalCoreID    *string             `gorm:"type:varchar(64)"`
	ReturnedQuantity  decimal.Decimal     `gorm:"type:decimal(18,4);not null;default:0"`
}

// TableName returns the table name for GORM
func (OrderLineItemModel) TableName() string {
	return "order_line_items"
}

// ToDomain converts the persistence model to a domain LineItem.
func (m *OrderLineItemModel) ToDomain() order.LineItem {
	return order.LineItem{
		ID:         m.ID,
		OrderID:    m.OrderID,
		ExternalID: m.ExternalID,
		Orderable: order.OrderableRef{
			Kind:            m.OrderableKind,
			ID:              m.OrderableID,
			CoreProduct:     m.CoreProductID,
			MarketplaceItem: m.MarketplaceItemID,
			Tax:             m.OrderableTaxRate,
		},
		Quantity:         m.Quantity,
		UnitPrice:        m.UnitPrice,
		TaxRate:          m.TaxRate,
		ExternalCoreID:   m.ExternalCoreID,
		ReturnedQuantity: m.ReturnedQuantity,
	}
}

// FromDomain populates the persistence model from a domain LineItem.
func (m *OrderLineItemModel) FromDomain(l order.LineItem, position int) {
	m.ID = l.ID
	m.OrderID = l.OrderID
	m.Position = position
	m.ExternalID = l.ExternalID
	m.OrderableKind = l.Orderable.Kind
	m.OrderableID = l.Orderable.ID
	m.CoreProductID = l.Orderable.CoreProduct
	m.MarketplaceItemID = l.Orderable.MarketplaceItem
	m.OrderableTaxRate = l.Orderable.Tax
	m.Quantity = l.Quantity
	m.UnitPrice = l.UnitPrice
	m.TaxRate = l.TaxRate
	m.ExternalCoreID = l.ExternalCoreID
	m.ReturnedQuantity = l.ReturnedQuantity
}

// OrderReturnModel is a return booked against an order. RemoteID is unique per order.
type OrderReturnModel struct {
	ID           uuid.UUID       `gorm:"type:uuid;primary_key"`
	OrderID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_order_returns_order_remote,priority:1"`
	RemoteID     string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_order_returns_order_remote,priority:2"`
	LinesJSON    string          `gorm:"type:jsonb;column:lines;not null"`
	RefundAmount decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	CreatedAt    time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (OrderReturnModel) TableName() string {
	return "order_returns"
}

// ToDomain converts the persistence model to a domain ReturnRecord.
func (m *OrderReturnModel) ToDomain() order.ReturnRecord {
	r := order.ReturnRecord{
		ID:           m.ID,
		OrderID:      m.OrderID,
		RemoteID:     m.RemoteID,
		RefundAmount: m.RefundAmount,
		CreatedAt:    m.CreatedAt,
	}
	_ = json.Unmarshal([]byte(m.LinesJSON), &r.Lines)
	return r
}

// FromDomain populates the persistence model from a domain ReturnRecord.
func (m *OrderReturnModel) FromDomain(r order.ReturnRecord) {
	m.ID = r.ID
	m.OrderID = r.OrderID
	m.RemoteID = r.RemoteID
	m.LinesJSON = marshalJSON(r.Lines, "[]")
	m.RefundAmount = r.RefundAmount
	m.CreatedAt = r.CreatedAt
}
