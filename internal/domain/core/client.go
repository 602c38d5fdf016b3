// Package core declares the port to the internal commerce platform.
package core

import (
	"context"
	"errors"

	"github.com/Inventorum/ebay-sub000/internal/domain/listing"
	"github.com/Inventorum/ebay-sub000/internal/domain/order"
	"github.com/shopspring/decimal"
)

var (
	// ErrCoreUnavailable wraps transport failures and 5xx answers
	ErrCoreUnavailable = errors.New("core: unavailable")
	// ErrCoreRejected is a 4xx answer; retrying will not help
	ErrCoreRejected = errors.New("core: request rejected")
)

// ChannelEbay is the channel name core uses for this integration
const ChannelEbay = "ebay"

// ProductState is pushed to core whenever an item changes status
type ProductState struct {
	Channel string                  `json:"channel"`
	State   string                  `json:"state"`
	Details *listing.FailureDetails `json:"details,omitempty"`
}

// OrderLine is one line of an order created in core
type OrderLine struct {
	ExternalID    string          `json:"channel_line_id"`
	CoreProductID string          `json:"product"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_gross_price"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
}

// NewOrder is the payload that creates an order in core
type NewOrder struct {
	MarketplaceOrderID string      `json:"channel_order_id"`
	Channel            string      `json:"channel"`
	FulfillmentMethod  string      `json:"fulfillment_method"`
	PickupCode         string      `json:"pickup_code,omitempty"`
	Lines              []OrderLine `json:"basket_items"`
	State              uint        `json:"state"`
}

// CreatedOrder is core's answer to CreateOrder
type CreatedOrder struct {
	CoreID string
	// LineItemIDs maps the marketplace line id to core's line id
	LineItemIDs map[string]string
}

// Product is a core product as fetched on demand
type Product struct {
	ID          string
	Name        string
	Description string
	GrossPrice  decimal.Decimal
	Quantity    decimal.Decimal
	TaxRate     decimal.Decimal
	CategoryID  string
	Images      []string
	Specifics   []listing.ItemSpecific
	Variations  []ProductVariation
}

// ProductVariation is a variation child of a core product
type ProductVariation struct {
	ID         string
	Name       string
	GrossPrice decimal.Decimal
	Quantity   decimal.Decimal
	SKU        string
	Specifics  []listing.ItemSpecific
}

// Client is the core port. Calls are made on behalf of a core account.
//
// FindOrder looks an order up by its marketplace id and wraps
// shared.ErrNotFound when core has none.
type Client interface {
	PushProductState(ctx context.Context, coreAccountID, coreProductID string, state ProductState) error
	CreateOrder(ctx context.Context, coreAccountID string, o NewOrder) (*CreatedOrder, error)
	FindOrder(ctx context.Context, coreAccountID, marketplaceOrderID string) (*CreatedOrder, error)
	UpdateOrderStatus(ctx context.Context, coreAccountID, coreOrderID string, status order.OrderStatus) error
	GetProduct(ctx context.Context, coreAccountID, coreProductID string) (*Product, error)
}
