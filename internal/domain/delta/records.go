package delta

import (
	"github.com/shopspring/decimal"
)

// RecordState says whether a catalog row was changed or removed
type RecordState string

const (
	RecordStateUpdated RecordState = "updated"
	RecordStateDeleted RecordState = "deleted"
)

// ProductDelta is one changed catalog row since the cursor
type ProductDelta struct {
	RemoteID string `json:"id"`
	// ParentRemoteID is set for variation children
	ParentRemoteID *string         `json:"parent,omitempty"`
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"gross_price"`
	Quantity       decimal.Decimal `json:"quantity"`
	State          RecordState     `json:"state"`
}

// IsVariation returns true for variation children
func (d ProductDelta) IsVariation() bool {
	return d.ParentRemoteID != nil && *d.ParentRemoteID != ""
}

// OrderDeltaItem is one basket line of a remote order snapshot
type OrderDeltaItem struct {
	RemoteID string `json:"id"`
	// ItemRef is the marketplace item id or SKU the buyer purchased
	ItemRef   string          `json:"item_ref"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_gross_price"`
	TaxRate   decimal.Decimal `json:"tax_rate"`
}

// OrderDelta is the authoritative snapshot of a remote order at delta time.
// BinaryState is the packed flag integer; decode it with order.DecodeState.
type OrderDelta struct {
	RemoteID string `json:"id"`
	// AccountRef identifies the owning account on the remote side
	AccountRef        string           `json:"account"`
	BinaryState       uint             `json:"state"`
	FulfillmentMethod string           `json:"fulfillment_method"`
	PickupCode        string           `json:"pickup_code,omitempty"`
	Items             []OrderDeltaItem `json:"basket_items"`
}

// ReturnDeltaItem is one returned line
type ReturnDeltaItem struct {
	LineItemRemoteID string          `json:"line_item_id"`
	Quantity         decimal.Decimal `json:"quantity"`
}

// ReturnDelta is a return booked in core against an order
type ReturnDelta struct {
	RemoteID      string            `json:"id"`
	OrderRemoteID string            `json:"order_id"`
	Items         []ReturnDeltaItem `json:"items"`
	RefundAmount  decimal.Decimal   `json:"refund_amount"`
}
