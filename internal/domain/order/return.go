package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReturnedLine is a quantity returned for one line item
type ReturnedLine struct {
	LineItemExternalID string          `json:"line_item_id"`
	Quantity           decimal.Decimal `json:"quantity"`
}

// ReturnRecord is a return booked in core and mirrored onto the order.
// RemoteID is unique per order.
type ReturnRecord struct {
	ID           uuid.UUID
	OrderID      uuid.UUID
	RemoteID     string
	Lines        []ReturnedLine
	RefundAmount decimal.Decimal
	CreatedAt    time.Time
}
