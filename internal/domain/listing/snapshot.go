package listing

import (
	"github.com/Inventorum/ebay-sub000/internal/domain/account"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ItemSpecific is a name with one or more values
type ItemSpecific struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// SnapshotVariation is a point-in-time copy of a product variation
type SnapshotVariation struct {
	ID            uuid.UUID       `json:"id"`
	CoreProductID string          `json:"core_product_id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	GrossPrice    decimal.Decimal `json:"gross_price"`
	Quantity      decimal.Decimal `json:"quantity"`
	Specifics     []ItemSpecific  `json:"specifics,omitempty"`
}

// ListingSnapshot is the content sent to the marketplace. It is copied from
// the catalog product and account settings when an item is prepared so later
// catalog edits never leak into an in-flight publish.
type ListingSnapshot struct {
	CoreProductID    string                    `json:"core_product_id"`
	Title            string                    `json:"title"`
	Description      string                    `json:"description,omitempty"`
	GrossPrice       decimal.Decimal           `json:"gross_price"`
	Quantity         decimal.Decimal           `json:"quantity"`
	TaxRate          decimal.Decimal           `json:"tax_rate"`
	Currency         string                    `json:"currency"`
	Country          string                    `json:"country"`
	CategoryID       string                    `json:"category_id"`
	ShippingServices []account.ShippingService `json:"shipping_services"`
	PaymentMethods   []string                  `json:"payment_methods"`
	PayPalEmail      string                    `json:"paypal_email,omitempty"`
	PickupEnabled    bool                      `json:"pickup_enabled"`
	Images           []string                  `json:"images,omitempty"`
	Specifics        []ItemSpecific            `json:"specifics,omitempty"`
	Variations       []SnapshotVariation       `json:"variations,omitempty"`
}

// NewSnapshot copies the product and account settings
func NewSnapshot(p *CatalogProduct, settings account.Settings) ListingSnapshot {
	s := ListingSnapshot{
		CoreProductID:    p.CoreProductID,
		Title:            p.Name,
		Description:      p.Description,
		GrossPrice:       p.GrossPrice,
		Quantity:         p.Quantity,
		TaxRate:          p.TaxRate,
		Currency:         settings.Currency,
		Country:          settings.Country,
		CategoryID:       p.CategoryID,
		ShippingServices: append([]account.ShippingService(nil), settings.ShippingServices...),
		PaymentMethods:   append([]string(nil), settings.PaymentMethods...),
		PayPalEmail:      settings.PayPalEmail,
		PickupEnabled:    settings.PickupEnabled,
		Images:           append([]string(nil), p.Images...),
		Specifics:        append([]ItemSpecific(nil), p.Specifics...),
	}
	for _, v := range p.Variations {
		s.Variations = append(s.Variations, SnapshotVariation{
			ID:            uuid.New(),
			CoreProductID: v.CoreProductID,
			SKU:           v.MarketplaceSKU,
			Name:          v.Name,
			GrossPrice:    v.GrossPrice,
			Quantity:      v.Quantity,
			Specifics:     append([]ItemSpecific(nil), v.Specifics...),
		})
	}
	return s
}

// WithProduct refreshes title, prices and quantities from the catalog while
// keeping variation ids stable.
func (s ListingSnapshot) WithProduct(p *CatalogProduct) ListingSnapshot {
	out := s
	out.Title = p.Name
	out.GrossPrice = p.GrossPrice
	out.Quantity = p.Quantity
	out.Variations = make([]SnapshotVariation, len(s.Variations))
	copy(out.Variations, s.Variations)
	for i := range out.Variations {
		if v, ok := p.Variation(out.Variations[i].CoreProductID); ok {
			out.Variations[i].Name = v.Name
			out.Variations[i].GrossPrice = v.GrossPrice
			out.Variations[i].Quantity = v.Quantity
		}
	}
	return out
}
