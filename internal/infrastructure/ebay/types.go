package ebay

import "time"

// codeAuctionClosed is returned when ending a listing that already ended
const codeAuctionClosed = "1047"

// codeDuplicateUUID is returned when a listing UUID was already used. The
// error names the listing created for it.
const codeDuplicateUUID = "488"

type nameValueList struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

type shippingServiceOption struct {
	Service        string `json:"service"`
	Cost           string `json:"cost"`
	AdditionalCost string `json:"additional_cost"`
	Priority       int    `json:"priority"`
}

type variationRequest struct {
	SKU        string          `json:"sku"`
	StartPrice string          `json:"start_price"`
	Quantity   int64           `json:"quantity"`
	Specifics  []nameValueList `json:"specifics,omitempty"`
}

type listingRequest struct {
	UUID             string                  `json:"uuid,omitempty"`
	SKU              string                  `json:"sku"`
	Title            string                  `json:"title"`
	Description      string                  `json:"description,omitempty"`
	CategoryID       string                  `json:"category_id"`
	Country          string                  `json:"country"`
	Currency         string                  `json:"currency"`
	StartPrice       string                  `json:"start_price"`
	Quantity         int64                   `json:"quantity"`
	VATPercent       string                  `json:"vat_percent"`
	PictureURLs      []string                `json:"picture_urls,omitempty"`
	PaymentMethods   []string                `json:"payment_methods"`
	PayPalEmail      string                  `json:"paypal_email,omitempty"`
	ShippingServices []shippingServiceOption `json:"shipping_services"`
	PickupInStore    bool                    `json:"pickup_in_store"`
	ItemSpecifics    []nameValueList         `json:"item_specifics,omitempty"`
	Variations       []variationRequest      `json:"variations,omitempty"`
}

type listingResponse struct {
	ItemID    string     `json:"item_id"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

type endListingRequest struct {
	Reason string `json:"ending_reason"`
}

type orderStatusRequest struct {
	Paid    bool `json:"paid"`
	Shipped bool `json:"shipped"`
}

type pickupEventRequest struct {
	Event string `json:"event"`
}

type amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type refundRequest struct {
	ReturnID string `json:"return_id"`
	Amount   amount `json:"amount"`
}

type apiError struct {
	ErrorCode           string `json:"error_code"`
	SeverityCode        string `json:"severity_code"`
	ShortMessage        string `json:"short_message"`
	LongMessage         string `json:"long_message"`
	ErrorClassification string `json:"error_classification"`

	// set on codeDuplicateUUID
	ItemID    string     `json:"item_id,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

type errorResponse struct {
	Ack    string     `json:"ack"`
	Errors []apiError `json:"errors"`
}
