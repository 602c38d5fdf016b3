// Package ebay is the HTTP adapter for the marketplace port.
package ebay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/domain/account"
	"github.com/Inventorum/ebay-sub000/internal/domain/listing"
	"github.com/Inventorum/ebay-sub000/internal/domain/marketplace"
	"github.com/Inventorum/ebay-sub000/internal/domain/order"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrInvalidRequest is returned before any call is made
var ErrInvalidRequest = errors.New("ebay: invalid request")

// Client implements marketplace.Client over the eBay gateway API
type Client struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the request logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client after validating config
func NewClient(config Config, opts ...Option) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// PublishListing implements marketplace.Client. requestID travels as the
// listing UUID; when the gateway reports that UUID as already used, the
// listing it names is returned instead of an error.
func (c *Client) PublishListing(ctx context.Context, acct *account.Account, requestID string, snapshot listing.ListingSnapshot) (*marketplace.Listing, error) {
	if requestID == "" {
		return nil, fmt.Errorf("%w: empty request id", ErrInvalidRequest)
	}
	req := newListingRequest(snapshot)
	req.UUID = listingUUID(requestID)

	status, body, err := c.roundTrip(ctx, acct, http.MethodPost, "/listings", req)
	if err != nil {
		return nil, err
	}
	if existing, ok := duplicateListing(status, body); ok {
		c.logger.Info("Listing already created for request",
			zap.String("request_id", requestID),
			zap.String("item_id", existing.ItemID),
		)
		return existing, nil
	}
	body, err = classify(status, body)
	if err != nil {
		return nil, err
	}

	var resp listingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response: %v", marketplace.ErrMarketplaceUnavailable, err)
	}
	if resp.ItemID == "" {
		return nil, &marketplace.BusinessError{
			Classification: "SystemError",
			Code:           "missing_item_id",
			Messages:       []marketplace.Message{{Severity: "Error", Message: "publish answer carries no item id"}},
		}
	}
	return &marketplace.Listing{ItemID: resp.ItemID, StartedAt: resp.StartTime, EndsAt: resp.EndTime}, nil
}

// listingUUID turns a request id into the 32 hex digit listing UUID
func listingUUID(requestID string) string {
	return strings.ToUpper(strings.ReplaceAll(requestID, "-", ""))
}

// duplicateListing finds the listing named by a duplicate UUID rejection
func duplicateListing(status int, body []byte) (*marketplace.Listing, bool) {
	if status < 400 || status >= 500 {
		return nil, false
	}
	var env errorResponse
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, false
	}
	for _, e := range env.Errors {
		if e.ErrorCode == codeDuplicateUUID && e.ItemID != "" {
			l := &marketplace.Listing{ItemID: e.ItemID, EndsAt: e.EndTime}
			if e.StartTime != nil {
				l.StartedAt = *e.StartTime
			}
			return l, true
		}
	}
	return nil, false
}

// EndListing implements marketplace.Client. An already closed listing maps
// to marketplace.ErrListingAlreadyEnded.
func (c *Client) EndListing(ctx context.Context, acct *account.Account, itemID string) error {
	if itemID == "" {
		return fmt.Errorf("%w: empty item id", ErrInvalidRequest)
	}
	err := c.doRequest(ctx, acct, http.MethodPost, "/listings/"+url.PathEscape(itemID)+"/end", endListingRequest{Reason: "NotAvailable"}, nil)
	if be, ok := marketplace.AsBusinessError(err); ok && hasCode(be, codeAuctionClosed) {
		return fmt.Errorf("%w: %s", marketplace.ErrListingAlreadyEnded, itemID)
	}
	return err
}

// ReviseListing implements marketplace.Client
func (c *Client) ReviseListing(ctx context.Context, acct *account.Account, itemID string, snapshot listing.ListingSnapshot) error {
	if itemID == "" {
		return fmt.Errorf("%w: empty item id", ErrInvalidRequest)
	}
	return c.doRequest(ctx, acct, http.MethodPut, "/listings/"+url.PathEscape(itemID), newListingRequest(snapshot), nil)
}

// PushOrderStatus implements marketplace.Client
func (c *Client) PushOrderStatus(ctx context.Context, acct *account.Account, orderID string, status order.OrderStatus) error {
	if orderID == "" {
		return fmt.Errorf("%w: empty order id", ErrInvalidRequest)
	}
	body := orderStatusRequest{Paid: status.IsPaid, Shipped: status.IsShipped}
	return c.doRequest(ctx, acct, http.MethodPost, "/orders/"+url.PathEscape(orderID)+"/status", body, nil)
}

// SendPickupEvent implements marketplace.Client
func (c *Client) SendPickupEvent(ctx context.Context, acct *account.Account, orderID string, event order.PickupEvent) error {
	if orderID == "" {
		return fmt.Errorf("%w: empty order id", ErrInvalidRequest)
	}
	body := pickupEventRequest{Event: string(event)}
	return c.doRequest(ctx, acct, http.MethodPost, "/orders/"+url.PathEscape(orderID)+"/pickup-events", body, nil)
}

// IssueRefund implements marketplace.Client
func (c *Client) IssueRefund(ctx context.Context, acct *account.Account, refund marketplace.Refund) error {
	if refund.OrderID == "" || !refund.Amount.IsPositive() {
		return fmt.Errorf("%w: refund needs an order and a positive amount", ErrInvalidRequest)
	}
	body := refundRequest{
		ReturnID: refund.ReturnID,
		Amount:   amount{Value: refund.Amount.StringFixed(2), Currency: refund.Currency},
	}
	return c.doRequest(ctx, acct, http.MethodPost, "/orders/"+url.PathEscape(refund.OrderID)+"/refunds", body, nil)
}

// doRequest sends body as JSON and decodes a 2xx answer into out
func (c *Client) doRequest(ctx context.Context, acct *account.Account, method, path string, body, out any) error {
	respBody, err := c.send(ctx, acct, method, path, body)
	if err != nil {
		return err
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: failed to parse response: %v", marketplace.ErrMarketplaceUnavailable, err)
	}
	return nil
}

// send performs one call and returns the 2xx body
func (c *Client) send(ctx context.Context, acct *account.Account, method, path string, body any) ([]byte, error) {
	status, respBody, err := c.roundTrip(ctx, acct, method, path, body)
	if err != nil {
		return nil, err
	}
	return classify(status, respBody)
}

// classify maps an answer onto the error contract: 429 and 5xx wrap
// marketplace.ErrMarketplaceUnavailable, other 4xx answers become a
// *marketplace.BusinessError.
func classify(status int, body []byte) ([]byte, error) {
	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		return nil, fmt.Errorf("%w: HTTP %d", marketplace.ErrMarketplaceUnavailable, status)
	case status >= 400:
		return nil, businessError(status, body)
	}
	return body, nil
}

// roundTrip performs one rate limited call. Only transport failures are
// errors here.
func (c *Client) roundTrip(ctx context.Context, acct *account.Account, method, path string, body any) (int, []byte, error) {
	if acct == nil || acct.MarketplaceToken == "" {
		return 0, nil, fmt.Errorf("%w: account has no marketplace token", ErrInvalidRequest)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, fmt.Errorf("ebay: rate limiter: %w", err)
	}

	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("ebay: failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.config.BaseURL, "/")+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("ebay: failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+acct.MarketplaceToken)
	req.Header.Set("X-EBAY-SITE-ID", c.config.SiteID)
	req.Header.Set("X-EBAY-SELLER-ID", acct.MarketplaceSellerID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", marketplace.ErrMarketplaceUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: failed to read response: %v", marketplace.ErrMarketplaceUnavailable, err)
	}

	c.logger.Debug("ebay request",
		zap.String("method", method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	return resp.StatusCode, respBody, nil
}

// businessError decodes an error envelope. Answers without one still become
// a business error carrying the HTTP status as code.
func businessError(status int, body []byte) *marketplace.BusinessError {
	var env errorResponse
	if err := json.Unmarshal(body, &env); err != nil || len(env.Errors) == 0 {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return &marketplace.BusinessError{
			Classification: "RequestError",
			Code:           strconv.Itoa(status),
			Messages:       []marketplace.Message{{Severity: "Error", Message: msg}},
		}
	}

	be := &marketplace.BusinessError{
		Classification: env.Errors[0].ErrorClassification,
		Code:           env.Errors[0].ErrorCode,
		Messages:       make([]marketplace.Message, 0, len(env.Errors)),
	}
	if be.Classification == "" {
		be.Classification = "RequestError"
	}
	for _, e := range env.Errors {
		text := e.LongMessage
		if text == "" {
			text = e.ShortMessage
		}
		be.Messages = append(be.Messages, marketplace.Message{Code: e.ErrorCode, Severity: e.SeverityCode, Message: text})
	}
	return be
}

func hasCode(be *marketplace.BusinessError, code string) bool {
	if be.Code == code {
		return true
	}
	for _, m := range be.Messages {
		if m.Code == code {
			return true
		}
	}
	return false
}

func newListingRequest(s listing.ListingSnapshot) listingRequest {
	req := listingRequest{
		SKU:            s.CoreProductID,
		Title:          s.Title,
		Description:    s.Description,
		CategoryID:     s.CategoryID,
		Country:        s.Country,
		Currency:       s.Currency,
		StartPrice:     s.GrossPrice.StringFixed(2),
		Quantity:       s.Quantity.IntPart(),
		VATPercent:     s.TaxRate.StringFixed(2),
		PictureURLs:    s.Images,
		PaymentMethods: s.PaymentMethods,
		PayPalEmail:    s.PayPalEmail,
		PickupInStore:  s.PickupEnabled,
		ItemSpecifics:  specifics(s.Specifics),
	}
	for i, svc := range s.ShippingServices {
		req.ShippingServices = append(req.ShippingServices, shippingServiceOption{
			Service:        svc.Code,
			Cost:           svc.Cost.StringFixed(2),
			AdditionalCost: svc.AdditionalCost.StringFixed(2),
			Priority:       i + 1,
		})
	}
	for _, v := range s.Variations {
		req.Variations = append(req.Variations, variationRequest{
			SKU:        v.SKU,
			StartPrice: v.GrossPrice.StringFixed(2),
			Quantity:   v.Quantity.IntPart(),
			Specifics:  specifics(v.Specifics),
		})
	}
	return req
}

func specifics(in []listing.ItemSpecific) []nameValueList {
	if len(in) == 0 {
		return nil
	}
	out := make([]nameValueList, 0, len(in))
	for _, s := range in {
		out = append(out, nameValueList{Name: s.Name, Values: s.Values})
	}
	return out
}

var _ marketplace.Client = (*Client)(nil)
