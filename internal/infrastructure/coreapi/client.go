// Package coreapi is the HTTP adapter for the core commerce platform: the
// core.Client port and the core delta feeds.
package coreapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/domain/core"
	"github.com/Inventorum/ebay-sub000/internal/domain/listing"
	"github.com/Inventorum/ebay-sub000/internal/domain/order"
	"github.com/Inventorum/ebay-sub000/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Client implements core.Client
type Client struct {
	config     Config
	httpClient *http.Client
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
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type createdOrderResponse struct {
	ID          string `json:"id"`
	BasketItems []struct {
		ID            string `json:"id"`
		ChannelLineID string `json:"channel_line_id"`
	} `json:"basket_items"`
}

type orderStateRequest struct {
	State uint `json:"state"`
}

type productResponse struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	GrossPrice  decimal.Decimal        `json:"gross_price"`
	Quantity    decimal.Decimal        `json:"quantity"`
	TaxRate     decimal.Decimal        `json:"tax_rate"`
	CategoryID  string                 `json:"ebay_category_id"`
	Images      []string               `json:"images"`
	Specifics   []listing.ItemSpecific `json:"specifics"`
	Variations  []struct {
		ID         string                 `json:"id"`
		Name       string                 `json:"name"`
		GrossPrice decimal.Decimal        `json:"gross_price"`
		Quantity   decimal.Decimal        `json:"quantity"`
		SKU        string                 `json:"sku"`
		Specifics  []listing.ItemSpecific `json:"specifics"`
	} `json:"variations"`
}

// PushProductState implements core.Client
func (c *Client) PushProductState(ctx context.Context, coreAccountID, coreProductID string, state core.ProductState) error {
	path := "/accounts/" + url.PathEscape(coreAccountID) + "/products/" + url.PathEscape(coreProductID) + "/channel-state"
	return c.doRequest(ctx, coreAccountID, http.MethodPut, path, state, nil)
}

// CreateOrder implements core.Client
func (c *Client) CreateOrder(ctx context.Context, coreAccountID string, o core.NewOrder) (*core.CreatedOrder, error) {
	var resp createdOrderResponse
	if err := c.doRequest(ctx, coreAccountID, http.MethodPost, "/accounts/"+url.PathEscape(coreAccountID)+"/orders", o, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("%w: created order carries no id", core.ErrCoreUnavailable)
	}
	return resp.toCreated(), nil
}

// FindOrder implements core.Client
func (c *Client) FindOrder(ctx context.Context, coreAccountID, marketplaceOrderID string) (*core.CreatedOrder, error) {
	query := url.Values{}
	query.Set("channel", core.ChannelEbay)
	query.Set("channel_order_id", marketplaceOrderID)
	body, err := c.send(ctx, coreAccountID, http.MethodGet, "/accounts/"+url.PathEscape(coreAccountID)+"/orders", query, nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Data []createdOrderResponse `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response: %v", core.ErrCoreUnavailable, err)
	}
	for _, o := range resp.Data {
		if o.ID != "" {
			return o.toCreated(), nil
		}
	}
	return nil, fmt.Errorf("%w: core order for %s", shared.ErrNotFound, marketplaceOrderID)
}

func (r createdOrderResponse) toCreated() *core.CreatedOrder {
	created := &core.CreatedOrder{CoreID: r.ID, LineItemIDs: make(map[string]string, len(r.BasketItems))}
	for _, item := range r.BasketItems {
		if item.ChannelLineID != "" {
			created.LineItemIDs[item.ChannelLineID] = item.ID
		}
	}
	return created
}

// UpdateOrderStatus implements core.Client
func (c *Client) UpdateOrderStatus(ctx context.Context, coreAccountID, coreOrderID string, status order.OrderStatus) error {
	path := "/accounts/" + url.PathEscape(coreAccountID) + "/orders/" + url.PathEscape(coreOrderID)
	return c.doRequest(ctx, coreAccountID, http.MethodPatch, path, orderStateRequest{State: status.Encode()}, nil)
}

// GetProduct implements core.Client
func (c *Client) GetProduct(ctx context.Context, coreAccountID, coreProductID string) (*core.Product, error) {
	var resp productResponse
	path := "/accounts/" + url.PathEscape(coreAccountID) + "/products/" + url.PathEscape(coreProductID)
	if err := c.doRequest(ctx, coreAccountID, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	p := &core.Product{
		ID:          resp.ID,
		Name:        resp.Name,
		Description: resp.Description,
		GrossPrice:  resp.GrossPrice,
		Quantity:    resp.Quantity,
		TaxRate:     resp.TaxRate,
		CategoryID:  resp.CategoryID,
		Images:      resp.Images,
		Specifics:   resp.Specifics,
	}
	if p.ID == "" {
		p.ID = coreProductID
	}
	for _, v := range resp.Variations {
		p.Variations = append(p.Variations, core.ProductVariation{
			ID:         v.ID,
			Name:       v.Name,
			GrossPrice: v.GrossPrice,
			Quantity:   v.Quantity,
			SKU:        v.SKU,
			Specifics:  v.Specifics,
		})
	}
	return p, nil
}

// doRequest sends body as JSON and decodes a 2xx answer into out
func (c *Client) doRequest(ctx context.Context, coreAccountID, method, path string, body, out any) error {
	respBody, err := c.send(ctx, coreAccountID, method, path, nil, body)
	if err != nil {
		return err
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: failed to parse response: %v", core.ErrCoreUnavailable, err)
	}
	return nil
}

// send performs one call and returns the 2xx body. 404 wraps
// shared.ErrNotFound, other 4xx wrap core.ErrCoreRejected, transport
// failures and 5xx wrap core.ErrCoreUnavailable.
func (c *Client) send(ctx context.Context, coreAccountID, method, path string, query url.Values, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("coreapi: failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	target := strings.TrimRight(c.config.BaseURL, "/") + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, fmt.Errorf("coreapi: failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("X-Core-Account", coreAccountID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrCoreUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", core.ErrCoreUnavailable, err)
	}

	c.logger.Debug("core request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: core %s %s", shared.ErrNotFound, method, path)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: HTTP %d", core.ErrCoreUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: HTTP %d: %s", core.ErrCoreRejected, resp.StatusCode, truncate(respBody, 200))
	}
	return respBody, nil
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n]
	}
	return s
}

var _ core.Client = (*Client)(nil)
