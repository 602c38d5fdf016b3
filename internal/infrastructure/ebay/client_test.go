package ebay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/domain/account"
	"github.com/Inventorum/ebay-sub000/internal/domain/listing"
	"github.com/Inventorum/ebay-sub000/internal/domain/marketplace"
	"github.com/Inventorum/ebay-sub000/internal/domain/order"
	"github.com/sebdah/goldie/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type recordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// fakeGateway answers every request with status and body and records it
type fakeGateway struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
	body     string
}

func (g *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	g.mu.Lock()
	g.requests = append(g.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Header: r.Header.Clone(), Body: body})
	status, resp := g.status, g.body
	g.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(resp))
}

func (g *fakeGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

func (g *fakeGateway) last(t *testing.T) recordedRequest {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	require.NotEmpty(t, g.requests)
	return g.requests[len(g.requests)-1]
}

func newTestClient(t *testing.T, status int, body string) (*Client, *fakeGateway) {
	t.Helper()
	gw := &fakeGateway{status: status, body: body}
	server := httptest.NewServer(gw)
	t.Cleanup(server.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.RequestsPerSecond = 1000
	client, err := NewClient(cfg, WithHTTPClient(server.Client()))
	require.NoError(t, err)
	return client, gw
}

const testRequestID = "5b0f6a3c-2f4e-4d8a-9c1b-7e2d3f4a5b6c"

func testAccount() *account.Account {
	return &account.Account{
		CoreAccountID:       "core-1",
		MarketplaceSellerID: "seller-1",
		MarketplaceToken:    "token-abc",
	}
}

func testSnapshot() listing.ListingSnapshot {
	return listing.ListingSnapshot{
		CoreProductID: "p-1",
		Title:         "Desk Lamp",
		GrossPrice:    decimal.RequireFromString("39.9"),
		Quantity:      decimal.NewFromInt(4),
		TaxRate:       decimal.NewFromInt(19),
		Currency:      "EUR",
		Country:       "DE",
		CategoryID:    "176973",
		ShippingServices: []account.ShippingService{
			{Code: "DE_DHLPaket", Cost: decimal.RequireFromString("4.90")},
		},
		PaymentMethods: []string{account.PaymentPayPal},
		PayPalEmail:    "paypal@test-shop.example",
		Images:         []string{"https://images.example/p-1.jpg"},
		Specifics:      []listing.ItemSpecific{{Name: "Brand", Values: []string{"Acme"}}},
	}
}

// canonicalJSON re-indents a request body with sorted keys
func canonicalJSON(t *testing.T, body []byte) []byte {
	t.Helper()
	var v map[string]any
	require.NoError(t, json.Unmarshal(body, &v))
	out, err := json.MarshalIndent(v, "", "  ")
	require.NoError(t, err)
	return out
}

// ---------------------------------------------------------------------------
// Config Tests
// ---------------------------------------------------------------------------

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "default config", mutate: func(c *Config) {}},
		{name: "missing base url", mutate: func(c *Config) { c.BaseURL = "" }, wantErr: true},
		{name: "base url not a url", mutate: func(c *Config) { c.BaseURL = "gateway" }, wantErr: true},
		{name: "non numeric site", mutate: func(c *Config) { c.SiteID = "DE" }, wantErr: true},
		{name: "zero rate", mutate: func(c *Config) { c.RequestsPerSecond = 0 }, wantErr: true},
		{name: "zero burst", mutate: func(c *Config) { c.Burst = 0 }, wantErr: true},
		{name: "timeout too long", mutate: func(c *Config) { c.TimeoutSeconds = 3600 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewClient_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseURL = ""
	_, err := NewClient(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// ---------------------------------------------------------------------------
// Listing Tests
// ---------------------------------------------------------------------------

func TestClient_PublishListing(t *testing.T) {
	client, gw := newTestClient(t, http.StatusCreated,
		`{"item_id":"110000000001","start_time":"2024-05-01T10:00:00Z","end_time":"2024-05-31T10:00:00Z"}`)

	got, err := client.PublishListing(context.Background(), testAccount(), testRequestID, testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, "110000000001", got.ItemID)
	assert.True(t, got.StartedAt.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))
	require.NotNil(t, got.EndsAt)

	req := gw.last(t)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/listings", req.Path)
	assert.Equal(t, "Bearer token-abc", req.Header.Get("Authorization"))
	assert.Equal(t, SiteGermany, req.Header.Get("X-EBAY-SITE-ID"))
	assert.Equal(t, "seller-1", req.Header.Get("X-EBAY-SELLER-ID"))

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "publish_listing_request", canonicalJSON(t, req.Body))
}

func TestClient_PublishListingWithVariations(t *testing.T) {
	client, gw := newTestClient(t, http.StatusCreated, `{"item_id":"110000000002","start_time":"2024-05-01T10:00:00Z"}`)

	snapshot := testSnapshot()
	snapshot.Variations = []listing.SnapshotVariation{{
		CoreProductID: "p-1-red",
		SKU:           "SKU-p-1-red",
		Name:          "Red",
		GrossPrice:    decimal.NewFromInt(41),
		Quantity:      decimal.NewFromInt(2),
		Specifics:     []listing.ItemSpecific{{Name: "Color", Values: []string{"Red"}}},
	}}

	got, err := client.PublishListing(context.Background(), testAccount(), testRequestID, snapshot)
	require.NoError(t, err)
	assert.Nil(t, got.EndsAt)

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "publish_listing_with_variations_request", canonicalJSON(t, gw.last(t).Body))
}

func TestClient_PublishListingErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "business error envelope",
			status: http.StatusBadRequest,
			body: `{"ack":"Failure","errors":[
				{"error_code":"21916","severity_code":"Error","short_message":"Invalid","long_message":"Category is not a leaf category","error_classification":"RequestError"},
				{"error_code":"21917","severity_code":"Warning","short_message":"Picture too small"}]}`,
			check: func(t *testing.T, err error) {
				be, ok := marketplace.AsBusinessError(err)
				require.True(t, ok)
				assert.Equal(t, "RequestError", be.Classification)
				assert.Equal(t, "21916", be.Code)
				require.Len(t, be.Messages, 2)
				assert.Equal(t, "Category is not a leaf category", be.Messages[0].Message)
				assert.Equal(t, "Picture too small", be.Messages[1].Message)
				assert.Equal(t, "Warning", be.Messages[1].Severity)
			},
		},
		{
			name:   "4xx without envelope",
			status: http.StatusForbidden,
			body:   `forbidden`,
			check: func(t *testing.T, err error) {
				be, ok := marketplace.AsBusinessError(err)
				require.True(t, ok)
				assert.Equal(t, "403", be.Code)
				assert.Equal(t, "forbidden", be.Messages[0].Message)
			},
		},
		{
			name:   "server error is retryable",
			status: http.StatusServiceUnavailable,
			body:   `{}`,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, marketplace.ErrMarketplaceUnavailable)
				_, ok := marketplace.AsBusinessError(err)
				assert.False(t, ok)
			},
		},
		{
			name:   "throttled is retryable",
			status: http.StatusTooManyRequests,
			body:   `{}`,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, marketplace.ErrMarketplaceUnavailable)
			},
		},
		{
			name:   "undecodable success",
			status: http.StatusOK,
			body:   `{"item_id":`,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, marketplace.ErrMarketplaceUnavailable)
			},
		},
		{
			name:   "success without item id",
			status: http.StatusOK,
			body:   `{"start_time":"2024-05-01T10:00:00Z"}`,
			check: func(t *testing.T, err error) {
				_, ok := marketplace.AsBusinessError(err)
				assert.True(t, ok)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, tt.status, tt.body)
			_, err := client.PublishListing(context.Background(), testAccount(), testRequestID, testSnapshot())
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestClient_PublishListingDuplicateRequest(t *testing.T) {
	t.Run("duplicate uuid returns the existing listing", func(t *testing.T) {
		client, gw := newTestClient(t, http.StatusConflict, `{"ack":"Failure","errors":[
			{"error_code":"488","severity_code":"Error","short_message":"Duplicate UUID","error_classification":"RequestError",
			 "item_id":"110000000077","start_time":"2024-05-01T10:00:00Z"}]}`)

		got, err := client.PublishListing(context.Background(), testAccount(), testRequestID, testSnapshot())
		require.NoError(t, err)
		assert.Equal(t, "110000000077", got.ItemID)
		assert.True(t, got.StartedAt.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))

		var sent map[string]any
		require.NoError(t, json.Unmarshal(gw.last(t).Body, &sent))
		assert.Equal(t, "5B0F6A3C2F4E4D8A9C1B7E2D3F4A5B6C", sent["uuid"])
	})

	t.Run("duplicate uuid without item id stays an error", func(t *testing.T) {
		client, _ := newTestClient(t, http.StatusConflict, `{"errors":[{"error_code":"488","short_message":"Duplicate UUID"}]}`)

		_, err := client.PublishListing(context.Background(), testAccount(), testRequestID, testSnapshot())
		be, ok := marketplace.AsBusinessError(err)
		require.True(t, ok)
		assert.Equal(t, "488", be.Code)
	})

	t.Run("empty request id is refused before calling", func(t *testing.T) {
		client, gw := newTestClient(t, http.StatusCreated, `{"item_id":"1"}`)

		_, err := client.PublishListing(context.Background(), testAccount(), "", testSnapshot())
		assert.ErrorIs(t, err, ErrInvalidRequest)
		assert.Zero(t, gw.count())
	})
}

func TestClient_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	server.Close()

	client, err := NewClient(cfg)
	require.NoError(t, err)
	err = client.EndListing(context.Background(), testAccount(), "110000000001")
	assert.ErrorIs(t, err, marketplace.ErrMarketplaceUnavailable)
}

func TestClient_EndListing(t *testing.T) {
	t.Run("ended", func(t *testing.T) {
		client, gw := newTestClient(t, http.StatusOK, `{"ack":"Success"}`)
		require.NoError(t, client.EndListing(context.Background(), testAccount(), "110000000001"))
		req := gw.last(t)
		assert.Equal(t, "/listings/110000000001/end", req.Path)
		assert.JSONEq(t, `{"ending_reason":"NotAvailable"}`, string(req.Body))
	})

	t.Run("already closed", func(t *testing.T) {
		client, _ := newTestClient(t, http.StatusBadRequest,
			`{"ack":"Failure","errors":[{"error_code":"1047","short_message":"The auction has already been closed."}]}`)
		err := client.EndListing(context.Background(), testAccount(), "110000000001")
		assert.ErrorIs(t, err, marketplace.ErrListingAlreadyEnded)
	})

	t.Run("empty id", func(t *testing.T) {
		client, _ := newTestClient(t, http.StatusOK, `{}`)
		assert.ErrorIs(t, client.EndListing(context.Background(), testAccount(), ""), ErrInvalidRequest)
	})
}

func TestClient_ReviseListing(t *testing.T) {
	client, gw := newTestClient(t, http.StatusOK, `{}`)
	require.NoError(t, client.ReviseListing(context.Background(), testAccount(), "110000000001", testSnapshot()))
	req := gw.last(t)
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/listings/110000000001", req.Path)
}

// ---------------------------------------------------------------------------
// Order Tests
// ---------------------------------------------------------------------------

func TestClient_OrderCalls(t *testing.T) {
	ctx := context.Background()
	client, gw := newTestClient(t, http.StatusOK, `{}`)

	require.NoError(t, client.PushOrderStatus(ctx, testAccount(), "12-34", order.OrderStatus{IsPaid: true, IsShipped: true}))
	req := gw.last(t)
	assert.Equal(t, "/orders/12-34/status", req.Path)
	assert.JSONEq(t, `{"paid":true,"shipped":true}`, string(req.Body))

	require.NoError(t, client.SendPickupEvent(ctx, testAccount(), "12-34", order.PickupReadyForPickup))
	req = gw.last(t)
	assert.Equal(t, "/orders/12-34/pickup-events", req.Path)
	assert.JSONEq(t, `{"event":"READY_FOR_PICKUP"}`, string(req.Body))

	require.NoError(t, client.IssueRefund(ctx, testAccount(), marketplace.Refund{
		OrderID:  "12-34",
		ReturnID: "ret-1",
		Amount:   decimal.RequireFromString("12.5"),
		Currency: "EUR",
	}))
	req = gw.last(t)
	assert.Equal(t, "/orders/12-34/refunds", req.Path)
	assert.JSONEq(t, `{"return_id":"ret-1","amount":{"value":"12.50","currency":"EUR"}}`, string(req.Body))
}

func TestClient_RejectsBadInput(t *testing.T) {
	ctx := context.Background()
	client, gw := newTestClient(t, http.StatusOK, `{}`)

	err := client.IssueRefund(ctx, testAccount(), marketplace.Refund{OrderID: "12-34", Amount: decimal.Zero})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	noToken := testAccount()
	noToken.MarketplaceToken = ""
	err = client.PushOrderStatus(ctx, noToken, "12-34", order.OrderStatus{})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	assert.Empty(t, gw.requests, "nothing is sent")
}

func TestClient_RateLimiterHonorsContext(t *testing.T) {
	gw := &fakeGateway{status: http.StatusOK, body: `{}`}
	server := httptest.NewServer(gw)
	defer server.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.RequestsPerSecond = 0.001
	cfg.Burst = 1
	client, err := NewClient(cfg)
	require.NoError(t, err)

	require.NoError(t, client.SendPickupEvent(context.Background(), testAccount(), "o-1", order.PickupPickedUp))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = client.SendPickupEvent(ctx, testAccount(), "o-1", order.PickupPickedUp)
	require.Error(t, err)
	assert.NotErrorIs(t, err, marketplace.ErrMarketplaceUnavailable)
	assert.Len(t, gw.requests, 1)
}

// newRecordingServer serves an empty delta page and hands each request to fn
func newRecordingServer(t *testing.T, fn func(r *http.Request)) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fn(r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"total":0,"data":[]}`))
	}))
	t.Cleanup(server.Close)
	return server.URL
}
