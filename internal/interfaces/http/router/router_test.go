package router

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Inventorum/ebay-sub000/internal/infrastructure/telemetry"
	"github.com/Inventorum/ebay-sub000/internal/interfaces/http/handler"
	"github.com/Inventorum/ebay-sub000/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubListings struct{ calls []string }

func (s *stubListings) Validate(c *gin.Context)  { s.record(c, "validate") }
func (s *stubListings) Publish(c *gin.Context)   { s.record(c, "publish") }
func (s *stubListings) Unpublish(c *gin.Context) { s.record(c, "unpublish") }

func (s *stubListings) record(c *gin.Context, name string) {
	s.calls = append(s.calls, name)
	c.Status(http.StatusAccepted)
}

type stubSync struct{ calls []string }

func (s *stubSync) Trigger(c *gin.Context) {
	s.calls = append(s.calls, "trigger:"+c.Param("kind"))
	c.Status(http.StatusAccepted)
}

func (s *stubSync) History(c *gin.Context) {
	s.calls = append(s.calls, "history")
	c.Status(http.StatusOK)
}

func perform(r http.Handler, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

// ----------------------------------------------------------------------------
// Engine
// ----------------------------------------------------------------------------

func TestNew_Routes(t *testing.T) {
	listings, sync := &stubListings{}, &stubSync{}
	engine, err := New(Options{
		Listings: listings,
		Sync:     sync,
		Health:   handler.NewHealthHandler("ebaysync", "test"),
	})
	require.NoError(t, err)

	acct := uuid.New()
	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodPost, fmt.Sprintf("/api/v1/accounts/%s/products/core-1/validate", acct), http.StatusAccepted},
		{http.MethodPost, fmt.Sprintf("/api/v1/accounts/%s/products/core-1/publish", acct), http.StatusAccepted},
		{http.MethodDelete, fmt.Sprintf("/api/v1/accounts/%s/listings/%s", acct, uuid.New()), http.StatusAccepted},
		{http.MethodPost, fmt.Sprintf("/api/v1/accounts/%s/sync/orders_from_core", acct), http.StatusAccepted},
		{http.MethodGet, fmt.Sprintf("/api/v1/accounts/%s/sync/jobs", acct), http.StatusOK},
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/api/v1/unknown", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := perform(engine, tt.method, tt.path)
			assert.Equal(t, tt.want, w.Code)
			assert.NotEmpty(t, w.Header().Get(middleware.HeaderRequestID))
			assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		})
	}

	assert.Equal(t, []string{"validate", "publish", "unpublish"}, listings.calls)
	assert.Equal(t, []string{"trigger:orders_from_core", "history"}, sync.calls)
}

func TestNew_Metrics(t *testing.T) {
	pm, err := telemetry.NewPrometheusMetrics(telemetry.PrometheusConfig{})
	require.NoError(t, err)
	engine, err := New(Options{Sync: &stubSync{}, Metrics: pm})
	require.NoError(t, err)

	perform(engine, http.MethodPost, fmt.Sprintf("/api/v1/accounts/%s/sync/orders_from_core", uuid.New()))
	w := perform(engine, http.MethodGet, "/metrics")

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, telemetry.MetricHTTPRequestsTotal))
	assert.Contains(t, body, `route="/api/v1/accounts/:account_id/sync/:kind"`)
	assert.Contains(t, body, "go_goroutines")
}

func TestNew_RateLimitPerAccount(t *testing.T) {
	engine, err := New(Options{
		Sync:        &stubSync{},
		RateLimiter: middleware.NewRateLimiter(0.001, 1),
	})
	require.NoError(t, err)

	target := fmt.Sprintf("/api/v1/accounts/%s/sync/orders_from_core", uuid.New())
	assert.Equal(t, http.StatusAccepted, perform(engine, http.MethodPost, target).Code)
	assert.Equal(t, http.StatusTooManyRequests, perform(engine, http.MethodPost, target).Code)

	other := fmt.Sprintf("/api/v1/accounts/%s/sync/orders_from_core", uuid.New())
	assert.Equal(t, http.StatusAccepted, perform(engine, http.MethodPost, other).Code)
}

func TestNew_UnhealthyCheck(t *testing.T) {
	health := handler.NewHealthHandler("ebaysync", "test").
		AddCheck("database", func(context.Context) error { return fmt.Errorf("connection refused") })
	engine, err := New(Options{Health: health})
	require.NoError(t, err)

	assert.Equal(t, http.StatusServiceUnavailable, perform(engine, http.MethodGet, "/healthz").Code)
}

// ----------------------------------------------------------------------------
// Router and DomainGroup
// ----------------------------------------------------------------------------

func TestRouterWithAPIVersion(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine, WithAPIVersion("v2"))

	group := NewDomainGroup("test", "/test")
	group.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.Register(group).Setup()

	w := perform(engine, http.MethodGet, "/api/v2/test/ping")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestDomainGroup_MiddlewareAndSubgroups(t *testing.T) {
	engine := gin.New()
	var order []string

	parent := NewDomainGroup("accounts", "/accounts/:account_id").Use(func(c *gin.Context) {
		order = append(order, "parent")
		c.Next()
	})
	child := parent.Group("sync", "/sync").Use(func(c *gin.Context) {
		order = append(order, "child")
		c.Next()
	})
	child.POST("/:kind", func(c *gin.Context) {
		order = append(order, c.Param("account_id")+"/"+c.Param("kind"))
		c.Status(http.StatusAccepted)
	})

	NewRouter(engine).Register(parent).Setup()
	w := perform(engine, http.MethodPost, "/api/v1/accounts/a1/sync/orders_from_core")

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"parent", "child", "a1/orders_from_core"}, order)
	assert.Equal(t, "accounts", parent.Name())
	assert.Equal(t, "/sync", child.Prefix())
}
