// Package router assembles the gin engine of the sync API.
package router

import (
	"net/http"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/infrastructure/logger"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/telemetry"
	"github.com/Inventorum/ebay-sub000/internal/interfaces/http/dto"
	"github.com/Inventorum/ebay-sub000/internal/interfaces/http/handler"
	"github.com/Inventorum/ebay-sub000/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Options holds everything the engine routes to. Metrics and RateLimiter
// are optional.
type Options struct {
	ServiceName string
	Logger      *zap.Logger

	Listings ListingRoutes
	Sync     SyncRoutes
	Health   *handler.HealthHandler

	Metrics        *telemetry.PrometheusMetrics
	RateLimiter    *middleware.RateLimiter
	Tracing        bool
	Profiling      bool
	MaxBodySize    int64
	RequestTimeout time.Duration
	TrustedProxies []string
}

// ListingRoutes is served under /api/v1/accounts/:account_id
type ListingRoutes interface {
	Validate(c *gin.Context)
	Publish(c *gin.Context)
	Unpublish(c *gin.Context)
}

// SyncRoutes is served under /api/v1/accounts/:account_id/sync
type SyncRoutes interface {
	Trigger(c *gin.Context)
	History(c *gin.Context)
}

// New builds the engine: global middleware first, then /healthz, /metrics
// and the versioned account routes.
func New(opts Options) (*gin.Engine, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "ebaysync"
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, err
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(opts.Logger))
	engine.Use(logger.GinMiddleware(opts.Logger))
	if opts.Metrics != nil {
		engine.Use(middleware.HTTPMetrics(opts.Metrics))
	}
	tracing := middleware.DefaultTracingConfig()
	tracing.ServiceName = opts.ServiceName
	tracing.Enabled = opts.Tracing
	engine.Use(middleware.Tracing(tracing), middleware.SpanErrorMarker())
	profiling := middleware.DefaultProfilingConfig()
	profiling.Enabled = opts.Profiling
	engine.Use(middleware.Profiling(profiling))
	engine.Use(middleware.Secure())
	if opts.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(opts.MaxBodySize))
	}

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, dto.NewErrorResponseWithRequestID(dto.ErrCodeNotFound, "route not found", middleware.GetRequestID(c)))
	})

	if opts.Health != nil {
		engine.GET("/healthz", opts.Health.Health)
	}
	if opts.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Metrics.Registry(), promhttp.HandlerOpts{
			Registry: opts.Metrics.Registry(),
		})))
	}

	r := NewRouter(engine, WithAPIVersion("v1"))
	accounts := NewDomainGroup("accounts", "/accounts/:account_id").
		Use(middleware.SpanAttributes(), middleware.Timeout(opts.RequestTimeout))
	if opts.RateLimiter != nil {
		accounts.Use(middleware.RateLimit(opts.RateLimiter, middleware.KeyByAccount))
	}
	if opts.Listings != nil {
		accounts.POST("/products/:product_id/validate", opts.Listings.Validate)
		accounts.POST("/products/:product_id/publish", opts.Listings.Publish)
		accounts.DELETE("/listings/:item_id", opts.Listings.Unpublish)
	}
	if opts.Sync != nil {
		sync := accounts.Group("sync", "/sync")
		sync.GET("/jobs", opts.Sync.History)
		sync.POST("/:kind", opts.Sync.Trigger)
	}
	r.Register(accounts)
	r.Setup()

	return engine, nil
}

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router manages HTTP route registration
type Router struct {
	engine     *gin.Engine
	apiVersion string
	registrars []RouteRegistrar
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix (e.g., "v1", "v2")
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{engine: engine, apiVersion: "v1"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a RouteRegistrar to be registered on Setup
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Setup registers all routes under /api/<version>
func (r *Router) Setup() {
	api := r.engine.Group("/api/" + r.apiVersion)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
}

// DomainGroup collects the routes and middleware of one resource
type DomainGroup struct {
	name       string
	prefix     string
	routes     []routeDefinition
	subgroups  []*DomainGroup
	middleware []gin.HandlerFunc
}

type routeDefinition struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

// NewDomainGroup creates a new route group
func NewDomainGroup(name, prefix string) *DomainGroup {
	return &DomainGroup{name: name, prefix: prefix}
}

// Use adds middleware to this group and its subgroups
func (dg *DomainGroup) Use(middleware ...gin.HandlerFunc) *DomainGroup {
	dg.middleware = append(dg.middleware, middleware...)
	return dg
}

// GET registers a GET route
func (dg *DomainGroup) GET(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodGet, path, handlers)
}

// POST registers a POST route
func (dg *DomainGroup) POST(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodPost, path, handlers)
}

// DELETE registers a DELETE route
func (dg *DomainGroup) DELETE(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodDelete, path, handlers)
}

func (dg *DomainGroup) handle(method, path string, handlers []gin.HandlerFunc) *DomainGroup {
	dg.routes = append(dg.routes, routeDefinition{method: method, path: path, handlers: handlers})
	return dg
}

// Group creates a sub-group within this group
func (dg *DomainGroup) Group(name, prefix string) *DomainGroup {
	subgroup := NewDomainGroup(name, prefix)
	dg.subgroups = append(dg.subgroups, subgroup)
	return subgroup
}

// RegisterRoutes implements RouteRegistrar
func (dg *DomainGroup) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group(dg.prefix)
	if len(dg.middleware) > 0 {
		group.Use(dg.middleware...)
	}
	for _, route := range dg.routes {
		group.Handle(route.method, route.path, route.handlers...)
	}
	for _, subgroup := range dg.subgroups {
		subgroup.RegisterRoutes(group)
	}
}

// Name returns the group name
func (dg *DomainGroup) Name() string {
	return dg.name
}

// Prefix returns the group prefix
func (dg *DomainGroup) Prefix() string {
	return dg.prefix
}
