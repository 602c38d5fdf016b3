// Package middleware provides the HTTP middleware of the sync API.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	ServiceName string
	Enabled     bool
	// SkipPaths are served without a span
	SkipPaths []string
}

// DefaultTracingConfig returns default tracing configuration.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: "ebaysync",
		Enabled:     true,
		SkipPaths:   []string{"/healthz", "/metrics"},
	}
}

// Tracing wraps otelgin and enriches the server span with request_id,
// account_id and sync kind. Span names follow the route pattern, e.g.
// "POST /api/v1/accounts/:account_id/sync/:kind".
func Tracing(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}
	base := otelgin.Middleware(cfg.ServiceName)

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}
		base(c)
	}
}

// SpanAttributes copies request identifiers onto the active span. It must
// run after Tracing in the chain.
func SpanAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			enrichSpan(c, span)
		}
		c.Next()
	}
}

func enrichSpan(c *gin.Context, span trace.Span) {
	if id := GetRequestID(c); id != "" {
		span.SetAttributes(attribute.String("request_id", id))
	}
	if raw := c.Param("account_id"); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			span.SetAttributes(attribute.String("account_id", id.String()))
		}
	}
	if kind := c.Param("kind"); kind != "" {
		span.SetAttributes(attribute.String("sync.kind", kind))
	}
}

// SpanErrorMarker marks the span as failed for 5xx answers and records the
// status of every 4xx and 5xx answer.
func SpanErrorMarker() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}
		status := c.Writer.Status()
		if status < http.StatusBadRequest {
			return
		}
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
