package middleware

import (
	"strconv"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
)

// unmatchedRoute labels requests no route matched, keeping path cardinality
// out of the series.
const unmatchedRoute = "unmatched"

// HTTPMetrics records request count, latency and in-flight requests on the
// Prometheus registry. Scrapes of /metrics itself are not counted.
func HTTPMetrics(pm *telemetry.PrometheusMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		pm.RequestStarted()
		defer func() {
			route := c.FullPath()
			if route == "" {
				route = unmatchedRoute
			}
			pm.RequestFinished(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
		}()
		c.Next()
	}
}
