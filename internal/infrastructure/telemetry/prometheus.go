package telemetry

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// Prometheus metric names.
const (
	MetricHTTPRequestsTotal   = "ebaysync_http_requests_total"
	MetricHTTPRequestDuration = "ebaysync_http_request_duration_seconds"
	MetricHTTPInFlight        = "ebaysync_http_requests_in_flight"
	MetricTaskBacklog         = "ebaysync_task_backlog"
)

// PrometheusConfig holds configuration for the scrape registry.
type PrometheusConfig struct {
	// HistogramBuckets are the buckets for request duration.
	// Default: prometheus.DefBuckets
	HistogramBuckets []float64
	// BacklogTimeout bounds one backlog query during a scrape.
	// Default: 2s
	BacklogTimeout time.Duration
	// Tasks reports the side-effect task backlog. Optional.
	Tasks TaskStatsProvider
	Logger *zap.Logger
}

// PrometheusMetrics is the registry served on /metrics together with the
// HTTP instruments that feed it.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
}

// NewPrometheusMetrics creates a dedicated registry with Go and process
// collectors, the HTTP instruments and, when a provider is set, the task
// backlog read at scrape time.
func NewPrometheusMetrics(cfg PrometheusConfig) (*PrometheusMetrics, error) {
	if len(cfg.HistogramBuckets) == 0 {
		cfg.HistogramBuckets = prometheus.DefBuckets
	}
	if cfg.BacklogTimeout <= 0 {
		cfg.BacklogTimeout = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	pm := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricHTTPRequestsTotal,
			Help: "Total HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricHTTPRequestDuration,
			Help:    "HTTP request duration in seconds.",
			Buckets: cfg.HistogramBuckets,
		}, []string{"method", "route"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricHTTPInFlight,
			Help: "HTTP requests currently being served.",
		}),
	}

	cs := []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		pm.requestsTotal,
		pm.requestDuration,
		pm.inFlight,
	}
	if cfg.Tasks != nil {
		cs = append(cs, &taskBacklogCollector{
			provider: cfg.Tasks,
			timeout:  cfg.BacklogTimeout,
			logger:   cfg.Logger,
			desc: prometheus.NewDesc(MetricTaskBacklog,
				"Side-effect tasks per status.", []string{"status"}, nil),
		})
	}
	for _, c := range cs {
		if err := pm.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return pm, nil
}

// Registry returns the registry to serve
func (pm *PrometheusMetrics) Registry() *prometheus.Registry {
	return pm.registry
}

// RequestStarted increments the in-flight gauge
func (pm *PrometheusMetrics) RequestStarted() {
	pm.inFlight.Inc()
}

// RequestFinished records one served request
func (pm *PrometheusMetrics) RequestFinished(method, route, status string, d time.Duration) {
	pm.inFlight.Dec()
	pm.requestsTotal.WithLabelValues(method, route, status).Inc()
	pm.requestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// taskBacklogCollector queries the task store on every scrape
type taskBacklogCollector struct {
	provider TaskStatsProvider
	timeout  time.Duration
	logger   *zap.Logger
	desc     *prometheus.Desc
}

func (c *taskBacklogCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *taskBacklogCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	counts, err := c.provider.CountTasksByStatus(ctx)
	if err != nil {
		c.logger.Warn("Failed to count tasks for scrape", zap.Error(err))
		return
	}
	for status, n := range counts {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(n), status)
	}
}
