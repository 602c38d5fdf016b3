package telemetry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTaskStats struct {
	counts map[string]int64
	err    error
}

func (s stubTaskStats) CountTasksByStatus(context.Context) (map[string]int64, error) {
	return s.counts, s.err
}

func TestNewPrometheusMetrics_RecordsRequests(t *testing.T) {
	pm, err := NewPrometheusMetrics(PrometheusConfig{})
	require.NoError(t, err)

	pm.RequestStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.inFlight))

	pm.RequestFinished("POST", "/api/v1/accounts/:account_id/sync/:kind", "202", 20*time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(pm.inFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		pm.requestsTotal.WithLabelValues("POST", "/api/v1/accounts/:account_id/sync/:kind", "202")))
	assert.Equal(t, 1, testutil.CollectAndCount(pm.requestDuration))
}

func TestNewPrometheusMetrics_TaskBacklog(t *testing.T) {
	pm, err := NewPrometheusMetrics(PrometheusConfig{
		Tasks: stubTaskStats{counts: map[string]int64{"pending": 3, "dead": 1}},
	})
	require.NoError(t, err)

	expected := `
# HELP ebaysync_task_backlog Side-effect tasks per status.
# TYPE ebaysync_task_backlog gauge
ebaysync_task_backlog{status="dead"} 1
ebaysync_task_backlog{status="pending"} 3
`
	require.NoError(t, testutil.GatherAndCompare(pm.Registry(), strings.NewReader(expected), MetricTaskBacklog))
}

func TestNewPrometheusMetrics_TaskBacklogError(t *testing.T) {
	pm, err := NewPrometheusMetrics(PrometheusConfig{
		Tasks: stubTaskStats{err: errors.New("db down")},
	})
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(pm.Registry(), MetricTaskBacklog)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestNewPrometheusMetrics_GoCollectors(t *testing.T) {
	pm, err := NewPrometheusMetrics(PrometheusConfig{})
	require.NoError(t, err)

	families, err := pm.Registry().Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "go_goroutines")
}
