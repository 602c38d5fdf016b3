package telemetry

import (
	"context"
	"maps"
	"sort"
	"strings"

	"github.com/grafana/pyroscope-go"
)

// Profiling label keys.
const (
	ProfilingLabelRoute     = "route"
	ProfilingLabelMethod    = "method"
	ProfilingLabelAccountID = "account_id"
	ProfilingLabelSyncKind  = "sync_kind"
	ProfilingLabelTaskKind  = "task_kind"
	ProfilingLabelOperation = "operation"
)

// MaxLabelValueLength is the maximum allowed length for label values
const MaxLabelValueLength = 128

// HighCardinalityLabels are never attached to profiles.
//
// account_id is allowed: merchants number in the hundreds, not millions.
var HighCardinalityLabels = map[string]bool{
	"request_id": true,
	"item_id":    true,
	"order_id":   true,
	"trace_id":   true,
	"span_id":    true,
}

// WithProfilingLabels runs fn with Pyroscope labels attached to ctx. The
// labels map is copied, so callers may reuse it.
func WithProfilingLabels(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	if len(labels) == 0 {
		fn(ctx)
		return
	}

	labelPairs := sanitizeLabels(maps.Clone(labels))
	if len(labelPairs) == 0 {
		fn(ctx)
		return
	}

	pyroscope.TagWrapper(ctx, pyroscope.Labels(labelPairs...), fn)
}

// sanitizeLabels drops empty and high-cardinality labels, truncates long
// values and returns sorted key-value pairs.
func sanitizeLabels(labels map[string]string) []string {
	if len(labels) == 0 {
		return nil
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(labels)*2)
	for _, key := range keys {
		value := labels[key]
		if key == "" || value == "" || HighCardinalityLabels[key] {
			continue
		}
		if len(value) > MaxLabelValueLength {
			value = value[:MaxLabelValueLength]
		}
		sanitizedKey := sanitizeLabelKey(key)
		if sanitizedKey == "" {
			continue
		}
		pairs = append(pairs, sanitizedKey, value)
	}
	return pairs
}

// sanitizeLabelKey ensures label keys follow the snake_case convention.
func sanitizeLabelKey(key string) string {
	key = strings.ToLower(key)
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, "-", "_")

	result := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' {
			result = append(result, c)
		}
	}
	return string(result)
}

// HTTPRequestLabels creates the labels of one HTTP request
func HTTPRequestLabels(route, method, accountID string) map[string]string {
	labels := make(map[string]string, 3)
	if route != "" {
		labels[ProfilingLabelRoute] = route
	}
	if method != "" {
		labels[ProfilingLabelMethod] = method
	}
	if accountID != "" {
		labels[ProfilingLabelAccountID] = accountID
	}
	return labels
}

// RunLabels creates the labels of one reconciliation run
func RunLabels(accountID, kind string) map[string]string {
	return map[string]string{
		ProfilingLabelOperation: "sync_run",
		ProfilingLabelAccountID: accountID,
		ProfilingLabelSyncKind:  kind,
	}
}

// TaskLabels creates the labels of one side-effect task execution
func TaskLabels(taskKind string) map[string]string {
	return map[string]string{
		ProfilingLabelOperation: "side_effect",
		ProfilingLabelTaskKind:  taskKind,
	}
}
