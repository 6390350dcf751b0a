package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for stock operations
const (
	OutcomeSuccess   = "success"
	OutcomeRejected  = "rejected"
	OutcomeConflict  = "conflict"
	OutcomeNotFound  = "not_found"
	OutcomeTimeout   = "timeout"
	OutcomeError     = "error"
	OutcomeDuplicate = "duplicate"
)

var (
	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	StockOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_operations_total",
			Help: "Stock operations by kind and outcome",
		},
		[]string{"operation", "outcome"},
	)
	VersionConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_version_conflicts_total",
			Help: "Conditional writes that lost their race",
		},
		[]string{"operation"},
	)
	StoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stock_store_duration_seconds",
			Help:    "Latency of stock store calls",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"call"},
	)
	BulkCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_bulk_cache_lookups_total",
			Help: "Bulk cache lookups per product id",
		},
		[]string{"result"},
	)
	StateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_state_changes_total",
			Help: "Stock state transitions emitted to the notification sink",
		},
		[]string{"new_state"},
	)
	NotificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_notification_failures_total",
			Help: "Notifications that could not be delivered",
		},
		[]string{"sink"},
	)
	AlertsHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_alerts_handled_total",
			Help: "State change events handled by the alerts processor",
		},
		[]string{"new_state", "outcome"},
	)
)

// ObserveStoreCall records the latency of one store call
func ObserveStoreCall(call string, start time.Time) {
	StoreDuration.WithLabelValues(call).Observe(time.Since(start).Seconds())
}

// NormalizePath keeps at most three path segments and replaces numeric ones
// with ":id" so product ids do not explode label cardinality.
func NormalizePath(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return "root"
	}
	parts := strings.Split(p, "/")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	for i, part := range parts {
		if _, err := strconv.ParseInt(part, 10, 64); err == nil {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}

func Middleware(c *gin.Context) {
	if c.Request.URL.Path == "/metrics" {
		c.Next()
		return
	}
	start := time.Now()
	c.Next()
	duration := time.Since(start).Seconds()
	path := c.FullPath()
	if path == "" {
		path = NormalizePath(c.Request.URL.Path)
	}
	status := strconv.Itoa(c.Writer.Status())
	RequestTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	RequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)
}
