package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cablepark"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status class.",
		},
		[]string{"endpoint", "code"},
	)

	bookings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome.",
		},
		[]string{"outcome"},
	)

	conflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_total",
			Help:      "Detected overlaps by check stage (advisory or commit).",
		},
		[]string{"stage"},
	)

	bulkActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bulk_actions_total",
			Help:      "Admin bulk actions by action and outcome.",
		},
		[]string{"action", "outcome"},
	)

	gridCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grid_cache_total",
			Help:      "Week grid cache lookups by result.",
		},
		[]string{"result"},
	)

	exports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "week_exports_total",
			Help:      "Background workbook refreshes by outcome.",
		},
		[]string{"outcome"},
	)

	weekBuild = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "week_build_seconds",
			Help:      "Time spent building a week view on a cache miss.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, bookings, conflicts, bulkActions, gridCache, exports, weekBuild)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint, code string) {
	httpRequests.WithLabelValues(endpoint, code).Inc()
}

func IncBooking(outcome string) {
	bookings.WithLabelValues(outcome).Inc()
}

func AddConflicts(stage string, n int) {
	if n > 0 {
		conflicts.WithLabelValues(stage).Add(float64(n))
	}
}

func IncBulkAction(action, outcome string) {
	bulkActions.WithLabelValues(action, outcome).Inc()
}

func IncGridCache(result string) {
	gridCache.WithLabelValues(result).Inc()
}

func ObserveWeekBuild(seconds float64) {
	weekBuild.Observe(seconds)
}

func IncExport(outcome string) {
	exports.WithLabelValues(outcome).Inc()
}
