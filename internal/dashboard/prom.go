package dashboard

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus histograms tracking spec §4.16's three documented
// performance guarantees (hot read <1ms, 24h single-session range query
// <50ms, daily cross-session aggregation <200ms at p99), mirroring the
// teacher's axonflow_orchestrator_request_duration_milliseconds shape:
// one HistogramVec per operation class with millisecond buckets.
var (
	promHotReadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "loopctl_dashboard_hot_read_duration_milliseconds",
			Help:    "Hot-tier metric read latency in milliseconds (guarantee: <1ms)",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)
	promRangeQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "loopctl_dashboard_range_query_duration_milliseconds",
			Help:    "Tiered metrics store range-query latency in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 200, 500},
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(promHotReadDuration)
	prometheus.MustRegister(promRangeQueryDuration)
}

// timeHotRead wraps HotSeries with the hot-read latency observation.
func timeHotRead(fn func() []float64) []float64 {
	start := time.Now()
	out := fn()
	promHotReadDuration.Observe(float64(time.Since(start).Microseconds()) / 1000)
	return out
}

// timeRangeQuery wraps a tiered range query with a per-tier latency
// observation (warm = single-session 24h guarantee, cold/archive =
// cross-session daily-aggregation guarantee).
func timeRangeQuery(tier string, fn func() ([]RangePoint, error)) ([]RangePoint, error) {
	start := time.Now()
	out, err := fn()
	promRangeQueryDuration.WithLabelValues(tier).Observe(float64(time.Since(start).Microseconds()) / 1000)
	return out, err
}
