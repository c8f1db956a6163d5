// Package metrics exposes Prometheus instrumentation for the Open Finance
// core: per-operation request/error counters, latency histograms, cache
// hit/miss counters, and idempotency replay/conflict counters.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds all metrics for the service.
type Collector struct {
	requests   *prometheus.CounterVec
	errors     *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	cacheReads *prometheus.CounterVec
	replays    *prometheus.CounterVec
	conflicts  *prometheus.CounterVec
}

// NewCollector creates a collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "openfinance",
			Name:      "requests_total",
			Help:      "Total requests per operation",
		}, []string{"operation"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "openfinance",
			Name:      "errors_total",
			Help:      "Total failed requests per operation",
		}, []string{"operation"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "openfinance",
			Name:      "request_duration_seconds",
			Help:      "Request duration per operation",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		}, []string{"operation"}),
		cacheReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "openfinance",
			Name:      "cache_reads_total",
			Help:      "Cache reads per operation and result (hit/miss)",
		}, []string{"operation", "result"}),
		replays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "openfinance",
			Name:      "idempotency_replays_total",
			Help:      "Idempotent replays served per operation",
		}, []string{"operation"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "openfinance",
			Name:      "idempotency_conflicts_total",
			Help:      "Idempotency key conflicts per operation",
		}, []string{"operation"}),
	}

	reg.MustRegister(c.requests, c.errors, c.duration, c.cacheReads, c.replays, c.conflicts)
	return c
}

// NewNopCollector creates a collector backed by a private registry, for tests.
func NewNopCollector() *Collector {
	return NewCollector(prometheus.NewRegistry())
}

// IncrementRequests counts one request for the operation.
func (c *Collector) IncrementRequests(operation string) {
	c.requests.WithLabelValues(operation).Inc()
}

// IncrementErrors counts one failed request for the operation.
func (c *Collector) IncrementErrors(operation string) {
	c.errors.WithLabelValues(operation).Inc()
}

// ObserveDuration records the elapsed time since start for the operation.
func (c *Collector) ObserveDuration(operation string, start time.Time) {
	c.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// RecordCacheRead counts a cache hit or miss for the operation.
func (c *Collector) RecordCacheRead(operation string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheReads.WithLabelValues(operation, result).Inc()
}

// RecordReplay counts an idempotent replay served for the operation.
func (c *Collector) RecordReplay(operation string) {
	c.replays.WithLabelValues(operation).Inc()
}

// RecordConflict counts an idempotency conflict for the operation.
func (c *Collector) RecordConflict(operation string) {
	c.conflicts.WithLabelValues(operation).Inc()
}
