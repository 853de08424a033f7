package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ebrossard/meteo-vanoise/internal/traffic"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Upstream call rate per source (bra, massif_page, vigilance, openmeteo).
	// Watch for: error vs success ratio per source.
	UpstreamCallsTotal *prometheus.CounterVec

	// Upstream latency per source. Watch for: p95 approaching the 10s call timeout.
	UpstreamDurationSeconds *prometheus.HistogramVec

	// Acquisition outcomes per resource and provenance tier. A rising
	// fallback share means upstream data has stopped flowing.
	AcquisitionResultsTotal *prometheus.CounterVec

	// Cache hits per resource. Hit rate should stay near 1 given the 6h TTL.
	CacheHitsTotal *prometheus.CounterVec

	// Cache backend errors (memcached unreachable etc.). In-memory backend never errors.
	CacheErrorsTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	// Coalesced acquisition waits: requests that piggybacked on an in-flight fetch.
	CoalescingHitsTotal *prometheus.CounterVec

	// Cache warming runs and duration.
	CacheWarmingTotal           prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	// Circuit breaker transitions and current state for the forecast upstream.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec
	CircuitBreakerState            *prometheus.GaugeVec

	fallbackGaugeOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamCallsTotal",
			Help: "Total number of upstream source calls",
		},
		[]string{"source", "status"},
	)
	UpstreamDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstreamDurationSeconds",
			Help:    "Upstream call latency in seconds (per call)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"source"},
	)
	AcquisitionResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acquisitionResultsTotal",
			Help: "Acquisition pipeline outcomes by resource and provenance (structured, heuristic, fallback)",
		},
		[]string{"resource", "provenance"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of freshness-cache hits by resource",
		},
		[]string{"resource"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Total number of cache backend errors by operation",
		},
		[]string{"operation"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	CoalescingHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coalescingHitsTotal",
			Help: "Requests that waited on an in-flight acquisition instead of fetching",
		},
		[]string{"resource"},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Total number of cache warming passes",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Duration of cache warming passes in seconds",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30},
		},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half_open)",
		},
		[]string{"component"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		UpstreamCallsTotal, UpstreamDurationSeconds,
		AcquisitionResultsTotal, CacheHitsTotal, CacheErrorsTotal,
		RateLimitDeniedTotal, CoalescingHitsTotal,
		CacheWarmingTotal, CacheWarmingDurationSeconds,
		CircuitBreakerTransitionsTotal, CircuitBreakerState,
	)
}

// RegisterFallbackGauge registers a gauge exposing the fallback share of
// acquisitions in the sliding window. Call from main after config load.
func RegisterFallbackGauge(window time.Duration) {
	fallbackGaugeOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "acquisitionFallbacksInWindow",
					Help: "Fallback-tier acquisitions in the sliding window; is real data flowing",
				},
				func() float64 {
					fallbacks, _ := traffic.FallbackRate(window)
					return float64(fallbacks)
				},
			),
		)
	})
}

// RecordCircuitBreakerTransition records one breaker state transition.
func RecordCircuitBreakerTransition(component, from, to string) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
}

// SetCircuitBreakerStateGauge sets the current breaker state gauge.
func SetCircuitBreakerStateGauge(component string, state int) {
	CircuitBreakerState.WithLabelValues(component).Set(float64(state))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
