package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics wraps prometheus collectors for Pulsar metrics
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// Counters
	operationsTotal      *prometheus.CounterVec
	lookupsTotal         *prometheus.CounterVec
	fastStoreErrorsTotal *prometheus.CounterVec
	lazyExpirationsTotal prometheus.Counter
	sweepsTotal          *prometheus.CounterVec
	sweptEntriesTotal    prometheus.Counter

	// Histograms
	operationDuration *prometheus.HistogramVec
	sweepDuration     prometheus.Histogram

	// Gauges
	uptime                prometheus.GaugeFunc
	lastSweepTimestamp    prometheus.Gauge
	circuitBreakerState   *prometheus.GaugeVec
	circuitBreakerChanges *prometheus.CounterVec
}

// Default histogram buckets for operation duration (in milliseconds)
var defaultBuckets = []float64{0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000}

var (
	promMu      sync.RWMutex
	promMetrics *PrometheusMetrics
)

// InitPrometheus initializes the Prometheus metrics subsystem. Calling it
// again replaces the registry.
func InitPrometheus(namespace string, buckets []float64) {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	startTime := time.Now()

	pm := &PrometheusMetrics{
		registry: registry,

		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_operations_total",
				Help:      "Total number of cache engine operations",
			},
			[]string{"operation", "result"},
		),

		lookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Get results by the layer that answered (shadow, local, durable, miss)",
			},
			[]string{"source"},
		),

		fastStoreErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fast_store_errors_total",
				Help:      "Fast store calls that failed and were degraded to a miss",
			},
			[]string{"operation"},
		),

		lazyExpirationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lazy_expirations_total",
				Help:      "Expired entries removed on read",
			},
		),

		sweepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweeps_total",
				Help:      "Expiration sweeps by outcome",
			},
			[]string{"status"},
		),

		sweptEntriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "swept_entries_total",
				Help:      "Expired entries removed by sweeps",
			},
		),

		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cache_operation_duration_milliseconds",
				Help:      "Duration of cache engine operations in milliseconds",
				Buckets:   buckets,
			},
			[]string{"operation"},
		),

		sweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sweep_duration_milliseconds",
				Help:      "Duration of expiration sweeps in milliseconds",
				Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 30000},
			},
		),

		uptime: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "uptime_seconds",
				Help:      "Seconds since the metrics subsystem started",
			},
			func() float64 { return time.Since(startTime).Seconds() },
		),

		lastSweepTimestamp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_sweep_timestamp_seconds",
				Help:      "Unix time of the last successful sweep",
			},
		),

		circuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Breaker state per dependency (0=closed, 1=open, 2=half_open)",
			},
			[]string{"dependency"},
		),

		circuitBreakerChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_transitions_total",
				Help:      "Breaker transitions per dependency and target state",
			},
			[]string{"dependency", "to_state"},
		),
	}

	registry.MustRegister(
		pm.operationsTotal,
		pm.lookupsTotal,
		pm.fastStoreErrorsTotal,
		pm.lazyExpirationsTotal,
		pm.sweepsTotal,
		pm.sweptEntriesTotal,
		pm.operationDuration,
		pm.sweepDuration,
		pm.uptime,
		pm.lastSweepTimestamp,
		pm.circuitBreakerState,
		pm.circuitBreakerChanges,
	)

	promMu.Lock()
	promMetrics = pm
	promMu.Unlock()
}

func prom() *PrometheusMetrics {
	promMu.RLock()
	defer promMu.RUnlock()
	return promMetrics
}

func recordPrometheusOperation(op, result string, durationMs float64) {
	pm := prom()
	if pm == nil {
		return
	}
	pm.operationsTotal.WithLabelValues(op, result).Inc()
	pm.operationDuration.WithLabelValues(op).Observe(durationMs)
}

func recordPrometheusLookup(source string) {
	pm := prom()
	if pm == nil {
		return
	}
	pm.lookupsTotal.WithLabelValues(source).Inc()
}

func recordPrometheusFastStoreError(op string) {
	pm := prom()
	if pm == nil {
		return
	}
	pm.fastStoreErrorsTotal.WithLabelValues(op).Inc()
}

func recordPrometheusLazyExpiration() {
	pm := prom()
	if pm == nil {
		return
	}
	pm.lazyExpirationsTotal.Inc()
}

func recordPrometheusSweep(deleted int64, durationMs float64, ok bool) {
	pm := prom()
	if pm == nil {
		return
	}
	if !ok {
		pm.sweepsTotal.WithLabelValues("failed").Inc()
		return
	}
	pm.sweepsTotal.WithLabelValues("success").Inc()
	pm.sweptEntriesTotal.Add(float64(deleted))
	pm.sweepDuration.Observe(durationMs)
	pm.lastSweepTimestamp.SetToCurrentTime()
}

// SetCircuitBreakerState sets the breaker state gauge for a dependency.
// state: 0=closed, 1=open, 2=half_open
func SetCircuitBreakerState(dependency string, state int) {
	pm := prom()
	if pm == nil {
		return
	}
	pm.circuitBreakerState.WithLabelValues(dependency).Set(float64(state))
}

// RecordCircuitBreakerTransition records a breaker state transition.
func RecordCircuitBreakerTransition(dependency, toState string) {
	pm := prom()
	if pm == nil {
		return
	}
	pm.circuitBreakerChanges.WithLabelValues(dependency, toState).Inc()
}

// PrometheusHandler returns an HTTP handler for Prometheus metrics scraping
func PrometheusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pm := prom()
		if pm == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("prometheus metrics not initialized"))
			return
		}
		promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}

// PrometheusRegistry returns the prometheus registry (for custom collectors)
func PrometheusRegistry() *prometheus.Registry {
	pm := prom()
	if pm == nil {
		return nil
	}
	return pm.registry
}
