// Package metrics defines the Prometheus surface for the load balancer:
// client-facing counters/histograms, per-backend gauges, and the
// selection/health/compression/admission counters that make pool
// behavior observable.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Proxy metrics (low-cardinality).
var (
	// requestsTotal counts client-facing responses by HTTP method and status.
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lb_requests_total",
			Help: "Total client-facing responses by method and status",
		},
		[]string{"method", "status"},
	)
	// requestDuration captures end-to-end proxy latency.
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lb_request_duration_seconds",
			Help:    "End-to-end request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
	// backendInflight tracks reserved connection slots per backend name.
	backendInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lb_backend_inflight",
			Help: "Current reserved connection count by backend",
		},
		[]string{"backend"},
	)
	// admissionDepth reports requests currently holding an admission permit.
	admissionDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lb_admission_depth",
			Help: "Current number of requests holding an admission permit",
		},
	)
	// admissionWait measures time spent waiting to acquire an admission permit.
	admissionWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lb_admission_wait_seconds",
			Help:    "Observed time spent waiting for an admission permit",
			Buckets: prometheus.DefBuckets,
		},
	)
	// noHealthyBackendTotal counts requests rejected because no backend was healthy.
	noHealthyBackendTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lb_no_healthy_backend_total",
			Help: "Total requests rejected with 503 because no backend was healthy",
		},
	)
)

// Per-backend proxy-side metrics.
var (
	// backendResponsesTotal counts upstream responses as observed by the proxy, by backend.
	backendResponsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lb_backend_responses_total",
			Help: "Total upstream responses observed by the proxy, labeled by backend and status",
		},
		[]string{"backend", "status"},
	)
	// backendResponseDuration measures upstream dispatch latency by backend.
	backendResponseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lb_backend_response_duration_seconds",
			Help:    "Upstream dispatch duration observed at the proxy, by backend",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)
	// backendStatus reports the health prober's last verdict per backend (0=unknown,1=healthy,2=unhealthy).
	backendStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lb_backend_status",
			Help: "Last observed backend status (0=unknown, 1=healthy, 2=unhealthy)",
		},
		[]string{"backend"},
	)
)

// Selection and health-prober metrics.
var (
	// selectionsTotal counts selection-engine picks by strategy and backend.
	selectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lb_selections_total",
			Help: "Total selections made by the selection engine, by strategy and backend",
		},
		[]string{"strategy", "backend"},
	)
	// healthProbesTotal counts liveness-endpoint probe outcomes, by backend and result.
	healthProbesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lb_health_probes_total",
			Help: "Total health probe outcomes by backend and result",
		},
		[]string{"backend", "result"},
	)
	// compressionOutcomesTotal counts the adaptive-compression decision by outcome.
	compressionOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lb_compression_outcomes_total",
			Help: "Total adaptive-compression decisions by outcome (gzip, passthrough)",
		},
		[]string{"outcome"},
	)
)

func init() {
	// Register all metrics with the default Prometheus registry.
	// MustRegister will panic on programmer errors (e.g., duplicate registration).
	prometheus.MustRegister(
		requestsTotal,
		requestDuration,
		backendInflight,
		admissionDepth,
		admissionWait,
		noHealthyBackendTotal,
		backendResponsesTotal,
		backendResponseDuration,
		backendStatus,
		selectionsTotal,
		healthProbesTotal,
		compressionOutcomesTotal,
	)
}

// ---- client-facing helpers ----

// ObserveResponse records a client-facing proxy response.
func ObserveResponse(method string, status int, dur time.Duration) {
	requestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	requestDuration.WithLabelValues(method).Observe(dur.Seconds())
}

// IncNoHealthyBackend records a request rejected for lack of healthy backends.
func IncNoHealthyBackend() { noHealthyBackendTotal.Inc() }

// AdmissionDepthSet reports current admission-gate occupancy.
func AdmissionDepthSet(n int64) { admissionDepth.Set(float64(n)) }

// AdmissionWaitObserve observes time spent waiting for an admission permit.
func AdmissionWaitObserve(d time.Duration) { admissionWait.Observe(d.Seconds()) }

// ---- backend helpers ----

// ObserveBackendResponse records the upstream response as seen by the proxy.
func ObserveBackendResponse(backend string, status int, dur time.Duration) {
	backendResponsesTotal.WithLabelValues(backend, strconv.Itoa(status)).Inc()
	backendResponseDuration.WithLabelValues(backend).Observe(dur.Seconds())
}

// SetBackendInflight reports the current reserved count for a backend.
func SetBackendInflight(backend string, n int64) {
	backendInflight.WithLabelValues(backend).Set(float64(n))
}

// SetBackendStatus reports the last observed status for a backend.
func SetBackendStatus(backend string, status int) {
	backendStatus.WithLabelValues(backend).Set(float64(status))
}

// ---- selection / health / compression helpers ----

// IncSelection records a selection-engine pick.
func IncSelection(strategy, backend string) {
	selectionsTotal.WithLabelValues(strategy, backend).Inc()
}

// IncHealthProbe records a liveness-endpoint probe outcome.
func IncHealthProbe(backend, result string) { healthProbesTotal.WithLabelValues(backend, result).Inc() }

// IncCompressionOutcome records an adaptive-compression decision.
func IncCompressionOutcome(outcome string) { compressionOutcomesTotal.WithLabelValues(outcome).Inc() }
