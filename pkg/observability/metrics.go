package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Entity store metrics
	EntityOperationsTotal   *prometheus.CounterVec
	EntityOperationDuration *prometheus.HistogramVec

	// Assignment graph metrics
	EdgeOperationsTotal *prometheus.CounterVec
	CascadeEdgesRemoved prometheus.Counter
	CascadeFailures     prometheus.Counter

	// Policy version metrics
	PolicyOperationsTotal *prometheus.CounterVec
	VersionConflictsTotal prometheus.Counter

	// Bundle metrics
	BundleBuildsTotal   *prometheus.CounterVec
	BundleBuildDuration prometheus.Histogram
	BundleSizeBytes     prometheus.Histogram
	BundleCacheHits     prometheus.Counter
	BundleCacheMisses   prometheus.Counter
	BundlePublishTotal  *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		EntityOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_entity_operations_total",
				Help: "Total entity store operations",
			},
			[]string{"kind", "operation", "result"},
		),
		EntityOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_entity_operation_duration_seconds",
				Help:    "Entity store operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind", "operation"},
		),
		EdgeOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_edge_operations_total",
				Help: "Total assignment graph operations",
			},
			[]string{"kind", "operation", "result"},
		),
		CascadeEdgesRemoved: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_cascade_edges_removed_total",
				Help: "Edges removed by cascade cleanup",
			},
		),
		CascadeFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_cascade_failures_total",
				Help: "Cascade cleanups that stopped partway",
			},
		),
		PolicyOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_policy_operations_total",
				Help: "Total policy version engine operations",
			},
			[]string{"operation", "result"},
		),
		VersionConflictsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_policy_version_conflicts_total",
				Help: "Optimistic concurrency conflicts on policy writes",
			},
		),
		BundleBuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_bundle_builds_total",
				Help: "Total bundle build attempts",
			},
			[]string{"result"},
		),
		BundleBuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "warden_bundle_build_duration_seconds",
				Help:    "Bundle build duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		BundleSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "warden_bundle_size_bytes",
				Help:    "Size of built bundles in bytes",
				Buckets: prometheus.ExponentialBuckets(256, 4, 10),
			},
		),
		BundleCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_bundle_cache_hits_total",
				Help: "Bundle cache hits",
			},
		),
		BundleCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_bundle_cache_misses_total",
				Help: "Bundle cache misses",
			},
		),
		BundlePublishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_bundle_publish_total",
				Help: "Total bundle publish attempts",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.EntityOperationsTotal,
		m.EntityOperationDuration,
		m.EdgeOperationsTotal,
		m.CascadeEdgesRemoved,
		m.CascadeFailures,
		m.PolicyOperationsTotal,
		m.VersionConflictsTotal,
		m.BundleBuildsTotal,
		m.BundleBuildDuration,
		m.BundleSizeBytes,
		m.BundleCacheHits,
		m.BundleCacheMisses,
		m.BundlePublishTotal,
	)

	return m
}

// Handler returns an http.Handler serving the registry in Prometheus
// exposition format.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// HTTPMiddleware records request counts and latency per route.
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
