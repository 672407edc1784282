// Package metrics holds the Prometheus instruments of the service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the panchaanga service.
type Metrics struct {
	// Year builds
	BuildsTotal   *prometheus.CounterVec // labels: result=ok|error|cancelled
	BuildDuration prometheus.Histogram
	BuildsShared  prometheus.Counter // callers served by a build already in flight

	// Calendar store
	StoreLookups *prometheus.CounterVec // labels: result=hit|miss|error

	// Ephemeris memo of the last build
	EphemerisCache *prometheus.CounterVec // labels: result=hit|miss

	// Festivals
	FestivalAssignments *prometheus.CounterVec // labels: source=anga|day|anchor|eclipse
	RulesLoaded         prometheus.Gauge

	// Precompute job
	PrecomputeRuns *prometheus.CounterVec // labels: result=ok|error

	// HTTP
	RequestsTotal   *prometheus.CounterVec   // labels: route, status
	RequestDuration *prometheus.HistogramVec // labels: route

	gatherer prometheus.Gatherer
}

// New creates the metrics and registers them with reg. Pass
// prometheus.NewRegistry() in tests.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		BuildsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "panchaanga_builds_total",
			Help: "Year builds by result",
		}, []string{"result"}),
		BuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "panchaanga_build_duration_seconds",
			Help:    "Time to build and resolve one city year",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		BuildsShared: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "panchaanga_builds_shared_total",
			Help: "Requests that waited on a build already in flight",
		}),
		StoreLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "panchaanga_store_lookups_total",
			Help: "Computed-year store lookups by result",
		}, []string{"result"}),
		EphemerisCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "panchaanga_ephemeris_cache_total",
			Help: "Ephemeris memo lookups by result",
		}, []string{"result"}),
		FestivalAssignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "panchaanga_festival_assignments_total",
			Help: "Festival assignments by resolution pass",
		}, []string{"source"}),
		RulesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "panchaanga_rules_loaded",
			Help: "Rules in the current rule tree",
		}),
		PrecomputeRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "panchaanga_precompute_runs_total",
			Help: "Scheduled precompute runs by result",
		}, []string{"result"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "panchaanga_http_requests_total",
			Help: "HTTP requests by route pattern and status",
		}, []string{"route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "panchaanga_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.BuildsTotal,
		m.BuildDuration,
		m.BuildsShared,
		m.StoreLookups,
		m.EphemerisCache,
		m.FestivalAssignments,
		m.RulesLoaded,
		m.PrecomputeRuns,
		m.RequestsTotal,
		m.RequestDuration,
	)
	return m
}

// ObserveBuild records one build.
func (m *Metrics) ObserveBuild(result string, elapsed time.Duration) {
	m.BuildsTotal.WithLabelValues(result).Inc()
	if result == "ok" {
		m.BuildDuration.Observe(elapsed.Seconds())
	}
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(route string, status int, elapsed time.Duration) {
	m.RequestsTotal.WithLabelValues(route, http.StatusText(status)).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
