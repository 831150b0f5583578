// Package metrics provides Prometheus metrics for the MMS viewer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns the viewer's Prometheus collectors.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	registry         prometheus.Registerer

	// Data loading
	fetches       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	ephemReady    prometheus.Counter

	// Frame transforms
	transformUnavailable prometheus.Counter
	tracksDegraded       prometheus.Counter

	// Whiskers
	whiskersBuilt   prometheus.Counter
	whiskersDropped prometheus.Counter
	whiskersSkipped prometheus.Counter

	// Lifecycle
	reloads          *prometheus.CounterVec
	reloadDuration   *prometheus.HistogramVec
	staleGenerations *prometheus.CounterVec
	generation       prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // process-wide registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "lsmms",
		subsystem:        "viewer",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.fetches = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "fetches_total",
		Help:      "Dataset fetches by dataset and outcome",
	}, []string{"dataset", "outcome"})

	m.fetchDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "fetch_duration_seconds",
		Help:      "Dataset fetch latency",
		Buckets:   m.histogramBuckets,
	}, []string{"dataset"})

	m.ephemReady = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ephemeris_ready_total",
		Help:      "Generations whose ephemeris readiness gate fired",
	})

	m.transformUnavailable = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "transform_unavailable_total",
		Help:      "Samples whose frame transform had no orientation data",
	})

	m.tracksDegraded = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "tracks_degraded_total",
		Help:      "Tracks loaded with at least one pass-through sample",
	})

	m.whiskersBuilt = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "whiskers_built_total",
		Help:      "Whisker vectors handed to the scene",
	})

	m.whiskersDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "whiskers_dropped_total",
		Help:      "Whisker samples with no matching ephemeris position",
	})

	m.whiskersSkipped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "whiskers_skipped_total",
		Help:      "Whisker samples skipped because the frame transform was unavailable",
	})

	m.reloads = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "reloads_total",
		Help:      "Reload requests by action and outcome",
	}, []string{"action", "outcome"})

	m.reloadDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "reload_duration_seconds",
		Help:      "Time from reload request to ready",
		Buckets:   m.histogramBuckets,
	}, []string{"action"})

	m.staleGenerations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "stale_generations_total",
		Help:      "Results discarded because a newer generation superseded them",
	}, []string{"component"})

	m.generation = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "generation",
		Help:      "Current viewer generation",
	})
}

// Handler returns an HTTP handler exposing the process registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(customRegistry, promhttp.HandlerOpts{})
}

// RecordFetch records one dataset fetch.
func RecordFetch(dataset string, err error, d time.Duration) {
	if globalManager == nil || !globalManager.enabled {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	globalManager.fetches.WithLabelValues(dataset, outcome).Inc()
	globalManager.fetchDuration.WithLabelValues(dataset).Observe(d.Seconds())
}

// RecordEphemerisReady records a readiness gate firing.
func RecordEphemerisReady() {
	if globalManager != nil && globalManager.enabled {
		globalManager.ephemReady.Inc()
	}
}

// RecordTransformUnavailable records a sample without orientation data.
func RecordTransformUnavailable() {
	if globalManager != nil && globalManager.enabled {
		globalManager.transformUnavailable.Inc()
	}
}

// RecordTrackDegraded records a track that used pass-through samples.
func RecordTrackDegraded() {
	if globalManager != nil && globalManager.enabled {
		globalManager.tracksDegraded.Inc()
	}
}

// RecordWhiskers records one whisker build.
func RecordWhiskers(built, dropped, skipped int) {
	if globalManager == nil || !globalManager.enabled {
		return
	}
	globalManager.whiskersBuilt.Add(float64(built))
	globalManager.whiskersDropped.Add(float64(dropped))
	globalManager.whiskersSkipped.Add(float64(skipped))
}

// RecordReload records a completed reload.
func RecordReload(action string, err error, d time.Duration) {
	if globalManager == nil || !globalManager.enabled {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	globalManager.reloads.WithLabelValues(action, outcome).Inc()
	globalManager.reloadDuration.WithLabelValues(action).Observe(d.Seconds())
}

// RecordStaleGeneration records discarded work from a superseded generation.
func RecordStaleGeneration(component string) {
	if globalManager != nil && globalManager.enabled {
		globalManager.staleGenerations.WithLabelValues(component).Inc()
	}
}

// UpdateGeneration sets the current generation gauge.
func UpdateGeneration(gen uint64) {
	if globalManager != nil && globalManager.enabled {
		globalManager.generation.Set(float64(gen))
	}
}
