// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tabtrace"

// Outcome labels for Computations.
const (
	OutcomeOK    = "ok"
	OutcomeFatal = "fatal"
	OutcomeError = "error"
)

// Metrics groups the collectors on a private registry so tests can create
// as many instances as they like.
type Metrics struct {
	registry *prometheus.Registry

	Computations      *prometheus.CounterVec
	FMPFallbacks      prometheus.Counter
	CacheHits         prometheus.Counter
	CacheMisses       prometheus.Counter
	TelemetryFailures prometheus.Counter
	CaptureDuration   *prometheus.HistogramVec
	TracesStored      prometheus.Gauge
}

// New registers every collector plus the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Computations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trace_of_tab_computations_total",
			Help:      "Trace-of-tab computations by outcome.",
		}, []string{"outcome"}),
		FMPFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fmp_fallbacks_total",
			Help:      "Computations that used the firstMeaningfulPaintCandidate fallback.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "result_cache_hits_total",
			Help:      "Trace-of-tab results served from cache.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "result_cache_misses_total",
			Help:      "Trace-of-tab lookups that required a computation.",
		}),
		TelemetryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_failures_total",
			Help:      "Warnings that could not be delivered to the telemetry endpoint.",
		}),
		CaptureDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capture_duration_seconds",
			Help:      "Time spent recording a trace from the browser.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"mode"}),
		TracesStored: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "traces_stored",
			Help:      "Traces currently held in the trace store.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Computations,
		m.FMPFallbacks,
		m.CacheHits,
		m.CacheMisses,
		m.TelemetryFailures,
		m.CaptureDuration,
		m.TracesStored,
	)
	return m
}

// Registry exposes the underlying registry for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveCapture records how long a capture took.
func (m *Metrics) ObserveCapture(mode string, started time.Time) {
	m.CaptureDuration.WithLabelValues(mode).Observe(time.Since(started).Seconds())
}
