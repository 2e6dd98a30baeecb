// Package metrics exposes the Prometheus instrumentation for screening
// runs and pipeline stages.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsPrefix = "morphoscreen_"

var stageDurationBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120, 300}

// Metrics is the Prometheus-backed collector for the screening pipeline.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal         *prometheus.CounterVec
	runsInFlight      prometheus.Gauge
	stageDuration     *prometheus.HistogramVec
	compoundsExcluded *prometheus.CounterVec
	compoundsRanked   prometheus.Counter
}

// New creates and registers the collector on a fresh registry.
func New() (*Metrics, error) {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricsPrefix + "runs_total",
		Help: "Total number of screening runs by terminal status.",
	}, []string{"status"})

	m.runsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: metricsPrefix + "runs_in_flight",
		Help: "Number of screening runs currently executing.",
	})

	m.stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    metricsPrefix + "stage_duration_seconds",
		Help:    "Histogram of pipeline stage duration in seconds.",
		Buckets: stageDurationBuckets,
	}, []string{"stage", "status"})

	m.compoundsExcluded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricsPrefix + "compounds_excluded_total",
		Help: "Total number of compounds excluded from rankings by error code.",
	}, []string{"code"})

	m.compoundsRanked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: metricsPrefix + "compounds_ranked_total",
		Help: "Total number of compounds that received a rank.",
	})

	collectors := []prometheus.Collector{
		m.runsTotal,
		m.runsInFlight,
		m.stageDuration,
		m.compoundsExcluded,
		m.compoundsRanked,
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MustNew creates the collector or panics. Registration on a fresh
// registry can only fail on duplicate metric names.
func MustNew() *Metrics {
	m, err := New()
	if err != nil {
		panic(err)
	}
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for test scraping.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RunStarted marks a run as executing.
func (m *Metrics) RunStarted() {
	m.runsInFlight.Inc()
}

// RunFinished records the terminal status of a run.
func (m *Metrics) RunFinished(status string) {
	m.runsInFlight.Dec()
	m.runsTotal.WithLabelValues(status).Inc()
}

// ObserveStageDuration records one pipeline stage execution.
func (m *Metrics) ObserveStageDuration(stage string, d time.Duration, ok bool) {
	status := "success"
	if !ok {
		status = "failure"
	}
	m.stageDuration.WithLabelValues(stage, status).Observe(d.Seconds())
}

// IncCompoundExcluded counts a compound excluded under an error code.
func (m *Metrics) IncCompoundExcluded(code string) {
	m.compoundsExcluded.WithLabelValues(code).Inc()
}

// AddCompoundsRanked counts compounds that received a rank.
func (m *Metrics) AddCompoundsRanked(n int) {
	m.compoundsRanked.Add(float64(n))
}
