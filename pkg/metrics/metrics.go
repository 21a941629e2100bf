// Package metrics exposes the converter's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "taxconv"

// Conversion outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Conversions    *prometheus.CounterVec
	ParseDuration  *prometheus.HistogramVec
	SessionsActive prometheus.Gauge
	Diagnostics    *prometheus.CounterVec
	Downloads      prometheus.Counter
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Conversions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversions_total",
			Help:      "Conversions by detected vendor and outcome.",
		}, []string{"vendor", "outcome"}),
		ParseDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "parse_duration_seconds",
			Help:      "Time spent detecting and parsing one document.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"vendor"}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently held in memory.",
		}),
		Diagnostics: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnostics_total",
			Help:      "Row-level diagnostics by severity.",
		}, []string{"severity"}),
		Downloads: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Archives built for download.",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveConversion records one finished conversion.
func (m *Metrics) ObserveConversion(vendor, outcome string, seconds float64) {
	if m == nil {
		return
	}
	if vendor == "" {
		vendor = "unknown"
	}
	m.Conversions.WithLabelValues(vendor, outcome).Inc()
	m.ParseDuration.WithLabelValues(vendor).Observe(seconds)
}

// AddDiagnostics counts diagnostics of one severity.
func (m *Metrics) AddDiagnostics(severity string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.Diagnostics.WithLabelValues(severity).Add(float64(n))
}

// SetSessions reports the number of live sessions.
func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(n))
}

// IncDownloads counts one built archive.
func (m *Metrics) IncDownloads() {
	if m == nil {
		return
	}
	m.Downloads.Inc()
}
