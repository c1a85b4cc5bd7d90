// Package metrics holds the Prometheus collectors of the extraction
// pipeline. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "statement_extractor"

// Document outcomes.
const (
	StatusOK     = "ok"
	StatusEmpty  = "empty"
	StatusFailed = "failed"
)

// Metrics holds the Prometheus collectors for document and batch
// processing. A nil *Metrics ignores every observation.
type Metrics struct {
	registry     *prometheus.Registry
	documents    *prometheus.CounterVec
	records      *prometheus.CounterVec
	skippedPages *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	batches      prometheus.Counter
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_total",
			Help:      "Documents processed, by profile and outcome.",
		}, []string{"profile", "status"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Records extracted, by profile.",
		}, []string{"profile"}),
		skippedPages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_pages_total",
			Help:      "Pages skipped because they yielded no text.",
		}, []string{"profile"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "document_duration_seconds",
			Help:      "Time to extract and parse one document.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"profile"}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Batches consolidated.",
		}),
	}
	reg.MustRegister(
		m.documents, m.records, m.skippedPages, m.duration, m.batches,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveDocument records one processed document.
func (m *Metrics) ObserveDocument(profile, status string, records, skippedPages int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if profile == "" {
		profile = "unknown"
	}
	m.documents.WithLabelValues(profile, status).Inc()
	m.records.WithLabelValues(profile).Add(float64(records))
	m.skippedPages.WithLabelValues(profile).Add(float64(skippedPages))
	m.duration.WithLabelValues(profile).Observe(elapsed.Seconds())
}

// ObserveBatch counts a consolidated batch.
func (m *Metrics) ObserveBatch() {
	if m == nil {
		return
	}
	m.batches.Inc()
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
