// Package metrics holds the prometheus collectors of the extractor.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joseph-ayodele/sof-events/internal/events"
)

type Metrics struct {
	documents  *prometheus.CounterVec
	events     *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	queueDepth prometheus.Gauge
	gatherer   prometheus.Gatherer
}

// New creates the collectors and registers them on reg. A nil reg gets a
// private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{}
	m.documents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sof",
		Name:      "documents_processed_total",
		Help:      "Documents processed by format and outcome",
	}, []string{"format", "status"})
	m.events = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sof",
		Name:      "events_extracted_total",
		Help:      "Event records extracted by event label",
	}, []string{"event"})
	m.duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sof",
		Name:      "processing_seconds",
		Help:      "Time spent turning one document into events",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"format"})
	m.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sof",
		Name:      "queue_depth",
		Help:      "Documents waiting in the background queue",
	})
	reg.MustRegister(m.documents, m.events, m.duration, m.queueDepth)
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// ObserveDocument records one processed document. status is a job status
// such as "OK" or "FAILED".
func (m *Metrics) ObserveDocument(format, status string, took time.Duration) {
	if m == nil {
		return
	}
	if format == "" {
		format = "unknown"
	}
	m.documents.WithLabelValues(format, status).Inc()
	m.duration.WithLabelValues(format).Observe(took.Seconds())
}

func (m *Metrics) ObserveEvents(records []events.Record) {
	if m == nil {
		return
	}
	for _, r := range records {
		m.events.WithLabelValues(r.Event).Inc()
	}
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// Handler serves the registry the collectors were registered on, or the
// default gatherer when that registry cannot be gathered.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
