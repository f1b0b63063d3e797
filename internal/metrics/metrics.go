// Package metrics provides Prometheus metrics for gatesync.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the reconciliation and transport collectors. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	// Outcomes counts processed persons by event kind, action and failure class.
	Outcomes *prometheus.CounterVec

	// CycleDuration tracks how long one poll cycle takes end to end.
	CycleDuration prometheus.Histogram

	// CycleEvents counts envelopes handed to the engine.
	CycleEvents prometheus.Counter

	// HTTPRequests counts outbound requests by target and status code.
	HTTPRequests *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the collectors with reg. Passing a fresh prometheus.Registry
// keeps tests independent of the process-wide default registry.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatesync",
			Subsystem: "reconcile",
			Name:      "outcomes_total",
			Help:      "Processed persons by event kind, action and failure class",
		}, []string{"kind", "action", "class"}),

		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gatesync",
			Subsystem: "cycle",
			Name:      "duration_seconds",
			Help:      "Duration of one poll cycle in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),

		CycleEvents: f.NewCounter(prometheus.CounterOpts{
			Namespace: "gatesync",
			Subsystem: "cycle",
			Name:      "events_total",
			Help:      "Total number of events handed to the engine",
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatesync",
			Subsystem: "http_client",
			Name:      "requests_total",
			Help:      "Total number of outbound HTTP requests by target and status",
		}, []string{"target", "status"}),

		gatherer: reg,
	}
}

// ObserveOutcome records one processed person. class is empty on success and
// is reported as "ok".
func (m *Metrics) ObserveOutcome(kind, action, class string) {
	if m == nil {
		return
	}
	if class == "" {
		class = "ok"
	}
	m.Outcomes.WithLabelValues(kind, action, class).Inc()
}

// ObserveCycle records one completed poll cycle.
func (m *Metrics) ObserveCycle(d time.Duration, events int) {
	if m == nil {
		return
	}
	m.CycleDuration.Observe(d.Seconds())
	m.CycleEvents.Add(float64(events))
}

// ObserveHTTP records one outbound request. status 0 means the request failed
// before a response arrived.
func (m *Metrics) ObserveHTTP(target string, status int) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.HTTPRequests.WithLabelValues(target, label).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
