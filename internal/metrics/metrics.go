// Package metrics exposes the service's Prometheus collectors. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wishliste/donum/internal/apperrors"
)

const namespace = "donum"

type Metrics struct {
	registry *prometheus.Registry

	mutations        *prometheus.CounterVec
	mutationDuration *prometheus.HistogramVec
	subscribers      prometheus.Gauge
	eventsPublished  *prometheus.CounterVec
	eventsDropped    prometheus.Counter
	guestsIssued     prometheus.Counter
	guestsPurged     prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "item_mutations_total",
			Help:      "Item mutations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		mutationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "item_mutation_duration_seconds",
			Help:      "Time spent inside the item critical section.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channel_subscribers",
			Help:      "Currently connected channel subscribers.",
		}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Invalidation events delivered to subscribers, by type.",
		}, []string{"type"}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Invalidation events dropped because a subscriber buffer was full.",
		}),
		guestsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guest_sessions_issued_total",
			Help:      "Guest sessions issued.",
		}),
		guestsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guest_sessions_purged_total",
			Help:      "Expired guest sessions removed by the janitor.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.mutations,
		m.mutationDuration,
		m.subscribers,
		m.eventsPublished,
		m.eventsDropped,
		m.guestsIssued,
		m.guestsPurged,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveMutation records one critical-section run. Rejections are labelled
// with their lower-cased error code.
func (m *Metrics) ObserveMutation(operation string, err error, took time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = strings.ToLower(string(apperrors.CodeOf(err)))
	}
	m.mutations.WithLabelValues(operation, outcome).Inc()
	m.mutationDuration.WithLabelValues(operation).Observe(took.Seconds())
}

func (m *Metrics) SubscriberAdded() {
	if m == nil {
		return
	}
	m.subscribers.Inc()
}

func (m *Metrics) SubscriberRemoved() {
	if m == nil {
		return
	}
	m.subscribers.Dec()
}

func (m *Metrics) EventDelivered(eventType string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(eventType).Inc()
}

func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}

func (m *Metrics) GuestIssued() {
	if m == nil {
		return
	}
	m.guestsIssued.Inc()
}

func (m *Metrics) GuestsPurged(n int64) {
	if m == nil {
		return
	}
	m.guestsPurged.Add(float64(n))
}
