package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type BroadcasterMetrics struct {
	registry *prometheus.Registry

	connections     prometheus.Gauge
	eventsTotal     prometheus.Counter
	deliveriesTotal prometheus.Counter
	evictionsTotal  prometheus.Counter
}

func NewBroadcasterMetrics(service string) *BroadcasterMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	connections := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "riskscope",
			Subsystem:   "broadcaster",
			Name:        "connections",
			Help:        "Number of live client connections.",
			ConstLabels: constLabels,
		},
	)
	eventsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "riskscope",
			Subsystem:   "broadcaster",
			Name:        "events_total",
			Help:        "Total status events received from the bus.",
			ConstLabels: constLabels,
		},
	)
	deliveriesTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "riskscope",
			Subsystem:   "broadcaster",
			Name:        "deliveries_total",
			Help:        "Total status events delivered to subscribed connections.",
			ConstLabels: constLabels,
		},
	)
	evictionsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "riskscope",
			Subsystem:   "broadcaster",
			Name:        "evictions_total",
			Help:        "Total connections evicted after a failed send.",
			ConstLabels: constLabels,
		},
	)

	registry.MustRegister(connections, eventsTotal, deliveriesTotal, evictionsTotal)

	return &BroadcasterMetrics{
		registry:        registry,
		connections:     connections,
		eventsTotal:     eventsTotal,
		deliveriesTotal: deliveriesTotal,
		evictionsTotal:  evictionsTotal,
	}
}

func (m *BroadcasterMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *BroadcasterMetrics) SetConnections(n int) {
	m.connections.Set(float64(n))
}

// RecordEvent counts one received status event and how many subscribed
// connections it reached.
func (m *BroadcasterMetrics) RecordEvent(deliveries int) {
	m.eventsTotal.Inc()
	if deliveries > 0 {
		m.deliveriesTotal.Add(float64(deliveries))
	}
}

func (m *BroadcasterMetrics) RecordEviction() {
	m.evictionsTotal.Inc()
}
