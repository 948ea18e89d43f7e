// Package metrics exposes the process-wide Prometheus collectors.
//
// Collectors are registered on a dedicated registry rather than the global
// default so tests can construct isolated instances.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles all relay collectors.
type Metrics struct {
	registry *prometheus.Registry

	// EventsPublished counts events published on the in-process bus, by type.
	EventsPublished *prometheus.CounterVec

	// EventsDropped counts events dropped by the per-sink overflow policy.
	EventsDropped prometheus.Counter

	// DLQRoutings counts entries moved to a dead-letter stream, by stream.
	DLQRoutings *prometheus.CounterVec

	// EntriesClaimed counts pending entries reclaimed for retry, by stream.
	EntriesClaimed *prometheus.CounterVec

	// StoreRetries counts retried store calls after connectivity failures.
	StoreRetries prometheus.Counter

	// ScheduledMaterialized counts scheduled messages moved to the reminder stream.
	ScheduledMaterialized prometheus.Counter

	// WSConnections tracks currently open WebSocket connections.
	WSConnections prometheus.Gauge
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_events_published_total",
			Help: "Events published on the in-process event bus.",
		}, []string{"type"}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_events_dropped_total",
			Help: "Events dropped by the per-sink overflow policy.",
		}),
		DLQRoutings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_dlq_routings_total",
			Help: "Entries routed to a dead-letter stream.",
		}, []string{"stream"}),
		EntriesClaimed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_entries_claimed_total",
			Help: "Pending entries reclaimed for retry.",
		}, []string{"stream"}),
		StoreRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_store_retries_total",
			Help: "Store calls retried after connectivity failures.",
		}),
		ScheduledMaterialized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_scheduled_materialized_total",
			Help: "Scheduled messages materialized to the reminder stream.",
		}),
		WSConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_ws_connections",
			Help: "Currently open WebSocket connections.",
		}),
	}

	reg.MustRegister(
		m.EventsPublished,
		m.EventsDropped,
		m.DLQRoutings,
		m.EntriesClaimed,
		m.StoreRetries,
		m.ScheduledMaterialized,
		m.WSConnections,
	)
	return m
}

// Handler returns the HTTP handler serving this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
