package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the relay's collectors. A nil *Metrics is valid and records
// nothing, which keeps tests free of registry setup.
type Metrics struct {
	Connections   prometheus.Gauge
	Rooms         prometheus.Gauge
	Relayed       *prometheus.CounterVec
	Evicted       prometheus.Counter
	StoreFailures *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "collabboard_connections",
			Help: "Number of live websocket connections.",
		}),
		Rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "collabboard_rooms",
			Help: "Number of rooms with at least one member.",
		}),
		Relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collabboard_messages_relayed_total",
			Help: "Messages fanned out to room members, by message type.",
		}, []string{"type"}),
		Evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collabboard_clients_evicted_total",
			Help: "Connections dropped because their send buffer was full.",
		}),
		StoreFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collabboard_store_failures_total",
			Help: "Failed board store operations, by operation.",
		}, []string{"op"}),
		gatherer: reg,
	}
	reg.MustRegister(m.Connections, m.Rooms, m.Relayed, m.Evicted, m.StoreFailures)
	return m
}

func (m *Metrics) SetConnections(n int) {
	if m != nil {
		m.Connections.Set(float64(n))
	}
}

func (m *Metrics) SetRooms(n int) {
	if m != nil {
		m.Rooms.Set(float64(n))
	}
}

func (m *Metrics) IncRelayed(msgType string) {
	if m != nil {
		m.Relayed.WithLabelValues(msgType).Inc()
	}
}

func (m *Metrics) IncEvicted() {
	if m != nil {
		m.Evicted.Inc()
	}
}

func (m *Metrics) IncStoreFailure(op string) {
	if m != nil {
		m.StoreFailures.WithLabelValues(op).Inc()
	}
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
