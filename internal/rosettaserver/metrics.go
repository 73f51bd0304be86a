package rosettaserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rosetta_server"

// Metrics holds the Prometheus instrumentation for the relay server,
// grounded on the teacher repo's internal/metrics package shape
// (factory-built Gauge/Counter/CounterVec fields registered once at
// construction) but scoped to what this protocol's dispatcher and room
// handlers actually produce.
type Metrics struct {
	ClientsConnected prometheus.Gauge
	LoginsTotal       prometheus.Counter
	LoginFailures     *prometheus.CounterVec
	RoomsActive       prometheus.Gauge
	MessagesRelayed   prometheus.Counter
	PacketsDropped    *prometheus.CounterVec
}

// NewMetrics registers a fresh Metrics instance against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ClientsConnected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clients_connected",
			Help:      "Number of clients currently occupying a registry slot",
		}),
		LoginsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Total successful logins",
		}),
		LoginFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_failures_total",
			Help:      "Login attempts that did not reach LOGGED_IN, by reason",
		}, []string{"reason"}),
		RoomsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms_active",
			Help:      "Number of currently occupied room slots",
		}),
		MessagesRelayed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_relayed_total",
			Help:      "Total send-text packets fanned out to roommates",
		}),
		PacketsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_dropped_total",
			Help:      "Packets dropped without a reply, by reason",
		}, []string{"reason"}),
	}
}
