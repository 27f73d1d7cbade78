package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Handshake results.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultProtocol = "protocol"
	ResultTimeout  = "timeout"
	ResultError    = "error"
)

// Send failure reasons.
const (
	ReasonUnknownComponent = "unknown_component"
	ReasonWrite            = "write"
)

// Metrics contains the component manager metrics.
type Metrics struct {
	ComponentsActive  prometheus.Gauge
	Handshakes        *prometheus.CounterVec
	HandshakeDuration prometheus.Histogram
	PacketsSent       *prometheus.CounterVec
	SendErrors        *prometheus.CounterVec
	Removals          prometheus.Counter
}

// New creates unregistered metrics.
func New() *Metrics {
	return &Metrics{
		ComponentsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "whack",
				Subsystem: "components",
				Name:      "active",
				Help:      "Number of components attached to the server",
			},
		),

		Handshakes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "whack",
				Subsystem: "handshake",
				Name:      "total",
				Help:      "Component handshakes by result (ok, rejected, protocol, timeout, error)",
			},
			[]string{"result"},
		),

		HandshakeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "whack",
				Subsystem: "handshake",
				Name:      "duration_seconds",
				Help:      "Time from dial to authenticated stream",
				Buckets:   prometheus.DefBuckets,
			},
		),

		PacketsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "whack",
				Subsystem: "packets",
				Name:      "sent_total",
				Help:      "Packets written to the server",
			},
			[]string{"subdomain"},
		),

		SendErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "whack",
				Subsystem: "packets",
				Name:      "send_errors_total",
				Help:      "Packets that could not be sent, by reason",
			},
			[]string{"reason"},
		),

		Removals: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "whack",
				Subsystem: "components",
				Name:      "removed_total",
				Help:      "Components detached from the server",
			},
		),
	}
}

// Collectors returns every collector, for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ComponentsActive,
		m.Handshakes,
		m.HandshakeDuration,
		m.PacketsSent,
		m.SendErrors,
		m.Removals,
	}
}

// Register registers all collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
