package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the relay's prometheus instruments.
type Metrics struct {
	SessionsActive    prometheus.Gauge
	CommandsTotal     *prometheus.CounterVec
	BroadcastsTotal   prometheus.Counter
	MailboxDropped    prometheus.Counter
	LaggedSubscribers prometheus.Counter
	ProtocolErrors    prometheus.Counter
}

// NewMetrics registers the relay instruments with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "relay",
			Name:      "sessions_active",
			Help:      "Number of currently registered sessions.",
		}),
		CommandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "commands_total",
			Help:      "Commands processed by the core, by type.",
		}, []string{"type"}),
		BroadcastsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "broadcasts_total",
			Help:      "Deltas published on the broadcast bus.",
		}),
		MailboxDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "mailbox_dropped_total",
			Help:      "Unicast payloads dropped on full or closed mailboxes.",
		}),
		LaggedSubscribers: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "lagged_subscribers_total",
			Help:      "Subscribers disconnected for lagging behind the bus.",
		}),
		ProtocolErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "protocol_errors_total",
			Help:      "Inbound payloads rejected by the engine.",
		}),
	}
}

// nil-safe helpers so the core can run without metrics in tests.

func (m *Metrics) sessionDelta(d float64) {
	if m != nil {
		m.SessionsActive.Add(d)
	}
}

func (m *Metrics) command(kind string) {
	if m != nil {
		m.CommandsTotal.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) broadcast() {
	if m != nil {
		m.BroadcastsTotal.Inc()
	}
}

func (m *Metrics) mailboxDropped() {
	if m != nil {
		m.MailboxDropped.Inc()
	}
}

func (m *Metrics) lagged() {
	if m != nil {
		m.LaggedSubscribers.Inc()
	}
}

func (m *Metrics) protocolError() {
	if m != nil {
		m.ProtocolErrors.Inc()
	}
}
