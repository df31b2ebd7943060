// Package metrics exposes the relay's Prometheus instrumentation. It is an
// ambient concern the spec's non-goals never exclude: session count,
// active connections, tokens issued/expired, and disconnect reasons.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the narrow surface the relay core depends on, kept separate
// from the concrete Prometheus registrations so internal/relay never
// imports the client_golang package directly. reason is a free-form label
// ("PeerClosed" for an organic disconnect, or a wire.Reason's String() for
// a server-initiated close) rather than wire.Reason itself, so this
// package never needs to import internal/wire.
type Metrics interface {
	ConnectionOpened()
	ConnectionClosed(reason string)
	SessionCreated()
	SessionDestroyed()
	TokenIssued(kind string)
	TokenExpired(kind string)
}

// Prometheus implements Metrics with a small set of counters and gauges
// registered against a caller-supplied registry, mirroring the counter
// naming style of a typical relay/gateway exporter.
type Prometheus struct {
	connectionsOpened prometheus.Counter
	connectionsActive prometheus.Gauge
	connectionsClosed *prometheus.CounterVec
	sessionsCreated   prometheus.Counter
	sessionsActive    prometheus.Gauge
	tokensIssued      *prometheus.CounterVec
	tokensExpired     *prometheus.CounterVec
}

// NewPrometheus creates and registers the relay's metric set on reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		connectionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_connections_opened_total",
			Help: "Total KCP connections accepted.",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_connections_active",
			Help: "Currently live KCP connections.",
		}),
		connectionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_connections_closed_total",
			Help: "Total KCP connections closed, by reason.",
		}, []string{"reason"}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_sessions_created_total",
			Help: "Total sessions created.",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_sessions_active",
			Help: "Currently active sessions.",
		}),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_tokens_issued_total",
			Help: "Total pending tokens issued, by kind.",
		}, []string{"kind"}),
		tokensExpired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_tokens_expired_total",
			Help: "Total pending tokens expired unused, by kind.",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		p.connectionsOpened,
		p.connectionsActive,
		p.connectionsClosed,
		p.sessionsCreated,
		p.sessionsActive,
		p.tokensIssued,
		p.tokensExpired,
	)
	return p
}

func (p *Prometheus) ConnectionOpened() {
	p.connectionsOpened.Inc()
	p.connectionsActive.Inc()
}

func (p *Prometheus) ConnectionClosed(reason string) {
	p.connectionsActive.Dec()
	p.connectionsClosed.WithLabelValues(reason).Inc()
}

func (p *Prometheus) SessionCreated() {
	p.sessionsCreated.Inc()
	p.sessionsActive.Inc()
}

func (p *Prometheus) SessionDestroyed() {
	p.sessionsActive.Dec()
}

func (p *Prometheus) TokenIssued(kind string) {
	p.tokensIssued.WithLabelValues(kind).Inc()
}

func (p *Prometheus) TokenExpired(kind string) {
	p.tokensExpired.WithLabelValues(kind).Inc()
}

// Noop implements Metrics with no-ops, used by tests and by any embedder
// that doesn't want a Prometheus dependency.
type Noop struct{}

func (Noop) ConnectionOpened()       {}
func (Noop) ConnectionClosed(string) {}
func (Noop) SessionCreated()         {}
func (Noop) SessionDestroyed()       {}
func (Noop) TokenIssued(string)      {}
func (Noop) TokenExpired(string)     {}
