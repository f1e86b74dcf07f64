package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/randybritsch/c4-mcp-app-sub000/domain"
	"github.com/randybritsch/c4-mcp-app-sub000/domain/entities"
)

const namespace = "c4_voice"

// Collectors holds every metric the relay exports. It satisfies the metrics
// interfaces of the resolver and the websocket hub.
type Collectors struct {
	ActiveConnections   prometheus.Gauge
	RejectedConnections *prometheus.CounterVec
	Envelopes           *prometheus.CounterVec
	Commands            *prometheus.CounterVec
	ExternalCalls       *prometheus.CounterVec
	ExternalLatency     *prometheus.HistogramVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)

	return &Collectors{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Number of open websocket connections",
		}),
		RejectedConnections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_connections_total",
			Help:      "Websocket connections refused at admission",
		}, []string{"reason"}),
		Envelopes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_total",
			Help:      "Websocket envelopes by direction and type",
		}, []string{"direction", "type"}),
		Commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Resolved commands by source and outcome",
		}, []string{"source", "outcome"}),
		ExternalCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_calls_total",
			Help:      "Calls to speech, planner and gateway providers",
		}, []string{"provider", "code"}),
		ExternalLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "external_call_duration_seconds",
			Help:      "Latency of provider calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
	}
}

func (c *Collectors) CommandFinished(source entities.CommandSource, outcome string) {
	c.Commands.WithLabelValues(string(source), outcome).Inc()
}

// ExternalCall records one provider call. Failures are labelled with their
// error code, successes with "ok".
func (c *Collectors) ExternalCall(provider string, elapsed time.Duration, err error) {
	code := "ok"
	if err != nil {
		code = domain.CodeOf(err, domain.CodeInternal)
	}
	c.ExternalCalls.WithLabelValues(provider, code).Inc()
	c.ExternalLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func (c *Collectors) ConnectionOpened() {
	c.ActiveConnections.Inc()
}

func (c *Collectors) ConnectionClosed() {
	c.ActiveConnections.Dec()
}

func (c *Collectors) ConnectionRejected(reason string) {
	c.RejectedConnections.WithLabelValues(reason).Inc()
}

func (c *Collectors) Envelope(direction, messageType string) {
	c.Envelopes.WithLabelValues(direction, messageType).Inc()
}
