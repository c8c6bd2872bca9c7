// Package metrics exposes the assistant's Prometheus instrumentation on a
// dedicated registry, so the default global registry stays untouched.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	turnsTotal       prometheus.Counter
	stateTransitions *prometheus.CounterVec
	eventsDropped    prometheus.Counter
	wsClients        prometheus.Gauge
	commandsTotal    *prometheus.CounterVec
	toolCallsTotal   *prometheus.CounterVec
	externalSeconds  *prometheus.HistogramVec
	externalFailures *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		turnsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "earshot_turns_total",
			Help: "Completed conversational turns.",
		}),
		stateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "earshot_state_transitions_total",
			Help: "Orchestrator state transitions by target state.",
		}, []string{"state"}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "earshot_events_dropped_total",
			Help: "Status events dropped because the outbound queue was full.",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "earshot_ws_clients",
			Help: "Currently connected event-stream clients.",
		}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "earshot_commands_total",
			Help: "Inbound control commands by type and outcome.",
		}, []string{"type", "outcome"}),
		toolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "earshot_tool_calls_total",
			Help: "Tool executions by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		externalSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "earshot_external_call_seconds",
			Help:    "Wall time of external collaborator invocations.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"command"}),
		externalFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "earshot_external_call_failures_total",
			Help: "Failed external collaborator invocations.",
		}, []string{"command"}),
	}
	reg.MustRegister(
		m.turnsTotal,
		m.stateTransitions,
		m.eventsDropped,
		m.wsClients,
		m.commandsTotal,
		m.toolCallsTotal,
		m.externalSeconds,
		m.externalFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) StateChanged(state string) { m.stateTransitions.WithLabelValues(state).Inc() }
func (m *Metrics) TurnCompleted()            { m.turnsTotal.Inc() }
func (m *Metrics) EventDropped()             { m.eventsDropped.Inc() }

func (m *Metrics) ClientConnected()    { m.wsClients.Inc() }
func (m *Metrics) ClientDisconnected() { m.wsClients.Dec() }

func (m *Metrics) Command(cmdType string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "rejected"
	}
	m.commandsTotal.WithLabelValues(cmdType, outcome).Inc()
}

func (m *Metrics) ToolCall(tool string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.toolCallsTotal.WithLabelValues(tool, outcome).Inc()
}

// ExternalCall records one subprocess invocation; it satisfies speech.Observe.
func (m *Metrics) ExternalCall(command string, elapsed time.Duration, err error) {
	m.externalSeconds.WithLabelValues(command).Observe(elapsed.Seconds())
	if err != nil {
		m.externalFailures.WithLabelValues(command).Inc()
	}
}
