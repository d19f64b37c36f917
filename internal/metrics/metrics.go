// Package metrics exposes coordinator Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors of one coordinator instance.
type Metrics struct {
	registry *prometheus.Registry

	ConversationsTotal  *prometheus.CounterVec
	ActiveConversations prometheus.Gauge
	AgentCallDuration   *prometheus.HistogramVec
	AgentErrorsTotal    *prometheus.CounterVec
	RelayMessagesTotal  *prometheus.CounterVec
	CancelResultsTotal  *prometheus.CounterVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ConversationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coordinator_conversations_total",
				Help: "Finished conversation passes by final status.",
			},
			[]string{"status"}, // completed | failed | canceled
		),
		ActiveConversations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "coordinator_active_conversations",
				Help: "Conversation passes currently running.",
			},
		),
		AgentCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coordinator_agent_call_duration_seconds",
				Help:    "Time from submitting to an agent until its final reply.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"agent", "status"},
		),
		AgentErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coordinator_agent_errors_total",
				Help: "Failed agent exchanges by phase.",
			},
			[]string{"agent", "phase"}, // submit | poll
		),
		RelayMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coordinator_relay_messages_total",
				Help: "Messages relayed between agents by recipient.",
			},
			[]string{"recipient"},
		),
		CancelResultsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coordinator_cancel_results_total",
				Help: "Per-task cancellation outcomes.",
			},
			[]string{"status"}, // cancel_requested | skipped | error
		),
	}
	m.registry.MustRegister(
		m.ConversationsTotal, m.ActiveConversations,
		m.AgentCallDuration, m.AgentErrorsTotal,
		m.RelayMessagesTotal, m.CancelResultsTotal,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
