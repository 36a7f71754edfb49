// Package metrics exposes the gateway's Prometheus registry and the
// counters/histograms the hook pipeline and escalation sweepers publish to.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var registry = prometheus.NewRegistry()

// GetRegistry returns the process-wide registry the metric vars below are
// registered on. No HTTP handler in this module serves it.
func GetRegistry() *prometheus.Registry {
	return registry
}

var (
	MessagesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_messages_processed_total",
			Help: "Inbound messages that completed the hook pipeline, by channel and outcome.",
		},
		[]string{"channel", "outcome"},
	)

	MessageLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_message_latency_seconds",
			Help:    "End-to-end pipeline latency per message.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	EscalationsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_escalations_created_total",
			Help: "Escalations created, by channel and routing_action.",
		},
		[]string{"channel", "routing_action"},
	)

	EscalationsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_escalations_open",
			Help: "Current escalation count by status.",
		},
		[]string{"status"},
	)

	HooksExecuted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_hooks_executed_total",
			Help: "Hook invocations, by hook name and kind.",
		},
		[]string{"hook", "kind"},
	)
)

func init() {
	registry.MustRegister(MessagesProcessed, MessageLatency, EscalationsCreated, EscalationsByStatus, HooksExecuted)
}
