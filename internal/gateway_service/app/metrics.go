package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	webhookEventsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wagateway",
			Name:      "webhook_events_total",
			Help:      "Inbound webhook events by dispatch decision.",
		},
		[]string{"status"}, // "buffering", "ignored", "cooldown", "rejected"
	)

	presenceSignalsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wagateway",
			Name:      "presence_signals_total",
			Help:      "Presence signals sent to the messaging provider.",
		},
		[]string{"presence", "outcome"}, // outcome: "sent", "failed"
	)

	bufferFlushCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wagateway",
			Name:      "buffer_flushes_total",
			Help:      "Aggregation buffer flushes.",
		},
		[]string{"reason"}, // "quiescence", "max_window", "empty"
	)

	aggregatedFragmentsHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "wagateway",
			Name:      "aggregated_fragments_per_flush",
			Help:      "Number of message fragments joined per flush.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13},
		},
	)

	turnsProcessedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wagateway",
			Name:      "turns_processed_total",
			Help:      "Customer turns processed by the agent pipeline.",
		},
		[]string{"status"}, // "success", "empty_output", "agent_error", "delivery_error"
	)

	turnDurationHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "wagateway",
			Name:      "turn_duration_seconds",
			Help:      "Wall time of one agent turn including delivery.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// RecordWebhookEvent counts one inbound webhook by its dispatch decision.
// Exposed to the transport layer so the counter lives next to its peers.
func RecordWebhookEvent(status string) {
	webhookEventsCounter.WithLabelValues(status).Inc()
}
