package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesSubmittedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "notification",
			Name:      "messages_submitted_total",
			Help:      "Total number of message records created.",
		},
		[]string{"provider", "kind"},
	)

	providerSendResultsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "notification",
			Name:      "provider_send_results_total",
			Help:      "Total number of provider send attempts by outcome.",
		},
		[]string{"provider", "result"}, // result: "sent", "failed"
	)

	providerSendDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "notification",
			Name:      "provider_send_duration_seconds",
			Help:      "Duration of synchronous provider send calls.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	workflowEventsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "notification",
			Name:      "workflow_events_processed_total",
			Help:      "Total number of workflow transition events consumed.",
		},
		[]string{"status"}, // "ok", "error"
	)
)
