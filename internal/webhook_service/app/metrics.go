package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	callbacksReceivedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "webhook",
			Name:      "callbacks_received_total",
			Help:      "Total number of provider status callbacks received.",
		},
		[]string{"provider"},
	)

	callbacksAppliedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "webhook",
			Name:      "callbacks_applied_total",
			Help:      "Total number of callbacks by reconciliation outcome.",
		},
		[]string{"provider", "outcome"}, // "applied", "stale", "unknown_id", "unmapped_status", "error"
	)
)
