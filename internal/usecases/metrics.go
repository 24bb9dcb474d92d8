package usecases

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	flowOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "newsletter",
		Name:      "flow_outcomes_total",
		Help:      "Subscription flow results by flow and outcome code.",
	}, []string{"flow", "outcome"})

	notificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "newsletter",
		Name:      "notification_failures_total",
		Help:      "Notifications that could not be delivered.",
	}, []string{"kind"})

	tokenCollisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "newsletter",
		Name:      "token_collisions_total",
		Help:      "Token hash collisions seen while generating tokens.",
	}, []string{"stage"})

	tokenGenerationAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "newsletter",
		Name:      "token_generation_attempts",
		Help:      "Attempts needed to generate a unique token.",
		Buckets:   prometheus.LinearBuckets(1, 1, 10),
	})
)
