package webhook

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gamecredit_webhook_deliveries_total",
		Help: "Webhook delivery attempts by event and outcome.",
	}, []string{"event", "outcome"})

	attemptDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gamecredit_webhook_attempt_duration_seconds",
		Help:    "Duration of a single webhook POST.",
		Buckets: prometheus.DefBuckets,
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gamecredit_webhook_queue_depth",
		Help: "Deliveries waiting for a worker or a retry slot.",
	})
)

const (
	outcomeDelivered = "delivered"
	outcomeRetrying  = "retrying"
	outcomeFailed    = "failed"
	outcomeThrottled = "throttled"
)
