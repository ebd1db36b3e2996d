// Package metrics holds the Prometheus collectors of the fulfillment pipeline
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Token exchanges partitioned by provider and result (ok, auth_error, error)
	TokenExchangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esim_token_exchanges_total",
			Help: "Total number of bearer token exchanges with external providers",
		},
		[]string{"provider", "result"},
	)

	// Inbound storefront notifications partitioned by outcome (processed, ignored, failed)
	WebhookNotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esim_webhook_notifications_total",
			Help: "Total number of storefront notifications handled",
		},
		[]string{"outcome"},
	)

	// Provisioning executor runs partitioned by result
	ProvisioningAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esim_provisioning_attempts_total",
			Help: "Total number of provisioning executor runs",
		},
		[]string{"result"},
	)

	ProvisioningDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "esim_provisioning_duration_seconds",
			Help:    "Duration of provisioning executor runs",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Delivery confirmations partitioned by result (ok, error)
	DeliveryConfirmationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esim_delivery_confirmations_total",
			Help: "Total number of delivery confirmation calls to the storefront",
		},
		[]string{"result"},
	)

	// Worker job outcomes partitioned by result (done, retry, exhausted, panic)
	ProvisioningJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esim_provisioning_jobs_total",
			Help: "Total number of provisioning jobs taken off the queue",
		},
		[]string{"result"},
	)

	// Recovery sweep actions partitioned by kind (requeued, confirmed, confirm_failed)
	RecoverySweepTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esim_recovery_sweep_total",
			Help: "Total number of orders touched by the recovery sweep",
		},
		[]string{"kind"},
	)

	ProvisioningQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "esim_provisioning_queue_depth",
			Help: "Number of provisioning jobs waiting in the queue",
		},
	)
)
