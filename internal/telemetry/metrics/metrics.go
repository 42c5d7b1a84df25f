// Package metrics collects Prometheus counters, histograms, and gauges
// for the orchestrator and its three stages.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PipelineMetrics is the metrics surface recorded by the orchestrator and
// stages. One instance is constructed per process and shared.
type PipelineMetrics struct {
	CalculationsTotal   prometheus.Counter
	CalculationDuration prometheus.Histogram
	ErrorsTotal         *prometheus.CounterVec
	StageDuration       *prometheus.HistogramVec

	PreparationCacheHits   prometheus.Counter
	PreparationCacheMisses prometheus.Counter
	CoalescedRequests      prometheus.Counter

	IdempotencyReplays prometheus.Counter

	OutboxPending     prometheus.Gauge
	OutboxPublished   prometheus.Counter
	OutboxDeadLetter  prometheus.Counter
	OutboxRetries     prometheus.Counter

	WebhookAttempts prometheus.Counter
	WebhookFailures prometheus.Counter
}

// New constructs and registers PipelineMetrics against the default
// Prometheus registry.
func New() *PipelineMetrics {
	return &PipelineMetrics{
		CalculationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pricing_calculations_total",
			Help: "Total number of calculation requests received.",
		}),
		CalculationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pricing_calculation_duration_seconds",
			Help:    "End-to-end duration of a calculation.",
			Buckets: prometheus.DefBuckets,
		}),
		ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pricing_errors_total",
			Help: "Total errors by kind.",
		}, []string{"kind"}),
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pricing_stage_duration_seconds",
			Help:    "Duration of one pipeline stage.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		PreparationCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pricing_preparation_cache_hits_total",
			Help: "Preparation-stage cache hits.",
		}),
		PreparationCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pricing_preparation_cache_misses_total",
			Help: "Preparation-stage cache misses.",
		}),
		CoalescedRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pricing_coalesced_requests_total",
			Help: "Requests that joined an in-flight preparation instead of fetching.",
		}),
		IdempotencyReplays: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pricing_idempotency_replays_total",
			Help: "Commit requests resolved by idempotency replay.",
		}),
		OutboxPending: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pricing_outbox_pending",
			Help: "Outbox rows currently pending or processing.",
		}),
		OutboxPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pricing_outbox_published_total",
			Help: "Outbox rows successfully published.",
		}),
		OutboxDeadLetter: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pricing_outbox_dead_letter_total",
			Help: "Outbox rows moved to DEAD_LETTER.",
		}),
		OutboxRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pricing_outbox_retries_total",
			Help: "Outbox publish retries.",
		}),
		WebhookAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pricing_webhook_attempts_total",
			Help: "Webhook delivery attempts.",
		}),
		WebhookFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pricing_webhook_failures_total",
			Help: "Webhook delivery failures after exhausting retries.",
		}),
	}
}
