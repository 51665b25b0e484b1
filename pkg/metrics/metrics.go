package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for monitoring
var (
	JobsDiscovered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agent_jobs_discovered",
		Help: "The number of open jobs assigned to this agent found in the last scan",
	})

	JobsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_jobs_rejected_total",
		Help: "The total number of jobs rejected by the eligibility policy",
	}, []string{"reason"})

	JobsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_jobs_executed_total",
		Help: "The total number of execution attempts by outcome",
	}, []string{"status"})

	FeeClaims = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_fee_claims_total",
		Help: "The total number of fee claims by outcome",
	}, []string{"status"})

	BroadcastAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_broadcast_attempts_total",
		Help: "The total number of broadcast attempts by result",
	}, []string{"result"})

	ConfirmationBlocks = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "agent_confirmation_blocks",
		Help:    "Blocks elapsed between submission and confirmation",
		Buckets: prometheus.LinearBuckets(0, 1, 12),
	})

	JobProcessingTime = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "agent_job_processing_seconds",
		Help:    "Time taken to execute a job and claim its fee",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12), // Start at 1s with 12 buckets doubling in size
	})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "agent_cycle_duration_seconds",
		Help:    "Time taken by one scheduler cycle",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
	})

	CycleErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agent_cycle_errors_total",
		Help: "The total number of cycles that ended with an error",
	})

	JobErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_job_errors_total",
		Help: "Total number of job-level errors by type",
	}, []string{"error_type"})

	CurrentBlockHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agent_current_block_height",
		Help: "The latest ledger height observed by the agent",
	})

	PriceGate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_price_gate_total",
		Help: "Price gate decisions by result",
	}, []string{"result"})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_events_published_total",
		Help: "Job events published to the event bus by type and result",
	}, []string{"type", "result"})
)
