// Package metrics exposes the Prometheus collectors the auction core
// publishes on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsCreated counts Jobs opened from BookingPaid events.
	JobsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transfercore_jobs_created_total",
		Help: "Total number of Jobs opened for bidding.",
	})

	// BidsPlaced counts successful PlaceBid/UpdateBid/WithdrawBid calls.
	BidsPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transfercore_bids_placed_total",
		Help: "Total number of bids placed, updated or withdrawn, by operation.",
	}, []string{"operation"})

	// CascadeAttempts counts each offer made to an operator during the
	// acceptance cascade.
	CascadeAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transfercore_cascade_attempts_total",
		Help: "Total number of acceptance-cascade offers made.",
	})

	// Escalations counts Jobs that reached NO_BIDS_RECEIVED or exhausted
	// the cascade (ALL_OPERATORS_REJECTED).
	Escalations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transfercore_escalations_total",
		Help: "Total number of Jobs escalated to admin, by reason.",
	}, []string{"reason"})

	// TimerDispatchLatency measures the delay between a TimerEntry's
	// fireAt and the moment the dispatcher actually processes it.
	TimerDispatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "transfercore_timer_dispatch_latency_seconds",
		Help:    "Seconds between a timer's fire_at and its dispatch.",
		Buckets: prometheus.DefBuckets,
	})

	// TransactionRetries counts transient-error retries inside guarded
	// state transitions.
	TransactionRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transfercore_transaction_retries_total",
		Help: "Total number of transaction retries after a transient Postgres error.",
	})
)
