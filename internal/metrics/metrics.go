// Package metrics exposes Prometheus instrumentation for streams, watchlist
// mutations, reruns and the telemetry sink.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Stream metrics
	StreamsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelwise_streams_started_total",
			Help: "Total number of SSE streams opened",
		},
		[]string{"category"}, // "primary", "explanation"
	)

	StreamsCancelled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelwise_streams_cancelled_total",
			Help: "Total number of live SSE streams aborted",
		},
		[]string{"category"},
	)

	StreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelwise_stream_errors_total",
			Help: "Total number of SSE streams that ended with a transport error",
		},
		[]string{"category"},
	)

	StaleEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reelwise_stale_events_dropped_total",
			Help: "Total number of stream events discarded because their query was superseded",
		},
	)

	// Watchlist metrics
	WatchlistMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelwise_watchlist_mutations_total",
			Help: "Total number of watchlist mutations by operation and outcome",
		},
		[]string{"operation", "outcome"}, // outcome: "committed", "rolled_back"
	)

	WatchlistLookupBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelwise_watchlist_lookup_batches_total",
			Help: "Total number of watchlist existence lookup calls",
		},
		[]string{"outcome"},
	)

	// Rerun metrics
	Reruns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelwise_reruns_total",
			Help: "Total number of filter reruns by outcome",
		},
		[]string{"outcome"}, // "skipped", "applied", "restored"
	)

	// Telemetry sink circuit breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reelwise_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelwise_circuit_breaker_requests_total",
			Help: "Total number of requests through the circuit breaker",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	// Rebuild scheduler
	TasteRebuilds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelwise_taste_rebuilds_total",
			Help: "Total number of taste profile rebuild requests by outcome",
		},
		[]string{"outcome"},
	)

	// Background jobs
	ScheduledTaskRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelwise_scheduled_task_runs_total",
			Help: "Total number of scheduled task executions by task and outcome",
		},
		[]string{"task", "outcome"}, // "succeeded", "failed"
	)
)
