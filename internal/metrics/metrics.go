// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sigex_runs_started_total",
			Help: "Total number of ingestion runs started",
		},
		[]string{"format"},
	)

	RunsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sigex_runs_failed_total",
			Help: "Total number of ingestion runs that ended with an error",
		},
		[]string{"format"},
	)

	UnitsRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sigex_units_read_total",
			Help: "Total number of structural units (lines, objects, elements) read",
		},
		[]string{"format"},
	)

	SamplesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sigex_samples_written_total",
			Help: "Total number of samples written to signals",
		},
		[]string{"format"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sigex_run_duration_seconds",
			Help:    "Wall time of ingestion runs",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"format"},
	)

	StoreFlushFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sigex_store_flush_failures_total",
			Help: "Total number of sample batches that failed to flush to the store",
		},
	)

	StoreBackpressure = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sigex_store_backpressure_total",
			Help: "Total number of inline flushes caused by a full flush queue",
		},
	)

	RegexTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sigex_regex_timeouts_total",
			Help: "Total number of regular expression matches that timed out",
		},
	)
)
