package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Key queue metrics
var (
	// QueueLanes tracks keys that currently have scheduled work
	QueueLanes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "keyqueue_lanes_current",
			Help: "Number of keys with pending or running mutations",
		},
	)

	// QueuePending tracks operations admitted or waiting across all lanes
	QueuePending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "keyqueue_pending_operations",
			Help: "Operations enqueued and not yet finished",
		},
	)

	QueueWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "keyqueue_wait_duration_seconds",
			Help:    "Time an operation waited for its key before admission",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	QueueRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "keyqueue_run_duration_seconds",
			Help:    "Time an admitted operation held its key",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// QueueOpsTotal counts finished operations by result (ok/error/panic/canceled)
	QueueOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyqueue_operations_total",
			Help: "Finished key queue operations by result",
		},
		[]string{"result"},
	)
)

// Document store metrics
var (
	StoreOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docstore_operations_total",
			Help: "Document store operations by driver, operation and status",
		},
		[]string{"driver", "operation", "status"},
	)

	StoreOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docstore_operation_duration_seconds",
			Help:    "Document store operation latency in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"driver", "operation"},
	)

	// TempFilesSwept counts orphaned temp artifacts removed by the sweeper
	TempFilesSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docstore_temp_files_swept_total",
			Help: "Orphaned temporary documents removed",
		},
	)
)

// Session metrics
var (
	SessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focus_session_transitions_total",
			Help: "Session lifecycle transitions by event and outcome",
		},
		[]string{"event", "outcome"},
	)
)

// Journal metrics
var (
	// JournalLinesSkipped counts journal lines that failed to decode on load
	JournalLinesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "journal_lines_skipped_total",
			Help: "Undecodable journal lines ignored while loading",
		},
	)
)
