package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "aep_ledger"

// LedgerMetrics holds the Prometheus metrics of the ledger writer, archiver
// and merge engine.
type LedgerMetrics struct {
	AppendsTotal     *prometheus.CounterVec
	BytesTotal       prometheus.Counter
	RotationsTotal   *prometheus.CounterVec
	LockWaitSeconds  prometheus.Histogram
	MergeEventsTotal *prometheus.CounterVec
	MergeInputsTotal *prometheus.CounterVec
}

// NewLedgerMetrics creates the metrics and registers them with reg. A nil reg
// leaves them unregistered, which is what tests and one-shot CLI runs want.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	factory := promauto.With(reg)
	return &LedgerMetrics{
		AppendsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "appends_total",
			Help:      "Total number of append attempts by outcome.",
		}, []string{"status"}), // status: appended, dropped_lock_timeout, dropped_write_failure, dropped_encode_failure
		BytesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "bytes_total",
			Help:      "Total number of record bytes appended to current files.",
		}),
		RotationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archiver",
			Name:      "rotations_total",
			Help:      "Total number of rotations by outcome.",
		}, []string{"outcome"}), // outcome: success, failure
		LockWaitSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for the ledger lock.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		MergeEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "merge",
			Name:      "events_total",
			Help:      "Total number of events seen by the merge engine by disposition.",
		}, []string{"disposition"}), // disposition: kept, duplicate, without_id
		MergeInputsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "merge",
			Name:      "inputs_total",
			Help:      "Total number of merge input files by status.",
		}, []string{"status"}), // status: read, truncated, skipped
	}
}
