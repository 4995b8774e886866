package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	SnapshotsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peerstats_snapshots_total",
			Help: "Snapshots handled by the batch orchestrator.",
		},
		[]string{"outcome"},
	)

	AggregationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "peerstats_aggregation_duration_seconds",
			Help:    "Time to decode and aggregate one snapshot.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"project"},
	)

	RecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peerstats_records_total",
			Help: "Route records consumed from RIB dumps.",
		},
		[]string{"collector"},
	)

	OutputBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peerstats_output_bytes_total",
			Help: "Compressed bytes written per data type.",
		},
		[]string{"data_type"},
	)

	OutputErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peerstats_output_errors_total",
			Help: "Output write failures (rolled back).",
		},
		[]string{"data_type"},
	)

	MergeFilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peerstats_merge_files_total",
			Help: "Partial files seen by the merge stage.",
		},
		[]string{"data_type", "outcome"},
	)

	StoreInsertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peerstats_store_inserts_total",
			Help: "Peer-stats snapshot inserts (inserted, duplicate, error).",
		},
		[]string{"outcome"},
	)

	StoreWriteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "peerstats_store_write_duration_seconds",
			Help:    "Peer-stats insert transaction latency.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
	)

	NotifyErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "peerstats_notify_errors_total",
			Help: "Snapshot notifications that failed to publish.",
		},
	)
)

var registerOnce sync.Once

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			SnapshotsTotal,
			AggregationDuration,
			RecordsTotal,
			OutputBytesTotal,
			OutputErrorsTotal,
			MergeFilesTotal,
			StoreInsertsTotal,
			StoreWriteDuration,
			NotifyErrorsTotal,
		)
	})
}
