package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Axis run statuses
const (
	StatusOK       = "ok"
	StatusPartial  = "partial"
	StatusNotFound = "not_found"
	StatusFailed   = "failed"
)

// Metrics instruments pipeline runs
type Metrics struct {
	SnapshotsLoaded *prometheus.CounterVec
	FilesSkipped    *prometheus.CounterVec
	AxisRuns        *prometheus.CounterVec
	AxisDuration    *prometheus.HistogramVec
	DiffLines       prometheus.Histogram
	Documents       prometheus.Gauge
}

// NewMetrics creates pipeline metrics registered with reg. A nil registerer
// creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		SnapshotsLoaded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "editmetrics_snapshots_loaded_total",
			Help: "Snapshot files loaded, by axis",
		}, []string{"axis"}),

		FilesSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "editmetrics_snapshots_skipped_total",
			Help: "Malformed snapshot files skipped, by axis",
		}, []string{"axis"}),

		AxisRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "editmetrics_axis_runs_total",
			Help: "Axis pipeline runs, by axis and status",
		}, []string{"axis", "status"}),

		AxisDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "editmetrics_axis_run_duration_seconds",
			Help:    "Duration of axis pipeline runs",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"axis"}),

		DiffLines: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "editmetrics_interleaving_lines",
			Help:    "Differing-line count per compared document",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),

		Documents: f.NewGauge(prometheus.GaugeOpts{
			Name: "editmetrics_interleaving_documents",
			Help: "Documents compared in the last interleaving run",
		}),
	}
}
