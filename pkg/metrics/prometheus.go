package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exposes pipeline funnel metrics via Prometheus.
type Recorder struct {
	runsTotal       *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	statusCounts    *prometheus.GaugeVec
	skippedRecords  prometheus.Counter
	selectedGauge   prometheus.Gauge
	violationsTotal *prometheus.CounterVec
}

// New creates a Prometheus metrics recorder. Collectors are registered
// on the default registry via promauto; create at most one per process.
func New() *Recorder {
	return &Recorder{
		runsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ivscreen_runs_total",
				Help: "Total number of pipeline runs by outcome",
			},
			[]string{"outcome"},
		),
		stageDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ivscreen_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		statusCounts: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ivscreen_status_count",
				Help: "Candidate count per acceptance status in the latest run",
			},
			[]string{"status"},
		),
		skippedRecords: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ivscreen_skipped_records_total",
				Help: "Total input records rejected at the record level",
			},
		),
		selectedGauge: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ivscreen_selected_positions",
				Help: "Number of valid final selections in the latest run",
			},
		),
		violationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ivscreen_invariant_violations_total",
				Help: "Total contract invariant violations by invariant name",
			},
			[]string{"invariant"},
		),
	}
}

// RecordRun records a completed or failed pipeline run.
func (r *Recorder) RecordRun(outcome string) {
	r.runsTotal.WithLabelValues(outcome).Inc()
}

// RecordStageDuration records how long a stage took.
func (r *Recorder) RecordStageDuration(stage string, seconds float64) {
	r.stageDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordStatusCount sets the candidate count for a status.
func (r *Recorder) RecordStatusCount(status string, count int) {
	r.statusCounts.WithLabelValues(status).Set(float64(count))
}

// RecordSkipped adds to the skipped-record counter.
func (r *Recorder) RecordSkipped(count int) {
	r.skippedRecords.Add(float64(count))
}

// RecordSelected sets the valid-selection gauge.
func (r *Recorder) RecordSelected(count int) {
	r.selectedGauge.Set(float64(count))
}

// RecordViolation records an invariant violation.
func (r *Recorder) RecordViolation(invariant string) {
	r.violationsTotal.WithLabelValues(invariant).Inc()
}
