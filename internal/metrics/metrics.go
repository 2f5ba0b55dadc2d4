package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the instruments exposed by the detection pipeline.
type Metrics struct {
	// Pipeline metrics
	RecordsScored  *prometheus.CounterVec
	AnomaliesTotal *prometheus.CounterVec
	PipelineRuns   *prometheus.CounterVec
	RecordsFetched *prometheus.CounterVec
	HistoryLength  *prometheus.GaugeVec

	// Scorer metrics
	ScorerFailures *prometheus.CounterVec
	ScorerLatency  *prometheus.HistogramVec

	// Alerting metrics
	AlertOutcomes *prometheus.CounterVec

	// Query adapter metrics
	FetchErrors *prometheus.CounterVec

	// Store metrics
	StoreErrors *prometheus.CounterVec
}

// NewMetrics creates the full instrument set. Instruments are registered
// through a custom registry, see Exporter.
func NewMetrics() *Metrics {
	return &Metrics{
		RecordsScored: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "traffic_guard_records_scored_total",
				Help: "Total number of feature records scored",
			},
			[]string{"category"},
		),

		AnomaliesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "traffic_guard_anomalies_total",
				Help: "Total number of records flagged anomalous",
			},
			[]string{"category"},
		),

		PipelineRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "traffic_guard_pipeline_runs_total",
				Help: "Total number of pipeline runs by result",
			},
			[]string{"category", "result"},
		),

		RecordsFetched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "traffic_guard_records_fetched_total",
				Help: "Total number of feature records returned by the query adapter",
			},
			[]string{"category"},
		),

		HistoryLength: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "traffic_guard_history_length",
				Help: "Current number of scored records retained in memory",
			},
			[]string{"category"},
		),

		ScorerFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "traffic_guard_scorer_failures_total",
				Help: "Total number of scorer calls recovered fail-open",
			},
			[]string{"category", "reason"},
		),

		ScorerLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "traffic_guard_scorer_duration_seconds",
				Help:    "Time spent waiting for the scoring endpoint",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"category"},
		),

		AlertOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "traffic_guard_alert_outcomes_total",
				Help: "Total number of alert dispatches by outcome",
			},
			[]string{"category", "outcome"},
		),

		FetchErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "traffic_guard_fetch_errors_total",
				Help: "Total number of query adapter failures",
			},
			[]string{"category"},
		),

		StoreErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "traffic_guard_store_errors_total",
				Help: "Total number of prediction store write failures",
			},
			[]string{"category"},
		),
	}
}

// Describe implements prometheus.Collector
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.RecordsScored.Describe(ch)
	m.AnomaliesTotal.Describe(ch)
	m.PipelineRuns.Describe(ch)
	m.RecordsFetched.Describe(ch)
	m.HistoryLength.Describe(ch)
	m.ScorerFailures.Describe(ch)
	m.ScorerLatency.Describe(ch)
	m.AlertOutcomes.Describe(ch)
	m.FetchErrors.Describe(ch)
	m.StoreErrors.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.RecordsScored.Collect(ch)
	m.AnomaliesTotal.Collect(ch)
	m.PipelineRuns.Collect(ch)
	m.RecordsFetched.Collect(ch)
	m.HistoryLength.Collect(ch)
	m.ScorerFailures.Collect(ch)
	m.ScorerLatency.Collect(ch)
	m.AlertOutcomes.Collect(ch)
	m.FetchErrors.Collect(ch)
	m.StoreErrors.Collect(ch)
}
