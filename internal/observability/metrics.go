// Package observability holds the Prometheus metrics for processing runs.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters and histograms for the DSD pipeline.
type Metrics struct {
	RunsTotal      prometheus.Counter
	StepsProcessed *prometheus.CounterVec // labels: stage
	SoftFailures   *prometheus.CounterVec // labels: stage
	StageDuration  *prometheus.HistogramVec
	FitIterations  prometheus.Histogram
	RowsExported   prometheus.Counter
}

var (
	stageLabels     = []string{"stage"}
	durationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30}
	iterBuckets     = []float64{0, 10, 25, 50, 100, 250, 500, 1000, 2500}
)

func newMetrics() *Metrics {
	return &Metrics{
		RunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dsd",
			Name:      "runs_total",
			Help:      "Total processing runs started.",
		}),
		StepsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dsd",
			Name:      "steps_processed_total",
			Help:      "Time steps processed by each stage.",
		}, stageLabels),
		SoftFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dsd",
			Name:      "step_failures_total",
			Help:      "Time steps masked because a stage could not compute them.",
		}, stageLabels),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dsd",
			Name:      "stage_duration_seconds",
			Help:      "Wall time spent in each stage per run.",
			Buckets:   durationBuckets,
		}, stageLabels),
		FitIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dsd",
			Name:      "fit_iterations",
			Help:      "Optimizer iterations per gamma fit.",
			Buckets:   iterBuckets,
		}),
		RowsExported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dsd",
			Name:      "rows_exported_total",
			Help:      "Rows written to tabular export files.",
		}),
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RunsTotal,
		m.StepsProcessed,
		m.SoftFailures,
		m.StageDuration,
		m.FitIterations,
		m.RowsExported,
	)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, so
// tests can build as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

// Step counts processed and failed steps for a stage. Safe on a nil receiver.
func (m *Metrics) Step(stage string, failed bool) {
	if m == nil {
		return
	}
	m.StepsProcessed.WithLabelValues(stage).Inc()
	if failed {
		m.SoftFailures.WithLabelValues(stage).Inc()
	}
}

// ObserveStage records a stage duration in seconds. Safe on a nil receiver.
func (m *Metrics) ObserveStage(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(seconds)
}

// ObserveFit records optimizer iterations. Safe on a nil receiver.
func (m *Metrics) ObserveFit(iterations int) {
	if m == nil {
		return
	}
	m.FitIterations.Observe(float64(iterations))
}
