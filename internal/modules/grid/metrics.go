package grid

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of grid runs
type Metrics struct {
	RunsTotal   *prometheus.CounterVec
	RunDuration prometheus.Histogram
	ActiveRuns  prometheus.Gauge
	FinalTotal  *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backtest_runs_total",
				Help: "Total number of backtest runs by outcome",
			},
			[]string{"status"},
		),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "backtest_run_duration_seconds",
				Help:    "Duration of a single backtest run in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		ActiveRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "backtest_active_runs",
				Help: "Number of backtest runs currently executing",
			},
		),
		FinalTotal: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "backtest_final_total",
				Help: "Final portfolio value of the last completed run per label",
			},
			[]string{"label"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.RunsTotal, m.RunDuration, m.ActiveRuns, m.FinalTotal)
	}
	return m
}
