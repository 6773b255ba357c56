// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Set holds all ScalePilot metrics. Register it once per process.
type Set struct {
	RunsTotal       prometheus.Counter
	RunDuration     prometheus.Histogram
	Recommendations *prometheus.CounterVec
	Downgrades      *prometheus.CounterVec
}

// NewSet creates the metric set.
func NewSet() *Set {
	return &Set{
		RunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scalepilot_runs_total",
			Help: "Total number of account scoring runs",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scalepilot_run_duration_seconds",
			Help:    "Duration of one account scoring run in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}),
		Recommendations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scalepilot_recommendations_total",
				Help: "Recommendations emitted by action",
			},
			[]string{"action"},
		),
		Downgrades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scalepilot_guardrail_downgrades_total",
				Help: "Actions downgraded by a guardrail, by rule",
			},
			[]string{"rule"},
		),
	}
}

// Register adds every metric in the set to the registry.
func (s *Set) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{s.RunsTotal, s.RunDuration, s.Recommendations, s.Downgrades} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
