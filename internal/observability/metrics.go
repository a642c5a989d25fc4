package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for plan execution.
type Metrics struct {
	Submissions    *prometheus.CounterVec
	PlanRuns       *prometheus.CounterVec
	StepOutcomes   *prometheus.CounterVec
	StepDuration   *prometheus.HistogramVec
	InFlightSteps  prometheus.Gauge
	Classification *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		Submissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whatsmap_submissions_total",
				Help: "Commands submitted, by outcome kind",
			},
			[]string{"outcome"},
		),
		PlanRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whatsmap_plan_runs_total",
				Help: "Plans executed, by mode and whether every step completed",
			},
			[]string{"mode", "complete"},
		),
		StepOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whatsmap_step_outcomes_total",
				Help: "Terminal step states, by tool",
			},
			[]string{"tool", "status"},
		),
		StepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "whatsmap_step_duration_seconds",
				Help:    "Capability call latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
			},
			[]string{"tool"},
		),
		InFlightSteps: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "whatsmap_steps_in_flight",
				Help: "Capability calls currently outstanding",
			},
		),
		Classification: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whatsmap_classifications_total",
				Help: "Classifier results, by persona and intent",
			},
			[]string{"persona", "intent"},
		),
	}
}

// NewNopMetrics registers against a private registry that nobody scrapes.
func NewNopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

func (m *Metrics) ObserveStep(tool, status string, d time.Duration) {
	m.StepOutcomes.WithLabelValues(tool, status).Inc()
	m.StepDuration.WithLabelValues(tool).Observe(d.Seconds())
}
