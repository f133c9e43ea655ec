package event

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts workflow transitions and review outcomes.
type Metrics struct {
	Transitions    *prometheus.CounterVec
	ReviewOutcomes *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mireview",
				Subsystem: "workflow",
				Name:      "transitions_total",
				Help:      "Events moved by each workflow transition",
			},
			[]string{"transition"},
		),
		ReviewOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mireview",
				Subsystem: "workflow",
				Name:      "review_outcomes_total",
				Help:      "Event status reached after each submitted review",
			},
			[]string{"status"},
		),
	}
	reg.MustRegister(m.Transitions, m.ReviewOutcomes)
	return m
}

func (m *Metrics) transition(name string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.Transitions.WithLabelValues(name).Add(float64(n))
}

func (m *Metrics) reviewed(status Status) {
	if m == nil {
		return
	}
	m.ReviewOutcomes.WithLabelValues(string(status)).Inc()
}
