package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the decision ladder.
type Metrics struct {
	// Decision outcomes by action and rule
	Outcomes *prometheus.CounterVec

	// Top aggregate score per decision
	TopScore prometheus.Histogram
}

// New registers the decision metrics with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the decision metrics with reg.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "screener_decision_outcomes_total",
			Help: "Total screening decisions by action and rule fired",
		}, []string{"action", "rule"}),

		TopScore: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "screener_decision_top_score",
			Help:    "Aggregate score of the top candidate per decision (0 when none)",
			Buckets: []float64{0.1, 0.3, 0.5, 0.6, 0.7, 0.75, 0.8, 0.85, 0.9, 0.95, 1},
		}),
	}
}

// IncrementOutcome records a decision outcome.
func (m *Metrics) IncrementOutcome(action, rule string) {
	if m != nil {
		m.Outcomes.WithLabelValues(action, rule).Inc()
	}
}

// ObserveTopScore records the top candidate score.
func (m *Metrics) ObserveTopScore(score float64) {
	if m != nil {
		m.TopScore.Observe(score)
	}
}
