package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers the screening pipeline end to end.
type Metrics struct {
	ScreenDuration  *prometheus.HistogramVec
	Candidates      prometheus.Histogram
	ScoringFailures prometheus.Counter
	Filtered        *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec
	Errors          *prometheus.CounterVec
	BatchSize       prometheus.Histogram
}

// New registers the screening metrics with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the screening metrics with reg.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ScreenDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "screener_screen_duration_seconds",
			Help:    "Latency of one screening by resulting action",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"action"}),
		Candidates: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "screener_screen_candidates",
			Help:    "Candidates returned per screening",
			Buckets: []float64{0, 1, 2, 3, 5, 10, 25, 50},
		}),
		ScoringFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "screener_scoring_failures_total",
			Help: "Reference entries excluded because they could not be scored",
		}),
		Filtered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "screener_candidates_filtered_total",
			Help: "Candidates removed before the decision ladder by filter reason",
		}, []string{"reason"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "screener_candidate_cache_lookups_total",
			Help: "Candidate cache lookups by result (hit, miss, error)",
		}, []string{"result"}),
		Errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "screener_screen_errors_total",
			Help: "Failed screenings by error code",
		}, []string{"code"}),
		BatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "screener_batch_size",
			Help:    "Queries per batch screening",
			Buckets: prometheus.ExponentialBuckets(1, 4, 7),
		}),
	}
}

func (m *Metrics) ObserveScreen(action string, d time.Duration) {
	if m != nil {
		m.ScreenDuration.WithLabelValues(action).Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveCandidates(n int) {
	if m != nil {
		m.Candidates.Observe(float64(n))
	}
}

func (m *Metrics) AddScoringFailures(n int) {
	if m != nil && n > 0 {
		m.ScoringFailures.Add(float64(n))
	}
}

func (m *Metrics) IncFiltered(reason string) {
	if m != nil {
		m.Filtered.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) IncCacheLookup(result string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncError(code string) {
	if m != nil {
		m.Errors.WithLabelValues(code).Inc()
	}
}

func (m *Metrics) ObserveBatch(n int) {
	if m != nil {
		m.BatchSize.Observe(float64(n))
	}
}
