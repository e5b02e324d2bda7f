package crawl

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records crawl activity. A nil *Metrics records nothing.
type Metrics struct {
	cycles        *prometheus.CounterVec
	articles      *prometheus.CounterVec
	sourceErrors  *prometheus.CounterVec
	cycleDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "newscrawl",
			Name:      "cycles_total",
			Help:      "Crawl cycles by outcome.",
		}, []string{"outcome"}),
		articles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "newscrawl",
			Name:      "articles_total",
			Help:      "Candidate articles by source and outcome.",
		}, []string{"source", "outcome"}),
		sourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "newscrawl",
			Name:      "source_errors_total",
			Help:      "Sources that failed during a cycle.",
		}, []string{"source"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "newscrawl",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of completed crawl cycles.",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 1800},
		}),
	}

	if reg != nil {
		reg.MustRegister(m.cycles, m.articles, m.sourceErrors, m.cycleDuration)
	}

	return m
}

func (m *Metrics) cycle(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(outcome).Inc()
	if seconds > 0 {
		m.cycleDuration.Observe(seconds)
	}
}

func (m *Metrics) article(source string, outcome Outcome) {
	if m == nil {
		return
	}
	m.articles.WithLabelValues(source, string(outcome)).Inc()
}

func (m *Metrics) sourceError(source string) {
	if m == nil {
		return
	}
	m.sourceErrors.WithLabelValues(source).Inc()
}
