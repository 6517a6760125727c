package obsmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RiskMetrics instruments the risk engine's scoring output.
type RiskMetrics struct {
	ScoreDistribution prometheus.Histogram
	FactorsTotal       *prometheus.CounterVec // labels: factor
}

func newRiskMetrics(namespace string) *RiskMetrics {
	return &RiskMetrics{
		ScoreDistribution: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "risk", Name: "score_distribution",
			Help:    "Distribution of computed risk scores (0-100).",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		FactorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "risk", Name: "factors_total",
			Help: "Total number of times each risk factor contributed to a score.",
		}, []string{"factor"}),
	}
}

// ObserveScore records a computed score and the factors that produced it.
func (m *RiskMetrics) ObserveScore(total float64, factorNames []string) {
	m.ScoreDistribution.Observe(total)
	for _, name := range factorNames {
		m.FactorsTotal.WithLabelValues(name).Inc()
	}
}
