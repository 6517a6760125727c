package obsmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ImpactMetrics instruments the impact analyzer. It satisfies
// internal/impact.Metrics so an Analyzer can be built directly against it.
type ImpactMetrics struct {
	analysisDuration *prometheus.HistogramVec // labels: action
	affectedNodes    *prometheus.HistogramVec // labels: action
	cacheHitsTotal   prometheus.Counter
	cacheMissesTotal prometheus.Counter
}

func newImpactMetrics(namespace string) *ImpactMetrics {
	return &ImpactMetrics{
		analysisDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "impact", Name: "analysis_duration_seconds",
			Help:    "Duration of an impact analysis traversal.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"action"}),
		affectedNodes: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "impact", Name: "affected_nodes",
			Help:    "Number of nodes found affected by an impact analysis run.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"action"}),
		cacheHitsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "impact", Name: "cache_hits_total",
			Help: "Total number of impact snapshot cache hits.",
		}),
		cacheMissesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "impact", Name: "cache_misses_total",
			Help: "Total number of impact snapshot cache misses.",
		}),
	}
}

// ObserveAnalysis records one completed analysis run.
func (m *ImpactMetrics) ObserveAnalysis(action string, affected int, duration time.Duration) {
	m.analysisDuration.WithLabelValues(action).Observe(duration.Seconds())
	m.affectedNodes.WithLabelValues(action).Observe(float64(affected))
}

// ObserveCacheHit records whether a cache lookup hit or missed.
func (m *ImpactMetrics) ObserveCacheHit(hit bool) {
	if hit {
		m.cacheHitsTotal.Inc()
		return
	}
	m.cacheMissesTotal.Inc()
}
