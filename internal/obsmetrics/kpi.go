package obsmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// KPIMetrics exposes the periodic rollup's headline numbers as gauges:
// each Set call overwrites the prior value, the way a point-in-time
// rollup (rather than a running counter) should be published.
type KPIMetrics struct {
	TotalChanges           prometheus.Gauge
	AutoApprovedPct        prometheus.Gauge
	AvgValidationMinutes   prometheus.Gauge
	IncidentsPostChangePct prometheus.Gauge
	ScoringPrecisionPct    prometheus.Gauge
	CoreChangesDetectedPct prometheus.Gauge
}

func newKPIMetrics(namespace string) *KPIMetrics {
	return &KPIMetrics{
		TotalChanges: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "kpi", Name: "total_changes",
			Help: "Number of completed changes in the most recent rollup window.",
		}),
		AutoApprovedPct: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "kpi", Name: "auto_approved_ratio",
			Help: "Fraction of completed changes that skipped human sign-off.",
		}),
		AvgValidationMinutes: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "kpi", Name: "avg_validation_minutes",
			Help: "Mean minutes between change creation and first approval.",
		}),
		IncidentsPostChangePct: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "kpi", Name: "incidents_post_change_ratio",
			Help: "Fraction of completed changes with an incident reported within 7 days.",
		}),
		ScoringPrecisionPct: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "kpi", Name: "scoring_precision_ratio",
			Help: "Fraction of completed changes that did not precede an incident.",
		}),
		CoreChangesDetectedPct: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "kpi", Name: "core_changes_detected_ratio",
			Help: "Fraction of completed changes that touched a core device.",
		}),
	}
}

// Observe publishes a rollup report as the current gauge values.
func (m *KPIMetrics) Observe(totalChanges int, autoApprovedPct, avgValidationMinutes, incidentsPostChangePct, scoringPrecisionPct, coreChangesDetectedPct float64) {
	m.TotalChanges.Set(float64(totalChanges))
	m.AutoApprovedPct.Set(autoApprovedPct)
	m.AvgValidationMinutes.Set(avgValidationMinutes)
	m.IncidentsPostChangePct.Set(incidentsPostChangePct)
	m.ScoringPrecisionPct.Set(scoringPrecisionPct)
	m.CoreChangesDetectedPct.Set(coreChangesDetectedPct)
}
