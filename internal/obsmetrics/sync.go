package obsmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SyncMetrics instruments the connector sync coordinator.
type SyncMetrics struct {
	SyncDuration     *prometheus.HistogramVec // labels: connector_id
	SyncAttemptsTotal *prometheus.CounterVec   // labels: connector_id, outcome
	ConnectorHealth   *prometheus.GaugeVec     // labels: connector_id; 1=ok, 0=error
}

func newSyncMetrics(namespace string) *SyncMetrics {
	return &SyncMetrics{
		SyncDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "sync", Name: "duration_seconds",
			Help:    "Duration of a connector sync pass.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300},
		}, []string{"connector_id"}),
		SyncAttemptsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sync", Name: "attempts_total",
			Help: "Total number of connector sync attempts, by outcome.",
		}, []string{"connector_id", "outcome"}),
		ConnectorHealth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "sync", Name: "connector_health",
			Help: "Current connector health: 1 ok, 0 error.",
		}, []string{"connector_id"}),
	}
}

// ObserveSync records the outcome of one connector sync pass.
func (m *SyncMetrics) ObserveSync(connectorID string, ok bool, seconds float64) {
	outcome := "ok"
	health := 1.0
	if !ok {
		outcome = "error"
		health = 0.0
	}
	m.SyncDuration.WithLabelValues(connectorID).Observe(seconds)
	m.SyncAttemptsTotal.WithLabelValues(connectorID, outcome).Inc()
	m.ConnectorHealth.WithLabelValues(connectorID).Set(health)
}
