package obsmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// GraphMetrics instruments the topology store: its size and the mutation
// traffic flowing through it.
type GraphMetrics struct {
	NodesTotal     prometheus.Gauge
	EdgesTotal     prometheus.Gauge
	GraphVersion   prometheus.Gauge
	MutationsTotal *prometheus.CounterVec // labels: kind ("upsert_node"|"upsert_edge"|"tombstone"), source ("sync"|"seed")
}

func newGraphMetrics(namespace string) *GraphMetrics {
	return &GraphMetrics{
		NodesTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "graph", Name: "nodes_total",
			Help: "Current number of nodes in the topology store.",
		}),
		EdgesTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "graph", Name: "edges_total",
			Help: "Current number of edges in the topology store.",
		}),
		GraphVersion: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "graph", Name: "version",
			Help: "Current MVCC version counter of the topology store.",
		}),
		MutationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "graph", Name: "mutations_total",
			Help: "Total number of mutations applied to the topology store.",
		}, []string{"kind", "source"}),
	}
}
