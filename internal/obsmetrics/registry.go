// Package obsmetrics provides centralized Prometheus metrics for the change
// intelligence engine, organized by category (graph, impact, risk, workflow,
// sync, kpi): a namespaced registry with lazily-initialized, singleton
// category managers.
//
// All metrics follow the naming convention, with the category as the
// Prometheus subsystem:
// <namespace>_<category>_<metric_name>[_<unit>], e.g. changeintel_graph_nodes_total
package obsmetrics

import "sync"

// Registry is the central registry for all Prometheus metrics, giving
// organized access to metrics by category.
type Registry struct {
	namespace string

	graph    *GraphMetrics
	impact   *ImpactMetrics
	risk     *RiskMetrics
	workflow *WorkflowMetrics
	sync     *SyncMetrics
	kpi      *KPIMetrics

	graphOnce    sync.Once
	impactOnce   sync.Once
	riskOnce     sync.Once
	workflowOnce sync.Once
	syncOnce     sync.Once
	kpiOnce      sync.Once
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the global singleton Registry, namespaced
// "changeintel". Safe for concurrent use.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry("changeintel")
	})
	return defaultRegistry
}

// NewRegistry creates a Registry with the given namespace. Most callers
// should use DefaultRegistry instead.
func NewRegistry(namespace string) *Registry {
	if namespace == "" {
		namespace = "changeintel"
	}
	return &Registry{namespace: namespace}
}

// Namespace returns the configured Prometheus namespace.
func (r *Registry) Namespace() string { return r.namespace }

// Graph returns the topology metrics manager, lazily initialized.
func (r *Registry) Graph() *GraphMetrics {
	r.graphOnce.Do(func() { r.graph = newGraphMetrics(r.namespace) })
	return r.graph
}

// Impact returns the impact analysis metrics manager, lazily initialized.
func (r *Registry) Impact() *ImpactMetrics {
	r.impactOnce.Do(func() { r.impact = newImpactMetrics(r.namespace) })
	return r.impact
}

// Risk returns the risk scoring metrics manager, lazily initialized.
func (r *Registry) Risk() *RiskMetrics {
	r.riskOnce.Do(func() { r.risk = newRiskMetrics(r.namespace) })
	return r.risk
}

// Workflow returns the workflow controller metrics manager, lazily initialized.
func (r *Registry) Workflow() *WorkflowMetrics {
	r.workflowOnce.Do(func() { r.workflow = newWorkflowMetrics(r.namespace) })
	return r.workflow
}

// Sync returns the sync coordinator metrics manager, lazily initialized.
func (r *Registry) Sync() *SyncMetrics {
	r.syncOnce.Do(func() { r.sync = newSyncMetrics(r.namespace) })
	return r.sync
}

// KPI returns the periodic rollup metrics manager, lazily initialized.
func (r *Registry) KPI() *KPIMetrics {
	r.kpiOnce.Do(func() { r.kpi = newKPIMetrics(r.namespace) })
	return r.kpi
}
