package obsmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Each test uses its own namespace: promauto registers every collector into
// prometheus.DefaultRegisterer, so two tests sharing a namespace would
// collide on the same metric name.

func TestRegistry_CategoriesAreLazyAndSingleton(t *testing.T) {
	r := NewRegistry("test_lazy")

	g1 := r.Graph()
	g2 := r.Graph()
	assert.Same(t, g1, g2, "Graph() must return the same instance on repeated calls")

	require.NotNil(t, r.Impact())
	require.NotNil(t, r.Risk())
	require.NotNil(t, r.Workflow())
	require.NotNil(t, r.Sync())
	require.NotNil(t, r.KPI())
}

func TestNewRegistry_EmptyNamespaceDefaultsToChangeintel(t *testing.T) {
	r := NewRegistry("")
	assert.Equal(t, "changeintel", r.Namespace())
}

func TestDefaultRegistry_IsASingleton(t *testing.T) {
	assert.Same(t, DefaultRegistry(), DefaultRegistry())
}

func TestGraphMetrics_TracksNodesEdgesAndVersion(t *testing.T) {
	m := newGraphMetrics("test_graph")

	m.NodesTotal.Set(3)
	m.EdgesTotal.Set(5)
	m.GraphVersion.Set(42)
	m.MutationsTotal.WithLabelValues("upsert_node", "sync").Inc()

	assert.Equal(t, float64(3), testutil.ToFloat64(m.NodesTotal))
	assert.Equal(t, float64(5), testutil.ToFloat64(m.EdgesTotal))
	assert.Equal(t, float64(42), testutil.ToFloat64(m.GraphVersion))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.MutationsTotal.WithLabelValues("upsert_node", "sync")))
}

func TestRiskMetrics_ObserveScoreRecordsFactors(t *testing.T) {
	m := newRiskMetrics("test_risk")

	m.ObserveScore(72, []string{"off_hours_change", "no_rollback_plan"})

	assert.Equal(t, float64(1), testutil.ToFloat64(m.FactorsTotal.WithLabelValues("off_hours_change")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FactorsTotal.WithLabelValues("no_rollback_plan")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.FactorsTotal.WithLabelValues("prior_failure_on_target")))
}

func TestWorkflowMetrics_ObserveTransitionAndApproval(t *testing.T) {
	m := newWorkflowMetrics("test_workflow")

	m.ObserveTransition("pending", "approved")
	m.ObserveTransition("pending", "approved")
	m.ObserveApprovalDecision("approved")
	m.ObservePolicyBlocked()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("pending", "approved")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ApprovalDecisionsTotal.WithLabelValues("approved")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PolicyBlockedTotal))
}

func TestSyncMetrics_ObserveSyncTracksOutcomeAndHealth(t *testing.T) {
	m := newSyncMetrics("test_sync")

	m.ObserveSync("conn-1", true, 1.5)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SyncAttemptsTotal.WithLabelValues("conn-1", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ConnectorHealth.WithLabelValues("conn-1")))

	m.ObserveSync("conn-1", false, 0.2)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SyncAttemptsTotal.WithLabelValues("conn-1", "error")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ConnectorHealth.WithLabelValues("conn-1")))
}

func TestImpactMetrics_ObserveCacheHitAndMiss(t *testing.T) {
	m := newImpactMetrics("test_impact")

	m.ObserveCacheHit(true)
	m.ObserveCacheHit(false)
	m.ObserveCacheHit(false)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.cacheHitsTotal))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.cacheMissesTotal))
}

func TestKPIMetrics_ObserveSetsAllGauges(t *testing.T) {
	m := newKPIMetrics("test_kpi")

	m.Observe(10, 0.4, 37.5, 0.1, 0.9, 0.2)

	assert.Equal(t, float64(10), testutil.ToFloat64(m.TotalChanges))
	assert.Equal(t, 0.4, testutil.ToFloat64(m.AutoApprovedPct))
	assert.Equal(t, 37.5, testutil.ToFloat64(m.AvgValidationMinutes))
	assert.Equal(t, 0.1, testutil.ToFloat64(m.IncidentsPostChangePct))
	assert.Equal(t, 0.9, testutil.ToFloat64(m.ScoringPrecisionPct))
	assert.Equal(t, 0.2, testutil.ToFloat64(m.CoreChangesDetectedPct))
}

func TestControllerMetrics_AdaptsWorkflowAndRiskCategories(t *testing.T) {
	r := NewRegistry("test_controller")
	c := r.Controller()

	c.ObserveTransition("draft", "analyzing")
	c.ObserveApprovalDecision("rejected")
	c.ObserveScore(55, []string{"per_affected_node"})
	c.ObservePolicyBlocked()

	assert.Equal(t, float64(1), testutil.ToFloat64(r.Workflow().TransitionsTotal.WithLabelValues("draft", "analyzing")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.Workflow().ApprovalDecisionsTotal.WithLabelValues("rejected")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.Workflow().PolicyBlockedTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.Risk().FactorsTotal.WithLabelValues("per_affected_node")))
}
