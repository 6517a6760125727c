package impact

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsgrid/changeintel/internal/changetype"
	"github.com/opsgrid/changeintel/internal/cierrors"
	"github.com/opsgrid/changeintel/internal/graph"
)

func buildTestGraph(t *testing.T) graph.Store {
	t.Helper()
	ctx := context.Background()
	store := graph.NewMemoryStore()

	nodes := []graph.Node{
		{ID: "rule-1", Kind: graph.NodeRule, Name: "deny-telnet"},
		{ID: "app-1", Kind: graph.NodeApplication, Name: "billing-api", Properties: map[string]any{"criticality": "critical"}},
		{ID: "svc-1", Kind: graph.NodeService, Name: "billing-db"},
		{ID: "dev-1", Kind: graph.NodeDevice, Name: "edge-fw-1"},
	}
	for _, n := range nodes {
		require.NoError(t, store.UpsertNode(ctx, n))
	}

	edges := []graph.Edge{
		{ID: "e1", Kind: graph.EdgeProtects, FromNodeID: "rule-1", ToNodeID: "app-1"},
		{ID: "e2", Kind: graph.EdgeDependsOn, FromNodeID: "app-1", ToNodeID: "svc-1"},
		{ID: "e3", Kind: graph.EdgeHasRule, FromNodeID: "dev-1", ToNodeID: "rule-1"},
	}
	for _, e := range edges {
		require.NoError(t, store.UpsertEdge(ctx, e))
	}

	return store
}

func TestAnalyzeModifyRule(t *testing.T) {
	store := buildTestGraph(t)
	analyzer, err := New(store, DefaultConfig(), nil, nil)
	require.NoError(t, err)

	snap, err := analyzer.Analyze(context.Background(), "chg-1", changetype.ActionModifyRule, []string{"rule-1"})
	require.NoError(t, err)

	assert.Equal(t, 1, len(snap.DirectlyImpacted))
	assert.NotEmpty(t, snap.IndirectlyImpacted)
	assert.Contains(t, snap.AffectedApplications, "app-1")
	assert.Equal(t, "critical", snap.MaxCriticality)
	assert.NotEmpty(t, snap.CriticalPaths)
}

func TestAnalyzeAddRuleHasEmptyDirectSet(t *testing.T) {
	store := buildTestGraph(t)
	analyzer, err := New(store, DefaultConfig(), nil, nil)
	require.NoError(t, err)

	snap, err := analyzer.Analyze(context.Background(), "chg-add", changetype.ActionAddRule, []string{"rule-1"})
	require.NoError(t, err)

	assert.Empty(t, snap.DirectlyImpacted, "add_rule is additive: nothing already depends on a rule that doesn't exist yet")
	assert.NotEmpty(t, snap.IndirectlyImpacted)
}

func TestAnalyzeUnknownRootExcludedWithWarning(t *testing.T) {
	store := buildTestGraph(t)
	analyzer, err := New(store, DefaultConfig(), nil, nil)
	require.NoError(t, err)

	snap, err := analyzer.Analyze(context.Background(), "chg-1", changetype.ActionModifyRule, []string{"rule-1", "does-not-exist"})
	require.NoError(t, err)
	assert.Equal(t, []string{"rule-1"}, snap.Roots)
	require.Len(t, snap.Warnings, 1)
}

func TestAnalyzeAllUnknownRootsReturnsEmptyTargetImpact(t *testing.T) {
	store := buildTestGraph(t)
	analyzer, err := New(store, DefaultConfig(), nil, nil)
	require.NoError(t, err)

	_, err = analyzer.Analyze(context.Background(), "chg-1", changetype.ActionModifyRule, []string{"does-not-exist"})
	var emptyErr *cierrors.EmptyTargetImpactError
	require.ErrorAs(t, err, &emptyErr)
}

func TestAnalyzeCachesByGraphVersion(t *testing.T) {
	ctx := context.Background()
	store := buildTestGraph(t)
	analyzer, err := New(store, DefaultConfig(), nil, nil)
	require.NoError(t, err)

	first, err := analyzer.Analyze(ctx, "chg-1", changetype.ActionModifyRule, []string{"rule-1"})
	require.NoError(t, err)

	require.NoError(t, store.UpsertNode(ctx, graph.Node{ID: "app-2", Kind: graph.NodeApplication}))
	require.NoError(t, store.UpsertEdge(ctx, graph.Edge{ID: "e4", Kind: graph.EdgeProtects, FromNodeID: "rule-1", ToNodeID: "app-2"}))

	second, err := analyzer.Analyze(ctx, "chg-1", changetype.ActionModifyRule, []string{"rule-1"})
	require.NoError(t, err)

	assert.NotEqual(t, first.GraphVersion, second.GraphVersion)
	assert.Greater(t, second.AffectedCount(), first.AffectedCount())
}

func TestRedundancyUnavailableWithSingleRoot(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemoryStore()

	nodes := []graph.Node{
		{ID: "dev-1", Kind: graph.NodeDevice, Name: "sw-1"},
		{ID: "dev-2", Kind: graph.NodeDevice, Name: "sw-2"},
		{ID: "app-1", Kind: graph.NodeApplication, Name: "checkout"},
	}
	for _, n := range nodes {
		require.NoError(t, store.UpsertNode(ctx, n))
	}
	edges := []graph.Edge{
		{ID: "e1", Kind: graph.EdgeConnectsTo, FromNodeID: "dev-1", ToNodeID: "app-1"},
		{ID: "e2", Kind: graph.EdgeConnectsTo, FromNodeID: "dev-2", ToNodeID: "app-1"},
	}
	for _, e := range edges {
		require.NoError(t, store.UpsertEdge(ctx, e))
	}

	analyzer, err := New(store, DefaultConfig(), nil, nil)
	require.NoError(t, err)

	snap, err := analyzer.Analyze(ctx, "chg-1", changetype.ActionRebootDevice, []string{"dev-1"})
	require.NoError(t, err)
	assert.False(t, snap.RedundancyAvailable["app-1"], "app-1 is only reachable through dev-1 from this root set")
}
