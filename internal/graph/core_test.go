package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildDiamond wires a critical Application depending on two Devices in
// parallel (mid-1, mid-2), both feeding into a single serving device
// (edge-1), plus an unrelated standalone device that should never be
// flagged core.
func buildDiamond(t *testing.T) Snapshot {
	t.Helper()
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.UpsertNode(ctx, Node{ID: "app-1", Kind: NodeApplication, Properties: map[string]any{"criticality": "critical"}}))
	require.NoError(t, store.UpsertNode(ctx, Node{ID: "mid-1", Kind: NodeDevice}))
	require.NoError(t, store.UpsertNode(ctx, Node{ID: "mid-2", Kind: NodeDevice}))
	require.NoError(t, store.UpsertNode(ctx, Node{ID: "edge-1", Kind: NodeDevice}))
	require.NoError(t, store.UpsertNode(ctx, Node{ID: "lone", Kind: NodeDevice}))

	require.NoError(t, store.UpsertEdge(ctx, Edge{ID: "e1", Kind: EdgeDependsOn, FromNodeID: "app-1", ToNodeID: "mid-1"}))
	require.NoError(t, store.UpsertEdge(ctx, Edge{ID: "e2", Kind: EdgeDependsOn, FromNodeID: "app-1", ToNodeID: "mid-2"}))
	require.NoError(t, store.UpsertEdge(ctx, Edge{ID: "e3", Kind: EdgeDependsOn, FromNodeID: "mid-1", ToNodeID: "edge-1"}))
	require.NoError(t, store.UpsertEdge(ctx, Edge{ID: "e4", Kind: EdgeDependsOn, FromNodeID: "mid-2", ToNodeID: "edge-1"}))

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	return snap
}

func TestRecomputeCoreDevicesFlagsNodeOnKShortestPaths(t *testing.T) {
	snap := buildDiamond(t)

	core := RecomputeCoreDevices(snap, 2)
	assert.True(t, core["edge-1"], "edge-1 sits on both shortest app-1 -> edge-1 paths")
	assert.False(t, core["mid-1"], "mid-1 sits on only one of the two shortest paths")
	assert.False(t, core["mid-2"], "mid-2 sits on only one of the two shortest paths")
	assert.False(t, core["lone"])
}

func TestRecomputeCoreDevicesIgnoresNonCriticalApplications(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.UpsertNode(ctx, Node{ID: "app-1", Kind: NodeApplication, Properties: map[string]any{"criticality": "medium"}}))
	require.NoError(t, store.UpsertNode(ctx, Node{ID: "mid-1", Kind: NodeDevice}))
	require.NoError(t, store.UpsertNode(ctx, Node{ID: "mid-2", Kind: NodeDevice}))
	require.NoError(t, store.UpsertNode(ctx, Node{ID: "edge-1", Kind: NodeDevice}))
	require.NoError(t, store.UpsertEdge(ctx, Edge{ID: "e1", Kind: EdgeDependsOn, FromNodeID: "app-1", ToNodeID: "mid-1"}))
	require.NoError(t, store.UpsertEdge(ctx, Edge{ID: "e2", Kind: EdgeDependsOn, FromNodeID: "app-1", ToNodeID: "mid-2"}))
	require.NoError(t, store.UpsertEdge(ctx, Edge{ID: "e3", Kind: EdgeDependsOn, FromNodeID: "mid-1", ToNodeID: "edge-1"}))
	require.NoError(t, store.UpsertEdge(ctx, Edge{ID: "e4", Kind: EdgeDependsOn, FromNodeID: "mid-2", ToNodeID: "edge-1"}))

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)

	core := RecomputeCoreDevices(snap, 2)
	assert.Empty(t, core)
}

func TestRecomputeCoreDevicesHigherKExcludesFewerPaths(t *testing.T) {
	snap := buildDiamond(t)

	core := RecomputeCoreDevices(snap, 3)
	assert.Empty(t, core, "no device in the diamond sits on 3 distinct shortest paths")
}

func TestShortestDependencyPathsEnumeratesAllTies(t *testing.T) {
	snap := buildDiamond(t)

	paths := shortestDependencyPaths(snap, "app-1", "edge-1")
	require.Len(t, paths, 2)
	for _, p := range paths {
		assert.Equal(t, "app-1", p[0])
		assert.Equal(t, "edge-1", p[len(p)-1])
		assert.Len(t, p, 3)
	}
}
