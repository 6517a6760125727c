package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreUpsertAndSnapshot(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.UpsertNode(ctx, Node{ID: "dev-1", Kind: NodeDevice, Name: "core-sw-1"}))
	require.NoError(t, store.UpsertNode(ctx, Node{ID: "dev-2", Kind: NodeDevice, Name: "core-sw-2"}))
	require.NoError(t, store.UpsertEdge(ctx, Edge{ID: "e1", Kind: EdgeConnectsTo, FromNodeID: "dev-1", ToNodeID: "dev-2"}))

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Nodes, 2)
	assert.Len(t, snap.Out["dev-1"], 1)
	assert.Equal(t, EdgeConnectsTo, snap.Out["dev-1"][0].Kind)
}

func TestMemoryStoreRejectsDanglingEdge(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.UpsertNode(ctx, Node{ID: "dev-1", Kind: NodeDevice}))

	err := store.UpsertEdge(ctx, Edge{ID: "e1", Kind: EdgeConnectsTo, FromNodeID: "dev-1", ToNodeID: "missing"})
	assert.Error(t, err)
}

func TestMemoryStoreDeleteNodeRemovesEdges(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.UpsertNode(ctx, Node{ID: "a", Kind: NodeDevice}))
	require.NoError(t, store.UpsertNode(ctx, Node{ID: "b", Kind: NodeDevice}))
	require.NoError(t, store.UpsertEdge(ctx, Edge{ID: "e1", Kind: EdgeConnectsTo, FromNodeID: "a", ToNodeID: "b"}))

	require.NoError(t, store.DeleteNode(ctx, "a"))

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Nodes, 1)
	assert.Empty(t, snap.In["b"])
}

func TestWalkBreadthFirstRespectsDepthAndTieBreak(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.UpsertNode(ctx, Node{ID: "root", Kind: NodeDevice}))
	require.NoError(t, store.UpsertNode(ctx, Node{ID: "a", Kind: NodeDevice}))
	require.NoError(t, store.UpsertNode(ctx, Node{ID: "b", Kind: NodeDevice}))
	require.NoError(t, store.UpsertNode(ctx, Node{ID: "c", Kind: NodeDevice}))

	// root -> a via CONNECTS_TO, root -> b via DEPENDS_ON: b should sort first.
	require.NoError(t, store.UpsertEdge(ctx, Edge{ID: "e1", Kind: EdgeConnectsTo, FromNodeID: "root", ToNodeID: "a"}))
	require.NoError(t, store.UpsertEdge(ctx, Edge{ID: "e2", Kind: EdgeDependsOn, FromNodeID: "root", ToNodeID: "b"}))
	require.NoError(t, store.UpsertEdge(ctx, Edge{ID: "e3", Kind: EdgeConnectsTo, FromNodeID: "a", ToNodeID: "c"}))

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)

	visited := Walk(snap, []string{"root"}, Forward, nil, -1)
	require.Len(t, visited, 4)
	assert.Equal(t, "root", visited[0].NodeID)
	assert.Equal(t, "b", visited[1].NodeID)
	assert.Equal(t, "a", visited[2].NodeID)
	assert.Equal(t, "c", visited[3].NodeID)

	bounded := Walk(snap, []string{"root"}, Forward, nil, 1)
	assert.Len(t, bounded, 3)
}
