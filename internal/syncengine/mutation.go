// Package syncengine coordinates connector-driven topology synchronization
// and change execution. Its bounded worker pool, per-job timeout, and
// trigger-coalescing shape follow the same "don't pile up redundant work
// while a run is in flight" discipline as a deduplication window.
package syncengine

import (
	"time"

	"github.com/opsgrid/changeintel/internal/graph"
)

// MutationKind identifies which of the three tagged mutation shapes a
// GraphMutation carries.
type MutationKind string

const (
	MutationUpsertNode MutationKind = "upsert_node"
	MutationUpsertEdge MutationKind = "upsert_edge"
	MutationTombstone  MutationKind = "tombstone"
)

// GraphMutation is one change to the topology a connector's sync pass
// reports. Exactly the fields relevant to Kind are meaningful; it is a
// tagged union rather than three Go types so a connector can return a
// single homogeneous slice.
type GraphMutation struct {
	Kind MutationKind

	// Relevant to MutationUpsertNode and MutationTombstone.
	NodeID     string
	NodeKind   graph.NodeKind
	Name       string
	Properties map[string]any

	// Relevant to MutationUpsertEdge.
	EdgeID     string
	EdgeKind   graph.EdgeKind
	SourceID   string
	TargetID   string
	EdgeProps  map[string]any

	// ObservedAt is when the connector observed this fact, used for
	// last-writer-wins resolution: an upsert is applied only if it was
	// observed after the last one applied for the same node or edge, from
	// any connector and in any earlier sync pass.
	ObservedAt time.Time
}
