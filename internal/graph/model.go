// Package graph models the network/infrastructure topology: typed nodes,
// typed directed edges, and a store abstraction over them. Nodes and edges
// never hold direct object references to one another; everything is
// addressed by id string, the way a repository layer addresses rows by id
// rather than embedding loaded structs.
package graph

import "time"

// NodeKind enumerates the topology entity types.
type NodeKind string

const (
	NodeDevice      NodeKind = "device"
	NodeInterface   NodeKind = "interface"
	NodePort        NodeKind = "port"
	NodeVLAN        NodeKind = "vlan"
	NodeIP          NodeKind = "ip"
	NodeRule        NodeKind = "rule"
	NodeApplication NodeKind = "application"
	NodeService     NodeKind = "service"
	NodeDatacenter  NodeKind = "datacenter"
	NodeCable       NodeKind = "cable"
)

// EdgeKind enumerates the directed relationship types between nodes.
type EdgeKind string

const (
	EdgeConnectsTo   EdgeKind = "CONNECTS_TO"
	EdgeHasInterface EdgeKind = "HAS_INTERFACE"
	EdgeHasVLAN      EdgeKind = "HAS_VLAN"
	EdgeHasRule      EdgeKind = "HAS_RULE"
	EdgeProtects     EdgeKind = "PROTECTS"
	EdgeDependsOn    EdgeKind = "DEPENDS_ON"
	EdgeRoutesTo     EdgeKind = "ROUTES_TO"
	EdgeLocatedIn    EdgeKind = "LOCATED_IN"
	EdgePartOf       EdgeKind = "PART_OF"
	EdgeAssignedTo   EdgeKind = "ASSIGNED_TO"
	EdgeMemberOf     EdgeKind = "MEMBER_OF"
)

// traversalPriority orders edge kinds for BFS tie-breaking: DEPENDS_ON
// ranks above PROTECTS, which ranks above CONNECTS_TO, which ranks above
// the HAS_* family, which ranks above everything else.
var traversalPriority = map[EdgeKind]int{
	EdgeDependsOn:    0,
	EdgeProtects:     1,
	EdgeConnectsTo:   2,
	EdgeHasInterface: 3,
	EdgeHasVLAN:      3,
	EdgeHasRule:      3,
	EdgeRoutesTo:     4,
	EdgeLocatedIn:    4,
	EdgePartOf:       4,
	EdgeAssignedTo:   4,
	EdgeMemberOf:     4,
}

// TraversalPriority returns the tie-break rank for an edge kind: lower
// values are preferred when multiple edges tie on traversal order.
func TraversalPriority(kind EdgeKind) int {
	if p, ok := traversalPriority[kind]; ok {
		return p
	}
	return 5
}

// Node is a topology entity. Properties is an open bag of kind-specific
// attributes (e.g. a Device's vendor/model, a VLAN's tag number) so the
// store never needs a per-kind table schema in Go.
type Node struct {
	ID         string
	Kind       NodeKind
	Name       string
	Properties map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Edge is a directed relationship between two nodes, addressed by id.
type Edge struct {
	ID         string
	Kind       EdgeKind
	FromNodeID string
	ToNodeID   string
	Properties map[string]any
	CreatedAt  time.Time
}

// Snapshot is an immutable, point-in-time view of the graph returned by a
// Store's Snapshot method, used by the impact analyzer so a long-running
// traversal never observes a concurrent mutation mid-walk.
type Snapshot struct {
	Version int64
	AsOf    time.Time
	Nodes   map[string]Node
	// Out maps a node id to its outgoing edges, preserving insertion order
	// within each traversal-priority bucket is not required: BFS sorts by
	// TraversalPriority at walk time.
	Out map[string][]Edge
	In  map[string][]Edge
}

// NodeExists reports whether id is present in the snapshot.
func (s Snapshot) NodeExists(id string) bool {
	_, ok := s.Nodes[id]
	return ok
}
