package graph

import "sort"

// TraversalDirection selects which adjacency map a Walk follows.
type TraversalDirection int

const (
	// Forward follows outgoing edges (the default blast-radius direction).
	Forward TraversalDirection = iota
	// Reverse follows incoming edges (e.g. rule_scope_reverse: who protects me).
	Reverse
)

// VisitedNode records one node's position in a breadth-first walk.
type VisitedNode struct {
	NodeID   string
	Depth    int
	ViaEdge  *Edge // the edge that first reached this node; nil for the root
	FromNode string
}

// Walk performs a breadth-first traversal from roots, bounded by maxDepth
// (maxDepth < 0 means unbounded), following edges matching allowedKinds
// (nil or empty means all kinds). Each node is visited at most once, at its
// shortest-path depth from any root. Ties among multiple edges leaving a
// node are broken by TraversalPriority so two runs over the same snapshot
// always explore in the same order.
func Walk(snap Snapshot, roots []string, direction TraversalDirection, allowedKinds map[EdgeKind]bool, maxDepth int) []VisitedNode {
	return walk(snap, roots, direction, allowedKinds, maxDepth, nil)
}

// WalkExcluding performs the same traversal as Walk but treats every node
// id in exclude as if it did not exist: it can neither be visited nor
// traversed through. Used to test whether an affected node has an
// alternate path that doesn't run through the nodes a change directly
// touches, i.e. whether redundancy is available.
func WalkExcluding(snap Snapshot, roots []string, direction TraversalDirection, allowedKinds map[EdgeKind]bool, maxDepth int, exclude map[string]bool) []VisitedNode {
	return walk(snap, roots, direction, allowedKinds, maxDepth, exclude)
}

func walk(snap Snapshot, roots []string, direction TraversalDirection, allowedKinds map[EdgeKind]bool, maxDepth int, exclude map[string]bool) []VisitedNode {
	visited := make(map[string]bool)
	var order []VisitedNode

	type queueItem struct {
		nodeID string
		depth  int
	}

	queue := make([]queueItem, 0, len(roots))
	for _, root := range roots {
		if !snap.NodeExists(root) || exclude[root] {
			continue
		}
		if !visited[root] {
			visited[root] = true
			order = append(order, VisitedNode{NodeID: root, Depth: 0})
			queue = append(queue, queueItem{nodeID: root, depth: 0})
		}
	}

	adjacency := snap.Out
	if direction == Reverse {
		adjacency = snap.In
	}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		if maxDepth >= 0 && item.depth >= maxDepth {
			continue
		}

		edges := append([]Edge{}, adjacency[item.nodeID]...)
		sort.SliceStable(edges, func(i, j int) bool {
			pi, pj := TraversalPriority(edges[i].Kind), TraversalPriority(edges[j].Kind)
			if pi != pj {
				return pi < pj
			}
			return edges[i].ID < edges[j].ID
		})

		for _, edge := range edges {
			if len(allowedKinds) > 0 && !allowedKinds[edge.Kind] {
				continue
			}

			next := edge.ToNodeID
			if direction == Reverse {
				next = edge.FromNodeID
			}

			if visited[next] || exclude[next] {
				continue
			}
			visited[next] = true

			e := edge
			order = append(order, VisitedNode{
				NodeID:   next,
				Depth:    item.depth + 1,
				ViaEdge:  &e,
				FromNode: item.nodeID,
			})
			queue = append(queue, queueItem{nodeID: next, depth: item.depth + 1})
		}
	}

	return order
}
