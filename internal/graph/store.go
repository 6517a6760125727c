package graph

import (
	"context"
	"sync"
	"time"

	"github.com/opsgrid/changeintel/internal/cierrors"
)

// Store is the topology persistence and traversal contract. Implementations
// must guarantee that Snapshot returns a consistent, non-mutating view
// (MVCC-style: an in-flight writer never corrupts a reader's snapshot).
type Store interface {
	UpsertNode(ctx context.Context, node Node) error
	UpsertEdge(ctx context.Context, edge Edge) error
	DeleteNode(ctx context.Context, id string) error
	DeleteEdge(ctx context.Context, id string) error
	GetNode(ctx context.Context, id string) (Node, error)
	Snapshot(ctx context.Context) (Snapshot, error)
}

// MemoryStore is an in-memory Store backed by adjacency maps and a
// property map. Writers take an exclusive lock; Snapshot takes a read lock
// and, on every call, copies the node map and the adjacency lists to hand
// callers an isolated view. Node and edge Properties maps are shared with
// the store, not copied.
type MemoryStore struct {
	mu      sync.RWMutex
	version int64
	nodes   map[string]Node
	edges   map[string]Edge
	out     map[string][]string // node id -> outgoing edge ids
	in      map[string][]string // node id -> incoming edge ids
}

// NewMemoryStore creates an empty in-memory topology store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: make(map[string]Node),
		edges: make(map[string]Edge),
		out:   make(map[string][]string),
		in:    make(map[string][]string),
	}
}

// UpsertNode inserts or replaces a node.
func (s *MemoryStore) UpsertNode(ctx context.Context, node Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if existing, ok := s.nodes[node.ID]; ok {
		node.CreatedAt = existing.CreatedAt
	} else {
		node.CreatedAt = now
	}
	node.UpdatedAt = now

	s.nodes[node.ID] = node
	s.version++
	return nil
}

// UpsertEdge inserts or replaces an edge. Both endpoints must already
// exist, enforcing the no-dangling-reference invariant.
func (s *MemoryStore) UpsertEdge(ctx context.Context, edge Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[edge.FromNodeID]; !ok {
		return cierrors.NewNotFoundError("node", edge.FromNodeID)
	}
	if _, ok := s.nodes[edge.ToNodeID]; !ok {
		return cierrors.NewNotFoundError("node", edge.ToNodeID)
	}

	if existing, ok := s.edges[edge.ID]; ok {
		s.removeAdjacency(existing)
	}

	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = time.Now()
	}
	s.edges[edge.ID] = edge
	s.out[edge.FromNodeID] = append(s.out[edge.FromNodeID], edge.ID)
	s.in[edge.ToNodeID] = append(s.in[edge.ToNodeID], edge.ID)
	s.version++
	return nil
}

// DeleteNode removes a node and every edge touching it.
func (s *MemoryStore) DeleteNode(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[id]; !ok {
		return cierrors.NewNotFoundError("node", id)
	}

	for _, edgeID := range append(append([]string{}, s.out[id]...), s.in[id]...) {
		if edge, ok := s.edges[edgeID]; ok {
			s.removeAdjacency(edge)
			delete(s.edges, edgeID)
		}
	}

	delete(s.nodes, id)
	delete(s.out, id)
	delete(s.in, id)
	s.version++
	return nil
}

// DeleteEdge removes a single edge.
func (s *MemoryStore) DeleteEdge(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	edge, ok := s.edges[id]
	if !ok {
		return cierrors.NewNotFoundError("edge", id)
	}

	s.removeAdjacency(edge)
	delete(s.edges, id)
	s.version++
	return nil
}

func (s *MemoryStore) removeAdjacency(edge Edge) {
	s.out[edge.FromNodeID] = removeID(s.out[edge.FromNodeID], edge.ID)
	s.in[edge.ToNodeID] = removeID(s.in[edge.ToNodeID], edge.ID)
}

func removeID(ids []string, target string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// GetNode fetches a single node.
func (s *MemoryStore) GetNode(ctx context.Context, id string) (Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[id]
	if !ok {
		return Node{}, cierrors.NewNotFoundError("node", id)
	}
	return node, nil
}

// Snapshot returns an isolated, point-in-time copy of the graph.
func (s *MemoryStore) Snapshot(ctx context.Context) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := make(map[string]Node, len(s.nodes))
	for id, n := range s.nodes {
		nodes[id] = n
	}

	out := make(map[string][]Edge, len(s.out))
	for id, edgeIDs := range s.out {
		edges := make([]Edge, 0, len(edgeIDs))
		for _, eid := range edgeIDs {
			edges = append(edges, s.edges[eid])
		}
		out[id] = edges
	}

	in := make(map[string][]Edge, len(s.in))
	for id, edgeIDs := range s.in {
		edges := make([]Edge, 0, len(edgeIDs))
		for _, eid := range edgeIDs {
			edges = append(edges, s.edges[eid])
		}
		in[id] = edges
	}

	return Snapshot{
		Version: s.version,
		AsOf:    time.Now(),
		Nodes:   nodes,
		Out:     out,
		In:      in,
	}, nil
}
