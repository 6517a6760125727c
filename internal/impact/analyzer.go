// Package impact computes the blast radius of a proposed change: which
// nodes are reachable from its target set under an action-specific
// traversal strategy. The Analyzer is a stateless evaluator wrapping a
// read-only structure, returning a typed decision, recording metrics,
// never mutating its inputs.
package impact

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/opsgrid/changeintel/internal/changetype"
	"github.com/opsgrid/changeintel/internal/cierrors"
	"github.com/opsgrid/changeintel/internal/graph"
)

// AffectedNode is one node reached during impact traversal, carrying the
// subset of its graph properties the risk engine needs so it never has to
// re-query the graph store against a snapshot that may have already moved
// on.
type AffectedNode struct {
	NodeID      string
	Kind        graph.NodeKind
	Name        string
	Depth       int
	ViaEdge     graph.EdgeKind
	FromNode    string
	Criticality string
	IsCore      bool
	IsAnyAny    bool
}

// criticalityRank orders the criticality property so MaxCriticality and the
// critical-path selection can compare across nodes.
var criticalityRank = map[string]int{
	"":         0,
	"low":      1,
	"medium":   2,
	"high":     3,
	"critical": 4,
}

func nodeCriticality(node graph.Node) string {
	c, _ := node.Properties["criticality"].(string)
	return c
}

// CriticalPath is one high-or-critical-criticality node reached by the
// traversal, together with the shortest chain of edges that reaches it.
// Analyze emits one entry per such node rather than a single global deepest
// path, since a change can threaten several independently critical
// downstreams.
type CriticalPath struct {
	NodeID      string
	Criticality string
	Hops        int
	NodeIDs     []string
	EdgeIDs     []string
	Reasoning   string
}

// Snapshot is the frozen result of one impact analysis run.
type Snapshot struct {
	ChangeID string
	Action   changetype.Action
	Strategy StrategyName
	Roots    []string

	// DirectlyImpacted is the target set itself, resolved against the
	// current graph. For an additive action (add_rule) this is empty: the
	// relationship doesn't exist yet, so nothing is directly touched.
	DirectlyImpacted []AffectedNode
	// IndirectlyImpacted is everything reached by walking outward from the
	// direct set.
	IndirectlyImpacted []AffectedNode
	// RootNodes always carries the resolved target nodes and their
	// properties, even for additive actions where DirectlyImpacted is
	// empty: the risk engine still needs to know e.g. whether the root
	// itself is a core device.
	RootNodes []AffectedNode

	AffectedApplications []string
	AffectedServices      []string
	AffectedVLANs         []string

	CriticalPaths        []CriticalPath
	TotalDependencyCount int
	MaxCriticality       string

	// RedundancyAvailable maps an affected application/service node id to
	// whether it remains reachable from a root through a path that avoids
	// every directly impacted node.
	RedundancyAvailable map[string]bool

	// Warnings carries non-fatal notices, e.g. target ids that did not
	// exist in the graph and were excluded from analysis.
	Warnings []string

	GraphVersion int64
	ComputedAt   time.Time
}

// AffectedCount returns the number of distinct nodes impacted, direct plus
// indirect.
func (s Snapshot) AffectedCount() int {
	return len(s.DirectlyImpacted) + len(s.IndirectlyImpacted)
}

// AllAffected returns the direct and indirect sets concatenated, for
// callers that don't need the split (e.g. scanning for a datacenter tag).
func (s Snapshot) AllAffected() []AffectedNode {
	out := make([]AffectedNode, 0, s.AffectedCount())
	out = append(out, s.DirectlyImpacted...)
	out = append(out, s.IndirectlyImpacted...)
	return out
}

// InvolvesAnyAnyRule reports whether any root or affected node is flagged
// is_any_any, for the risk engine and policy evaluation.
func (s Snapshot) InvolvesAnyAnyRule() bool {
	for _, n := range s.RootNodes {
		if n.IsAnyAny {
			return true
		}
	}
	for _, n := range s.AllAffected() {
		if n.IsAnyAny {
			return true
		}
	}
	return false
}

// Metrics is the subset of Prometheus instruments the analyzer records to.
type Metrics interface {
	ObserveAnalysis(action string, affected int, duration time.Duration)
	ObserveCacheHit(hit bool)
}

// Analyzer computes impact snapshots against a graph.Store.
type Analyzer struct {
	store   graph.Store
	cfg     Config
	logger  *slog.Logger
	metrics Metrics
	cache   *lru.Cache[string, Snapshot]
}

// New creates an Analyzer. metrics may be nil (a no-op recorder is used).
func New(store graph.Store, cfg Config, logger *slog.Logger, metrics Metrics) (*Analyzer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	size := cfg.CacheSize
	if size <= 0 {
		size = 1
	}
	cache, err := lru.New[string, Snapshot](size)
	if err != nil {
		return nil, fmt.Errorf("creating impact cache: %w", err)
	}

	return &Analyzer{store: store, cfg: cfg, logger: logger, metrics: metrics, cache: cache}, nil
}

// cacheKey identifies a cached snapshot by the inputs that determine it:
// the change id and graph version it was computed against. A later graph
// mutation bumps the version and naturally misses the stale cache entry.
func cacheKey(changeID string, graphVersion int64) string {
	return fmt.Sprintf("%s@%d", changeID, graphVersion)
}

// Analyze computes the impact of action against roots, for changeID. A
// target id absent from the current graph is excluded and reported via a
// *cierrors.UnknownTargetWarning rather than failing the whole analysis; if
// every target id is unknown, or roots is empty, Analyze returns
// *cierrors.EmptyTargetImpactError. Results are cached per (changeID, graph
// version) until evicted or removed with Invalidate.
func (a *Analyzer) Analyze(ctx context.Context, changeID string, action changetype.Action, roots []string) (Snapshot, error) {
	start := time.Now()

	strategyName, ok := StrategyForAction(action)
	if !ok {
		return Snapshot{}, cierrors.NewValidationError("action", fmt.Sprintf("unknown change action %q", action))
	}
	strategy, ok := strategyFor(strategyName, a.cfg)
	if !ok {
		return Snapshot{}, cierrors.NewValidationError("action", fmt.Sprintf("no traversal strategy for action %q", action))
	}

	snap, err := a.store.Snapshot(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("loading graph snapshot: %w", err)
	}

	key := cacheKey(changeID, snap.Version)
	if cached, ok := a.cache.Get(key); ok {
		a.metrics.ObserveCacheHit(true)
		a.logger.Debug("impact cache hit", "change_id", changeID, "action", action)
		return cached, nil
	}
	a.metrics.ObserveCacheHit(false)

	var resolvedRoots, unknown []string
	for _, root := range roots {
		if snap.NodeExists(root) {
			resolvedRoots = append(resolvedRoots, root)
		} else {
			unknown = append(unknown, root)
		}
	}
	if len(resolvedRoots) == 0 {
		return Snapshot{}, cierrors.NewEmptyTargetImpactError(changeID)
	}

	var warnings []string
	if len(unknown) > 0 {
		warnings = append(warnings, cierrors.NewUnknownTargetWarning(unknown).Error())
		a.logger.Warn("excluding unknown target nodes from impact analysis", "change_id", changeID, "unknown", unknown)
	}

	result := Snapshot{
		ChangeID:            changeID,
		Action:              action,
		Strategy:            strategyName,
		Roots:               resolvedRoots,
		Warnings:            warnings,
		RedundancyAvailable: make(map[string]bool),
		GraphVersion:        snap.Version,
		ComputedAt:          time.Now(),
	}

	visited := graph.Walk(snap, resolvedRoots, strategy.Direction, strategy.AllowedKinds, strategy.MaxDepth)

	directIDs := make(map[string]bool, len(resolvedRoots))
	for _, r := range resolvedRoots {
		directIDs[r] = true
	}

	for i := range visited {
		v := visited[i]
		node := snap.Nodes[v.NodeID]
		isCore, _ := node.Properties["is_core"].(bool)
		isAnyAny, _ := node.Properties["is_any_any"].(bool)
		affected := AffectedNode{
			NodeID:      v.NodeID,
			Kind:        node.Kind,
			Name:        node.Name,
			Depth:       v.Depth,
			FromNode:    v.FromNode,
			Criticality: nodeCriticality(node),
			IsCore:      isCore,
			IsAnyAny:    isAnyAny,
		}
		if v.ViaEdge != nil {
			affected.ViaEdge = v.ViaEdge.Kind
		}

		if v.Depth == 0 {
			result.RootNodes = append(result.RootNodes, affected)
			if !additive(action) {
				result.DirectlyImpacted = append(result.DirectlyImpacted, affected)
			} else {
				result.IndirectlyImpacted = append(result.IndirectlyImpacted, affected)
			}
		} else {
			result.IndirectlyImpacted = append(result.IndirectlyImpacted, affected)
		}

		switch node.Kind {
		case graph.NodeApplication:
			result.AffectedApplications = append(result.AffectedApplications, v.NodeID)
		case graph.NodeService:
			result.AffectedServices = append(result.AffectedServices, v.NodeID)
		case graph.NodeVLAN:
			result.AffectedVLANs = append(result.AffectedVLANs, v.NodeID)
		}

		criticality := nodeCriticality(node)
		if criticalityRank[criticality] >= criticalityRank["high"] {
			result.CriticalPaths = append(result.CriticalPaths, buildCriticalPath(visited, v, node))
		}
		if criticalityRank[criticality] > criticalityRank[result.MaxCriticality] {
			result.MaxCriticality = criticality
		}
	}

	result.TotalDependencyCount = result.AffectedCount()

	for _, nodeID := range append(append([]string{}, result.AffectedApplications...), result.AffectedServices...) {
		result.RedundancyAvailable[nodeID] = a.hasRedundantPath(snap, resolvedRoots, strategy, directIDs, nodeID)
	}

	a.cache.Add(key, result)
	a.metrics.ObserveAnalysis(string(action), result.AffectedCount(), time.Since(start))

	a.logger.Info("impact analysis complete",
		"change_id", changeID,
		"action", action,
		"strategy", strategyName,
		"affected", result.AffectedCount(),
		"critical_paths", len(result.CriticalPaths),
		"duration", time.Since(start))

	return result, nil
}

// hasRedundantPath reports whether nodeID is still reachable from roots
// once every directly impacted node is removed from the graph, i.e.
// whether an alternate route survives the change.
func (a *Analyzer) hasRedundantPath(snap graph.Snapshot, roots []string, strategy Strategy, direct map[string]bool, nodeID string) bool {
	if direct[nodeID] {
		return false
	}
	reached := graph.WalkExcluding(snap, roots, strategy.Direction, strategy.AllowedKinds, strategy.MaxDepth, direct)
	for _, v := range reached {
		if v.NodeID == nodeID {
			return true
		}
	}
	return false
}

// buildCriticalPath walks backward from a visited node to its root using
// each node's recorded predecessor, reconstructing the shortest chain of
// edges that produced the impact on it.
func buildCriticalPath(visited []graph.VisitedNode, target graph.VisitedNode, targetNode graph.Node) CriticalPath {
	byNode := make(map[string]graph.VisitedNode, len(visited))
	for _, v := range visited {
		byNode[v.NodeID] = v
	}

	var nodeIDs []string
	var edgeIDs []string
	current := target
	nodeIDs = append([]string{current.NodeID}, nodeIDs...)
	for current.ViaEdge != nil {
		edgeIDs = append([]string{current.ViaEdge.ID}, edgeIDs...)
		prev, ok := byNode[current.FromNode]
		if !ok {
			break
		}
		nodeIDs = append([]string{prev.NodeID}, nodeIDs...)
		current = prev
	}

	criticality := nodeCriticality(targetNode)
	return CriticalPath{
		NodeID:      target.NodeID,
		Criticality: criticality,
		Hops:        target.Depth,
		NodeIDs:     nodeIDs,
		EdgeIDs:     edgeIDs,
		Reasoning:   fmt.Sprintf("%s criticality node %s reached in %d hop(s)", criticality, target.NodeID, target.Depth),
	}
}

// Invalidate drops any cached snapshot for changeID at the given graph
// version, so the next Analyze at that version recomputes it. No caller in
// this module invokes it.
func (a *Analyzer) Invalidate(changeID string, graphVersion int64) {
	a.cache.Remove(cacheKey(changeID, graphVersion))
}

type noopMetrics struct{}

func (noopMetrics) ObserveAnalysis(string, int, time.Duration) {}
func (noopMetrics) ObserveCacheHit(bool)                       {}
