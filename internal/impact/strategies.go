package impact

import (
	"github.com/opsgrid/changeintel/internal/changetype"
	"github.com/opsgrid/changeintel/internal/graph"
)

// StrategyName identifies a traversal shape: which direction to walk, which
// edge kinds to follow, and how deep. Several changetype.Actions can share
// the same strategy (reboot_device and firmware_upgrade both blast the
// whole device's dependents, for instance), so the strategy name is a
// distinct, smaller vocabulary than the action enum.
type StrategyName string

const (
	StrategyRuleScope        StrategyName = "rule_scope"
	StrategyRuleScopeReverse StrategyName = "rule_scope_reverse"
	StrategyVLANFanout       StrategyName = "vlan_fanout"
	StrategyInterfaceFanout  StrategyName = "interface_fanout"
	StrategyDeviceBlast      StrategyName = "device_blast"
	StrategyCloudSGScope     StrategyName = "cloud_sg_scope"
)

// actionStrategy maps each recognized change action to the traversal
// strategy that computes its blast radius.
var actionStrategy = map[changetype.Action]StrategyName{
	changetype.ActionAddRule:      StrategyRuleScope,
	changetype.ActionRemoveRule:   StrategyRuleScope,
	changetype.ActionModifyRule:   StrategyRuleScope,
	changetype.ActionDisableRule:  StrategyRuleScope,
	changetype.ActionConfigChange:    StrategyDeviceBlast,
	changetype.ActionRebootDevice:    StrategyDeviceBlast,
	changetype.ActionFirmwareUpgrade: StrategyDeviceBlast,
	changetype.ActionDecommission:    StrategyDeviceBlast,
	changetype.ActionDisablePort:       StrategyInterfaceFanout,
	changetype.ActionEnablePort:        StrategyInterfaceFanout,
	changetype.ActionShutdownInterface: StrategyInterfaceFanout,
	changetype.ActionChangeVLAN: StrategyVLANFanout,
	changetype.ActionDeleteVLAN: StrategyVLANFanout,
	changetype.ActionModifyVLAN: StrategyVLANFanout,
	changetype.ActionModifySG: StrategyCloudSGScope,
	changetype.ActionDeleteSG: StrategyCloudSGScope,
}

// StrategyForAction resolves the traversal strategy name for a change
// action.
func StrategyForAction(action changetype.Action) (StrategyName, bool) {
	name, ok := actionStrategy[action]
	return name, ok
}

// additive reports whether action only adds topology rather than touching
// what already exists, meaning there is nothing already depending on the
// target: the direct impacted set is empty and only the new relationship's
// downstream is worth reporting as indirect.
func additive(action changetype.Action) bool {
	return action == changetype.ActionAddRule
}

// Strategy describes how a given action walks the graph: which direction,
// which edge kinds it follows, and how deep.
type Strategy struct {
	Direction    graph.TraversalDirection
	AllowedKinds map[graph.EdgeKind]bool
	MaxDepth     int
}

func kindSet(kinds ...graph.EdgeKind) map[graph.EdgeKind]bool {
	set := make(map[graph.EdgeKind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	return set
}

// strategyFor returns the traversal strategy for a named strategy, using
// per-strategy depth bounds from cfg.
func strategyFor(name StrategyName, cfg Config) (Strategy, bool) {
	switch name {
	case StrategyRuleScope:
		// What does this rule protect, reachable downstream from it.
		return Strategy{
			Direction:    graph.Forward,
			AllowedKinds: kindSet(graph.EdgeProtects, graph.EdgeDependsOn, graph.EdgeConnectsTo),
			MaxDepth:     cfg.DepthForStrategy(StrategyRuleScope),
		}, true
	case StrategyRuleScopeReverse:
		// Who depends on / is protected by this rule, walking upstream.
		return Strategy{
			Direction:    graph.Reverse,
			AllowedKinds: kindSet(graph.EdgeProtects, graph.EdgeDependsOn),
			MaxDepth:     cfg.DepthForStrategy(StrategyRuleScopeReverse),
		}, true
	case StrategyVLANFanout:
		return Strategy{
			Direction:    graph.Forward,
			AllowedKinds: kindSet(graph.EdgeHasVLAN, graph.EdgeMemberOf, graph.EdgeConnectsTo),
			MaxDepth:     cfg.DepthForStrategy(StrategyVLANFanout),
		}, true
	case StrategyInterfaceFanout:
		return Strategy{
			Direction:    graph.Forward,
			AllowedKinds: kindSet(graph.EdgeHasInterface, graph.EdgeConnectsTo),
			MaxDepth:     cfg.DepthForStrategy(StrategyInterfaceFanout),
		}, true
	case StrategyDeviceBlast:
		// Full blast radius: everything reachable forward, no edge filter.
		return Strategy{
			Direction:    graph.Forward,
			AllowedKinds: nil,
			MaxDepth:     cfg.DepthForStrategy(StrategyDeviceBlast),
		}, true
	case StrategyCloudSGScope:
		return Strategy{
			Direction:    graph.Forward,
			AllowedKinds: kindSet(graph.EdgeProtects, graph.EdgeDependsOn, graph.EdgeRoutesTo),
			MaxDepth:     cfg.DepthForStrategy(StrategyCloudSGScope),
		}, true
	default:
		return Strategy{}, false
	}
}
