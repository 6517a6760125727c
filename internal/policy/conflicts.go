package policy

import (
	"fmt"

	"github.com/opsgrid/changeintel/internal/changetype"
)

// isBlocking reports whether rule can ever block a change in its scope:
// either unconditionally (block_environments/block_change_types) or
// conditionally (block_any_any_rules, which depends on the change's
// impact at evaluation time but still represents a blocking intent for
// conflict-detection purposes).
func isBlocking(p Predicate) bool {
	return p.BlockAnyAnyRules || len(p.BlockEnvironments) > 0 || len(p.BlockChangeTypes) > 0
}

// isAutoApprove reports whether rule is treated as auto-approving for
// conflict detection: it blocks nothing and sets no approval quorum
// (RequiredApprovals is zero). Decision.RequiredApprovals never lowers the
// default quorum for such a rule.
func isAutoApprove(p Predicate) bool {
	return p.RequiredApprovals == 0 && !isBlocking(p)
}

// scopesOverlap reports whether two predicates' (environment, change_type)
// scopes can both match the same change: an empty axis on either side
// matches everything on that axis.
func scopesOverlap(a, b Predicate) bool {
	return environmentsOverlap(a.Environments, b.Environments) &&
		changeTypesOverlap(a.ChangeTypes, b.ChangeTypes)
}

func environmentsOverlap(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return true
	}
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[v] = true
	}
	for _, v := range b {
		if set[v] {
			return true
		}
	}
	return false
}

func changeTypesOverlap(a, b []changetype.Type) bool {
	if len(a) == 0 || len(b) == 0 {
		return true
	}
	set := make(map[changetype.Type]bool, len(a))
	for _, v := range a {
		set[v] = true
	}
	for _, v := range b {
		if set[v] {
			return true
		}
	}
	return false
}

// DetectConflicts scans a rule set for block-vs-auto-approve conflicts: two
// enabled rules whose (environment, change_type) scopes overlap, where one
// blocks changes in that scope and the other auto-approves them (requires
// zero approvals and blocks nothing). Conflict detection is symmetric:
// conflicts(a, b) holds iff conflicts(b, a) holds, since the relation
// being tested (one blocks, the other auto-approves, scopes overlap) does
// not depend on which rule is named first.
func DetectConflicts(rules []Rule) []Conflict {
	var conflicts []Conflict

	for i := 0; i < len(rules); i++ {
		for j := i + 1; j < len(rules); j++ {
			a, b := rules[i], rules[j]
			if !a.Enabled || !b.Enabled {
				continue
			}
			if !scopesOverlap(a.Predicate, b.Predicate) {
				continue
			}

			aBlocks, bBlocks := isBlocking(a.Predicate), isBlocking(b.Predicate)
			aAuto, bAuto := isAutoApprove(a.Predicate), isAutoApprove(b.Predicate)

			switch {
			case aBlocks && bAuto:
				conflicts = append(conflicts, blockVsAutoApprove(a, b))
			case bBlocks && aAuto:
				conflicts = append(conflicts, blockVsAutoApprove(b, a))
			}
		}
	}

	return conflicts
}

func blockVsAutoApprove(blocker, approver Rule) Conflict {
	return Conflict{
		RuleAID: blocker.ID,
		RuleBID: approver.ID,
		Kind:    "block_vs_auto_approve",
		Detail: fmt.Sprintf(
			"rule %s blocks changes in a scope that rule %s auto-approves",
			blocker.ID, approver.ID,
		),
	}
}
