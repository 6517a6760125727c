// Package policy evaluates a configured set of governance rules against a
// proposed change, returning the verdict of every matched rule; no single
// most-severe verdict is selected. The evaluator is a
// stateless pass over a configured, enabled/disabled rule list, returning
// a typed decision rather than a bare boolean.
package policy

import (
	"time"

	"github.com/opsgrid/changeintel/internal/changetype"
)

// Severity orders a rule's informational verdict. Blocking and approval-
// count behavior are driven by Predicate fields, not Severity: Severity
// only distinguishes a silent match from one worth surfacing as a warning.
type Severity int

const (
	SeverityIgnore Severity = iota
	SeverityWarn
	SeverityBlock
)

func (s Severity) String() string {
	switch s {
	case SeverityBlock:
		return "block"
	case SeverityWarn:
		return "warn"
	default:
		return "ignore"
	}
}

// Predicate is a rule's scope-and-effect clause, expressed as the literal
// fields a governance rule is authored against rather than a generic
// field/operator/value triple: environments and change_types scope which
// changes the rule considers at all, the block_* fields and blocked
// windows decide whether it blocks, and required_approvals overrides the
// default approval quorum for changes in scope.
type Predicate struct {
	// Environments scopes the rule to specific declared environments
	// (e.g. "prod", "staging"). Empty means every environment.
	Environments []string

	// ChangeTypes scopes the rule to specific change types. Empty means
	// every change type.
	ChangeTypes []changetype.Type

	// BlockedHoursStart/BlockedHoursEnd declare an hour-of-day window
	// (0-23, local time, end exclusive) during which in-scope changes
	// are blocked. Equal start/end means no time-of-day block.
	BlockedHoursStart int
	BlockedHoursEnd   int

	// BlockedDays blocks in-scope changes entirely on the named weekdays.
	BlockedDays []time.Weekday

	// RequiredApprovals overrides the default approval quorum for
	// in-scope changes. Zero means the rule doesn't touch quorum.
	RequiredApprovals int

	// BlockAnyAnyRules blocks any in-scope change whose impact touches a
	// firewall rule flagged is_any_any.
	BlockAnyAnyRules bool

	// BlockEnvironments blocks outright any in-scope change whose
	// environment is named here; Evaluate skips out-of-scope rules first.
	BlockEnvironments []string

	// BlockChangeTypes blocks outright any in-scope change whose type is
	// named here; Evaluate skips out-of-scope rules first.
	BlockChangeTypes []changetype.Type
}

// InScope reports whether ctx falls within p's Environments/ChangeTypes
// scope. An empty list on either axis means "all".
func (p Predicate) InScope(ctx EvalContext) bool {
	if len(p.Environments) > 0 && !containsString(p.Environments, ctx.Environment) {
		return false
	}
	if len(p.ChangeTypes) > 0 && !containsChangeType(p.ChangeTypes, ctx.ChangeType) {
		return false
	}
	return true
}

// Blocks reports whether p blocks ctx, given it is already in scope.
func (p Predicate) Blocks(ctx EvalContext) bool {
	if p.BlockAnyAnyRules && ctx.AnyAnyInvolved {
		return true
	}
	if containsString(p.BlockEnvironments, ctx.Environment) {
		return true
	}
	if containsChangeType(p.BlockChangeTypes, ctx.ChangeType) {
		return true
	}
	if p.blocksTime(ctx.At) {
		return true
	}
	return false
}

func (p Predicate) blocksTime(at time.Time) bool {
	if at.IsZero() {
		return false
	}
	for _, d := range p.BlockedDays {
		if at.Weekday() == d {
			return true
		}
	}
	if p.BlockedHoursStart == p.BlockedHoursEnd {
		return false
	}
	hour := at.Hour()
	if p.BlockedHoursStart < p.BlockedHoursEnd {
		return hour >= p.BlockedHoursStart && hour < p.BlockedHoursEnd
	}
	return hour >= p.BlockedHoursStart || hour < p.BlockedHoursEnd
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func containsChangeType(list []changetype.Type, v changetype.Type) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// EvalContext is the runtime context a rule's predicate is evaluated
// against, assembled by the workflow controller from the change record
// and its impact snapshot.
type EvalContext struct {
	Environment    string
	ChangeType     changetype.Type
	At             time.Time
	AnyAnyInvolved bool
}

// Rule is a single named, configurable governance policy.
type Rule struct {
	ID        string
	Name      string
	Enabled   bool
	Severity  Severity
	Predicate Predicate
	Message   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Verdict is the outcome of evaluating one rule against a context.
type Verdict struct {
	RuleID            string
	RuleName          string
	Severity          Severity
	Blocked           bool
	RequiredApprovals int
	Message           string
}

// Conflict records two rules whose verdicts disagree in a way an operator
// should be told about: one blocks and the other auto-approves (requires
// zero approvals) for the same (environment, change_type) scope.
type Conflict struct {
	RuleAID string
	RuleBID string
	Kind    string
	Detail  string
}
