package policy

import (
	"context"
	"fmt"
	"log/slog"
)

// Store is the policy persistence contract.
type Store interface {
	ListEnabled(ctx context.Context) ([]Rule, error)
}

// Engine evaluates a change's EvalContext against every enabled rule and
// returns the aggregate decision, the way RouteEvaluator returns the
// first/most-specific matching route.
type Engine struct {
	store  Store
	logger *slog.Logger
}

// New creates a policy Engine.
func New(store Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, logger: logger}
}

// Decision is the aggregate result of evaluating all enabled rules.
type Decision struct {
	AllMatched []Verdict
}

// Blocked reports whether any matched rule blocks the change.
func (d Decision) Blocked() bool {
	for _, v := range d.AllMatched {
		if v.Blocked {
			return true
		}
	}
	return false
}

// BlockingVerdict returns the first matched verdict that blocks, for error
// reporting. Returns nil if none block.
func (d Decision) BlockingVerdict() *Verdict {
	for i := range d.AllMatched {
		if d.AllMatched[i].Blocked {
			return &d.AllMatched[i]
		}
	}
	return nil
}

// RequiredApprovals returns the largest RequiredApprovals override among
// matched rules, or def if no matched rule overrides it.
func (d Decision) RequiredApprovals(def int) int {
	required := def
	for _, v := range d.AllMatched {
		if v.RequiredApprovals > required {
			required = v.RequiredApprovals
		}
	}
	return required
}

// Evaluate runs every enabled rule's predicate against ctx and returns the
// aggregate decision.
func (e *Engine) Evaluate(ctx context.Context, evalCtx EvalContext) (Decision, error) {
	rules, err := e.store.ListEnabled(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("loading enabled policies: %w", err)
	}

	var matched []Verdict
	for _, rule := range rules {
		if !rule.Enabled || !rule.Predicate.InScope(evalCtx) {
			continue
		}

		blocked := rule.Predicate.Blocks(evalCtx)
		if !blocked && rule.Predicate.RequiredApprovals == 0 && rule.Severity == SeverityIgnore {
			// In scope but declares no effect at all: nothing to report.
			continue
		}

		matched = append(matched, Verdict{
			RuleID:            rule.ID,
			RuleName:          rule.Name,
			Severity:          rule.Severity,
			Blocked:           blocked,
			RequiredApprovals: rule.Predicate.RequiredApprovals,
			Message:           rule.Message,
		})
	}

	decision := Decision{AllMatched: matched}
	if blocking := decision.BlockingVerdict(); blocking != nil {
		e.logger.Info("policy evaluation blocked change",
			"rule_id", blocking.RuleID, "matched_count", len(matched))
	}

	return decision, nil
}
