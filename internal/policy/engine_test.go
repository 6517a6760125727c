package policy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsgrid/changeintel/internal/changetype"
)

type fakeStore struct {
	rules []Rule
}

func (f fakeStore) ListEnabled(ctx context.Context) ([]Rule, error) {
	var enabled []Rule
	for _, r := range f.rules {
		if r.Enabled {
			enabled = append(enabled, r)
		}
	}
	return enabled, nil
}

func TestEvaluateBlocksOnBlockEnvironments(t *testing.T) {
	store := fakeStore{rules: []Rule{
		{ID: "block-prod", Enabled: true, Severity: SeverityBlock, Predicate: Predicate{
			BlockEnvironments: []string{"prod"},
		}},
	}}

	engine := New(store, nil)
	decision, err := engine.Evaluate(context.Background(), EvalContext{Environment: "prod"})
	require.NoError(t, err)
	assert.True(t, decision.Blocked())
	require.NotNil(t, decision.BlockingVerdict())
	assert.Equal(t, "block-prod", decision.BlockingVerdict().RuleID)
}

func TestEvaluateDoesNotBlockOutOfScopeEnvironment(t *testing.T) {
	store := fakeStore{rules: []Rule{
		{ID: "block-prod", Enabled: true, Severity: SeverityBlock, Predicate: Predicate{
			Environments:      []string{"prod"},
			BlockEnvironments: []string{"prod"},
		}},
	}}

	engine := New(store, nil)
	decision, err := engine.Evaluate(context.Background(), EvalContext{Environment: "staging"})
	require.NoError(t, err)
	assert.False(t, decision.Blocked())
}

func TestEvaluateBlocksOnAnyAnyRule(t *testing.T) {
	store := fakeStore{rules: []Rule{
		{ID: "block-any-any", Enabled: true, Severity: SeverityBlock, Predicate: Predicate{
			BlockAnyAnyRules: true,
		}},
	}}

	engine := New(store, nil)
	decision, err := engine.Evaluate(context.Background(), EvalContext{AnyAnyInvolved: true})
	require.NoError(t, err)
	assert.True(t, decision.Blocked())
}

func TestEvaluateBlocksOnBlockedHoursWindow(t *testing.T) {
	store := fakeStore{rules: []Rule{
		{ID: "no-friday-afternoon", Enabled: true, Severity: SeverityBlock, Predicate: Predicate{
			BlockedHoursStart: 12,
			BlockedHoursEnd:   18,
			BlockedDays:       []time.Weekday{time.Friday},
		}},
	}}

	friday16h := time.Date(2026, 7, 31, 16, 0, 0, 0, time.UTC)
	require.Equal(t, time.Friday, friday16h.Weekday())

	engine := New(store, nil)
	decision, err := engine.Evaluate(context.Background(), EvalContext{At: friday16h})
	require.NoError(t, err)
	assert.True(t, decision.Blocked())
}

func TestEvaluateRequiredApprovalsOverride(t *testing.T) {
	store := fakeStore{rules: []Rule{
		{ID: "prod-needs-three", Enabled: true, Predicate: Predicate{
			Environments:      []string{"prod"},
			RequiredApprovals: 3,
		}},
	}}

	engine := New(store, nil)
	decision, err := engine.Evaluate(context.Background(), EvalContext{Environment: "prod"})
	require.NoError(t, err)
	assert.Equal(t, 3, decision.RequiredApprovals(1))
}

func TestEvaluateNoMatch(t *testing.T) {
	store := fakeStore{rules: []Rule{
		{ID: "r1", Enabled: true, Severity: SeverityBlock, Predicate: Predicate{
			ChangeTypes:      []changetype.Type{changetype.Firewall},
			BlockChangeTypes: []changetype.Type{changetype.Firewall},
		}},
	}}

	engine := New(store, nil)
	decision, err := engine.Evaluate(context.Background(), EvalContext{ChangeType: changetype.Switch})
	require.NoError(t, err)
	assert.False(t, decision.Blocked())
	assert.Empty(t, decision.AllMatched)
}

func TestDetectConflictsBlockVsAutoApproveSameScope(t *testing.T) {
	rules := []Rule{
		{ID: "block-prod-firewall", Enabled: true, Predicate: Predicate{
			Environments:      []string{"prod"},
			ChangeTypes:       []changetype.Type{changetype.Firewall},
			BlockEnvironments: []string{"prod"},
		}},
		{ID: "auto-approve-prod-firewall", Enabled: true, Predicate: Predicate{
			Environments: []string{"prod"},
			ChangeTypes:  []changetype.Type{changetype.Firewall},
			// RequiredApprovals left at zero: auto-approves in scope.
		}},
	}

	conflicts := DetectConflicts(rules)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "block_vs_auto_approve", conflicts[0].Kind)
}

func TestDetectConflictsSymmetric(t *testing.T) {
	a := Rule{ID: "a", Enabled: true, Predicate: Predicate{BlockEnvironments: []string{"prod"}}}
	b := Rule{ID: "b", Enabled: true, Predicate: Predicate{}}

	forward := DetectConflicts([]Rule{a, b})
	backward := DetectConflicts([]Rule{b, a})
	require.Len(t, forward, 1)
	require.Len(t, backward, 1)
	assert.Equal(t, forward[0].Kind, backward[0].Kind)
}

func TestDetectConflictsNoOverlapNoConflict(t *testing.T) {
	rules := []Rule{
		{ID: "block-prod", Enabled: true, Predicate: Predicate{
			Environments:      []string{"prod"},
			BlockEnvironments: []string{"prod"},
		}},
		{ID: "auto-approve-staging", Enabled: true, Predicate: Predicate{
			Environments: []string{"staging"},
		}},
	}

	assert.Empty(t, DetectConflicts(rules))
}
