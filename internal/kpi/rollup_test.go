package kpi

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsgrid/changeintel/internal/audit"
	"github.com/opsgrid/changeintel/internal/changestore"
	"github.com/opsgrid/changeintel/internal/graph"
	"github.com/opsgrid/changeintel/internal/workflow"
)

// fakeChangeStore is a minimal changestore.Store stub: only ListByStatus is
// exercised by the aggregator, every other method is unreachable from it.
type fakeChangeStore struct {
	changestore.Store
	completed []changestore.Change
}

func (f *fakeChangeStore) ListByStatus(ctx context.Context, status changestore.Status) ([]changestore.Change, error) {
	if status != changestore.StatusCompleted {
		return nil, nil
	}
	return f.completed, nil
}

// fakeApprovalStore is a minimal workflow.ApprovalStore stub keyed by
// change id.
type fakeApprovalStore struct {
	workflow.ApprovalStore
	byChange map[string][]workflow.Approval
}

func (f *fakeApprovalStore) ListForChange(ctx context.Context, changeID string) ([]workflow.Approval, error) {
	return f.byChange[changeID], nil
}

// fakeJournal is a minimal audit.Journal stub keyed by change id.
type fakeJournal struct {
	byChange map[string][]audit.Entry
}

func (f *fakeJournal) Append(ctx context.Context, entry audit.Entry) (audit.Entry, error) {
	f.byChange[entry.ChangeID] = append(f.byChange[entry.ChangeID], entry)
	return entry, nil
}

func (f *fakeJournal) ListForChange(ctx context.Context, changeID string) ([]audit.Entry, error) {
	return f.byChange[changeID], nil
}

func completionEntry(changeID string, at time.Time) audit.Entry {
	return audit.Entry{
		ChangeID:  changeID,
		Kind:      audit.EventStatusTransition,
		Detail:    map[string]any{"from": "executing", "to": "completed"},
		CreatedAt: at,
	}
}

func TestCompute_NoCompletedChanges(t *testing.T) {
	changes := &fakeChangeStore{}
	approvals := &fakeApprovalStore{byChange: map[string][]workflow.Approval{}}
	journal := &fakeJournal{byChange: map[string][]audit.Entry{}}
	graphStore := graph.NewMemoryStore()

	agg := New(changes, approvals, journal, graphStore)
	report, err := agg.Compute(context.Background(), time.Now(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, report.TotalChanges)
}

func TestCompute_AutoApprovedWithNoApprovalRows(t *testing.T) {
	now := time.Now()
	changes := &fakeChangeStore{completed: []changestore.Change{
		{ID: "c1", RiskScore: 10, CreatedAt: now.Add(-time.Hour), UpdatedAt: now},
		{ID: "c2", RiskScore: 80, CreatedAt: now.Add(-time.Hour), UpdatedAt: now},
	}}
	approvals := &fakeApprovalStore{byChange: map[string][]workflow.Approval{
		"c2": {{ChangeID: "c2", Decision: workflow.DecisionApproved, DecidedAt: now}},
	}}
	journal := &fakeJournal{byChange: map[string][]audit.Entry{
		"c1": {completionEntry("c1", now)},
		"c2": {completionEntry("c2", now)},
	}}
	graphStore := graph.NewMemoryStore()

	agg := New(changes, approvals, journal, graphStore)
	report, err := agg.Compute(context.Background(), now, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, report.TotalChanges)
	assert.InDelta(t, 0.5, report.AutoApprovedPct, 0.001)
}

func TestCompute_AvgValidationMinutes(t *testing.T) {
	now := time.Now()
	submitted := now.Add(-2 * time.Hour)
	decided := now.Add(-1 * time.Hour)
	changes := &fakeChangeStore{completed: []changestore.Change{
		{ID: "c1", CreatedAt: submitted, UpdatedAt: now},
	}}
	approvals := &fakeApprovalStore{byChange: map[string][]workflow.Approval{
		"c1": {{ChangeID: "c1", Decision: workflow.DecisionApproved, DecidedAt: decided}},
	}}
	journal := &fakeJournal{byChange: map[string][]audit.Entry{
		"c1": {completionEntry("c1", now)},
	}}
	graphStore := graph.NewMemoryStore()

	agg := New(changes, approvals, journal, graphStore)
	report, err := agg.Compute(context.Background(), now, 0)
	require.NoError(t, err)
	assert.InDelta(t, 60.0, report.AvgValidationMinutes, 0.01)
}

func TestCompute_IncidentWithinWindowCountsAgainstScoringPrecision(t *testing.T) {
	now := time.Now()
	changes := &fakeChangeStore{completed: []changestore.Change{
		{ID: "c1", CreatedAt: now.Add(-3 * 24 * time.Hour), UpdatedAt: now.Add(-3 * 24 * time.Hour)},
		{ID: "c2", CreatedAt: now.Add(-3 * 24 * time.Hour), UpdatedAt: now.Add(-3 * 24 * time.Hour)},
	}}
	approvals := &fakeApprovalStore{byChange: map[string][]workflow.Approval{}}
	journal := &fakeJournal{byChange: map[string][]audit.Entry{
		"c1": {
			completionEntry("c1", now.Add(-3*24*time.Hour)),
			{ChangeID: "c1", Kind: audit.EventIncidentReported, CreatedAt: now.Add(-2 * 24 * time.Hour)},
		},
		"c2": {
			completionEntry("c2", now.Add(-3*24*time.Hour)),
		},
	}}
	graphStore := graph.NewMemoryStore()

	agg := New(changes, approvals, journal, graphStore)
	report, err := agg.Compute(context.Background(), now, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, report.IncidentsPostChangePct, 0.001)
	assert.InDelta(t, 0.5, report.ScoringPrecisionPct, 0.001)
}

func TestCompute_IncidentOutsideWindowDoesNotCount(t *testing.T) {
	now := time.Now()
	changes := &fakeChangeStore{completed: []changestore.Change{
		{ID: "c1", CreatedAt: now.Add(-20 * 24 * time.Hour), UpdatedAt: now.Add(-20 * 24 * time.Hour)},
	}}
	approvals := &fakeApprovalStore{byChange: map[string][]workflow.Approval{}}
	journal := &fakeJournal{byChange: map[string][]audit.Entry{
		"c1": {
			completionEntry("c1", now.Add(-20*24*time.Hour)),
			{ChangeID: "c1", Kind: audit.EventIncidentReported, CreatedAt: now.Add(-10 * 24 * time.Hour)},
		},
	}}
	graphStore := graph.NewMemoryStore()

	agg := New(changes, approvals, journal, graphStore)
	report, err := agg.Compute(context.Background(), now, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, report.IncidentsPostChangePct)
	assert.Equal(t, 1.0, report.ScoringPrecisionPct)
}

func TestCompute_CoreChangesDetected(t *testing.T) {
	now := time.Now()
	changes := &fakeChangeStore{completed: []changestore.Change{
		{ID: "c1", TargetNodeIDs: []string{"core-switch-1"}, CreatedAt: now, UpdatedAt: now},
		{ID: "c2", TargetNodeIDs: []string{"edge-switch-1"}, CreatedAt: now, UpdatedAt: now},
	}}
	approvals := &fakeApprovalStore{byChange: map[string][]workflow.Approval{}}
	journal := &fakeJournal{byChange: map[string][]audit.Entry{
		"c1": {completionEntry("c1", now)},
		"c2": {completionEntry("c2", now)},
	}}
	graphStore := graph.NewMemoryStore()
	require.NoError(t, graphStore.UpsertNode(context.Background(), graph.Node{
		ID: "core-switch-1", Kind: graph.NodeDevice, Properties: map[string]any{"is_core": true},
	}))
	require.NoError(t, graphStore.UpsertNode(context.Background(), graph.Node{
		ID: "edge-switch-1", Kind: graph.NodeDevice, Properties: map[string]any{"is_core": false},
	}))

	agg := New(changes, approvals, journal, graphStore)
	report, err := agg.Compute(context.Background(), now, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, report.CoreChangesDetectedPct, 0.001)
}

func TestCompute_WindowExcludesOlderChanges(t *testing.T) {
	now := time.Now()
	changes := &fakeChangeStore{completed: []changestore.Change{
		{ID: "recent", CreatedAt: now.Add(-time.Hour), UpdatedAt: now.Add(-time.Hour)},
		{ID: "old", CreatedAt: now.Add(-60 * 24 * time.Hour), UpdatedAt: now.Add(-60 * 24 * time.Hour)},
	}}
	approvals := &fakeApprovalStore{byChange: map[string][]workflow.Approval{}}
	journal := &fakeJournal{byChange: map[string][]audit.Entry{
		"recent": {completionEntry("recent", now.Add(-time.Hour))},
		"old":    {completionEntry("old", now.Add(-60*24*time.Hour))},
	}}
	graphStore := graph.NewMemoryStore()

	agg := New(changes, approvals, journal, graphStore)
	report, err := agg.Compute(context.Background(), now, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalChanges)
}
