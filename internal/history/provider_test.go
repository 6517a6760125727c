package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsgrid/changeintel/internal/changestore"
)

type fakeStore struct {
	changestore.Store
	byRequester map[string][]changestore.Change
	byTarget    map[string][]changestore.Change
}

func (f *fakeStore) ListByRequester(ctx context.Context, requesterID string, limit int) ([]changestore.Change, error) {
	changes := f.byRequester[requesterID]
	if len(changes) > limit {
		changes = changes[:limit]
	}
	return changes, nil
}

func (f *fakeStore) ListByTargetNode(ctx context.Context, nodeID string, limit int) ([]changestore.Change, error) {
	changes := f.byTarget[nodeID]
	if len(changes) > limit {
		changes = changes[:limit]
	}
	return changes, nil
}

func TestRequesterApprovalRate_NoHistory(t *testing.T) {
	store := &fakeStore{byRequester: map[string][]changestore.Change{}}
	p := New(store)

	rate, err := p.RequesterApprovalRate(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 1.0, rate)
}

func TestRequesterApprovalRate_MixedHistory(t *testing.T) {
	store := &fakeStore{byRequester: map[string][]changestore.Change{
		"alice": {
			{Status: changestore.StatusCompleted},
			{Status: changestore.StatusApproved},
			{Status: changestore.StatusRejected},
			{Status: changestore.StatusPending}, // not terminal, excluded
		},
	}}
	p := New(store)

	rate, err := p.RequesterApprovalRate(context.Background(), "alice")
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, rate, 0.001)
}

func TestRequesterApprovalRate_AllFailed(t *testing.T) {
	store := &fakeStore{byRequester: map[string][]changestore.Change{
		"bob": {
			{Status: changestore.StatusRejected},
			{Status: changestore.StatusRolledBack},
		},
	}}
	p := New(store)

	rate, err := p.RequesterApprovalRate(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, 0.0, rate)
}

func TestPriorIncidentWithin90Days_NoPriorChange(t *testing.T) {
	store := &fakeStore{byTarget: map[string][]changestore.Change{}}
	p := New(store)

	found, err := p.PriorIncidentWithin90Days(context.Background(), []string{"node-1"}, time.Now())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPriorIncidentWithin90Days_MostRecentFailedWithinWindow(t *testing.T) {
	now := time.Now()
	store := &fakeStore{byTarget: map[string][]changestore.Change{
		"node-1": {{Status: changestore.StatusRolledBack, UpdatedAt: now.Add(-24 * time.Hour)}},
	}}
	p := New(store)

	found, err := p.PriorIncidentWithin90Days(context.Background(), []string{"node-1"}, now)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestPriorIncidentWithin90Days_MostRecentFailedOutsideWindow(t *testing.T) {
	now := time.Now()
	store := &fakeStore{byTarget: map[string][]changestore.Change{
		"node-1": {{Status: changestore.StatusRolledBack, UpdatedAt: now.Add(-100 * 24 * time.Hour)}},
	}}
	p := New(store)

	found, err := p.PriorIncidentWithin90Days(context.Background(), []string{"node-1"}, now)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPriorIncidentWithin90Days_MostRecentSucceeded(t *testing.T) {
	now := time.Now()
	store := &fakeStore{byTarget: map[string][]changestore.Change{
		"node-1": {{Status: changestore.StatusCompleted, UpdatedAt: now}},
	}}
	p := New(store)

	found, err := p.PriorIncidentWithin90Days(context.Background(), []string{"node-1"}, now)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPriorIncidentWithin90Days_MultipleTargetsOneFailed(t *testing.T) {
	now := time.Now()
	store := &fakeStore{byTarget: map[string][]changestore.Change{
		"node-1": {{Status: changestore.StatusCompleted, UpdatedAt: now}},
		"node-2": {{Status: changestore.StatusRejected, UpdatedAt: now.Add(-time.Hour)}},
	}}
	p := New(store)

	found, err := p.PriorIncidentWithin90Days(context.Background(), []string{"node-1", "node-2"}, now)
	require.NoError(t, err)
	assert.True(t, found)
}
