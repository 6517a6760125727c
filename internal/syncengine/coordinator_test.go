package syncengine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsgrid/changeintel/internal/audit"
	"github.com/opsgrid/changeintel/internal/changestore"
	"github.com/opsgrid/changeintel/internal/graph"
)

type fakeConnector struct {
	id        string
	mutations []GraphMutation
	syncErr   error
	syncCalls int32

	applyReceipt ExecutionReceipt
	applyErr     error
}

func (f *fakeConnector) ID() string { return f.id }

func (f *fakeConnector) Sync(ctx context.Context) ([]GraphMutation, error) {
	atomic.AddInt32(&f.syncCalls, 1)
	if f.syncErr != nil {
		return nil, f.syncErr
	}
	return f.mutations, nil
}

func (f *fakeConnector) ValidateChange(ctx context.Context, change changestore.Change) (bool, []string, error) {
	return true, nil, nil
}

func (f *fakeConnector) SimulateChange(ctx context.Context, change changestore.Change) (SimulationReport, error) {
	return SimulationReport{Summary: "ok"}, nil
}

func (f *fakeConnector) ApplyChange(ctx context.Context, change changestore.Change) (ExecutionReceipt, error) {
	return f.applyReceipt, f.applyErr
}

type fakeMetrics struct {
	mu    sync.Mutex
	calls []observedSync
}

type observedSync struct {
	connectorID string
	ok          bool
}

func (f *fakeMetrics) ObserveSync(connectorID string, ok bool, seconds float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, observedSync{connectorID: connectorID, ok: ok})
}

func TestTriggerSync_RecordsMetricsOnSuccessAndFailure(t *testing.T) {
	store := graph.NewMemoryStore()
	metrics := &fakeMetrics{}

	ok := &fakeConnector{id: "fw-1"}
	coord := New(store, audit.NewMemoryJournal(), metrics, nil, DefaultConfig())
	coord.Register(ok)
	require.NoError(t, coord.TriggerSync(context.Background(), "fw-1"))

	fastRetry := Config{WorkerPoolWidth: 1, JobTimeout: time.Second, RetryMax: 1, RetryBaseSeconds: 0, RetryCapSeconds: 1}
	failingCoord := New(store, audit.NewMemoryJournal(), metrics, nil, fastRetry)
	failing := &fakeConnector{id: "fw-2", syncErr: assert.AnError}
	failingCoord.Register(failing)
	require.NoError(t, failingCoord.TriggerSync(context.Background(), "fw-2"))

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	require.Len(t, metrics.calls, 2)
	assert.Equal(t, observedSync{connectorID: "fw-1", ok: true}, metrics.calls[0])
	assert.Equal(t, observedSync{connectorID: "fw-2", ok: false}, metrics.calls[1])
}

func TestTriggerSyncAppliesUpsertNode(t *testing.T) {
	store := graph.NewMemoryStore()
	connector := &fakeConnector{
		id: "fw-1",
		mutations: []GraphMutation{
			{Kind: MutationUpsertNode, NodeID: "dev-1", NodeKind: graph.NodeDevice, Name: "core-sw-1", ObservedAt: time.Now()},
		},
	}

	coord := New(store, audit.NewMemoryJournal(), nil, nil, DefaultConfig())
	coord.Register(connector)

	require.NoError(t, coord.TriggerSync(context.Background(), "fw-1"))

	node, err := store.GetNode(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "core-sw-1", node.Name)

	status, ok := coord.Status("fw-1")
	require.True(t, ok)
	assert.Equal(t, "ok", status.Health)
}

func TestTombstoneSkippedWhenAnotherConnectorAsserts(t *testing.T) {
	store := graph.NewMemoryStore()
	require.NoError(t, store.UpsertNode(context.Background(), graph.Node{ID: "dev-1", Kind: graph.NodeDevice, Name: "core-sw-1"}))

	coord := New(store, audit.NewMemoryJournal(), nil, nil, DefaultConfig())

	connA := &fakeConnector{id: "conn-a", mutations: []GraphMutation{
		{Kind: MutationUpsertNode, NodeID: "dev-1", NodeKind: graph.NodeDevice, Name: "core-sw-1", ObservedAt: time.Now()},
	}}
	connB := &fakeConnector{id: "conn-b", mutations: []GraphMutation{
		{Kind: MutationTombstone, NodeID: "dev-1", ObservedAt: time.Now()},
	}}
	coord.Register(connA)
	coord.Register(connB)

	require.NoError(t, coord.TriggerSync(context.Background(), "conn-a"))
	require.NoError(t, coord.TriggerSync(context.Background(), "conn-b"))

	_, err := store.GetNode(context.Background(), "dev-1")
	assert.NoError(t, err, "node must survive a tombstone while conn-a still asserts it")
}

func TestLastWriterWinsIgnoresStaleObservation(t *testing.T) {
	store := graph.NewMemoryStore()
	coord := New(store, audit.NewMemoryJournal(), nil, nil, DefaultConfig())

	now := time.Now()
	conn := &fakeConnector{id: "fw-1"}
	coord.Register(conn)

	conn.mutations = []GraphMutation{
		{Kind: MutationUpsertNode, NodeID: "dev-1", NodeKind: graph.NodeDevice, Name: "newer", ObservedAt: now},
	}
	require.NoError(t, coord.TriggerSync(context.Background(), "fw-1"))

	conn.mutations = []GraphMutation{
		{Kind: MutationUpsertNode, NodeID: "dev-1", NodeKind: graph.NodeDevice, Name: "stale", ObservedAt: now.Add(-time.Hour)},
	}
	require.NoError(t, coord.TriggerSync(context.Background(), "fw-1"))

	node, err := store.GetNode(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "newer", node.Name, "a mutation observed earlier than the last applied write must not overwrite it")
}

func TestApplyChangeRecordsAuditOnSuccess(t *testing.T) {
	store := graph.NewMemoryStore()
	journal := audit.NewMemoryJournal()
	coord := New(store, journal, nil, nil, DefaultConfig())

	conn := &fakeConnector{id: "fw-1", applyReceipt: ExecutionReceipt{Success: true, Detail: "applied"}}
	coord.Register(conn)

	receipt, err := coord.ApplyChange(context.Background(), "fw-1", changestore.Change{ID: "chg-1"})
	require.NoError(t, err)
	assert.True(t, receipt.Success)

	entries, err := journal.ListForChange(context.Background(), "chg-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.EventSyncApplied, entries[0].Kind)
}
