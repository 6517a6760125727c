package syncengine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/opsgrid/changeintel/internal/audit"
	"github.com/opsgrid/changeintel/internal/changestore"
	"github.com/opsgrid/changeintel/internal/cierrors"
	"github.com/opsgrid/changeintel/internal/graph"
)

// Config controls retry budget, job sizing, and timeouts for connector
// syncs and change applications.
type Config struct {
	WorkerPoolWidth  int
	JobTimeout       time.Duration
	RetryMax         int
	RetryBaseSeconds int
	RetryCapSeconds  int
	// CoreDeviceK is the minimum number of distinct shortest dependency
	// paths a Device must sit on to be flagged core after each sync pass.
	// Zero falls back to graph.DefaultCoreDeviceK.
	CoreDeviceK int
}

// DefaultConfig mirrors the process-wide SYNC_RETRY_* defaults.
func DefaultConfig() Config {
	return Config{
		WorkerPoolWidth:  8,
		JobTimeout:       5 * time.Minute,
		RetryMax:         8,
		RetryBaseSeconds: 30,
		RetryCapSeconds:  900,
		CoreDeviceK:      graph.DefaultCoreDeviceK,
	}
}

// Metrics is the subset of Prometheus instruments the coordinator records
// to. A nil Metrics is replaced with a no-op implementation.
type Metrics interface {
	ObserveSync(connectorID string, ok bool, seconds float64)
}

type noopMetrics struct{}

func (noopMetrics) ObserveSync(connectorID string, ok bool, seconds float64) {}

// Coordinator runs connector sync passes through a bounded worker pool,
// resolving cross-connector write conflicts with last-writer-wins and
// coalescing redundant triggers, and forwards change applications to
// connectors. ApplyChange does not go through the worker pool.
type Coordinator struct {
	store      graph.Store
	journal    audit.Journal
	metrics    Metrics
	logger     *slog.Logger
	cfg        Config
	sem        chan struct{}

	mu         sync.Mutex
	connectors map[string]Connector
	statuses   map[string]Status
	inFlight   map[string]bool
	pending    map[string]bool
	assertedBy map[string]map[string]bool // node id -> set of connector ids currently asserting it
	lastWrite  map[string]time.Time       // node id -> most recent ObservedAt applied

	stop chan struct{}
}

// New creates a Coordinator. journal may be nil, in which case ApplyChange
// records no audit entries. metrics may be nil, in which case sync
// observations are discarded.
func New(store graph.Store, journal audit.Journal, metrics Metrics, logger *slog.Logger, cfg Config) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	width := cfg.WorkerPoolWidth
	if width <= 0 {
		width = 1
	}
	if width > 16 {
		width = 16
	}

	return &Coordinator{
		store:      store,
		journal:    journal,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
		sem:        make(chan struct{}, width),
		connectors: make(map[string]Connector),
		statuses:   make(map[string]Status),
		inFlight:   make(map[string]bool),
		pending:    make(map[string]bool),
		assertedBy: make(map[string]map[string]bool),
		lastWrite:  make(map[string]time.Time),
	}
}

// Register adds a connector the coordinator can sync and dispatch to.
func (c *Coordinator) Register(connector Connector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectors[connector.ID()] = connector
}

// Status returns the last-known health of a connector.
func (c *Coordinator) Status(connectorID string) (Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.statuses[connectorID]
	return s, ok
}

// TriggerSync runs (or schedules) a sync pass for connectorID. If a sync for
// this connector is already in flight, the trigger is coalesced into a
// single follow-up run rather than starting a second concurrent pass.
func (c *Coordinator) TriggerSync(ctx context.Context, connectorID string) error {
	c.mu.Lock()
	connector, ok := c.connectors[connectorID]
	if !ok {
		c.mu.Unlock()
		return cierrors.NewNotFoundError("connector", connectorID)
	}
	if c.inFlight[connectorID] {
		c.pending[connectorID] = true
		c.mu.Unlock()
		return nil
	}
	c.inFlight[connectorID] = true
	c.mu.Unlock()

	c.runAndDrain(ctx, connector)
	return nil
}

// runAndDrain runs one sync pass, then re-runs once more if a trigger
// arrived while it was in flight, repeating until no further trigger landed.
func (c *Coordinator) runAndDrain(ctx context.Context, connector Connector) {
	for {
		c.sem <- struct{}{}
		err := c.syncOnce(ctx, connector)
		<-c.sem

		if err != nil {
			c.logger.Error("connector sync failed after retries", "connector_id", connector.ID(), "error", err)
		}

		c.mu.Lock()
		if c.pending[connector.ID()] {
			delete(c.pending, connector.ID())
			c.mu.Unlock()
			continue
		}
		delete(c.inFlight, connector.ID())
		c.mu.Unlock()
		return
	}
}

// syncOnce runs a connector's sync() with capped exponential backoff and
// applies the resulting mutations to the graph store.
func (c *Coordinator) syncOnce(ctx context.Context, connector Connector) error {
	jobCtx, cancel := context.WithTimeout(ctx, c.cfg.JobTimeout)
	defer cancel()

	attempts := 0
	var mutations []GraphMutation
	started := time.Now()

	operation := func() error {
		attempts++
		result, err := connector.Sync(jobCtx)
		if err != nil {
			return err
		}
		mutations = result
		return nil
	}

	err := backoff.Retry(operation, c.retryPolicy(jobCtx))
	c.metrics.ObserveSync(connector.ID(), err == nil, time.Since(started).Seconds())

	c.mu.Lock()
	status := Status{ConnectorID: connector.ID(), LastSyncAt: time.Now(), Attempts: attempts}
	if err != nil {
		status.Health = "error"
		status.LastError = err.Error()
	} else {
		status.Health = "ok"
	}
	c.statuses[connector.ID()] = status
	c.mu.Unlock()

	if err != nil {
		return cierrors.NewConnectorSyncError(connector.ID(), err, true)
	}

	c.applyMutations(jobCtx, connector.ID(), mutations)
	c.recomputeCoreDevices(jobCtx)
	return nil
}

// recomputeCoreDevices reruns the core-device derivation against the
// current graph and persists any change in a Device's is_core flag. It
// runs after every sync pass applies its mutations, since a topology edit
// anywhere can shift which devices sit on K shortest dependency paths
// between a critical Application and its serving devices.
func (c *Coordinator) recomputeCoreDevices(ctx context.Context) {
	snap, err := c.store.Snapshot(ctx)
	if err != nil {
		c.logger.Error("failed to snapshot graph for core device recompute", "error", err)
		return
	}

	k := c.cfg.CoreDeviceK
	if k <= 0 {
		k = graph.DefaultCoreDeviceK
	}
	core := graph.RecomputeCoreDevices(snap, k)

	for id, node := range snap.Nodes {
		if node.Kind != graph.NodeDevice {
			continue
		}
		wasCore, _ := node.Properties["is_core"].(bool)
		isCore := core[id]
		if wasCore == isCore {
			continue
		}

		props := make(map[string]any, len(node.Properties)+1)
		for k, v := range node.Properties {
			props[k] = v
		}
		props["is_core"] = isCore
		node.Properties = props

		if err := c.store.UpsertNode(ctx, node); err != nil {
			c.logger.Error("failed to persist is_core flag", "node_id", id, "error", err)
		}
	}
}

// applyMutations commits a connector's reported mutations to the graph
// store, resolving cross-connector conflicts by last-writer-wins on
// ObservedAt and only honoring a tombstone when no other connector
// currently asserts the node.
func (c *Coordinator) applyMutations(ctx context.Context, connectorID string, mutations []GraphMutation) {
	for _, m := range mutations {
		switch m.Kind {
		case MutationUpsertNode:
			if !c.claimWrite(m.NodeID, m.ObservedAt) {
				continue
			}
			c.markAsserted(m.NodeID, connectorID)
			if err := c.store.UpsertNode(ctx, graph.Node{
				ID: m.NodeID, Kind: m.NodeKind, Name: m.Name, Properties: m.Properties,
			}); err != nil {
				c.logger.Error("failed to apply node mutation", "connector_id", connectorID, "node_id", m.NodeID, "error", err)
			}
		case MutationUpsertEdge:
			edgeKey := m.EdgeID
			if edgeKey == "" {
				edgeKey = fmt.Sprintf("%s:%s->%s", m.EdgeKind, m.SourceID, m.TargetID)
			}
			if !c.claimWrite(edgeKey, m.ObservedAt) {
				continue
			}
			if err := c.store.UpsertEdge(ctx, graph.Edge{
				ID: edgeKey, Kind: m.EdgeKind, FromNodeID: m.SourceID, ToNodeID: m.TargetID, Properties: m.EdgeProps,
			}); err != nil {
				c.logger.Error("failed to apply edge mutation", "connector_id", connectorID, "edge_id", edgeKey, "error", err)
			}
		case MutationTombstone:
			if c.otherConnectorAsserts(m.NodeID, connectorID) {
				c.logger.Debug("skipping tombstone: still asserted by another connector", "node_id", m.NodeID, "connector_id", connectorID)
				continue
			}
			if err := c.store.DeleteNode(ctx, m.NodeID); err != nil && !cierrors.IsNotFound(err) {
				c.logger.Error("failed to apply tombstone", "connector_id", connectorID, "node_id", m.NodeID, "error", err)
			}
			c.clearAsserted(m.NodeID)
		}
	}
}

// claimWrite reports whether a mutation observed at `at` is newer than the
// last one applied for this key, atomically recording the win.
func (c *Coordinator) claimWrite(key string, at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if last, ok := c.lastWrite[key]; ok && !at.After(last) {
		return false
	}
	c.lastWrite[key] = at
	return true
}

func (c *Coordinator) markAsserted(nodeID, connectorID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.assertedBy[nodeID] == nil {
		c.assertedBy[nodeID] = make(map[string]bool)
	}
	c.assertedBy[nodeID][connectorID] = true
}

func (c *Coordinator) otherConnectorAsserts(nodeID, connectorID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.assertedBy[nodeID] {
		if id != connectorID {
			return true
		}
	}
	return false
}

func (c *Coordinator) clearAsserted(nodeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.assertedBy, nodeID)
}

// ApplyChange forwards an approved change to a connector's apply_change
// operation, retrying with the same capped backoff as sync, and recording
// the outcome in the audit journal.
func (c *Coordinator) ApplyChange(ctx context.Context, connectorID string, change changestore.Change) (ExecutionReceipt, error) {
	c.mu.Lock()
	connector, ok := c.connectors[connectorID]
	c.mu.Unlock()
	if !ok {
		return ExecutionReceipt{}, cierrors.NewNotFoundError("connector", connectorID)
	}

	jobCtx, cancel := context.WithTimeout(ctx, c.cfg.JobTimeout)
	defer cancel()

	var receipt ExecutionReceipt
	operation := func() error {
		result, err := connector.ApplyChange(jobCtx, change)
		if err != nil {
			return err
		}
		receipt = result
		return nil
	}

	err := backoff.Retry(operation, c.retryPolicy(jobCtx))
	if err != nil {
		c.appendAudit(ctx, change.ID, audit.EventSyncFailed, map[string]any{
			"connector_id": connectorID,
			"error":        err.Error(),
		})
		return ExecutionReceipt{}, cierrors.NewConnectorSyncError(connectorID, err, true)
	}

	c.appendAudit(ctx, change.ID, audit.EventSyncApplied, map[string]any{
		"connector_id": connectorID,
		"success":      receipt.Success,
		"detail":       receipt.Detail,
	})
	return receipt, nil
}

func (c *Coordinator) appendAudit(ctx context.Context, changeID string, kind audit.EventKind, detail map[string]any) {
	if c.journal == nil {
		return
	}
	if _, err := c.journal.Append(ctx, audit.Entry{ChangeID: changeID, Kind: kind, Detail: detail}); err != nil {
		c.logger.Error("failed to append sync audit entry", "change_id", changeID, "error", err)
	}
}

func (c *Coordinator) retryPolicy(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(c.cfg.RetryBaseSeconds) * time.Second
	b.Multiplier = 2
	b.MaxInterval = time.Duration(c.cfg.RetryCapSeconds) * time.Second
	b.MaxElapsedTime = 0 // bounded by RetryMax via WithMaxRetries, not elapsed time

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.RetryMax)), ctx)
}

// StartPeriodic runs a sync pass for every registered connector on a fixed
// interval until ctx is cancelled or Stop is called.
func (c *Coordinator) StartPeriodic(ctx context.Context, interval time.Duration) {
	c.stop = make(chan struct{})
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.mu.Lock()
				ids := make([]string, 0, len(c.connectors))
				for id := range c.connectors {
					ids = append(ids, id)
				}
				c.mu.Unlock()

				for _, id := range ids {
					if err := c.TriggerSync(ctx, id); err != nil {
						c.logger.Error("periodic sync trigger failed", "connector_id", id, "error", err)
					}
				}
			case <-c.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts a running periodic sync loop.
func (c *Coordinator) Stop() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}
