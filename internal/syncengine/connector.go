package syncengine

import (
	"context"
	"time"

	"github.com/opsgrid/changeintel/internal/changestore"
)

// SimulationReport is the result of a connector's dry-run of a change.
type SimulationReport struct {
	Summary  string
	Warnings []string
}

// ExecutionReceipt is the result of a connector actually applying a change.
type ExecutionReceipt struct {
	Success   bool
	Detail    string
	AppliedAt time.Time
}

// Connector is the external integration contract every device/firewall/cloud
// adapter implements. The core never speaks a vendor protocol directly; it
// only calls these four operations.
type Connector interface {
	ID() string
	Sync(ctx context.Context) ([]GraphMutation, error)
	ValidateChange(ctx context.Context, change changestore.Change) (ok bool, reasons []string, err error)
	SimulateChange(ctx context.Context, change changestore.Change) (SimulationReport, error)
	ApplyChange(ctx context.Context, change changestore.Change) (ExecutionReceipt, error)
}

// Status is the coordinator's last-known view of one connector's health.
type Status struct {
	ConnectorID string
	Health      string // "ok" or "error"
	LastSyncAt  time.Time
	LastError   string
	Attempts    int
}
