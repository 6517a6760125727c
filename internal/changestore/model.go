// Package changestore models and persists change records: the proposed
// modifications to the topology that flow through impact analysis, risk
// scoring, policy evaluation, and the approval workflow.
package changestore

import (
	"time"

	"github.com/opsgrid/changeintel/internal/changetype"
	"github.com/opsgrid/changeintel/internal/impact"
	"github.com/opsgrid/changeintel/internal/risk"
)

// Status is a change record's position in the workflow state machine.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusPending    Status = "pending"
	StatusAnalyzing  Status = "analyzing"
	StatusApproved   Status = "approved"
	StatusExecuting  Status = "executing"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
	StatusRolledBack Status = "rolled_back"
)

// Change is a single proposed modification to the topology.
type Change struct {
	ID          string
	Title       string
	Description string
	RequesterID string

	ChangeType    changetype.Type
	Action        changetype.Action
	Environment   string
	TargetNodeIDs []string

	ExecutionPlan string

	Status       Status
	RiskScore    float64
	RiskLevel    risk.Level
	RejectReason string

	// ImpactSnapshot is the impact analysis frozen at the moment risk was
	// last scored. It is never recomputed after approval: an approver
	// decides against what they saw, not against whatever the topology
	// looks like by the time the change executes.
	ImpactSnapshot *impact.Snapshot

	HasRollbackPlan bool
	RollbackPlan    string
	MaintenanceFrom time.Time
	MaintenanceTo   time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// InMaintenanceWindow reports whether at is within the change's declared
// maintenance window. A zero window (both bounds unset) means no window
// was declared and execution is always considered in-window.
func (c Change) InMaintenanceWindow(at time.Time) bool {
	if c.MaintenanceFrom.IsZero() && c.MaintenanceTo.IsZero() {
		return true
	}
	return !at.Before(c.MaintenanceFrom) && !at.After(c.MaintenanceTo)
}
