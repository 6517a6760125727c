package workflow

import (
	"context"
	"time"

	"github.com/opsgrid/changeintel/internal/changetype"
	"github.com/opsgrid/changeintel/internal/cierrors"
	"github.com/opsgrid/changeintel/internal/risk"
)

// ApprovalDecision is an approver's verdict on a single approval row.
type ApprovalDecision string

const (
	DecisionPending  ApprovalDecision = "pending"
	DecisionApproved ApprovalDecision = "approved"
	DecisionRejected ApprovalDecision = "rejected"
	DecisionExpired  ApprovalDecision = "expired"
)

// Role names the function an approver must hold to decide an approval row.
type Role string

const (
	RoleOperator      Role = "operator"
	RoleChangeManager Role = "change_manager"
	RoleNetworkLead   Role = "network_lead"
	RoleSecurityLead  Role = "security_lead"
	RoleDCManager     Role = "dc_manager"
	RoleDirector      Role = "director"
)

// baseRoleForLevel returns the minimum approver role a change's risk level
// requires, before any per-change-type additions.
func baseRoleForLevel(level risk.Level) Role {
	switch level {
	case risk.LevelMedium:
		return RoleChangeManager
	case risk.LevelHigh:
		return RoleNetworkLead
	case risk.LevelCritical:
		return RoleDirector
	default:
		return RoleOperator
	}
}

// Approval is one required sign-off on a change. DeriveApprovals may
// derive more than one row per change, each carrying the role that must
// decide it; a change requiring double approval derives twice as many.
type Approval struct {
	ID           string
	ChangeID     string
	RoleRequired Role
	ApproverID   string // empty until decided, or pre-assigned for a named approver pool
	Decision     ApprovalDecision
	Reason       string
	RequestedAt  time.Time
	DecidedAt    time.Time
	ExpiresAt    time.Time
}

// IsExpired reports whether the approval's deadline has passed without a
// decision.
func (a Approval) IsExpired(at time.Time) bool {
	return a.Decision == DecisionPending && !a.ExpiresAt.IsZero() && at.After(a.ExpiresAt)
}

// ApprovalStore is the approval row persistence contract.
type ApprovalStore interface {
	Create(ctx context.Context, approval Approval) (Approval, error)
	Get(ctx context.Context, id string) (Approval, error)
	Decide(ctx context.Context, id string, decision ApprovalDecision, approverID, reason string) error
	ListForChange(ctx context.Context, changeID string) ([]Approval, error)
	ListPendingExpiredBefore(ctx context.Context, at time.Time) ([]Approval, error)
}

// DeriveApprovals builds the approval rows a change needs:
//
//   - the base role comes from the change's risk level
//   - switch/router changes additionally require a network lead
//   - firewall changes touching an any-any rule additionally require a
//     security lead
//   - decommission changes additionally require a datacenter manager
//   - the resulting role set is deduped
//   - if requireDouble is set (the controller sets it when a matched
//     policy rule's required_approvals override is 2 or more), the whole
//     role set is doubled: every required role must sign off twice,
//     independently
func DeriveApprovals(
	changeID string,
	level risk.Level,
	ct changetype.Type,
	action changetype.Action,
	anyAnyInvolved bool,
	requireDouble bool,
	now time.Time,
	timeout time.Duration,
) []Approval {
	roles := []Role{baseRoleForLevel(level)}
	seen := map[Role]bool{roles[0]: true}
	add := func(r Role) {
		if !seen[r] {
			seen[r] = true
			roles = append(roles, r)
		}
	}

	if ct == changetype.Switch {
		add(RoleNetworkLead)
	}
	if ct == changetype.Firewall && anyAnyInvolved {
		add(RoleSecurityLead)
	}
	if action == changetype.ActionDecommission {
		add(RoleDCManager)
	}

	if requireDouble {
		roles = append(roles, roles...)
	}

	approvals := make([]Approval, len(roles))
	for i, role := range roles {
		approvals[i] = Approval{
			ChangeID:     changeID,
			RoleRequired: role,
			Decision:     DecisionPending,
			RequestedAt:  now,
			ExpiresAt:    now.Add(timeout),
		}
	}
	return approvals
}

// QuorumMet reports whether enough approvals have been granted: all
// approval rows for the change must be Approved, and none Rejected or
// Expired, for quorum to be met.
func QuorumMet(approvals []Approval) bool {
	if len(approvals) == 0 {
		return false
	}
	for _, a := range approvals {
		if a.Decision != DecisionApproved {
			return false
		}
	}
	return true
}

// AnyRejectedOrExpired reports whether any approval row was rejected or
// expired, which forces the change to Rejected regardless of the others.
func AnyRejectedOrExpired(approvals []Approval) bool {
	for _, a := range approvals {
		if a.Decision == DecisionRejected || a.Decision == DecisionExpired {
			return true
		}
	}
	return false
}

// ValidateDecision ensures an approval can still be decided: it must
// currently be pending.
func ValidateDecision(approval Approval) error {
	if approval.Decision != DecisionPending {
		return cierrors.ErrApprovalAlreadyDecided
	}
	return nil
}

// ValidateApproverRole ensures the deciding approver holds the role the
// approval row requires.
func ValidateApproverRole(approval Approval, approverRole Role) error {
	if approval.RoleRequired != "" && approval.RoleRequired != approverRole {
		return cierrors.NewApproverRoleMismatchError(approval.ID, string(approval.RoleRequired), string(approverRole))
	}
	return nil
}
