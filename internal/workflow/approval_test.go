package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsgrid/changeintel/internal/changetype"
	"github.com/opsgrid/changeintel/internal/cierrors"
	"github.com/opsgrid/changeintel/internal/risk"
)

func TestDeriveApprovalsBaseRoleOnly(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	approvals := DeriveApprovals("chg-1", risk.LevelLow, changetype.Port, changetype.ActionDisablePort, false, false, now, time.Hour)

	require.Len(t, approvals, 1)
	assert.Equal(t, RoleOperator, approvals[0].RoleRequired)
	assert.Equal(t, DecisionPending, approvals[0].Decision)
	assert.Equal(t, now.Add(time.Hour), approvals[0].ExpiresAt)
}

func TestDeriveApprovalsByRiskLevel(t *testing.T) {
	now := time.Now()
	cases := []struct {
		level risk.Level
		role  Role
	}{
		{risk.LevelLow, RoleOperator},
		{risk.LevelMedium, RoleChangeManager},
		{risk.LevelHigh, RoleNetworkLead},
		{risk.LevelCritical, RoleDirector},
	}
	for _, tc := range cases {
		approvals := DeriveApprovals("chg-1", tc.level, changetype.Port, changetype.ActionDisablePort, false, false, now, time.Hour)
		require.Len(t, approvals, 1)
		assert.Equal(t, tc.role, approvals[0].RoleRequired)
	}
}

func TestDeriveApprovalsAddsNetworkLeadForSwitch(t *testing.T) {
	now := time.Now()
	approvals := DeriveApprovals("chg-1", risk.LevelLow, changetype.Switch, changetype.ActionConfigChange, false, false, now, time.Hour)

	roles := rolesOf(approvals)
	assert.Contains(t, roles, RoleOperator)
	assert.Contains(t, roles, RoleNetworkLead)
	assert.Len(t, approvals, 2)
}

func TestDeriveApprovalsAddsSecurityLeadForFirewallAnyAny(t *testing.T) {
	now := time.Now()

	withAnyAny := DeriveApprovals("chg-1", risk.LevelLow, changetype.Firewall, changetype.ActionAddRule, true, false, now, time.Hour)
	assert.Contains(t, rolesOf(withAnyAny), RoleSecurityLead)

	withoutAnyAny := DeriveApprovals("chg-1", risk.LevelLow, changetype.Firewall, changetype.ActionAddRule, false, false, now, time.Hour)
	assert.NotContains(t, rolesOf(withoutAnyAny), RoleSecurityLead)
}

func TestDeriveApprovalsAddsDCManagerForDecommission(t *testing.T) {
	now := time.Now()
	approvals := DeriveApprovals("chg-1", risk.LevelLow, changetype.Rack, changetype.ActionDecommission, false, false, now, time.Hour)
	assert.Contains(t, rolesOf(approvals), RoleDCManager)
}

func TestDeriveApprovalsDedupesRoles(t *testing.T) {
	now := time.Now()
	// High risk already requires a network lead; a switch change must not
	// derive a second, duplicate network lead row.
	approvals := DeriveApprovals("chg-1", risk.LevelHigh, changetype.Switch, changetype.ActionConfigChange, false, false, now, time.Hour)
	require.Len(t, approvals, 1)
	assert.Equal(t, RoleNetworkLead, approvals[0].RoleRequired)
}

func TestDeriveApprovalsDoublesWhenRequired(t *testing.T) {
	now := time.Now()
	single := DeriveApprovals("chg-1", risk.LevelLow, changetype.Port, changetype.ActionDisablePort, false, false, now, time.Hour)
	doubled := DeriveApprovals("chg-1", risk.LevelLow, changetype.Port, changetype.ActionDisablePort, false, true, now, time.Hour)

	assert.Len(t, doubled, 2*len(single))
}

func rolesOf(approvals []Approval) []Role {
	roles := make([]Role, len(approvals))
	for i, a := range approvals {
		roles[i] = a.RoleRequired
	}
	return roles
}

func TestQuorumMetRequiresAllApproved(t *testing.T) {
	approved := []Approval{{Decision: DecisionApproved}, {Decision: DecisionApproved}}
	assert.True(t, QuorumMet(approved))

	mixed := []Approval{{Decision: DecisionApproved}, {Decision: DecisionPending}}
	assert.False(t, QuorumMet(mixed))

	assert.False(t, QuorumMet(nil))
}

func TestAnyRejectedOrExpired(t *testing.T) {
	assert.True(t, AnyRejectedOrExpired([]Approval{{Decision: DecisionRejected}}))
	assert.True(t, AnyRejectedOrExpired([]Approval{{Decision: DecisionExpired}}))
	assert.False(t, AnyRejectedOrExpired([]Approval{{Decision: DecisionApproved}, {Decision: DecisionPending}}))
}

func TestValidateDecisionRejectsAlreadyDecided(t *testing.T) {
	err := ValidateDecision(Approval{Decision: DecisionApproved})
	assert.ErrorIs(t, err, cierrors.ErrApprovalAlreadyDecided)
}

func TestValidateApproverRoleMismatch(t *testing.T) {
	approval := Approval{ID: "apr-1", RoleRequired: RoleNetworkLead}

	err := ValidateApproverRole(approval, RoleOperator)
	require.Error(t, err)
	assert.True(t, cierrors.IsApproverRoleMismatch(err))

	assert.NoError(t, ValidateApproverRole(approval, RoleNetworkLead))
}

func TestIsExpired(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	pendingPastDeadline := Approval{Decision: DecisionPending, ExpiresAt: now.Add(-time.Minute)}
	assert.True(t, pendingPastDeadline.IsExpired(now))

	decided := Approval{Decision: DecisionApproved, ExpiresAt: now.Add(-time.Minute)}
	assert.False(t, decided.IsExpired(now))

	noDeadline := Approval{Decision: DecisionPending}
	assert.False(t, noDeadline.IsExpired(now))
}
