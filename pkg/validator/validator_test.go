package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsgrid/changeintel/internal/cierrors"
)

func validRequest() ChangeRequest {
	return ChangeRequest{
		Title:         "Expand firewall rule scope",
		RequesterID:   "alice",
		ChangeType:    "firewall",
		Action:        "add_rule",
		Environment:   "prod",
		TargetNodeIDs: []string{"node-1"},
	}
}

func TestValidateChangeRequest_Valid(t *testing.T) {
	v := New()
	err := v.ValidateChangeRequest(validRequest())
	require.NoError(t, err)
}

func TestValidateChangeRequest_MissingTitle(t *testing.T) {
	v := New()
	req := validRequest()
	req.Title = ""

	err := v.ValidateChangeRequest(req)
	require.Error(t, err)

	var valErr *cierrors.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "title", valErr.Field)
}

func TestValidateChangeRequest_UnknownAction(t *testing.T) {
	v := New()
	req := validRequest()
	req.Action = "reboot_everything"

	err := v.ValidateChangeRequest(req)
	require.Error(t, err)

	var valErr *cierrors.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "action", valErr.Field)
}

func TestValidateChangeRequest_ActionNotValidForChangeType(t *testing.T) {
	v := New()
	req := validRequest()
	req.ChangeType = "port"
	req.Action = "config_change" // valid action, but not for a port change

	err := v.ValidateChangeRequest(req)
	require.Error(t, err)

	var valErr *cierrors.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "action", valErr.Field)
}

func TestValidateChangeRequest_NoTargetNodes(t *testing.T) {
	v := New()
	req := validRequest()
	req.TargetNodeIDs = nil

	err := v.ValidateChangeRequest(req)
	require.Error(t, err)
}

func TestValidateChangeRequest_RollbackPlanRequiredWhenFlagged(t *testing.T) {
	v := New()
	req := validRequest()
	req.HasRollbackPlan = true
	req.RollbackPlan = ""

	err := v.ValidateChangeRequest(req)
	require.Error(t, err)

	var valErr *cierrors.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "rollbackplan", valErr.Field)
}

func TestValidateChangeRequest_RollbackPlanProvided(t *testing.T) {
	v := New()
	req := validRequest()
	req.HasRollbackPlan = true
	req.RollbackPlan = "revert via saved config snapshot"

	err := v.ValidateChangeRequest(req)
	require.NoError(t, err)
}
