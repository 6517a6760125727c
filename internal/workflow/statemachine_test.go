package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opsgrid/changeintel/internal/changestore"
	"github.com/opsgrid/changeintel/internal/cierrors"
)

func TestCanTransitionAllowsDefinedEdges(t *testing.T) {
	assert.True(t, CanTransition(changestore.StatusDraft, changestore.StatusPending))
	assert.True(t, CanTransition(changestore.StatusAnalyzing, changestore.StatusApproved))
	assert.True(t, CanTransition(changestore.StatusExecuting, changestore.StatusRolledBack))
}

func TestCanTransitionRejectsUndefinedEdges(t *testing.T) {
	assert.False(t, CanTransition(changestore.StatusDraft, changestore.StatusApproved))
	assert.False(t, CanTransition(changestore.StatusCompleted, changestore.StatusExecuting))
	assert.False(t, CanTransition(changestore.StatusRejected, changestore.StatusPending))
}

func TestValidateTransitionReturnsTypedError(t *testing.T) {
	err := ValidateTransition(changestore.StatusDraft, changestore.StatusApproved)

	var transitionErr *cierrors.TransitionForbiddenError
	assert.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, string(changestore.StatusDraft), transitionErr.From)
	assert.Equal(t, string(changestore.StatusApproved), transitionErr.To)
}
