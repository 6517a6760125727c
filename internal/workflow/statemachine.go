// Package workflow drives a change record through its lifecycle: Draft,
// Pending, Analyzing, Approved, Executing, Completed, with branches to
// Rejected and RolledBack. The controller's lifecycle management uses
// typed guard errors for invalid states and explicit Start/Stop of
// background reapers.
package workflow

import (
	"github.com/opsgrid/changeintel/internal/changestore"
	"github.com/opsgrid/changeintel/internal/cierrors"
)

// allowedTransitions enumerates every legal status transition. Anything
// not listed here is forbidden, which the controller enforces before ever
// touching the store.
var allowedTransitions = map[changestore.Status][]changestore.Status{
	changestore.StatusDraft:      {changestore.StatusPending},
	changestore.StatusPending:    {changestore.StatusAnalyzing, changestore.StatusRejected},
	changestore.StatusAnalyzing:  {changestore.StatusPending, changestore.StatusApproved, changestore.StatusRejected},
	changestore.StatusApproved:   {changestore.StatusExecuting, changestore.StatusRejected},
	changestore.StatusExecuting:  {changestore.StatusCompleted, changestore.StatusRolledBack},
	changestore.StatusCompleted:  {},
	changestore.StatusRejected:   {},
	changestore.StatusRolledBack: {},
}

// CanTransition reports whether moving from `from` to `to` is legal.
func CanTransition(from, to changestore.Status) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns a TransitionForbiddenError if the move is
// not legal, nil otherwise.
func ValidateTransition(from, to changestore.Status) error {
	if !CanTransition(from, to) {
		return cierrors.NewTransitionForbiddenError(string(from), string(to))
	}
	return nil
}
