// Package history derives the requester and target-node track record the
// risk engine needs from the change store, so the workflow controller
// never has to know how that track record is computed or stored.
package history

import (
	"context"
	"time"

	"github.com/opsgrid/changeintel/internal/changestore"
)

// incidentLookback bounds how far back a prior-incident check looks.
const incidentLookback = 90 * 24 * time.Hour

// lookbackLimit bounds how many past changes are scanned per lookup. A
// requester or target node with heavy change volume still only costs a
// bounded query.
const lookbackLimit = 50

// failedStatuses are the outcomes that count as a failure when judging a
// requester's approval rate or a target node's prior change history.
var failedStatuses = map[changestore.Status]bool{
	changestore.StatusRejected:   true,
	changestore.StatusRolledBack: true,
}

// succeededStatuses are terminal outcomes that count toward a requester's
// approval rate as a success. In-flight changes (draft, pending,
// analyzing, executing) are excluded from the rate entirely:
// they haven't reached an outcome yet.
var succeededStatuses = map[changestore.Status]bool{
	changestore.StatusApproved:  true,
	changestore.StatusCompleted: true,
}

// ChangeHistoryProvider implements workflow.HistoryProvider on top of a
// changestore.Store, requiring no storage of its own.
type ChangeHistoryProvider struct {
	store changestore.Store
}

// New builds a ChangeHistoryProvider backed by store.
func New(store changestore.Store) *ChangeHistoryProvider {
	return &ChangeHistoryProvider{store: store}
}

// RequesterApprovalRate returns the fraction of requesterID's terminal
// changes that were approved or completed, counting only the terminal
// changes among the requester's last lookbackLimit changes. A requester
// with no terminal history yet returns a rate of 1.0: unproven, not
// distrusted.
func (p *ChangeHistoryProvider) RequesterApprovalRate(ctx context.Context, requesterID string) (float64, error) {
	changes, err := p.store.ListByRequester(ctx, requesterID, lookbackLimit)
	if err != nil {
		return 0, err
	}

	var succeeded, terminal int
	for _, c := range changes {
		switch {
		case succeededStatuses[c.Status]:
			succeeded++
			terminal++
		case failedStatuses[c.Status]:
			terminal++
		}
	}

	if terminal == 0 {
		return 1.0, nil
	}
	return float64(succeeded) / float64(terminal), nil
}

// PriorIncidentWithin90Days reports whether the most recent prior change
// touching any of targetNodeIDs ended in rejection or rollback within the
// last 90 days of now.
func (p *ChangeHistoryProvider) PriorIncidentWithin90Days(ctx context.Context, targetNodeIDs []string, now time.Time) (bool, error) {
	cutoff := now.Add(-incidentLookback)
	for _, nodeID := range targetNodeIDs {
		changes, err := p.store.ListByTargetNode(ctx, nodeID, 1)
		if err != nil {
			return false, err
		}
		if len(changes) > 0 && failedStatuses[changes[0].Status] && changes[0].UpdatedAt.After(cutoff) {
			return true, nil
		}
	}
	return false, nil
}
