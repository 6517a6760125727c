// Package kpi rolls up the change, approval, and audit stores into the
// health metrics operators watch per change-review cycle: volume, how much
// sign-off approvals are actually adding, and whether risk scoring is
// catching the changes that go on to cause incidents.
package kpi

import (
	"context"
	"time"

	"github.com/opsgrid/changeintel/internal/audit"
	"github.com/opsgrid/changeintel/internal/changestore"
	"github.com/opsgrid/changeintel/internal/graph"
	"github.com/opsgrid/changeintel/internal/workflow"
)

// incidentWindow is how long after a change completes an incident_reported
// audit entry still counts as attributable to that change.
const incidentWindow = 7 * 24 * time.Hour

// autoApprovalThreshold is the risk score at or below which a change is
// eligible to skip human sign-off. Mirrors the scoring tiers a risk score
// is reported against: 0-30 is the auto-approval band.
const autoApprovalThreshold = 30.0

// Report is a single point-in-time rollup of the KPIs operators watch.
type Report struct {
	GeneratedAt            time.Time
	Window                 time.Duration
	TotalChanges           int
	AutoApprovedPct        float64
	AvgValidationMinutes   float64
	IncidentsPostChangePct float64
	ScoringPrecisionPct    float64
	CoreChangesDetectedPct float64
}

// Aggregator computes a Report from the change, approval, audit, and graph
// stores. It holds no state of its own: every Compute call re-reads the
// stores, the way a periodic roll-up job would rather than a streaming
// counter that could drift from the stores it summarizes.
type Aggregator struct {
	changes    changestore.Store
	approvals  workflow.ApprovalStore
	journal    audit.Journal
	graphStore graph.Store
}

// New builds an Aggregator over the given stores.
func New(changes changestore.Store, approvals workflow.ApprovalStore, journal audit.Journal, graphStore graph.Store) *Aggregator {
	return &Aggregator{
		changes:    changes,
		approvals:  approvals,
		journal:    journal,
		graphStore: graphStore,
	}
}

// Compute rolls up every metric in Report over the changes completed within
// window of now. A window of zero considers every completed change on
// record.
func (a *Aggregator) Compute(ctx context.Context, now time.Time, window time.Duration) (Report, error) {
	completed, err := a.changes.ListByStatus(ctx, changestore.StatusCompleted)
	if err != nil {
		return Report{}, err
	}

	if window > 0 {
		cutoff := now.Add(-window)
		windowed := completed[:0:0]
		for _, c := range completed {
			if !c.UpdatedAt.Before(cutoff) {
				windowed = append(windowed, c)
			}
		}
		completed = windowed
	}

	report := Report{
		GeneratedAt:  now,
		Window:       window,
		TotalChanges: len(completed),
	}
	if len(completed) == 0 {
		return report, nil
	}

	var (
		autoApproved    int
		validationTotal time.Duration
		validationCount int
		withIncident    int
		coreTouched     int
	)

	for _, c := range completed {
		approvals, err := a.approvals.ListForChange(ctx, c.ID)
		if err != nil {
			return Report{}, err
		}
		if isAutoApproved(c, approvals) {
			autoApproved++
		}

		if firstApproved, ok := firstApprovalTime(approvals); ok {
			validationTotal += firstApproved.Sub(c.CreatedAt)
			validationCount++
		}

		entries, err := a.journal.ListForChange(ctx, c.ID)
		if err != nil {
			return Report{}, err
		}
		if hasIncidentWithin(entries, incidentWindow) {
			withIncident++
		}

		touchesCore, err := a.touchesCoreDevice(ctx, c.TargetNodeIDs)
		if err != nil {
			return Report{}, err
		}
		if touchesCore {
			coreTouched++
		}
	}

	total := float64(len(completed))
	report.AutoApprovedPct = float64(autoApproved) / total
	report.IncidentsPostChangePct = float64(withIncident) / total
	report.ScoringPrecisionPct = float64(len(completed)-withIncident) / total
	report.CoreChangesDetectedPct = float64(coreTouched) / total
	if validationCount > 0 {
		report.AvgValidationMinutes = validationTotal.Minutes() / float64(validationCount)
	}

	return report, nil
}

// isAutoApproved reports whether a completed change skipped human sign-off:
// its risk score fell within the auto-approval band and no approval row
// was ever created for it.
func isAutoApproved(c changestore.Change, approvals []workflow.Approval) bool {
	return len(approvals) == 0 && c.RiskScore <= autoApprovalThreshold
}

// firstApprovalTime returns the earliest DecidedAt among approved rows, the
// change's validation completion time.
func firstApprovalTime(approvals []workflow.Approval) (time.Time, bool) {
	var earliest time.Time
	found := false
	for _, appr := range approvals {
		if appr.Decision != workflow.DecisionApproved || appr.DecidedAt.IsZero() {
			continue
		}
		if !found || appr.DecidedAt.Before(earliest) {
			earliest = appr.DecidedAt
			found = true
		}
	}
	return earliest, found
}

// hasIncidentWithin reports whether entries contains an incident_reported
// entry whose CreatedAt falls within window of the status_transition entry
// that moved the change to Completed. If no such transition entry is
// present, every incident_reported entry counts.
func hasIncidentWithin(entries []audit.Entry, window time.Duration) bool {
	completedAt, ok := completionTime(entries)
	for _, e := range entries {
		if e.Kind != audit.EventIncidentReported {
			continue
		}
		if !ok || !e.CreatedAt.After(completedAt.Add(window)) {
			return true
		}
	}
	return false
}

// completionTime returns the timestamp of the entry that transitioned the
// change to Completed, read out of its Detail payload.
func completionTime(entries []audit.Entry) (time.Time, bool) {
	for _, e := range entries {
		if e.Kind != audit.EventStatusTransition {
			continue
		}
		to, _ := e.Detail["to"].(string)
		if changestore.Status(to) == changestore.StatusCompleted {
			return e.CreatedAt, true
		}
	}
	return time.Time{}, false
}

// touchesCoreDevice reports whether any of targetNodeIDs is marked is_core
// in its graph properties, the same Properties-lookup idiom the workflow
// controller uses for its production-datacenter check.
func (a *Aggregator) touchesCoreDevice(ctx context.Context, targetNodeIDs []string) (bool, error) {
	if a.graphStore == nil {
		return false, nil
	}
	for _, id := range targetNodeIDs {
		node, err := a.graphStore.GetNode(ctx, id)
		if err != nil {
			continue
		}
		if core, _ := node.Properties["is_core"].(bool); core {
			return true, nil
		}
	}
	return false, nil
}
