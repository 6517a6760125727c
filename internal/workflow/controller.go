package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opsgrid/changeintel/internal/audit"
	"github.com/opsgrid/changeintel/internal/changestore"
	"github.com/opsgrid/changeintel/internal/cierrors"
	"github.com/opsgrid/changeintel/internal/graph"
	"github.com/opsgrid/changeintel/internal/impact"
	"github.com/opsgrid/changeintel/internal/lock"
	"github.com/opsgrid/changeintel/internal/policy"
	"github.com/opsgrid/changeintel/internal/risk"
)

// HistoryProvider supplies the historical signals the risk engine needs but
// cannot compute itself: prior incidents on a target within the lookback
// window and a requester's past approval rate. Kept as an interface so the
// controller never depends on how that history is stored
// (history.ChangeHistoryProvider derives it from the change store).
type HistoryProvider interface {
	RequesterApprovalRate(ctx context.Context, requesterID string) (float64, error)
	PriorIncidentWithin90Days(ctx context.Context, targetNodeIDs []string, now time.Time) (bool, error)
}

// Clock abstracts wall-clock reads so off-hours detection is testable.
type Clock interface {
	Now() time.Time
}

// Metrics is the subset of Prometheus instruments the controller records
// to. A nil Metrics is replaced with a no-op implementation.
type Metrics interface {
	ObserveTransition(from, to string)
	ObserveApprovalDecision(decision string)
	ObserveScore(total float64, factorNames []string)
	ObservePolicyBlocked()
}

type noopMetrics struct{}

func (noopMetrics) ObserveTransition(from, to string)                {}
func (noopMetrics) ObserveApprovalDecision(decision string)          {}
func (noopMetrics) ObserveScore(total float64, factorNames []string) {}
func (noopMetrics) ObservePolicyBlocked()                            {}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Config controls the controller's timing and threshold behavior.
type Config struct {
	ApprovalTimeout       time.Duration
	ApprovalRateThreshold float64
}

// DefaultConfig returns sane controller defaults.
func DefaultConfig() Config {
	return Config{
		ApprovalTimeout:       48 * time.Hour,
		ApprovalRateThreshold: 0.7,
	}
}

// Controller orchestrates a change record through impact analysis, risk
// scoring, policy evaluation, and the approval state machine. Its lifecycle
// shape uses explicit guard checks before every mutation, a background
// reaper with Start/Stop, and structured logging around every phase.
type Controller struct {
	changes    changestore.Store
	approvals  ApprovalStore
	analyzer   *impact.Analyzer
	risk       *risk.Engine
	policy     *policy.Engine
	journal    audit.Journal
	graphStore graph.Store
	locks      *lock.Manager
	history    HistoryProvider
	clock      Clock
	metrics    Metrics
	logger     *slog.Logger
	cfg        Config

	stopReap chan struct{}
}

// New creates a Controller wired to its collaborating packages. metrics may
// be nil (a no-op recorder is used).
func New(
	changes changestore.Store,
	approvals ApprovalStore,
	analyzer *impact.Analyzer,
	riskEngine *risk.Engine,
	policyEngine *policy.Engine,
	journal audit.Journal,
	graphStore graph.Store,
	locks *lock.Manager,
	history HistoryProvider,
	metrics Metrics,
	logger *slog.Logger,
	cfg Config,
) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if history == nil {
		history = noopHistory{}
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &Controller{
		changes:    changes,
		approvals:  approvals,
		analyzer:   analyzer,
		risk:       riskEngine,
		policy:     policyEngine,
		journal:    journal,
		graphStore: graphStore,
		locks:      locks,
		history:    history,
		clock:      systemClock{},
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
	}
}

// Submit moves a change out of Draft and into the analysis queue.
func (c *Controller) Submit(ctx context.Context, changeID string) error {
	return c.withChangeLock(ctx, changeID, func() error {
		change, err := c.changes.Get(ctx, changeID)
		if err != nil {
			return err
		}
		if err := ValidateTransition(change.Status, changestore.StatusPending); err != nil {
			return err
		}

		if err := c.changes.UpdateStatus(ctx, changeID, changestore.StatusPending); err != nil {
			return err
		}
		c.appendEvent(ctx, changeID, audit.EventChangeSubmitted, "", map[string]any{
			"from": string(change.Status),
			"to":   string(changestore.StatusPending),
		})
		return nil
	})
}

// Analyze runs impact analysis, risk scoring, and policy evaluation for a
// pending change, then either rejects it outright (policy block) or derives
// the approval rows it needs before it can proceed.
func (c *Controller) Analyze(ctx context.Context, changeID string) error {
	return c.withChangeLock(ctx, changeID, func() error {
		change, err := c.changes.Get(ctx, changeID)
		if err != nil {
			return err
		}
		if err := ValidateTransition(change.Status, changestore.StatusAnalyzing); err != nil {
			return err
		}
		if err := c.changes.UpdateStatus(ctx, changeID, changestore.StatusAnalyzing); err != nil {
			return err
		}
		if err := c.recordTransition(ctx, changeID, change.Status, changestore.StatusAnalyzing); err != nil {
			return err
		}

		snap, err := c.analyzer.Analyze(ctx, changeID, change.Action, change.TargetNodeIDs)
		if err != nil {
			return fmt.Errorf("computing impact: %w", err)
		}
		c.appendEvent(ctx, changeID, audit.EventImpactComputed, "", map[string]any{
			"affected_count": snap.AffectedCount(),
			"action":         string(change.Action),
		})

		now := c.clock.Now()
		priorIncident, err := c.history.PriorIncidentWithin90Days(ctx, change.TargetNodeIDs, now)
		if err != nil {
			c.logger.Warn("history lookup failed, assuming no prior incident", "change_id", changeID, "error", err)
		}
		anyAnyInvolved := snap.InvolvesAnyAnyRule()

		score := c.risk.Score(risk.Input{
			ImpactSnapshot:            snap,
			Environment:               change.Environment,
			Action:                    change.Action,
			HasRollbackPlan:           change.HasRollbackPlan,
			OutsideMaintenanceWindow:  !change.InMaintenanceWindow(now),
			PriorIncidentWithin90Days: priorIncident,
		})
		if err := c.changes.RecordAnalysis(ctx, changeID, score.Total, string(score.Level), snap); err != nil {
			return fmt.Errorf("recording risk score: %w", err)
		}
		c.appendEvent(ctx, changeID, audit.EventRiskScored, "", map[string]any{
			"score":   score.Total,
			"level":   string(score.Level),
			"factors": score.Factors,
		})
		factorNames := make([]string, len(score.Factors))
		for i, f := range score.Factors {
			factorNames[i] = f.Name
		}
		c.metrics.ObserveScore(score.Total, factorNames)

		evalCtx := policy.EvalContext{
			Environment:    change.Environment,
			ChangeType:     change.ChangeType,
			At:             now,
			AnyAnyInvolved: anyAnyInvolved,
		}

		decision, err := c.policy.Evaluate(ctx, evalCtx)
		if err != nil {
			return fmt.Errorf("evaluating policy: %w", err)
		}
		c.appendEvent(ctx, changeID, audit.EventPolicyEvaluated, "", map[string]any{
			"matched_count": len(decision.AllMatched),
			"blocked":       decision.Blocked(),
		})

		change.Status = changestore.StatusAnalyzing
		if decision.Blocked() {
			if err := ValidateTransition(change.Status, changestore.StatusRejected); err != nil {
				return err
			}
			blocking := decision.BlockingVerdict()
			if err := c.changes.RecordRejection(ctx, changeID, blocking.Message); err != nil {
				return err
			}
			if err := c.changes.UpdateStatus(ctx, changeID, changestore.StatusRejected); err != nil {
				return err
			}
			if err := c.recordTransition(ctx, changeID, change.Status, changestore.StatusRejected); err != nil {
				return err
			}
			c.metrics.ObservePolicyBlocked()
			return cierrors.NewPolicyBlockedError(blocking.RuleID, blocking.Message)
		}

		requireDouble := decision.RequiredApprovals(1) >= 2
		derived := DeriveApprovals(changeID, score.Level, change.ChangeType, change.Action, anyAnyInvolved, requireDouble, now, c.cfg.ApprovalTimeout)
		for _, approval := range derived {
			created, err := c.approvals.Create(ctx, approval)
			if err != nil {
				return fmt.Errorf("deriving approval: %w", err)
			}
			c.appendEvent(ctx, changeID, audit.EventApprovalRequested, "", map[string]any{
				"approval_id":   created.ID,
				"role_required": string(created.RoleRequired),
				"expires_at":    created.ExpiresAt,
			})
		}

		return nil
	})
}

// Decide records an approver's decision and, if the change's approvals now
// have quorum (or a rejection/expiry forces the issue), advances the change
// record accordingly. approverRole must match the approval's RoleRequired.
func (c *Controller) Decide(ctx context.Context, approvalID string, decision ApprovalDecision, approverID string, approverRole Role, reason string) error {
	approval, err := c.approvals.Get(ctx, approvalID)
	if err != nil {
		return err
	}

	return c.withChangeLock(ctx, approval.ChangeID, func() error {
		return c.withApprovalLock(ctx, approvalID, func() error {
			current, err := c.approvals.Get(ctx, approvalID)
			if err != nil {
				return err
			}
			if err := ValidateDecision(current); err != nil {
				return err
			}
			if err := ValidateApproverRole(current, approverRole); err != nil {
				return err
			}

			if err := c.approvals.Decide(ctx, approvalID, decision, approverID, reason); err != nil {
				return err
			}
			c.appendEvent(ctx, current.ChangeID, audit.EventApprovalDecided, approverID, map[string]any{
				"approval_id": approvalID,
				"decision":    string(decision),
				"reason":      reason,
			})
			c.metrics.ObserveApprovalDecision(string(decision))

			return c.reconcileApprovals(ctx, current.ChangeID)
		})
	})
}

// reconcileApprovals checks a change's approval rows and advances its
// status when quorum has been met or a rejection/expiry forces the outcome.
// Callers must already hold the change's lock.
func (c *Controller) reconcileApprovals(ctx context.Context, changeID string) error {
	approvals, err := c.approvals.ListForChange(ctx, changeID)
	if err != nil {
		return err
	}

	change, err := c.changes.Get(ctx, changeID)
	if err != nil {
		return err
	}
	if change.Status != changestore.StatusAnalyzing {
		return nil
	}

	switch {
	case AnyRejectedOrExpired(approvals):
		if err := c.changes.UpdateStatus(ctx, changeID, changestore.StatusRejected); err != nil {
			return err
		}
		return c.recordTransition(ctx, changeID, change.Status, changestore.StatusRejected)
	case QuorumMet(approvals):
		if err := c.changes.UpdateStatus(ctx, changeID, changestore.StatusApproved); err != nil {
			return err
		}
		return c.recordTransition(ctx, changeID, change.Status, changestore.StatusApproved)
	default:
		return nil
	}
}

// Execute moves an approved change into Executing, after checking its
// declared maintenance window. Applying the actual topology mutation is the
// sync coordinator's job; Execute only guards and records the transition.
func (c *Controller) Execute(ctx context.Context, changeID string) error {
	return c.withChangeLock(ctx, changeID, func() error {
		change, err := c.changes.Get(ctx, changeID)
		if err != nil {
			return err
		}
		if err := ValidateTransition(change.Status, changestore.StatusExecuting); err != nil {
			return err
		}
		if !change.InMaintenanceWindow(c.clock.Now()) {
			return cierrors.NewMaintenanceWindowViolationError(changeID, "execution attempted outside declared maintenance window")
		}

		if err := c.changes.UpdateStatus(ctx, changeID, changestore.StatusExecuting); err != nil {
			return err
		}
		return c.recordTransition(ctx, changeID, change.Status, changestore.StatusExecuting)
	})
}

// Complete marks an executing change as finished.
func (c *Controller) Complete(ctx context.Context, changeID string) error {
	return c.withChangeLock(ctx, changeID, func() error {
		change, err := c.changes.Get(ctx, changeID)
		if err != nil {
			return err
		}
		if err := ValidateTransition(change.Status, changestore.StatusCompleted); err != nil {
			return err
		}
		if err := c.changes.UpdateStatus(ctx, changeID, changestore.StatusCompleted); err != nil {
			return err
		}
		return c.recordTransition(ctx, changeID, change.Status, changestore.StatusCompleted)
	})
}

// RollBack marks an executing change as rolled back, typically after a
// connector sync reports a failure the operator cannot forward-fix.
func (c *Controller) RollBack(ctx context.Context, changeID, reason string) error {
	return c.withChangeLock(ctx, changeID, func() error {
		change, err := c.changes.Get(ctx, changeID)
		if err != nil {
			return err
		}
		if err := ValidateTransition(change.Status, changestore.StatusRolledBack); err != nil {
			return err
		}
		if err := c.changes.UpdateStatus(ctx, changeID, changestore.StatusRolledBack); err != nil {
			return err
		}
		c.appendEvent(ctx, changeID, audit.EventSyncFailed, "", map[string]any{"reason": reason})
		return c.recordTransition(ctx, changeID, change.Status, changestore.StatusRolledBack)
	})
}

// Reject manually rejects a change in Pending, Analyzing or Approved.
func (c *Controller) Reject(ctx context.Context, changeID, actorID, reason string) error {
	return c.withChangeLock(ctx, changeID, func() error {
		change, err := c.changes.Get(ctx, changeID)
		if err != nil {
			return err
		}
		if err := ValidateTransition(change.Status, changestore.StatusRejected); err != nil {
			return err
		}
		if err := c.changes.UpdateStatus(ctx, changeID, changestore.StatusRejected); err != nil {
			return err
		}
		c.appendEvent(ctx, changeID, audit.EventStatusTransition, actorID, map[string]any{"reason": reason})
		return c.recordTransition(ctx, changeID, change.Status, changestore.StatusRejected)
	})
}

// StartApprovalReaper runs ReapExpiredApprovals on a fixed interval until
// ctx is cancelled or Stop is called.
func (c *Controller) StartApprovalReaper(ctx context.Context, interval time.Duration) {
	c.stopReap = make(chan struct{})
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := c.ReapExpiredApprovals(ctx); err != nil {
					c.logger.Error("approval reaper pass failed", "error", err)
				}
			case <-c.stopReap:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts a running approval reaper.
func (c *Controller) Stop() {
	if c.stopReap != nil {
		close(c.stopReap)
		c.stopReap = nil
	}
}

// ReapExpiredApprovals marks any pending approval past its deadline as
// expired and reconciles the owning change's status.
func (c *Controller) ReapExpiredApprovals(ctx context.Context) error {
	expired, err := c.approvals.ListPendingExpiredBefore(ctx, c.clock.Now())
	if err != nil {
		return fmt.Errorf("listing expired approvals: %w", err)
	}

	seen := make(map[string]bool, len(expired))
	for _, approval := range expired {
		err := c.withApprovalLock(ctx, approval.ID, func() error {
			current, err := c.approvals.Get(ctx, approval.ID)
			if err != nil {
				return err
			}
			if ValidateDecision(current) != nil {
				return nil // already decided by the time we got the lock
			}
			if err := c.approvals.Decide(ctx, approval.ID, DecisionExpired, "", "approval window expired"); err != nil {
				return err
			}
			c.appendEvent(ctx, approval.ChangeID, audit.EventApprovalDecided, "", map[string]any{
				"approval_id": approval.ID,
				"decision":    string(DecisionExpired),
			})
			return nil
		})
		if err != nil {
			c.logger.Error("failed to expire approval", "approval_id", approval.ID, "error", err)
			continue
		}
		seen[approval.ChangeID] = true
	}

	for changeID := range seen {
		err := c.withChangeLock(ctx, changeID, func() error {
			return c.reconcileApprovals(ctx, changeID)
		})
		if err != nil {
			c.logger.Error("failed to reconcile change after approval expiry", "change_id", changeID, "error", err)
		}
	}

	return nil
}

func (c *Controller) recordTransition(ctx context.Context, changeID string, from, to changestore.Status) error {
	c.appendEvent(ctx, changeID, audit.EventStatusTransition, "", map[string]any{
		"from": string(from),
		"to":   string(to),
	})
	c.metrics.ObserveTransition(string(from), string(to))
	return nil
}

func (c *Controller) appendEvent(ctx context.Context, changeID string, kind audit.EventKind, actorID string, detail map[string]any) {
	_, err := c.journal.Append(ctx, audit.Entry{
		ChangeID: changeID,
		Kind:     kind,
		ActorID:  actorID,
		Detail:   detail,
	})
	if err != nil {
		c.logger.Error("failed to append audit entry", "change_id", changeID, "kind", kind, "error", err)
	}
}

func (c *Controller) withChangeLock(ctx context.Context, changeID string, fn func() error) error {
	if c.locks == nil {
		return fn()
	}
	key := lock.ChangeLockKey(changeID)
	if _, err := c.locks.AcquireLock(ctx, key); err != nil {
		return fmt.Errorf("acquiring change lock: %w", err)
	}
	defer func() {
		if err := c.locks.ReleaseLock(ctx, key); err != nil {
			c.logger.Error("failed to release change lock", "change_id", changeID, "error", err)
		}
	}()
	return fn()
}

func (c *Controller) withApprovalLock(ctx context.Context, approvalID string, fn func() error) error {
	if c.locks == nil {
		return fn()
	}
	key := lock.ApprovalLockKey(approvalID)
	if _, err := c.locks.AcquireLock(ctx, key); err != nil {
		return fmt.Errorf("acquiring approval lock: %w", err)
	}
	defer func() {
		if err := c.locks.ReleaseLock(ctx, key); err != nil {
			c.logger.Error("failed to release approval lock", "approval_id", approvalID, "error", err)
		}
	}()
	return fn()
}

type noopHistory struct{}

func (noopHistory) RequesterApprovalRate(ctx context.Context, requesterID string) (float64, error) {
	return 1.0, nil
}

func (noopHistory) PriorIncidentWithin90Days(ctx context.Context, targetNodeIDs []string, now time.Time) (bool, error) {
	return false, nil
}
