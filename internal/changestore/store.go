package changestore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/opsgrid/changeintel/internal/changetype"
	"github.com/opsgrid/changeintel/internal/cierrors"
	"github.com/opsgrid/changeintel/internal/database/postgres"
	"github.com/opsgrid/changeintel/internal/impact"
	"github.com/opsgrid/changeintel/internal/risk"
)

// Store is the change record persistence contract.
type Store interface {
	Create(ctx context.Context, change Change) (Change, error)
	Get(ctx context.Context, id string) (Change, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
	RecordAnalysis(ctx context.Context, id string, riskScore float64, riskLevel string, snapshot impact.Snapshot) error
	RecordRejection(ctx context.Context, id string, reason string) error
	ListByStatus(ctx context.Context, status Status) ([]Change, error)
	ListByRequester(ctx context.Context, requesterID string, limit int) ([]Change, error)
	ListByTargetNode(ctx context.Context, nodeID string, limit int) ([]Change, error)
}

// PostgresStore persists change records on the shared pooled connection
// wrapper.
type PostgresStore struct {
	conn postgres.DatabaseConnection
}

// NewPostgresStore wraps an already-connected pool as a changestore Store.
func NewPostgresStore(conn postgres.DatabaseConnection) *PostgresStore {
	return &PostgresStore{conn: conn}
}

// Create inserts a new change record in Draft status.
func (s *PostgresStore) Create(ctx context.Context, change Change) (Change, error) {
	if change.Status == "" {
		change.Status = StatusDraft
	}

	targets, err := json.Marshal(change.TargetNodeIDs)
	if err != nil {
		return Change{}, cierrors.NewValidationError("target_node_ids", err.Error())
	}

	row := s.conn.QueryRow(ctx, `
		INSERT INTO changes (
			id, title, description, requester_id, change_type, action,
			environment, target_node_ids, execution_plan, status, risk_score,
			risk_level, reject_reason, has_rollback_plan, rollback_plan,
			maintenance_from, maintenance_to, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17, now(), now())
		RETURNING created_at, updated_at
	`, change.ID, change.Title, change.Description, change.RequesterID,
		string(change.ChangeType), string(change.Action), change.Environment,
		targets, change.ExecutionPlan, string(change.Status), change.RiskScore,
		string(change.RiskLevel), change.RejectReason, change.HasRollbackPlan,
		change.RollbackPlan, nullableTime(change.MaintenanceFrom), nullableTime(change.MaintenanceTo))

	if err := row.Scan(&change.CreatedAt, &change.UpdatedAt); err != nil {
		return Change{}, err
	}
	return change, nil
}

const selectColumns = `
	id, title, description, requester_id, change_type, action, environment,
	target_node_ids, execution_plan, status, risk_score, risk_level,
	reject_reason, impact_snapshot, has_rollback_plan, rollback_plan,
	maintenance_from, maintenance_to, created_at, updated_at
`

// Get fetches a single change record.
func (s *PostgresStore) Get(ctx context.Context, id string) (Change, error) {
	row := s.conn.QueryRow(ctx, `SELECT `+selectColumns+` FROM changes WHERE id = $1`, id)
	change, err := scanChange(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Change{}, cierrors.NewNotFoundError("change", id)
		}
		return Change{}, err
	}
	return change, nil
}

// UpdateStatus moves a change record to a new status. Transition legality
// is the workflow controller's responsibility, not the store's.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	tag, err := s.conn.Exec(ctx, `UPDATE changes SET status = $2, updated_at = now() WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return cierrors.NewNotFoundError("change", id)
	}
	return nil
}

// RecordAnalysis persists the risk score, risk level, and the impact
// snapshot the score was computed from, all in one write. The snapshot is
// frozen here: nothing recomputes it later for the same change.
func (s *PostgresStore) RecordAnalysis(ctx context.Context, id string, riskScore float64, riskLevel string, snapshot impact.Snapshot) error {
	snapshotRaw, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}

	tag, err := s.conn.Exec(ctx, `
		UPDATE changes
		SET risk_score = $2, risk_level = $3, impact_snapshot = $4, updated_at = now()
		WHERE id = $1
	`, id, riskScore, riskLevel, snapshotRaw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return cierrors.NewNotFoundError("change", id)
	}
	return nil
}

// RecordRejection stores the reason a change was rejected, alongside the
// status transition (issued separately by the caller via UpdateStatus).
func (s *PostgresStore) RecordRejection(ctx context.Context, id string, reason string) error {
	tag, err := s.conn.Exec(ctx, `UPDATE changes SET reject_reason = $2, updated_at = now() WHERE id = $1`, id, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return cierrors.NewNotFoundError("change", id)
	}
	return nil
}

// ListByStatus returns all changes currently in the given status, oldest
// first. Used by the KPI rollup to list completed changes.
func (s *PostgresStore) ListByStatus(ctx context.Context, status Status) ([]Change, error) {
	rows, err := s.conn.Query(ctx, `SELECT `+selectColumns+` FROM changes WHERE status = $1 ORDER BY created_at`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChanges(rows)
}

// ListByRequester returns a requester's most recent changes, newest first,
// capped at limit. Used to derive a requester's historical approval rate.
func (s *PostgresStore) ListByRequester(ctx context.Context, requesterID string, limit int) ([]Change, error) {
	rows, err := s.conn.Query(ctx, `SELECT `+selectColumns+` FROM changes WHERE requester_id = $1 ORDER BY created_at DESC LIMIT $2`, requesterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChanges(rows)
}

// ListByTargetNode returns the most recent changes that named nodeID among
// their targets, newest first, capped at limit. Used to find whether a
// prior change against the same target ended in failure.
func (s *PostgresStore) ListByTargetNode(ctx context.Context, nodeID string, limit int) ([]Change, error) {
	rows, err := s.conn.Query(ctx, `SELECT `+selectColumns+` FROM changes WHERE target_node_ids ? $1 ORDER BY created_at DESC LIMIT $2`, nodeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChanges(rows)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanChange(row scannable) (Change, error) {
	var (
		change        Change
		changeType    string
		action        string
		status        string
		riskLevel     string
		targetsRaw    []byte
		snapshotRaw   []byte
		maintFrom     *time.Time
		maintTo       *time.Time
	)

	if err := row.Scan(&change.ID, &change.Title, &change.Description, &change.RequesterID,
		&changeType, &action, &change.Environment, &targetsRaw, &change.ExecutionPlan,
		&status, &change.RiskScore, &riskLevel, &change.RejectReason, &snapshotRaw,
		&change.HasRollbackPlan, &change.RollbackPlan, &maintFrom, &maintTo,
		&change.CreatedAt, &change.UpdatedAt); err != nil {
		return Change{}, err
	}

	change.ChangeType = changetype.Type(changeType)
	change.Action = changetype.Action(action)
	change.Status = Status(status)
	change.RiskLevel = risk.Level(riskLevel)

	if len(targetsRaw) > 0 {
		if err := json.Unmarshal(targetsRaw, &change.TargetNodeIDs); err != nil {
			return Change{}, err
		}
	}
	if len(snapshotRaw) > 0 {
		var snap impact.Snapshot
		if err := json.Unmarshal(snapshotRaw, &snap); err != nil {
			return Change{}, err
		}
		change.ImpactSnapshot = &snap
	}
	if maintFrom != nil {
		change.MaintenanceFrom = *maintFrom
	}
	if maintTo != nil {
		change.MaintenanceTo = *maintTo
	}

	return change, nil
}

func scanChanges(rows pgx.Rows) ([]Change, error) {
	var changes []Change
	for rows.Next() {
		change, err := scanChange(rows)
		if err != nil {
			return nil, err
		}
		changes = append(changes, change)
	}
	return changes, rows.Err()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
