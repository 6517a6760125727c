package workflow

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/opsgrid/changeintel/internal/cierrors"
	"github.com/opsgrid/changeintel/internal/database/postgres"
)

// PostgresApprovalStore persists approval rows on the shared pooled
// connection wrapper.
type PostgresApprovalStore struct {
	conn postgres.DatabaseConnection
}

// NewPostgresApprovalStore wraps an already-connected pool as an
// ApprovalStore.
func NewPostgresApprovalStore(conn postgres.DatabaseConnection) *PostgresApprovalStore {
	return &PostgresApprovalStore{conn: conn}
}

// Create inserts a new approval row.
func (s *PostgresApprovalStore) Create(ctx context.Context, approval Approval) (Approval, error) {
	if approval.Decision == "" {
		approval.Decision = DecisionPending
	}

	row := s.conn.QueryRow(ctx, `
		INSERT INTO approvals (id, change_id, role_required, approver_id, decision, reason, requested_at, expires_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, approval.ChangeID, string(approval.RoleRequired), approval.ApproverID, string(approval.Decision),
		approval.Reason, approval.RequestedAt, approval.ExpiresAt)

	if err := row.Scan(&approval.ID); err != nil {
		return Approval{}, err
	}
	return approval, nil
}

// Get fetches a single approval row.
func (s *PostgresApprovalStore) Get(ctx context.Context, id string) (Approval, error) {
	var (
		approval  Approval
		decision  string
		decidedAt *time.Time
	)

	var roleRequired string
	row := s.conn.QueryRow(ctx, `
		SELECT id, change_id, role_required, approver_id, decision, reason, requested_at, decided_at, expires_at
		FROM approvals WHERE id = $1
	`, id)

	if err := row.Scan(&approval.ID, &approval.ChangeID, &roleRequired, &approval.ApproverID, &decision,
		&approval.Reason, &approval.RequestedAt, &decidedAt, &approval.ExpiresAt); err != nil {
		if err == pgx.ErrNoRows {
			return Approval{}, cierrors.NewNotFoundError("approval", id)
		}
		return Approval{}, err
	}

	approval.RoleRequired = Role(roleRequired)
	approval.Decision = ApprovalDecision(decision)
	if decidedAt != nil {
		approval.DecidedAt = *decidedAt
	}
	return approval, nil
}

// Decide records an approver's decision on a pending approval row. The
// WHERE clause only matches rows still pending, so two concurrent
// decisions on the same row race safely: the loser's update affects zero
// rows and surfaces ErrApprovalAlreadyDecided.
func (s *PostgresApprovalStore) Decide(ctx context.Context, id string, decision ApprovalDecision, approverID, reason string) error {
	tag, err := s.conn.Exec(ctx, `
		UPDATE approvals
		SET decision = $2, approver_id = $3, reason = $4, decided_at = now()
		WHERE id = $1 AND decision = 'pending'
	`, id, string(decision), approverID, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return cierrors.ErrApprovalAlreadyDecided
	}
	return nil
}

// ListForChange returns every approval row for a change.
func (s *PostgresApprovalStore) ListForChange(ctx context.Context, changeID string) ([]Approval, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, change_id, role_required, approver_id, decision, reason, requested_at, decided_at, expires_at
		FROM approvals WHERE change_id = $1 ORDER BY requested_at
	`, changeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanApprovals(rows)
}

// ListPendingExpiredBefore returns pending approvals whose deadline has
// passed, used by the expiration reaper.
func (s *PostgresApprovalStore) ListPendingExpiredBefore(ctx context.Context, at time.Time) ([]Approval, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, change_id, role_required, approver_id, decision, reason, requested_at, decided_at, expires_at
		FROM approvals WHERE decision = 'pending' AND expires_at < $1
	`, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanApprovals(rows)
}

func scanApprovals(rows pgx.Rows) ([]Approval, error) {
	var approvals []Approval
	for rows.Next() {
		var (
			approval     Approval
			roleRequired string
			decision     string
			decidedAt    *time.Time
		)
		if err := rows.Scan(&approval.ID, &approval.ChangeID, &roleRequired, &approval.ApproverID, &decision,
			&approval.Reason, &approval.RequestedAt, &decidedAt, &approval.ExpiresAt); err != nil {
			return nil, err
		}
		approval.RoleRequired = Role(roleRequired)
		approval.Decision = ApprovalDecision(decision)
		if decidedAt != nil {
			approval.DecidedAt = *decidedAt
		}
		approvals = append(approvals, approval)
	}
	return approvals, rows.Err()
}
