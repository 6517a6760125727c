// Package audit provides an append-only journal of every state transition
// and decision made against a change record. The store is insert-only: no
// update or delete method is exposed, and ordering comes from a database
// sequence rather than a client-supplied timestamp.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/opsgrid/changeintel/internal/database/postgres"
)

// EventKind names the category of an audit entry.
type EventKind string

const (
	EventChangeSubmitted   EventKind = "change_submitted"
	EventImpactComputed    EventKind = "impact_computed"
	EventRiskScored        EventKind = "risk_scored"
	EventPolicyEvaluated   EventKind = "policy_evaluated"
	EventApprovalRequested EventKind = "approval_requested"
	EventApprovalDecided   EventKind = "approval_decided"
	EventStatusTransition  EventKind = "status_transition"
	EventSyncApplied       EventKind = "sync_applied"
	EventSyncFailed        EventKind = "sync_failed"
	EventIncidentReported  EventKind = "incident_reported"
)

// Entry is one immutable audit journal row.
type Entry struct {
	ID        int64 // monotonic, assigned by a database sequence
	ChangeID  string
	Kind      EventKind
	ActorID   string // empty for system-originated entries
	Detail    map[string]any
	CreatedAt time.Time
}

// Journal is the append-only audit store contract.
type Journal interface {
	Append(ctx context.Context, entry Entry) (Entry, error)
	ListForChange(ctx context.Context, changeID string) ([]Entry, error)
}

// PostgresJournal persists audit entries on the shared pooled connection
// wrapper.
type PostgresJournal struct {
	conn postgres.DatabaseConnection
}

// NewPostgresJournal wraps an already-connected pool as a Journal.
func NewPostgresJournal(conn postgres.DatabaseConnection) *PostgresJournal {
	return &PostgresJournal{conn: conn}
}

// Append inserts a new audit entry. The id is assigned by the
// audit_entries_id_seq sequence, guaranteeing strictly increasing ids
// across concurrent writers without a round trip to read-then-insert.
func (j *PostgresJournal) Append(ctx context.Context, entry Entry) (Entry, error) {
	detail, err := json.Marshal(entry.Detail)
	if err != nil {
		return Entry{}, err
	}

	row := j.conn.QueryRow(ctx, `
		INSERT INTO audit_entries (change_id, kind, actor_id, detail, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id, created_at
	`, entry.ChangeID, string(entry.Kind), entry.ActorID, detail)

	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// ListForChange returns every audit entry for a change, in id order (which
// is also creation order, since ids are monotonic and insert-only).
func (j *PostgresJournal) ListForChange(ctx context.Context, changeID string) ([]Entry, error) {
	rows, err := j.conn.Query(ctx, `
		SELECT id, change_id, kind, actor_id, detail, created_at
		FROM audit_entries WHERE change_id = $1 ORDER BY id
	`, changeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry     Entry
			kind      string
			detailRaw []byte
		)
		if err := rows.Scan(&entry.ID, &entry.ChangeID, &kind, &entry.ActorID, &detailRaw, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Kind = EventKind(kind)
		if len(detailRaw) > 0 {
			if err := json.Unmarshal(detailRaw, &entry.Detail); err != nil {
				return nil, err
			}
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
