package policy

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/opsgrid/changeintel/internal/database/postgres"
)

// PostgresStore persists policy rules on the shared pooled connection
// wrapper.
type PostgresStore struct {
	conn postgres.DatabaseConnection
}

// NewPostgresStore wraps an already-connected pool as a policy Store.
func NewPostgresStore(conn postgres.DatabaseConnection) *PostgresStore {
	return &PostgresStore{conn: conn}
}

// ListEnabled returns every currently enabled rule.
func (s *PostgresStore) ListEnabled(ctx context.Context) ([]Rule, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, name, enabled, severity, conditions, message, created_at, updated_at
		FROM policy_rules WHERE enabled = true ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

// Create inserts a new policy rule, assigning it a uuid if it has none.
func (s *PostgresStore) Create(ctx context.Context, rule Rule) (Rule, error) {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}

	predicateRaw, err := json.Marshal(rule.Predicate)
	if err != nil {
		return Rule{}, err
	}

	_, err = s.conn.Exec(ctx, `
		INSERT INTO policy_rules (id, name, enabled, severity, conditions, message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
	`, rule.ID, rule.Name, rule.Enabled, int(rule.Severity), predicateRaw, rule.Message)
	if err != nil {
		return Rule{}, err
	}

	return rule, nil
}

// SetEnabled toggles a rule's enabled flag.
func (s *PostgresStore) SetEnabled(ctx context.Context, ruleID string, enabled bool) error {
	_, err := s.conn.Exec(ctx, `UPDATE policy_rules SET enabled = $2, updated_at = now() WHERE id = $1`, ruleID, enabled)
	return err
}

// All returns every rule, enabled or not, used by conflict detection.
func (s *PostgresStore) All(ctx context.Context) ([]Rule, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, name, enabled, severity, conditions, message, created_at, updated_at
		FROM policy_rules ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

func scanRules(rows pgx.Rows) ([]Rule, error) {
	var rules []Rule
	for rows.Next() {
		var (
			rule         Rule
			severity     int
			predicateRaw []byte
		)
		if err := rows.Scan(&rule.ID, &rule.Name, &rule.Enabled, &severity, &predicateRaw, &rule.Message, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
			return nil, err
		}
		rule.Severity = Severity(severity)
		if len(predicateRaw) > 0 {
			if err := json.Unmarshal(predicateRaw, &rule.Predicate); err != nil {
				return nil, err
			}
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}
