package graph

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/opsgrid/changeintel/internal/cierrors"
	"github.com/opsgrid/changeintel/internal/database/postgres"
)

// PostgresStore persists the topology graph in Postgres, built on the same
// pooled connection wrapper used across the engine's other stores. Reads of
// the full graph materialize a Snapshot the same shape as MemoryStore's, so
// the impact analyzer never needs to know which Store backs it.
type PostgresStore struct {
	conn postgres.DatabaseConnection
}

// NewPostgresStore wraps an already-connected pool as a Store.
func NewPostgresStore(conn postgres.DatabaseConnection) *PostgresStore {
	return &PostgresStore{conn: conn}
}

// UpsertNode inserts or updates a node row.
func (s *PostgresStore) UpsertNode(ctx context.Context, node Node) error {
	props, err := json.Marshal(node.Properties)
	if err != nil {
		return cierrors.NewValidationError("properties", err.Error())
	}

	_, err = s.conn.Exec(ctx, `
		INSERT INTO graph_nodes (id, kind, name, properties, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind,
			name = EXCLUDED.name,
			properties = EXCLUDED.properties,
			updated_at = now()
	`, node.ID, string(node.Kind), node.Name, props)
	return err
}

// UpsertEdge inserts or updates an edge row. A foreign key on from/to node
// ids enforces the no-dangling-reference invariant at the database level.
func (s *PostgresStore) UpsertEdge(ctx context.Context, edge Edge) error {
	props, err := json.Marshal(edge.Properties)
	if err != nil {
		return cierrors.NewValidationError("properties", err.Error())
	}

	_, err = s.conn.Exec(ctx, `
		INSERT INTO graph_edges (id, kind, from_node_id, to_node_id, properties, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind,
			from_node_id = EXCLUDED.from_node_id,
			to_node_id = EXCLUDED.to_node_id,
			properties = EXCLUDED.properties
	`, edge.ID, string(edge.Kind), edge.FromNodeID, edge.ToNodeID, props)
	return err
}

// DeleteNode removes a node; cascading edge deletes are the schema's job.
func (s *PostgresStore) DeleteNode(ctx context.Context, id string) error {
	tag, err := s.conn.Exec(ctx, `DELETE FROM graph_nodes WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return cierrors.NewNotFoundError("node", id)
	}
	return nil
}

// DeleteEdge removes a single edge.
func (s *PostgresStore) DeleteEdge(ctx context.Context, id string) error {
	tag, err := s.conn.Exec(ctx, `DELETE FROM graph_edges WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return cierrors.NewNotFoundError("edge", id)
	}
	return nil
}

// GetNode fetches a single node row.
func (s *PostgresStore) GetNode(ctx context.Context, id string) (Node, error) {
	var (
		node      Node
		kind      string
		propsJSON []byte
	)

	row := s.conn.QueryRow(ctx, `
		SELECT id, kind, name, properties, created_at, updated_at
		FROM graph_nodes WHERE id = $1
	`, id)

	if err := row.Scan(&node.ID, &kind, &node.Name, &propsJSON, &node.CreatedAt, &node.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return Node{}, cierrors.NewNotFoundError("node", id)
		}
		return Node{}, err
	}

	node.Kind = NodeKind(kind)
	if len(propsJSON) > 0 {
		if err := json.Unmarshal(propsJSON, &node.Properties); err != nil {
			return Node{}, err
		}
	}
	return node, nil
}

// Snapshot loads the entire graph into memory as a point-in-time view. The
// query runs inside a single REPEATABLE READ transaction so node and edge
// reads observe the same commit horizon.
func (s *PostgresStore) Snapshot(ctx context.Context) (Snapshot, error) {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SET TRANSACTION ISOLATION LEVEL REPEATABLE READ`); err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		AsOf:  time.Now(),
		Nodes: make(map[string]Node),
		Out:   make(map[string][]Edge),
		In:    make(map[string][]Edge),
	}

	nodeRows, err := tx.Query(ctx, `SELECT id, kind, name, properties, created_at, updated_at FROM graph_nodes`)
	if err != nil {
		return Snapshot{}, err
	}
	for nodeRows.Next() {
		var (
			node      Node
			kind      string
			propsJSON []byte
		)
		if err := nodeRows.Scan(&node.ID, &kind, &node.Name, &propsJSON, &node.CreatedAt, &node.UpdatedAt); err != nil {
			nodeRows.Close()
			return Snapshot{}, err
		}
		node.Kind = NodeKind(kind)
		if len(propsJSON) > 0 {
			if err := json.Unmarshal(propsJSON, &node.Properties); err != nil {
				nodeRows.Close()
				return Snapshot{}, err
			}
		}
		snap.Nodes[node.ID] = node
	}
	nodeRows.Close()

	edgeRows, err := tx.Query(ctx, `SELECT id, kind, from_node_id, to_node_id, properties, created_at FROM graph_edges`)
	if err != nil {
		return Snapshot{}, err
	}
	for edgeRows.Next() {
		var (
			edge      Edge
			kind      string
			propsJSON []byte
		)
		if err := edgeRows.Scan(&edge.ID, &kind, &edge.FromNodeID, &edge.ToNodeID, &propsJSON, &edge.CreatedAt); err != nil {
			edgeRows.Close()
			return Snapshot{}, err
		}
		edge.Kind = EdgeKind(kind)
		if len(propsJSON) > 0 {
			if err := json.Unmarshal(propsJSON, &edge.Properties); err != nil {
				edgeRows.Close()
				return Snapshot{}, err
			}
		}
		snap.Out[edge.FromNodeID] = append(snap.Out[edge.FromNodeID], edge)
		snap.In[edge.ToNodeID] = append(snap.In[edge.ToNodeID], edge)
	}
	edgeRows.Close()

	return snap, nil
}
