package graphstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/knowlode/knowlode/internal/store"
)

var _ GraphStore = (*PostgresStore)(nil)

const ddlGraph = `
CREATE TABLE IF NOT EXISTS graph_nodes (
    id          TEXT         PRIMARY KEY,
    domain      TEXT         NOT NULL,
    label       TEXT         NOT NULL,
    properties  JSONB        NOT NULL DEFAULT '{}',
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_graph_nodes_label ON graph_nodes (label);
CREATE INDEX IF NOT EXISTS idx_graph_nodes_domain ON graph_nodes (domain);

CREATE TABLE IF NOT EXISTS graph_edges (
    source_id    TEXT         NOT NULL REFERENCES graph_nodes(id) ON DELETE CASCADE,
    target_id    TEXT         NOT NULL REFERENCES graph_nodes(id) ON DELETE CASCADE,
    relation     TEXT         NOT NULL,
    domain       TEXT         NOT NULL,
    properties   JSONB        NOT NULL DEFAULT '{}',
    weight       DOUBLE PRECISION NOT NULL DEFAULT 1.0,
    valid_from   TIMESTAMPTZ  NOT NULL DEFAULT now(),
    valid_until  TIMESTAMPTZ,
    PRIMARY KEY (source_id, target_id, relation)
);

CREATE INDEX IF NOT EXISTS idx_graph_edges_source ON graph_edges (source_id);
CREATE INDEX IF NOT EXISTS idx_graph_edges_target ON graph_edges (target_id);
`

// MigrateGraph creates the graph_nodes/graph_edges tables (and their
// indexes) if they do not already exist. Both life and work domains share
// the same tables, distinguished by the domain column — the teacher's
// "named life_graph/work_graph by convention" becomes a column rather than
// a second schema, since a single pool already serves both in this module.
func MigrateGraph(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlGraph); err != nil {
		return fmt.Errorf("graphstore: migrate: %w", err)
	}
	return nil
}

// PostgresStore is a [GraphStore] backed by a shared Postgres connection
// pool, grounded on the teacher's entities/relationships tables.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing pool. Call [MigrateGraph] first.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) AddNode(ctx context.Context, domain Domain, node Node) error {
	if !domain.AllowsLabel(node.Label) {
		return fmt.Errorf("graphstore: add node %s: %w: label %q outside domain %q", node.ID, store.ErrValidationFailed, node.Label, domain)
	}
	propsJSON, err := json.Marshal(node.Properties)
	if err != nil {
		return fmt.Errorf("graphstore: marshal node properties: %w", err)
	}

	const q = `
		INSERT INTO graph_nodes (id, domain, label, properties, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (id) DO UPDATE SET
		    domain      = EXCLUDED.domain,
		    label       = EXCLUDED.label,
		    properties  = EXCLUDED.properties,
		    updated_at  = now()`

	if _, err := s.pool.Exec(ctx, q, node.ID, string(domain), string(node.Label), propsJSON); err != nil {
		return fmt.Errorf("graphstore: add node: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetNode(ctx context.Context, id string) (Node, error) {
	const q = `SELECT id, label, properties FROM graph_nodes WHERE id = $1`
	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return Node{}, fmt.Errorf("graphstore: get node: %w", err)
	}
	nodes, err := collectNodes(rows)
	if err != nil {
		return Node{}, fmt.Errorf("graphstore: get node: %w", err)
	}
	if len(nodes) == 0 {
		return Node{}, fmt.Errorf("graphstore: get node %s: %w", id, store.ErrNotFound)
	}
	return nodes[0], nil
}

func (s *PostgresStore) UpdateNode(ctx context.Context, id string, properties map[string]any) error {
	propsJSON, err := json.Marshal(properties)
	if err != nil {
		return fmt.Errorf("graphstore: marshal update properties: %w", err)
	}
	const q = `
		UPDATE graph_nodes
		SET    properties = properties || $2::jsonb,
		       updated_at = now()
		WHERE  id = $1`
	tag, err := s.pool.Exec(ctx, q, id, propsJSON)
	if err != nil {
		return fmt.Errorf("graphstore: update node: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("graphstore: update node %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) DeleteNode(ctx context.Context, id string) error {
	const q = `DELETE FROM graph_nodes WHERE id = $1`
	if _, err := s.pool.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("graphstore: delete node: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindNodes(ctx context.Context, label NodeLabel, propertyQuery map[string]any) ([]Node, error) {
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var conditions []string
	if label != "" {
		conditions = append(conditions, "label = "+next(string(label)))
	}
	if len(propertyQuery) > 0 {
		propsJSON, err := json.Marshal(propertyQuery)
		if err != nil {
			return nil, fmt.Errorf("graphstore: marshal property query: %w", err)
		}
		conditions = append(conditions, "properties @> "+next(string(propsJSON))+"::jsonb")
	}

	q := "SELECT id, label, properties FROM graph_nodes"
	if len(conditions) > 0 {
		q += " WHERE " + strings.Join(conditions, " AND ")
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("graphstore: find nodes: %w", err)
	}
	return collectNodes(rows)
}

func (s *PostgresStore) AddEdge(ctx context.Context, domain Domain, edge Edge) error {
	if !domain.AllowsRelation(edge.Relation) {
		return fmt.Errorf("graphstore: add edge %s-%s-%s: %w: relation outside domain %q",
			edge.SourceID, edge.Relation, edge.TargetID, store.ErrValidationFailed, domain)
	}
	if err := ValidateEdgeWindow(edge); err != nil {
		return err
	}
	propsJSON, err := json.Marshal(edge.Properties)
	if err != nil {
		return fmt.Errorf("graphstore: marshal edge properties: %w", err)
	}

	validFrom := edge.ValidFrom
	if validFrom.IsZero() {
		validFrom = time.Now()
	}

	const q = `
		INSERT INTO graph_edges
		    (source_id, target_id, relation, domain, properties, weight, valid_from, valid_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (source_id, target_id, relation) DO UPDATE SET
		    domain      = EXCLUDED.domain,
		    properties  = EXCLUDED.properties,
		    weight      = EXCLUDED.weight,
		    valid_from  = EXCLUDED.valid_from,
		    valid_until = EXCLUDED.valid_until`

	if _, err := s.pool.Exec(ctx, q,
		edge.SourceID, edge.TargetID, string(edge.Relation), string(domain),
		propsJSON, edge.Weight, validFrom, edge.ValidUntil,
	); err != nil {
		return fmt.Errorf("graphstore: add edge: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteEdge(ctx context.Context, sourceID, targetID string, relation RelationType) error {
	const q = `DELETE FROM graph_edges WHERE source_id = $1 AND target_id = $2 AND relation = $3`
	if _, err := s.pool.Exec(ctx, q, sourceID, targetID, string(relation)); err != nil {
		return fmt.Errorf("graphstore: delete edge: %w", err)
	}
	return nil
}

func (s *PostgresStore) EdgesBetween(ctx context.Context, sourceID, targetID string) ([]Edge, error) {
	const q = `
		SELECT source_id, target_id, relation, properties, weight, valid_from, valid_until
		FROM   graph_edges
		WHERE  source_id = $1 AND target_id = $2`
	rows, err := s.pool.Query(ctx, q, sourceID, targetID)
	if err != nil {
		return nil, fmt.Errorf("graphstore: edges between: %w", err)
	}
	return collectEdges(rows)
}

func (s *PostgresStore) Neighbors(ctx context.Context, nodeID string, opts NeighborOptions) ([]Node, error) {
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	idArg := next(nodeID)

	var dirParts []string
	if opts.Direction == Outgoing || opts.Direction == Both {
		dirParts = append(dirParts, "(source_id = "+idArg+" AND e.target_id = n.id)")
	}
	if opts.Direction == Incoming || opts.Direction == Both {
		dirParts = append(dirParts, "(target_id = "+idArg+" AND e.source_id = n.id)")
	}
	if len(dirParts) == 0 {
		dirParts = append(dirParts, "(source_id = "+idArg+" AND e.target_id = n.id)")
	}
	conditions := []string{"(" + strings.Join(dirParts, " OR ") + ")"}

	if opts.Relation != "" {
		conditions = append(conditions, "e.relation = "+next(string(opts.Relation)))
	}
	if !opts.AtTime.IsZero() {
		atArg := next(opts.AtTime)
		conditions = append(conditions, "e.valid_from <= "+atArg+" AND (e.valid_until IS NULL OR e.valid_until >= "+atArg+")")
	}

	q := "SELECT DISTINCT n.id, n.label, n.properties\n" +
		"FROM   graph_edges e\n" +
		"JOIN   graph_nodes n ON TRUE\n" +
		"WHERE  " + strings.Join(conditions, "\n  AND ") + "\n" +
		"ORDER  BY n.id"

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("graphstore: neighbors: %w", err)
	}
	return collectNodes(rows)
}

// Snapshot fetches nodeID, every edge touching it, and the nodes on the
// other end of those edges — the same shape as the teacher's
// VisibleSubgraph/IdentitySnapshot queries, collapsed into one round trip
// per relation direction instead of a separate "related entities" pass.
func (s *PostgresStore) Snapshot(ctx context.Context, nodeID string) (Snapshot, error) {
	node, err := s.GetNode(ctx, nodeID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("graphstore: snapshot: %w", err)
	}

	const edgeQ = `
		SELECT source_id, target_id, relation, properties, weight, valid_from, valid_until
		FROM   graph_edges
		WHERE  source_id = $1 OR target_id = $1`
	rows, err := s.pool.Query(ctx, edgeQ, nodeID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("graphstore: snapshot: edges: %w", err)
	}
	edges, err := collectEdges(rows)
	if err != nil {
		return Snapshot{}, fmt.Errorf("graphstore: snapshot: %w", err)
	}

	neighborIDs := map[string]struct{}{}
	for _, e := range edges {
		if e.SourceID == nodeID {
			neighborIDs[e.TargetID] = struct{}{}
		} else {
			neighborIDs[e.SourceID] = struct{}{}
		}
	}

	neighbors := []Node{}
	if len(neighborIDs) > 0 {
		ids := make([]string, 0, len(neighborIDs))
		for id := range neighborIDs {
			ids = append(ids, id)
		}
		const nodeQ = `SELECT id, label, properties FROM graph_nodes WHERE id = ANY($1)`
		nrows, err := s.pool.Query(ctx, nodeQ, ids)
		if err != nil {
			return Snapshot{}, fmt.Errorf("graphstore: snapshot: neighbors: %w", err)
		}
		neighbors, err = collectNodes(nrows)
		if err != nil {
			return Snapshot{}, fmt.Errorf("graphstore: snapshot: %w", err)
		}
	}

	return Snapshot{Node: node, Neighbors: neighbors, Edges: edges}, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM graph_nodes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("graphstore: count: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE graph_edges, graph_nodes`); err != nil {
		return fmt.Errorf("graphstore: clear: %w", err)
	}
	return nil
}

func collectNodes(rows pgx.Rows) ([]Node, error) {
	nodes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Node, error) {
		var (
			n         Node
			label     string
			propsJSON []byte
		)
		if err := row.Scan(&n.ID, &label, &propsJSON); err != nil {
			return Node{}, err
		}
		n.Label = NodeLabel(label)
		if len(propsJSON) > 0 {
			if err := json.Unmarshal(propsJSON, &n.Properties); err != nil {
				return Node{}, fmt.Errorf("unmarshal node properties: %w", err)
			}
		}
		if n.Properties == nil {
			n.Properties = map[string]any{}
		}
		return n, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan nodes: %w", err)
	}
	if nodes == nil {
		nodes = []Node{}
	}
	return nodes, nil
}

func collectEdges(rows pgx.Rows) ([]Edge, error) {
	edges, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Edge, error) {
		var (
			e         Edge
			relation  string
			propsJSON []byte
		)
		if err := row.Scan(&e.SourceID, &e.TargetID, &relation, &propsJSON, &e.Weight, &e.ValidFrom, &e.ValidUntil); err != nil {
			return Edge{}, err
		}
		e.Relation = RelationType(relation)
		if len(propsJSON) > 0 {
			if err := json.Unmarshal(propsJSON, &e.Properties); err != nil {
				return Edge{}, fmt.Errorf("unmarshal edge properties: %w", err)
			}
		}
		if e.Properties == nil {
			e.Properties = map[string]any{}
		}
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan edges: %w", err)
	}
	if edges == nil {
		edges = []Edge{}
	}
	return edges, nil
}
