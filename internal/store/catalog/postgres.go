package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/knowlode/knowlode/internal/store"
)

// ddlCatalog creates the documents table with the embedding dimension baked
// into the column type, mirroring the teacher's ddlL2 substitution pattern.
// The embedding column is a denormalized ANN fallback/backup path alongside
// the in-process vector index — not the catalog's primary responsibility,
// which is existence and metadata, not similarity search.
func ddlCatalog(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS documents (
    id                TEXT         PRIMARY KEY,
    content           TEXT         NOT NULL,
    doc_type          TEXT         NOT NULL,
    source            TEXT         NOT NULL DEFAULT '',
    timestamp         TIMESTAMPTZ  NOT NULL DEFAULT now(),
    embedding         vector(%d),
    entities          JSONB        NOT NULL DEFAULT '[]',
    importance        DOUBLE PRECISION NOT NULL DEFAULT 0.5,
    retention_type    TEXT         NOT NULL DEFAULT 'permanent',
    metadata          JSONB        NOT NULL DEFAULT '{}',
    access_count      INTEGER      NOT NULL DEFAULT 0,
    last_access       TIMESTAMPTZ,
    stored_in_vector  BOOLEAN      NOT NULL DEFAULT false,
    stored_in_graph   BOOLEAN      NOT NULL DEFAULT false,
    status            TEXT         NOT NULL DEFAULT 'active'
);

CREATE INDEX IF NOT EXISTS idx_documents_doc_type ON documents (doc_type);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents (status);
CREATE INDEX IF NOT EXISTS idx_documents_timestamp ON documents (timestamp);
CREATE INDEX IF NOT EXISTS idx_documents_retention ON documents (retention_type);
CREATE INDEX IF NOT EXISTS idx_documents_embedding ON documents USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// MigratePostgres creates the documents table (and its indexes/extension) if
// it does not already exist. embeddingDimensions must match the embedding
// model's output dimension; changing it after the first migration requires
// a manual schema update.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if _, err := pool.Exec(ctx, ddlCatalog(embeddingDimensions)); err != nil {
		return fmt.Errorf("catalog: migrate: %w", err)
	}
	return nil
}

var _ Catalog = (*PostgresCatalog)(nil)

// PostgresCatalog is a [Catalog] backed by a shared Postgres connection
// pool, grounded on the teacher's store.go/schema.go table layout.
type PostgresCatalog struct {
	pool *pgxpool.Pool
}

// NewPostgresCatalog wraps an existing pool. Call [MigratePostgres] first.
func NewPostgresCatalog(pool *pgxpool.Pool) *PostgresCatalog {
	return &PostgresCatalog{pool: pool}
}

func (c *PostgresCatalog) Put(ctx context.Context, row Row) error {
	entitiesJSON, err := json.Marshal(row.Entities)
	if err != nil {
		return fmt.Errorf("catalog: marshal entities: %w", err)
	}
	metadataJSON, err := json.Marshal(row.Metadata)
	if err != nil {
		return fmt.Errorf("catalog: marshal metadata: %w", err)
	}
	if row.Status == "" {
		row.Status = StatusActive
	}

	const q = `
		INSERT INTO documents
		    (id, content, doc_type, source, timestamp, entities, importance,
		     retention_type, metadata, access_count, last_access,
		     stored_in_vector, stored_in_graph, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
		    content          = EXCLUDED.content,
		    doc_type         = EXCLUDED.doc_type,
		    source           = EXCLUDED.source,
		    timestamp        = EXCLUDED.timestamp,
		    entities         = EXCLUDED.entities,
		    importance       = EXCLUDED.importance,
		    retention_type   = EXCLUDED.retention_type,
		    metadata         = EXCLUDED.metadata,
		    access_count     = EXCLUDED.access_count,
		    last_access      = EXCLUDED.last_access,
		    stored_in_vector = EXCLUDED.stored_in_vector,
		    stored_in_graph  = EXCLUDED.stored_in_graph,
		    status           = EXCLUDED.status`

	var lastAccess any
	if !row.LastAccess.IsZero() {
		lastAccess = row.LastAccess
	}

	if _, err := c.pool.Exec(ctx, q,
		row.ID, row.Content, string(row.DocType), row.Source, row.Timestamp,
		entitiesJSON, row.Importance, string(row.RetentionType), metadataJSON,
		row.AccessCount, lastAccess, row.StoredInVector, row.StoredInGraph, string(row.Status),
	); err != nil {
		return fmt.Errorf("catalog: put: %w", err)
	}
	return nil
}

// SetEmbedding writes the document's denormalized embedding column used by
// the Postgres-side ANN fallback path. Not part of the [Catalog] interface
// since the in-process vector index is the primary similarity-search path.
func (c *PostgresCatalog) SetEmbedding(ctx context.Context, id string, embedding []float32) error {
	const q = `UPDATE documents SET embedding = $2 WHERE id = $1`
	if _, err := c.pool.Exec(ctx, q, id, pgvector.NewVector(embedding)); err != nil {
		return fmt.Errorf("catalog: set embedding: %w", err)
	}
	return nil
}

const selectColumns = `id, content, doc_type, source, timestamp, entities, importance,
	    retention_type, metadata, access_count, last_access, stored_in_vector, stored_in_graph, status`

func (c *PostgresCatalog) Get(ctx context.Context, id string) (Row, error) {
	q := "SELECT " + selectColumns + " FROM documents WHERE id = $1"
	rows, err := c.pool.Query(ctx, q, id)
	if err != nil {
		return Row{}, fmt.Errorf("catalog: get: %w", err)
	}
	result, err := collectRows(rows)
	if err != nil {
		return Row{}, fmt.Errorf("catalog: get: %w", err)
	}
	if len(result) == 0 {
		return Row{}, fmt.Errorf("catalog: get %s: %w", id, store.ErrNotFound)
	}
	return result[0], nil
}

func (c *PostgresCatalog) GetMany(ctx context.Context, ids []string) ([]Row, error) {
	if len(ids) == 0 {
		return []Row{}, nil
	}
	q := "SELECT " + selectColumns + " FROM documents WHERE id = ANY($1)"
	rows, err := c.pool.Query(ctx, q, ids)
	if err != nil {
		return nil, fmt.Errorf("catalog: get many: %w", err)
	}
	return collectRows(rows)
}

func (c *PostgresCatalog) Query(ctx context.Context, filter Filter) ([]Row, error) {
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var conditions []string
	if filter.DocType != "" {
		conditions = append(conditions, "doc_type = "+next(string(filter.DocType)))
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = "+next(string(filter.Status)))
	}
	if !filter.After.IsZero() {
		conditions = append(conditions, "timestamp >= "+next(filter.After))
	}
	if !filter.Before.IsZero() {
		conditions = append(conditions, "timestamp <= "+next(filter.Before))
	}

	q := "SELECT " + selectColumns + " FROM documents"
	if len(conditions) > 0 {
		q += " WHERE " + joinAnd(conditions)
	}
	q += " ORDER BY timestamp DESC"

	rows, err := c.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: query: %w", err)
	}
	return collectRows(rows)
}

func joinAnd(conditions []string) string {
	out := conditions[0]
	for _, c := range conditions[1:] {
		out += " AND " + c
	}
	return out
}

func (c *PostgresCatalog) UpdateStorageFlags(ctx context.Context, id string, storedInVector, storedInGraph bool) error {
	const q = `UPDATE documents SET stored_in_vector = $2, stored_in_graph = $3 WHERE id = $1`
	tag, err := c.pool.Exec(ctx, q, id, storedInVector, storedInGraph)
	if err != nil {
		return fmt.Errorf("catalog: update storage flags: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("catalog: update storage flags %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (c *PostgresCatalog) UpdateImportance(ctx context.Context, id string, importance float64) error {
	if !ValidateImportance(importance) {
		return fmt.Errorf("catalog: update importance %s: %w: importance %v outside [0,1]", id, store.ErrValidationFailed, importance)
	}
	const q = `UPDATE documents SET importance = $2 WHERE id = $1`
	tag, err := c.pool.Exec(ctx, q, id, importance)
	if err != nil {
		return fmt.Errorf("catalog: update importance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("catalog: update importance %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (c *PostgresCatalog) RecordAccess(ctx context.Context, id string, now time.Time) error {
	const q = `UPDATE documents SET access_count = access_count + 1, last_access = $2 WHERE id = $1`
	if _, err := c.pool.Exec(ctx, q, id, now); err != nil {
		return fmt.Errorf("catalog: record access: %w", err)
	}
	return nil
}

func (c *PostgresCatalog) SoftDelete(ctx context.Context, id string) error {
	const q = `UPDATE documents SET status = 'deleted' WHERE id = $1`
	if _, err := c.pool.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("catalog: soft delete: %w", err)
	}
	return nil
}

func (c *PostgresCatalog) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM documents WHERE id = $1`
	if _, err := c.pool.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("catalog: delete: %w", err)
	}
	return nil
}

func (c *PostgresCatalog) ExpiredBefore(ctx context.Context, now time.Time) ([]string, error) {
	const q = `
		SELECT id FROM documents
		WHERE status != 'deleted'
		  AND ((retention_type = 'temporary' AND timestamp <= $1)
		    OR (retention_type = 'casual_chat' AND timestamp <= $2))`
	rows, err := c.pool.Query(ctx, q, now.Add(-TemporaryTTL), now.Add(-CasualChatTTL))
	if err != nil {
		return nil, fmt.Errorf("catalog: expired before: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("catalog: expired before: scan: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func (c *PostgresCatalog) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.pool.QueryRow(ctx, `SELECT count(*) FROM documents WHERE status != 'deleted'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("catalog: count: %w", err)
	}
	return n, nil
}

func collectRows(rows pgx.Rows) ([]Row, error) {
	result, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Row, error) {
		var (
			r             Row
			docType       string
			retentionType string
			status        string
			entitiesJSON  []byte
			metadataJSON  []byte
		)
		if err := row.Scan(
			&r.ID, &r.Content, &docType, &r.Source, &r.Timestamp,
			&entitiesJSON, &r.Importance, &retentionType, &metadataJSON,
			&r.AccessCount, &r.LastAccess, &r.StoredInVector, &r.StoredInGraph, &status,
		); err != nil {
			return Row{}, err
		}
		r.DocType = DocType(docType)
		r.RetentionType = RetentionType(retentionType)
		r.Status = Status(status)
		if len(entitiesJSON) > 0 {
			if err := json.Unmarshal(entitiesJSON, &r.Entities); err != nil {
				return Row{}, fmt.Errorf("unmarshal entities: %w", err)
			}
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &r.Metadata); err != nil {
				return Row{}, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		if r.Metadata == nil {
			r.Metadata = map[string]any{}
		}
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan documents: %w", err)
	}
	if result == nil {
		result = []Row{}
	}
	return result, nil
}
