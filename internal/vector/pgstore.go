package vector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// undefinedTableCode is the Postgres error code raised when a tenant
// collection table has not been created yet.
const undefinedTableCode = "42P01"

// PGStore implements Store on PostgreSQL + pgvector with one table per
// tenant collection. Tables are created lazily by EnsureCollection; the
// table name comes from TenantKey.CollectionName, so no caller-supplied
// string ever reaches an SQL identifier.
//
// PGStore is safe for concurrent use by multiple goroutines.
type PGStore struct {
	pool   *pgxpool.Pool
	dim    int
	logger *slog.Logger
}

// NewPGStore creates a PGStore. dim is the embedding dimension enforced on
// every upsert and baked into each collection's schema.
func NewPGStore(pool *pgxpool.Pool, dim int, logger *slog.Logger) (*PGStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dim)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PGStore{pool: pool, dim: dim, logger: logger}, nil
}

// Dimension returns the embedding dimension enforced by this store.
func (s *PGStore) Dimension() int { return s.dim }

// CollectionExists reports whether the tenant's collection table exists.
func (s *PGStore) CollectionExists(ctx context.Context, key TenantKey) (bool, error) {
	if key.IsZero() {
		return false, fmt.Errorf("tenant key is required")
	}
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT to_regclass($1) IS NOT NULL`, key.CollectionName(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking collection %s: %w", key.CollectionName(), err)
	}
	return exists, nil
}

// EnsureCollection lazily creates the tenant's collection table.
// CREATE TABLE IF NOT EXISTS makes concurrent creation idempotent.
func (s *PGStore) EnsureCollection(ctx context.Context, key TenantKey) error {
	if key.IsZero() {
		return fmt.Errorf("tenant key is required")
	}
	table := key.CollectionName()
	_, err := s.pool.Exec(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (
			id          text PRIMARY KEY,
			embedding   vector(%d) NOT NULL,
			content     text NOT NULL,
			chunk_index integer NOT NULL,
			tenant_key  text NOT NULL,
			metadata    jsonb NOT NULL DEFAULT '{}',
			updated_at  timestamptz NOT NULL DEFAULT now()
		)`, table, s.dim))
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", table, err)
	}
	s.logger.Debug("collection ensured", "tenant", key.String(), "table", table)
	return nil
}

// Upsert validates and writes points into the tenant's collection.
// A point whose vector fails validation rejects the whole call before
// anything is written; corrupt vectors must never reach storage.
func (s *PGStore) Upsert(ctx context.Context, key TenantKey, points []Point) error {
	if key.IsZero() {
		return fmt.Errorf("tenant key is required")
	}
	if len(points) == 0 {
		return nil
	}
	for _, p := range points {
		if p.ID == "" {
			return fmt.Errorf("point ID is required")
		}
		if err := ValidateVector(p.Vector, s.dim); err != nil {
			return fmt.Errorf("point %s: %w", p.ID, err)
		}
	}

	table := key.CollectionName()
	for _, p := range points {
		metadataJSON, err := json.Marshal(p.Payload.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata for point %s: %w", p.ID, err)
		}
		_, err = s.pool.Exec(ctx, fmt.Sprintf(
			`INSERT INTO %s (id, embedding, content, chunk_index, tenant_key, metadata, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, now())
			 ON CONFLICT (id) DO UPDATE
			 SET embedding = EXCLUDED.embedding,
			     content = EXCLUDED.content,
			     chunk_index = EXCLUDED.chunk_index,
			     metadata = EXCLUDED.metadata,
			     updated_at = now()`, table),
			p.ID, pgvector.NewVector(p.Vector), p.Payload.Content,
			p.Payload.ChunkIndex, p.Payload.TenantKey, metadataJSON,
		)
		if err != nil {
			return fmt.Errorf("upserting point %s into %s: %w", p.ID, table, err)
		}
	}

	s.logger.Debug("points upserted", "tenant", key.String(), "count", len(points))
	return nil
}

// Search returns up to limit hits above scoreThreshold, ordered by cosine
// similarity descending. A missing collection maps to
// ErrCollectionNotFound so callers can route into the keyword fallback.
func (s *PGStore) Search(ctx context.Context, key TenantKey, queryVector []float32, limit int, scoreThreshold float32) ([]Hit, error) {
	if key.IsZero() {
		return nil, fmt.Errorf("tenant key is required")
	}
	if err := ValidateVector(queryVector, s.dim); err != nil {
		return nil, fmt.Errorf("query vector: %w", err)
	}
	if limit <= 0 {
		limit = 5
	}

	table := key.CollectionName()
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT id, content, chunk_index, tenant_key, metadata,
		        1 - (embedding <=> $1) AS score
		 FROM %s
		 WHERE 1 - (embedding <=> $1) >= $2
		 ORDER BY embedding <=> $1
		 LIMIT $3`, table),
		pgvector.NewVector(queryVector), scoreThreshold, limit,
	)
	if err != nil {
		return nil, mapTableError(err, table, "searching")
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var metadataJSON []byte
		if err := rows.Scan(&h.ID, &h.Payload.Content, &h.Payload.ChunkIndex,
			&h.Payload.TenantKey, &metadataJSON, &h.Score); err != nil {
			return nil, fmt.Errorf("scanning hit: %w", err)
		}
		if err := json.Unmarshal(metadataJSON, &h.Payload.Metadata); err != nil {
			s.logger.Warn("unparseable point metadata", "point_id", h.ID, "error", err)
			h.Payload.Metadata = map[string]string{}
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating hits: %w", err)
	}
	return hits, nil
}

// Delete removes points by ID from the tenant's collection.
func (s *PGStore) Delete(ctx context.Context, key TenantKey, ids []string) error {
	if key.IsZero() {
		return fmt.Errorf("tenant key is required")
	}
	if len(ids) == 0 {
		return nil
	}
	table := key.CollectionName()
	_, err := s.pool.Exec(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE id = ANY($1)`, table), ids)
	if err != nil {
		return mapTableError(err, table, "deleting from")
	}
	return nil
}

// Scroll returns up to limit points in ID order, vectors included.
// Pagination is keyset-based on the point ID.
func (s *PGStore) Scroll(ctx context.Context, key TenantKey, limit int, cursor string) ([]Point, string, error) {
	if key.IsZero() {
		return nil, "", fmt.Errorf("tenant key is required")
	}
	if limit <= 0 {
		limit = 100
	}

	table := key.CollectionName()
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT id, embedding, content, chunk_index, tenant_key, metadata
		 FROM %s
		 WHERE id > $1
		 ORDER BY id
		 LIMIT $2`, table), cursor, limit)
	if err != nil {
		return nil, "", mapTableError(err, table, "scrolling")
	}
	defer rows.Close()

	var points []Point
	for rows.Next() {
		var p Point
		var vec pgvector.Vector
		var metadataJSON []byte
		if err := rows.Scan(&p.ID, &vec, &p.Payload.Content, &p.Payload.ChunkIndex,
			&p.Payload.TenantKey, &metadataJSON); err != nil {
			return nil, "", fmt.Errorf("scanning point: %w", err)
		}
		p.Vector = vec.Slice()
		if err := json.Unmarshal(metadataJSON, &p.Payload.Metadata); err != nil {
			p.Payload.Metadata = map[string]string{}
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterating points: %w", err)
	}

	next := ""
	if len(points) == limit {
		next = points[len(points)-1].ID
	}
	return points, next, nil
}

// DropCollection removes the tenant's collection table entirely.
func (s *PGStore) DropCollection(ctx context.Context, key TenantKey) error {
	if key.IsZero() {
		return fmt.Errorf("tenant key is required")
	}
	table := key.CollectionName()
	if _, err := s.pool.Exec(ctx, `DROP TABLE IF EXISTS `+table); err != nil {
		return fmt.Errorf("dropping collection %s: %w", table, err)
	}
	s.logger.Debug("collection dropped", "tenant", key.String(), "table", table)
	return nil
}

// mapTableError converts the Postgres undefined-table error into
// ErrCollectionNotFound; anything else is wrapped as-is.
func mapTableError(err error, table, verb string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedTableCode {
		return fmt.Errorf("%s %s: %w", verb, table, ErrCollectionNotFound)
	}
	return fmt.Errorf("%s %s: %w", verb, table, err)
}
