// Package vector defines the per-tenant vector storage contract and its
// PostgreSQL + pgvector implementation.
//
// Each tenant (owner, optional scope) maps to one collection. Collections
// are created lazily on first write and creation is idempotent. Every
// vector is validated (dimension, NaN, Inf) before it reaches storage —
// a malformed vector is a hard per-write error, never a warning.
package vector

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Sentinel errors for vector storage operations.
var (
	// ErrDimensionMismatch indicates a vector whose length differs from
	// the configured embedding dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrInvalidVector indicates a vector containing NaN or Inf values.
	ErrInvalidVector = errors.New("vector contains non-finite values")

	// ErrCollectionNotFound indicates a search/scroll against a tenant
	// collection that was never created.
	ErrCollectionNotFound = errors.New("collection not found")
)

// Payload is the typed schema stored alongside each vector. It is
// validated at the ingestion boundary so reads never have to trust
// loosely-typed blobs.
type Payload struct {
	Content    string            `json:"content"`
	ChunkIndex int               `json:"chunk_index"`
	TenantKey  string            `json:"tenant_key"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Point is one stored vector with its payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Hit is one search result. Score is cosine similarity in [0, 1].
type Hit struct {
	ID      string
	Score   float32
	Payload Payload
}

// Store is the per-tenant vector storage contract.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// CollectionExists reports whether the tenant's collection exists.
	CollectionExists(ctx context.Context, key TenantKey) (bool, error)

	// EnsureCollection creates the tenant's collection if absent.
	// Idempotent: re-creating an existing collection is a no-op.
	EnsureCollection(ctx context.Context, key TenantKey) error

	// Upsert validates and writes points. Re-upserting an existing point
	// ID replaces vector and payload in place.
	Upsert(ctx context.Context, key TenantKey, points []Point) error

	// Search returns up to limit hits with similarity >= scoreThreshold,
	// ordered by similarity descending.
	Search(ctx context.Context, key TenantKey, queryVector []float32, limit int, scoreThreshold float32) ([]Hit, error)

	// Delete removes points by ID. Unknown IDs are ignored.
	Delete(ctx context.Context, key TenantKey, ids []string) error

	// Scroll returns up to limit points in stable ID order, for stats and
	// admin inspection. Pass cursor = "" for the first page and the
	// returned cursor for the next; a "" next cursor means the end.
	Scroll(ctx context.Context, key TenantKey, limit int, cursor string) ([]Point, string, error)

	// DropCollection removes the tenant's collection and all its points.
	DropCollection(ctx context.Context, key TenantKey) error
}

// ValidateVector checks that vec has exactly dim finite components.
func ValidateVector(vec []float32, dim int) error {
	if len(vec) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), dim)
	}
	for i, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: component %d is %v", ErrInvalidVector, i, v)
		}
	}
	return nil
}
