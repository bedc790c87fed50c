// Package vectorindex implements the Vector Index (C2): similarity search
// over past requests, code patterns, agent decisions, and errors, backed by
// Postgres with the pgvector extension.
package vectorindex

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/capsuleforge/core/internal/config"
)

// Collection names used by the index. Each maps to one logical point set;
// all share the same table schema, partitioned by collection.
const (
	CollectionCodePatterns   = "code_patterns"
	CollectionAgentDecisions = "agent_decisions"
	CollectionErrorPatterns  = "error_patterns"
	CollectionRequirements   = "requirements"
	CollectionExecutions     = "executions"
)

var knownCollections = map[string]bool{
	CollectionCodePatterns:   true,
	CollectionAgentDecisions: true,
	CollectionErrorPatterns:  true,
	CollectionRequirements:   true,
	CollectionExecutions:     true,
}

// Point is one vector entry: an identity, an embedding, and a typed payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// SearchQuery describes a similarity search against one collection.
type SearchQuery struct {
	Collection string
	Vector     []float32
	Filter     map[string]any
	Limit      int
	MinScore   float64
}

// ScrollQuery describes a filtered, unranked listing against one collection.
type ScrollQuery struct {
	Collection string
	Filter     map[string]any
	Limit      int
}

// ScoredPoint pairs a Point with its similarity score from a search.
type ScoredPoint struct {
	Point
	Score float64
}

// Index is a pgvector-backed similarity search store.
type Index struct {
	pool *pgxpool.Pool
	dim  int
}

// Open connects to Postgres, ensures the pgvector extension and points table
// exist, and returns a ready Index. It does not create collection-specific
// payload indexes; call CreatePayloadIndex per collection/field as needed.
func Open(ctx context.Context, cfg config.VectorIndexConfig) (*Index, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("vectorindex: DSN is required")
	}
	if cfg.VectorDim <= 0 {
		return nil, fmt.Errorf("vectorindex: vector dimension must be positive")
	}

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("vectorindex: ping: %w", err)
	}

	idx := &Index{pool: pool, dim: cfg.VectorDim}
	if err := idx.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *Index) ensureSchema(ctx context.Context) error {
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS vector_points (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			payload JSONB NOT NULL DEFAULT '{}'::jsonb,
			PRIMARY KEY (collection, id)
		)`, idx.dim),
		"CREATE INDEX IF NOT EXISTS vector_points_payload_gin ON vector_points USING GIN (payload)",
	}
	for _, stmt := range stmts {
		if _, err := idx.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("vectorindex: schema setup: %w", err)
		}
	}
	return nil
}

// Close releases the connection pool.
func (idx *Index) Close() {
	idx.pool.Close()
}

func validateCollection(name string) error {
	if !knownCollections[name] {
		return fmt.Errorf("vectorindex: unknown collection %q", name)
	}
	return nil
}

// CreatePayloadIndex creates a btree expression index over one JSONB payload
// field, so filtered search/scroll on that field stays fast as the
// collection grows.
func (idx *Index) CreatePayloadIndex(ctx context.Context, collection, field string) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	name := fmt.Sprintf("vector_points_%s_%s_idx", collection, field)
	stmt := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s ON vector_points ((payload->>'%s')) WHERE collection = '%s'`,
		name, field, collection,
	)
	_, err := idx.pool.Exec(ctx, stmt)
	if err != nil {
		return fmt.Errorf("vectorindex: create payload index: %w", err)
	}
	return nil
}
