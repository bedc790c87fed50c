package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

// vectorLiteral renders a float32 embedding in pgvector's text input format,
// e.g. "[0.1,0.2,0.3]".
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// Upsert inserts or replaces a point in a collection.
func (idx *Index) Upsert(ctx context.Context, collection string, p Point) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	if len(p.Vector) != idx.dim {
		return fmt.Errorf("vectorindex: vector has dimension %d, want %d", len(p.Vector), idx.dim)
	}
	payload, err := json.Marshal(p.Payload)
	if err != nil {
		return fmt.Errorf("vectorindex: marshal payload: %w", err)
	}

	_, err = idx.pool.Exec(ctx, `
		INSERT INTO vector_points (collection, id, embedding, payload)
		VALUES ($1, $2, $3::vector, $4::jsonb)
		ON CONFLICT (collection, id) DO UPDATE
		SET embedding = EXCLUDED.embedding, payload = EXCLUDED.payload
	`, collection, p.ID, vectorLiteral(p.Vector), payload)
	if err != nil {
		return fmt.Errorf("vectorindex: upsert: %w", err)
	}
	return nil
}

func buildFilterClause(filter map[string]any, startArg int) (string, []any) {
	if len(filter) == 0 {
		return "", nil
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	// Deterministic order keeps generated SQL stable across calls, which
	// matters for tests asserting exact query shape.
	sortStrings(keys)

	var clauses []string
	var args []any
	arg := startArg
	for _, k := range keys {
		clauses = append(clauses, fmt.Sprintf("payload->>'%s' = $%d", k, arg))
		args = append(args, fmt.Sprintf("%v", filter[k]))
		arg++
	}
	return " AND " + strings.Join(clauses, " AND "), args
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// Search runs a cosine-similarity nearest-neighbor search against one
// collection, optionally filtered by payload equality, returning at most
// Limit points scoring at or above MinScore.
func (idx *Index) Search(ctx context.Context, q SearchQuery) ([]ScoredPoint, error) {
	if err := validateCollection(q.Collection); err != nil {
		return nil, err
	}
	if len(q.Vector) != idx.dim {
		return nil, fmt.Errorf("vectorindex: query vector has dimension %d, want %d", len(q.Vector), idx.dim)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	filterClause, filterArgs := buildFilterClause(q.Filter, 4)
	args := append([]any{q.Collection, vectorLiteral(q.Vector), q.MinScore}, filterArgs...)
	args = append(args, limit)

	sql := fmt.Sprintf(`
		SELECT id, embedding::text, payload, 1 - (embedding <=> $2::vector) AS score
		FROM vector_points
		WHERE collection = $1%s
		AND 1 - (embedding <=> $2::vector) >= $3
		ORDER BY embedding <=> $2::vector ASC
		LIMIT $%d
	`, filterClause, len(args))

	rows, err := idx.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: search: %w", err)
	}
	defer rows.Close()

	return scanScoredPoints(rows)
}

// Scroll lists points in a collection matching a payload filter, without
// ranking by similarity.
func (idx *Index) Scroll(ctx context.Context, q ScrollQuery) ([]Point, error) {
	if err := validateCollection(q.Collection); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	filterClause, filterArgs := buildFilterClause(q.Filter, 2)
	args := append([]any{q.Collection}, filterArgs...)
	args = append(args, limit)

	sql := fmt.Sprintf(`
		SELECT id, embedding::text, payload
		FROM vector_points
		WHERE collection = $1%s
		ORDER BY id ASC
		LIMIT $%d
	`, filterClause, len(args))

	rows, err := idx.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: scroll: %w", err)
	}
	defer rows.Close()

	var points []Point
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// parseVectorLiteral parses pgvector's text output format, e.g. "[0.1,0.2]".
func parseVectorLiteral(s string) ([]float32, error) {
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("vectorindex: parse embedding component %q: %w", p, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}

func decodePayload(payload []byte) (map[string]any, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("vectorindex: decode payload: %w", err)
	}
	return decoded, nil
}

func scanPoint(rows pgx.Rows) (Point, error) {
	var (
		id        string
		embedding string
		payload   []byte
	)
	if err := rows.Scan(&id, &embedding, &payload); err != nil {
		return Point{}, fmt.Errorf("vectorindex: scan point: %w", err)
	}
	vec, err := parseVectorLiteral(embedding)
	if err != nil {
		return Point{}, err
	}
	decoded, err := decodePayload(payload)
	if err != nil {
		return Point{}, err
	}
	return Point{ID: id, Vector: vec, Payload: decoded}, nil
}

func scanScoredPoints(rows pgx.Rows) ([]ScoredPoint, error) {
	var results []ScoredPoint
	for rows.Next() {
		var (
			id        string
			embedding string
			payload   []byte
			score     float64
		)
		if err := rows.Scan(&id, &embedding, &payload, &score); err != nil {
			return nil, fmt.Errorf("vectorindex: scan scored point: %w", err)
		}
		vec, err := parseVectorLiteral(embedding)
		if err != nil {
			return nil, err
		}
		decoded, err := decodePayload(payload)
		if err != nil {
			return nil, err
		}
		results = append(results, ScoredPoint{
			Point: Point{ID: id, Vector: vec, Payload: decoded},
			Score: score,
		})
	}
	return results, rows.Err()
}
