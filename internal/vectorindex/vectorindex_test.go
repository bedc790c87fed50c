package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capsuleforge/core/internal/config"
)

func TestVectorLiteral_RoundTrip(t *testing.T) {
	v := []float32{0.5, -1.25, 3}
	lit := vectorLiteral(v)
	assert.Equal(t, "[0.5,-1.25,3]", lit)

	parsed, err := parseVectorLiteral(lit)
	require.NoError(t, err)
	assert.Equal(t, v, parsed)
}

func TestParseVectorLiteral_Empty(t *testing.T) {
	parsed, err := parseVectorLiteral("[]")
	require.NoError(t, err)
	assert.Nil(t, parsed)
}

func TestValidateCollection(t *testing.T) {
	assert.NoError(t, validateCollection(CollectionCodePatterns))
	assert.Error(t, validateCollection("not_a_collection"))
}

func TestBuildFilterClause_DeterministicOrder(t *testing.T) {
	clause, args := buildFilterClause(map[string]any{"b": 1, "a": "x"}, 2)
	assert.Equal(t, " AND payload->>'a' = $2 AND payload->>'b' = $3", clause)
	assert.Equal(t, []any{"x", "1"}, args)
}

func TestBuildFilterClause_Empty(t *testing.T) {
	clause, args := buildFilterClause(nil, 2)
	assert.Empty(t, clause)
	assert.Nil(t, args)
}

func TestOpen_RejectsMissingDSN(t *testing.T) {
	_, err := Open(context.Background(), config.VectorIndexConfig{VectorDim: 1536})
	require.Error(t, err)
}

func TestOpen_RejectsNonPositiveDim(t *testing.T) {
	_, err := Open(context.Background(), config.VectorIndexConfig{DSN: "postgres://x", VectorDim: 0})
	require.Error(t, err)
}
