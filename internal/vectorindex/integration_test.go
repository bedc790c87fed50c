//go:build integration

package vectorindex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/capsuleforge/core/internal/config"
)

func setupIndex(t *testing.T) *Index {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg17",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "capsuleforge",
			"POSTGRES_PASSWORD": "capsuleforge",
			"POSTGRES_DB":       "capsuleforge",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := "postgres://capsuleforge:capsuleforge@" + host + ":" + port.Port() + "/capsuleforge?sslmode=disable"
	idx, err := Open(ctx, config.VectorIndexConfig{DSN: dsn, VectorDim: 4})
	require.NoError(t, err)
	t.Cleanup(idx.Close)
	return idx
}

func TestIndex_UpsertSearchScroll(t *testing.T) {
	idx := setupIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, CollectionCodePatterns, Point{
		ID:      "p1",
		Vector:  []float32{1, 0, 0, 0},
		Payload: map[string]any{"language": "python"},
	}))
	require.NoError(t, idx.Upsert(ctx, CollectionCodePatterns, Point{
		ID:      "p2",
		Vector:  []float32{0, 1, 0, 0},
		Payload: map[string]any{"language": "go"},
	}))

	results, err := idx.Search(ctx, SearchQuery{
		Collection: CollectionCodePatterns,
		Vector:     []float32{1, 0, 0, 0},
		Limit:      1,
		MinScore:   0.9,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "p1", results[0].ID)

	scrolled, err := idx.Scroll(ctx, ScrollQuery{
		Collection: CollectionCodePatterns,
		Filter:     map[string]any{"language": "go"},
	})
	require.NoError(t, err)
	require.Len(t, scrolled, 1)
	require.Equal(t, "p2", scrolled[0].ID)
}
