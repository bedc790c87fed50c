package patterncache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capsuleforge/core/internal/domain"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewWithClient(client, time.Hour)
}

func TestCache_PutGet_RoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	result := domain.GenerationResult{Capsule: &domain.Capsule{ID: "cap-1"}, Confidence: 0.9}
	require.NoError(t, c.Put(ctx, "tenant-a", "fp-1", result))

	got, hit, err := c.Get(ctx, "tenant-a", "fp-1")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "cap-1", got.Capsule.ID)
	assert.Equal(t, float64(1), got.Metrics["cache_hit"])
}

func TestCache_Put_RefusesBelowConfidenceFloor(t *testing.T) {
	c := newTestCache(t)
	err := c.Put(context.Background(), "tenant-a", "fp-1", domain.GenerationResult{Confidence: 0.5})
	assert.ErrorIs(t, err, ErrBelowConfidenceFloor)
}

func TestCache_Get_MissReturnsFalse(t *testing.T) {
	c := newTestCache(t)
	got, hit, err := c.Get(context.Background(), "tenant-a", "missing")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Nil(t, got)
}

func TestCache_Get_CrossTenantIsolation(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "tenant-a", "fp-1", domain.GenerationResult{Confidence: 0.9}))

	_, hit, err := c.Get(ctx, "tenant-b", "fp-1")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCache_Stats_TracksHitsAndMisses(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "tenant-a", "fp-1", domain.GenerationResult{Confidence: 0.9}))

	_, _, _ = c.Get(ctx, "tenant-a", "fp-1")
	_, _, _ = c.Get(ctx, "tenant-a", "missing")

	stats, size, err := c.Stats(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), size)
}

func TestFingerprint_StableAcrossMapOrdering(t *testing.T) {
	a := Fingerprint("build a cli", "default", map[string]string{"language": "go", "framework": "cobra"})
	b := Fingerprint("build a cli", "default", map[string]string{"framework": "cobra", "language": "go"})
	assert.Equal(t, a, b)
}

func TestFingerprint_NilAndEmptyRequirementsMatch(t *testing.T) {
	a := Fingerprint("x", "default", nil)
	b := Fingerprint("x", "default", map[string]string{})
	assert.Equal(t, a, b)
}

func TestFingerprint_DiffersOnDescription(t *testing.T) {
	a := Fingerprint("build a cli", "default", nil)
	b := Fingerprint("build a web app", "default", nil)
	assert.NotEqual(t, a, b)
}
