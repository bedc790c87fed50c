package costledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capsuleforge/core/internal/domain"
)

type fakeStore struct {
	mu      sync.Mutex
	records []*domain.LLMCostRecord
	failN   int
}

func (f *fakeStore) AppendLLMCostRecord(ctx context.Context, rec *domain.LLMCostRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failN > 0 {
		f.failN--
		return errors.New("simulated store failure")
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func TestLedger_Record_ComputesCostSynchronously(t *testing.T) {
	fs := &fakeStore{}
	l := New(fs, nil)
	defer l.Close(context.Background())

	rec := l.Record("claude-3-sonnet-20240229", "anthropic", 1000, 500, "wf-1", "tenant-a", "user-1", "task-1", 250)
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.FallbackPricing)
	assert.Greater(t, rec.TotalCostUSD, 0.0)
	assert.Equal(t, "wf-1", rec.WorkflowID)
}

func TestLedger_Record_UnknownModelMarksFallbackPricing(t *testing.T) {
	fs := &fakeStore{}
	l := New(fs, nil)
	defer l.Close(context.Background())

	rec := l.Record("some-future-model", "unknown", 100, 50, "wf-1", "tenant-a", "user-1", "", 10)
	assert.True(t, rec.FallbackPricing)
}

func TestLedger_Record_PersistsAsynchronously(t *testing.T) {
	fs := &fakeStore{}
	l := New(fs, nil)

	l.Record("gpt-4o", "openai", 100, 50, "wf-1", "tenant-a", "user-1", "", 10)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, l.Close(ctx))
	assert.Equal(t, 1, fs.count())
}

func TestLedger_PersistWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	fs := &fakeStore{failN: 2}
	l := New(fs, nil)

	l.Record("gpt-4o", "openai", 100, 50, "wf-1", "tenant-a", "user-1", "", 10)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, l.Close(ctx))
	assert.Equal(t, 1, fs.count())
}
