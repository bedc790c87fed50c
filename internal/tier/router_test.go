package tier

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capsuleforge/core/internal/domain"
	"github.com/capsuleforge/core/internal/llmclient"
)

type fakeCompleter struct {
	mu      sync.Mutex
	failFor map[string]bool
	calls   []string
}

func (f *fakeCompleter) Complete(ctx context.Context, tier string, messages []llmclient.Message, temperature *float64, maxTokens int) (*llmclient.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, tier)
	if f.failFor[tier] {
		return nil, fmt.Errorf("tier %s failed", tier)
	}
	return &llmclient.Response{Content: "ok from " + tier, Model: "mock"}, nil
}

func TestForComplexity(t *testing.T) {
	assert.Equal(t, T0, ForComplexity(domain.ComplexityTrivial))
	assert.Equal(t, T1, ForComplexity(domain.ComplexityMedium))
	assert.Equal(t, T3, ForComplexity(domain.ComplexityComplex))
}

func TestNext(t *testing.T) {
	next, ok := Next(T0)
	assert.True(t, ok)
	assert.Equal(t, T1, next)

	_, ok = Next(T3)
	assert.False(t, ok)
}

func TestRouter_Dispatch_EscalatesOnFailure(t *testing.T) {
	fake := &fakeCompleter{failFor: map[string]bool{"T0": true, "T1": true}}
	router := NewRouter(fake)

	resp, usedTier, err := router.Dispatch(context.Background(), "wf-1", "task-1", T0, []llmclient.Message{{Role: "user", Content: "hi"}}, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, T2, usedTier)
	assert.Contains(t, resp.Content, "T2")
	assert.Equal(t, []string{"T0", "T1", "T2"}, fake.calls)
}

func TestRouter_Dispatch_NeverReselectsFailedTier(t *testing.T) {
	fake := &fakeCompleter{failFor: map[string]bool{"T0": true}}
	router := NewRouter(fake)

	_, _, err := router.Dispatch(context.Background(), "wf-1", "task-1", T0, []llmclient.Message{{Role: "user", Content: "hi"}}, nil, 0)
	require.NoError(t, err)

	// A second dispatch for the same (workflow, task) must skip T0 again
	// without calling it, even though this call starts at T0.
	fake.mu.Lock()
	fake.calls = nil
	fake.mu.Unlock()

	_, usedTier, err := router.Dispatch(context.Background(), "wf-1", "task-1", T0, []llmclient.Message{{Role: "user", Content: "hi again"}}, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, T1, usedTier)
	assert.NotContains(t, fake.calls, "T0")
}

func TestRouter_Dispatch_AllTiersExhausted(t *testing.T) {
	fake := &fakeCompleter{failFor: map[string]bool{"T0": true, "T1": true, "T2": true, "T3": true}}
	router := NewRouter(fake)

	_, _, err := router.Dispatch(context.Background(), "wf-1", "task-1", T0, []llmclient.Message{{Role: "user", Content: "hi"}}, nil, 0)
	require.Error(t, err)
}
