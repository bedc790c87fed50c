package tier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/capsuleforge/core/internal/llmclient"
)

// Completer is the subset of llmclient.Client the router needs, so tests
// can substitute a fake.
type Completer interface {
	Complete(ctx context.Context, tier string, messages []llmclient.Message, temperature *float64, maxTokens int) (*llmclient.Response, error)
}

// Router selects a tier for a task, invokes the LLM client against it, and
// escalates to the next tier on failure. It never reselects a tier that
// has already failed for the same (workflow, task) pair.
type Router struct {
	client Completer

	mu        sync.Mutex
	breakers  map[Tier]*gobreaker.CircuitBreaker
	attempted map[string]map[Tier]bool // workflowID/taskID -> tiers already failed
}

// NewRouter builds a Router with a gobreaker circuit per tier, so a tier
// that is failing broadly (across workflows) is skipped quickly instead of
// retried into a downstream timeout.
func NewRouter(client Completer) *Router {
	r := &Router{
		client:    client,
		breakers:  make(map[Tier]*gobreaker.CircuitBreaker, len(Ordered)),
		attempted: make(map[string]map[Tier]bool),
	}
	for _, t := range Ordered {
		t := t
		r.breakers[t] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        string(t),
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		})
	}
	return r
}

// attemptKey scopes the never-reselect-failed-tier rule to one (workflow,
// task) pair.
func attemptKey(workflowID, taskID string) string {
	return workflowID + "/" + taskID
}

// Dispatch runs messages starting at startTier, escalating through
// stronger tiers on failure. It stops and returns an error once every tier
// at or above startTier has been tried, or the ceiling tier fails.
func (r *Router) Dispatch(ctx context.Context, workflowID, taskID string, startTier Tier, messages []llmclient.Message, temperature *float64, maxTokens int) (*llmclient.Response, Tier, error) {
	key := attemptKey(workflowID, taskID)

	current := startTier
	for {
		if r.alreadyFailed(key, current) {
			next, ok := Next(current)
			if !ok {
				return nil, current, fmt.Errorf("tier %s already failed for %s and no higher tier remains", current, key)
			}
			current = next
			continue
		}

		resp, err := r.callTier(ctx, current, messages, temperature, maxTokens)
		if err == nil {
			return resp, current, nil
		}

		r.markFailed(key, current)

		next, ok := Next(current)
		if !ok {
			return nil, current, fmt.Errorf("all tiers exhausted for %s: %w", key, err)
		}
		current = next
	}
}

func (r *Router) callTier(ctx context.Context, t Tier, messages []llmclient.Message, temperature *float64, maxTokens int) (*llmclient.Response, error) {
	r.mu.Lock()
	cb := r.breakers[t]
	r.mu.Unlock()
	if cb == nil {
		return r.client.Complete(ctx, string(t), messages, temperature, maxTokens)
	}

	result, err := cb.Execute(func() (interface{}, error) {
		return r.client.Complete(ctx, string(t), messages, temperature, maxTokens)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("tier %s circuit open: %w", t, err)
		}
		return nil, err
	}
	return result.(*llmclient.Response), nil
}

func (r *Router) alreadyFailed(key string, t Tier) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempted[key][t]
}

func (r *Router) markFailed(key string, t Tier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.attempted[key] == nil {
		r.attempted[key] = make(map[Tier]bool)
	}
	r.attempted[key][t] = true
}

// Reset clears the failed-tier memory for a (workflow, task) pair. Called
// once the task's final outcome (success or terminal failure) is recorded,
// so the map does not grow unbounded across a long-lived process.
func (r *Router) Reset(workflowID, taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.attempted, attemptKey(workflowID, taskID))
}
