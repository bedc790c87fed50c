package runtime

import (
	"context"
	"time"

	"github.com/capsuleforge/core/internal/errorsx"
)

// ActivityKind classifies an activity invocation for the purpose of
// choosing its start-to-close budget.
type ActivityKind string

const (
	ActivityLLM         ActivityKind = "llm"
	ActivitySandbox     ActivityKind = "sandbox"
	ActivityValidation  ActivityKind = "validation"
	ActivityPersistence ActivityKind = "persistence"
)

// startToClose is the per-activity-kind timeout budget.
var startToClose = map[ActivityKind]time.Duration{
	ActivityLLM:         10 * time.Minute,
	ActivitySandbox:     5 * time.Minute,
	ActivityValidation:  2 * time.Minute,
	ActivityPersistence: time.Minute,
}

// StartToClose returns the configured timeout for kind, or 5 minutes for
// an unrecognized kind.
func StartToClose(kind ActivityKind) time.Duration {
	if d, ok := startToClose[kind]; ok {
		return d
	}
	return 5 * time.Minute
}

// ActivityFunc is one attempt at an activity. It must call heartbeat
// periodically (at least every heartbeatInterval) for long-running work;
// failing to do so causes Supervise to treat the activity as lost.
type ActivityFunc func(ctx context.Context, heartbeat func()) error

// Supervise runs fn under kind's start-to-close timeout, declaring it lost
// (and returning an *errorsx.TimeoutError) if ctx expires or if fn goes
// longer than heartbeatInterval without calling heartbeat.
func Supervise(ctx context.Context, kind ActivityKind, heartbeatInterval time.Duration, fn ActivityFunc) error {
	if heartbeatInterval <= 0 {
		heartbeatInterval = 30 * time.Second
	}
	budget := StartToClose(kind)
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	beats := make(chan struct{}, 1)
	heartbeat := func() {
		select {
		case beats <- struct{}{}:
		default:
		}
	}

	done := make(chan error, 1)
	go func() {
		done <- fn(ctx, heartbeat)
	}()

	timer := time.NewTimer(heartbeatInterval)
	defer timer.Stop()
	for {
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return &errorsx.TimeoutError{Activity: string(kind), Budget: budget.String()}
		case <-beats:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(heartbeatInterval)
		case <-timer.C:
			cancel()
			return &errorsx.TimeoutError{Activity: string(kind), Budget: "heartbeat missed after " + heartbeatInterval.String()}
		}
	}
}

// RunWithRetry runs fn up to policy.MaxAttempts times, backing off between
// attempts, and stops early on a non-retryable error (errorsx.Retryable
// reports false).
func RunWithRetry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context, attempt int) error) error {
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(policy.Backoff(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if !errorsx.Retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
