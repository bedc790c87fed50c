package runtime

import "time"

// RetryPolicy is the exponential-backoff contract every activity invocation
// is wrapped with: initial 1s, doubling each attempt, capped at 60s, at
// most 3 attempts total.
type RetryPolicy struct {
	InitialBackoff time.Duration
	Factor         float64
	MaxBackoff     time.Duration
	MaxAttempts    int
}

// DefaultRetryPolicy returns the spec's default retry tuning.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialBackoff: time.Second,
		Factor:         2.0,
		MaxBackoff:     60 * time.Second,
		MaxAttempts:    3,
	}
}

// Backoff returns the delay to wait before attempt number `attempt`
// (1-indexed: the delay before the 2nd attempt, 3rd attempt, and so on).
// attempt <= 1 waits no time at all, since the first attempt is immediate.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	d := p.InitialBackoff
	for i := 1; i < attempt-1; i++ {
		d = time.Duration(float64(d) * p.Factor)
		if d > p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}
