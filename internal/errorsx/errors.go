// Package errorsx implements the error taxonomy used across the orchestrator:
// which failures are retried, which abort a workflow, and which are simply
// cooperative cancellation.
package errorsx

import "fmt"

// ValidationError indicates bad input. It surfaces to the caller and is
// never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// DependencyError indicates an external service (LLM backend, sandbox,
// store, vector index) failed or is unavailable. Retried with backoff.
type DependencyError struct {
	Dependency string
	Cause      error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("dependency %s: %v", e.Dependency, e.Cause)
}

func (e *DependencyError) Unwrap() error { return e.Cause }

// TimeoutError indicates an activity exceeded its start-to-close budget.
// Retried until max attempts.
type TimeoutError struct {
	Activity string
	Budget   string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("activity %s exceeded timeout %s", e.Activity, e.Budget)
}

// ResourceExhausted indicates a bounded resource (sandbox queue, cache
// capacity) is saturated. Backed off; surfaced if persistent.
type ResourceExhausted struct {
	Resource string
	Message  string
}

func (e *ResourceExhausted) Error() string {
	return fmt.Sprintf("resource exhausted: %s: %s", e.Resource, e.Message)
}

// IntegrityError indicates an invariant violation (dependency cycle,
// terminal-status re-write). The only class that aborts a workflow outright.
type IntegrityError struct {
	Invariant string
	Message   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation (%s): %s", e.Invariant, e.Message)
}

// Cancelled indicates cooperative cancellation. Not an error in the
// conventional sense, but satisfies the error interface so it can be
// returned and matched via errors.As like the other taxonomy members.
type Cancelled struct {
	Reason string
}

func (e *Cancelled) Error() string {
	if e.Reason == "" {
		return "cancelled"
	}
	return fmt.Sprintf("cancelled: %s", e.Reason)
}

// Retryable reports whether err belongs to a class the runtime should retry
// (DependencyError, TimeoutError, ResourceExhausted). ValidationError,
// IntegrityError, and Cancelled are never retried.
func Retryable(err error) bool {
	switch err.(type) {
	case *DependencyError, *TimeoutError, *ResourceExhausted:
		return true
	default:
		return false
	}
}
