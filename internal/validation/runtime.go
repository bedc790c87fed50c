package validation

import (
	"context"
	"time"

	"github.com/capsuleforge/core/internal/domain"
	"github.com/capsuleforge/core/internal/sandbox"
)

// Executor runs one artifact in an isolated environment. internal/sandbox's
// *Pool satisfies this directly.
type Executor interface {
	Execute(ctx context.Context, req sandbox.Request) (sandbox.Result, error)
}

type runtimeValidator struct {
	executor Executor
	cap      time.Duration
}

// check executes the artifact in a throwaway sandbox capped at the
// validator's runtime budget. A non-zero exit fails the check; a timeout
// also fails it, since a runtime check that cannot finish cannot pass.
func (v *runtimeValidator) check(ctx context.Context, a Artifact) domain.ValidationCheck {
	result := domain.ValidationCheck{Name: "runtime", Kind: "runtime"}

	if v.executor == nil {
		result.Status = domain.CheckStatusPassed
		result.Message = "runtime validation skipped: no sandbox configured"
		return result
	}

	runCtx, cancel := context.WithTimeout(ctx, v.cap)
	defer cancel()

	res, err := v.executor.Execute(runCtx, sandbox.Request{
		Language: a.Language,
		Code:     a.Code,
		Limits:   sandbox.Limits{Timeout: v.cap},
	})
	if err != nil {
		result.Status = domain.CheckStatusFailed
		result.Severity = domain.SeverityHigh
		result.Message = err.Error()
		return result
	}

	switch res.Status {
	case sandbox.StatusSuccess:
		result.Status = domain.CheckStatusPassed
	case sandbox.StatusTimeout:
		result.Status = domain.CheckStatusFailed
		result.Severity = domain.SeverityHigh
		result.Message = "runtime check exceeded its cap"
	default:
		result.Status = domain.CheckStatusFailed
		result.Severity = domain.SeverityMedium
		result.Details = res.Stderr
		result.Message = "non-zero exit during runtime check"
	}
	return result
}
