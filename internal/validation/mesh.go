// Package validation implements the Validation Mesh (C5): a parallel
// ensemble of syntax, style, security, type, and runtime validators that
// together produce one domain.ValidationReport per code artifact.
package validation

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/capsuleforge/core/internal/domain"
)

// Artifact is one piece of generated code to validate.
type Artifact struct {
	Language string
	Code     string
}

// runtimeCap is the hard ceiling on the throwaway execution the runtime
// validator performs, per invariant.
const runtimeCap = 30 * time.Second

// Mesh runs the five validators in parallel and rolls their checks up into
// one ValidationReport.
type Mesh struct {
	runtime *runtimeValidator
	logger  *slog.Logger
}

// NewMesh builds a Mesh. executor is nil-able: without one, the runtime
// validator reports a skipped-but-passing check instead of attempting
// execution, so a Mesh can still validate syntax/style/security/type in
// deployments with no sandbox wired.
func NewMesh(executor Executor, logger *slog.Logger) *Mesh {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mesh{
		runtime: &runtimeValidator{executor: executor, cap: runtimeCap},
		logger:  logger,
	}
}

// Run validates one artifact, fanning the five validators out concurrently.
func (m *Mesh) Run(ctx context.Context, artifact Artifact) *domain.ValidationReport {
	checks := make([]domain.ValidationCheck, 5)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { checks[0] = checkSyntax(artifact); return nil })
	g.Go(func() error { checks[1] = checkStyle(artifact); return nil })
	g.Go(func() error { checks[2] = checkSecurity(artifact); return nil })
	g.Go(func() error { checks[3] = checkType(artifact); return nil })
	g.Go(func() error { checks[4] = m.runtime.check(gctx, artifact); return nil })

	// Each validator recovers its own errors into a failed check; the
	// errgroup is used purely for the concurrency/cancellation plumbing, so
	// Wait's error is always nil here.
	_ = g.Wait()

	report := domain.NewValidationReport(checks)
	if report.RequiresHumanReview {
		m.logger.Info("validation mesh requires human review", "language", artifact.Language, "status", report.Status)
	}
	return report
}
