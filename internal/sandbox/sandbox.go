// Package sandbox implements the Sandbox Pool (C4): isolated, resource
// capped, network-off-by-default code execution in one-shot containers,
// with admission control bounding total concurrency and a per-tenant FIFO
// queue so one tenant cannot starve another's executions.
package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/capsuleforge/core/internal/config"
)

// Status is the terminal outcome of one execution.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusTimeout Status = "timeout"
)

// Limits bounds one execution's resource usage. A zero value on any field
// falls back to the pool's configured default.
type Limits struct {
	Timeout       time.Duration
	MemoryLimitMB int64
	CPULimit      float64
	NetworkOff    *bool
}

// Result is the outcome of one sandboxed execution.
type Result struct {
	Status       Status
	Stdout       string
	Stderr       string
	ExitCode     int
	ElapsedMS    int64
	PeakMemoryMB int64
}

// Request is one unit of sandboxed work.
type Request struct {
	TenantID string
	Code     string
	Language string
	Inputs   map[string]string
	Limits   Limits
}

// Runner executes one request against an already-prepared isolated
// environment. The default production Runner is containerRunner (in
// runner.go); tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, req Request, limits Limits) (Result, error)
}

// ErrUnsupportedLanguage is returned by Execute for a language with no
// configured image; the pool never falls back to a bare success.
type ErrUnsupportedLanguage struct {
	Language string
}

func (e *ErrUnsupportedLanguage) Error() string {
	return fmt.Sprintf("sandbox: unsupported language %q", e.Language)
}

// Pool is the isolated execution pool. A Pool is safe for concurrent use.
type Pool struct {
	cfg    config.SandboxConfig
	runner Runner
	logger *slog.Logger

	sem     *semaphore.Weighted
	tenants *tenantFIFO
}

// New builds a Pool bounded by cfg.MaxConcurrent concurrent executions.
func New(cfg config.SandboxConfig, runner Runner, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	max := cfg.MaxConcurrent
	if max <= 0 {
		max = 1
	}
	return &Pool{
		cfg:     cfg,
		runner:  runner,
		logger:  logger,
		sem:     semaphore.NewWeighted(int64(max)),
		tenants: newTenantFIFO(),
	}
}

// Languages returns the set of languages with a configured image.
func (p *Pool) Languages() map[string]bool {
	out := make(map[string]bool, len(p.cfg.Images))
	for lang := range p.cfg.Images {
		out[lang] = true
	}
	return out
}

func (p *Pool) resolveLimits(l Limits) Limits {
	if l.Timeout <= 0 {
		l.Timeout = p.cfg.Timeout
	}
	if l.MemoryLimitMB <= 0 {
		l.MemoryLimitMB = p.cfg.MemoryLimitMB
	}
	if l.CPULimit <= 0 {
		l.CPULimit = p.cfg.CPULimit
	}
	if l.NetworkOff == nil {
		networkOff := p.cfg.NetworkOff
		l.NetworkOff = &networkOff
	}
	return l
}

// Execute runs one request to completion, blocking on tenant FIFO order and
// pool-wide admission control. Unsupported languages return a structured
// error without ever touching the queue or the runner.
func (p *Pool) Execute(ctx context.Context, req Request) (Result, error) {
	if _, ok := p.cfg.Images[req.Language]; !ok {
		return Result{}, &ErrUnsupportedLanguage{Language: req.Language}
	}

	release, err := p.tenants.acquire(ctx, req.TenantID)
	if err != nil {
		return Result{}, fmt.Errorf("sandbox: tenant queue: %w", err)
	}
	defer release()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return Result{}, fmt.Errorf("sandbox: admission control: %w", err)
	}
	defer p.sem.Release(1)

	limits := p.resolveLimits(req.Limits)
	runCtx, cancel := context.WithTimeout(ctx, limits.Timeout)
	defer cancel()

	start := time.Now()
	result, err := p.runner.Run(runCtx, req, limits)
	result.ElapsedMS = time.Since(start).Milliseconds()

	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			p.logger.Warn("sandbox execution timed out", "tenant", req.TenantID, "language", req.Language)
			result.Status = StatusTimeout
			return result, nil
		}
		return Result{}, fmt.Errorf("sandbox: run: %w", err)
	}
	return result, nil
}
