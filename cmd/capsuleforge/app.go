package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/capsuleforge/core/internal/assembler"
	"github.com/capsuleforge/core/internal/config"
	"github.com/capsuleforge/core/internal/confidence"
	"github.com/capsuleforge/core/internal/costledger"
	"github.com/capsuleforge/core/internal/domain"
	"github.com/capsuleforge/core/internal/llmclient"
	"github.com/capsuleforge/core/internal/patterncache"
	"github.com/capsuleforge/core/internal/progressbus"
	"github.com/capsuleforge/core/internal/runtime"
	"github.com/capsuleforge/core/internal/sandbox"
	"github.com/capsuleforge/core/internal/scheduler"
	"github.com/capsuleforge/core/internal/store"
	"github.com/capsuleforge/core/internal/tier"
	"github.com/capsuleforge/core/internal/validation"
	"github.com/capsuleforge/core/internal/vectorindex"
)

// App wires every orchestrator component together into one running
// process. Vector Index and Pattern Cache are optional: without a
// configured DSN or Redis address, the rest of the pipeline still runs in
// a degraded mode (no similarity search, no cross-request cache hits —
// every other stage still runs).
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	store   *store.Store
	index   *vectorindex.Index
	cache   *patterncache.Cache
	sandbox *sandbox.Pool
	ledger  *costledger.Ledger
	bus     *progressbus.Bus
	engine  *runtime.Engine

	mu       sync.Mutex
	requests map[string]*domain.Request // keyed by request id == shared context workflow id
	routers  map[string]*tier.Router    // one Agent Tier Router per in-flight request, for its escalation memory
}

// NewApp constructs an App from cfg but does not yet connect to anything —
// that happens in Start.
func NewApp(cfg *config.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		cfg:      cfg,
		logger:   logger,
		requests: make(map[string]*domain.Request),
		routers:  make(map[string]*tier.Router),
	}
}

// Start connects every backing service and assembles the runtime Engine.
func (a *App) Start(ctx context.Context) error {
	var err error

	a.store, err = store.Open(ctx, a.cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	if a.cfg.VectorIndex.DSN != "" {
		a.index, err = vectorindex.Open(ctx, a.cfg.VectorIndex)
		if err != nil {
			a.logger.Warn("vector index unavailable, continuing without similarity search", "error", err)
			a.index = nil
		}
	}

	a.cache, err = patterncache.Open(ctx, a.cfg.Cache)
	if err != nil {
		a.logger.Warn("pattern cache unavailable, continuing without one", "error", err)
		a.cache = nil
	}

	runner := sandbox.NewContainerRunner(a.cfg.Sandbox)
	a.sandbox = sandbox.New(a.cfg.Sandbox, runner, a.logger)

	a.ledger = costledger.New(a.store, a.logger)
	a.bus = progressbus.New()

	asm := assembler.New(a.store, nil, a.logger) // no embeddings client in the pack; Vector Index writes stay best-effort/nil

	a.engine = runtime.New(runtime.Deps{
		Store:             a.store,
		Bus:               a.bus,
		Validator:         validation.NewMesh(a.sandbox, a.logger),
		Confidence:        confidence.NewEngine(),
		Assembler:         asm,
		Worker:            a.dispatchWorker,
		BatchConcurrency:  a.cfg.Scheduler.BatchConcurrency,
		HeartbeatInterval: a.cfg.Runtime.HeartbeatInterval,
		CancelGrace:       a.cfg.Runtime.CancelGrace,
		Logger:            a.logger,
	})

	a.logger.Info("capsuleforge started")
	return nil
}

// dispatchWorker is the single scheduler.Worker the Engine is configured
// with. It resolves the request and Agent Tier Router for the task's
// workflow — via task.ContextRef, which Decompose always sets to the
// Shared Context's workflow id (the request id, known since Submit,
// distinct from the Engine-internal workflow id the Engine itself assigns)
// — then delegates to newWorker's per-task pipeline.
func (a *App) dispatchWorker(ctx context.Context, task *domain.Task, frame *scheduler.ContextFrame) *domain.TaskResult {
	req, router, ok := a.lookup(task.ContextRef)
	if !ok {
		return &domain.TaskResult{TaskID: task.ID, Status: domain.TaskStatusFailed, Error: "capsuleforge: no request registered for workflow " + task.ContextRef}
	}
	return newWorker(a.cache, router, a.ledger, req, task.ContextRef)(ctx, task, frame)
}

func (a *App) lookup(requestID string) (*domain.Request, *tier.Router, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	req, ok := a.requests[requestID]
	if !ok {
		return nil, nil, false
	}
	return req, a.routers[requestID], true
}

// newRouter builds a fresh Agent Tier Router from the configured tier
// endpoints. Each submission gets its own so escalation memory never leaks
// between unrelated requests.
func (a *App) newRouter() *tier.Router {
	endpoints := make(map[string]*llmclient.EndpointConfig, len(a.cfg.Tier.Endpoints))
	models := map[string]string{
		string(tier.T0): "claude-haiku",
		string(tier.T1): "claude-sonnet",
		string(tier.T2): "claude-sonnet",
		string(tier.T3): "claude-opus",
	}
	for t, url := range a.cfg.Tier.Endpoints {
		endpoints[t] = &llmclient.EndpointConfig{
			Tier:     t,
			Provider: "anthropic",
			Model:    models[t],
			URL:      url,
		}
	}
	registry := llmclient.NewRegistry(endpoints)
	client := llmclient.NewClient(registry, llmclient.WithLogger(a.logger))
	return tier.NewRouter(client)
}

// Submit registers req and starts it running as a workflow, returning its
// workflow id immediately.
func (a *App) Submit(ctx context.Context, req *domain.Request) (string, error) {
	a.mu.Lock()
	a.requests[req.ID] = req
	a.routers[req.ID] = a.newRouter()
	a.mu.Unlock()

	workflowID, err := a.engine.Start(ctx, req)
	if err != nil {
		a.mu.Lock()
		delete(a.requests, req.ID)
		delete(a.routers, req.ID)
		a.mu.Unlock()
	}
	return workflowID, err
}

// Status returns the current snapshot of a running or finished workflow.
func (a *App) Status(workflowID string) (runtime.Status, error) {
	return a.engine.Query(workflowID)
}

// Signal delivers an "approve", "reject", or "cancel" decision to a
// workflow paused in human review (or forces early cancellation).
func (a *App) Signal(workflowID, name string) error {
	return a.engine.Signal(workflowID, name, nil)
}

// Shutdown drains every backing connection within timeout.
func (a *App) Shutdown(timeout time.Duration) {
	if a.bus != nil {
		a.bus.Close()
	}
	if a.ledger != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := a.ledger.Close(ctx); err != nil {
			a.logger.Error("cost ledger drain failed", "error", err)
		}
	}
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.index != nil {
		a.index.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}
