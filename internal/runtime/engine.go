// Package runtime implements the Durable Workflow Runtime (C11): the
// workflow state machine, its checkpointed batch execution loop, the HITL
// review pause, and cooperative cancellation. One goroutine drives each
// running workflow's decisions; task execution within a batch may still
// run concurrently underneath it.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/capsuleforge/core/internal/confidence"
	"github.com/capsuleforge/core/internal/domain"
	"github.com/capsuleforge/core/internal/errorsx"
	"github.com/capsuleforge/core/internal/metrics"
	"github.com/capsuleforge/core/internal/progressbus"
	"github.com/capsuleforge/core/internal/scheduler"
	"github.com/capsuleforge/core/internal/store"
	"github.com/capsuleforge/core/internal/validation"
)

// Assembler is the Capsule Assembler (C12)'s contract as the runtime
// consumes it. Defined here so the runtime can be built and tested before
// C12 exists; cmd wiring supplies the real implementation.
type Assembler interface {
	Assemble(ctx context.Context, req *domain.Request, shared *domain.SharedContext, tasks []domain.Task, results map[string]*domain.TaskResult, report *domain.ValidationReport, analysis *domain.ConfidenceAnalysis) (*domain.Capsule, error)
	ErrorCapsule(req *domain.Request, results map[string]*domain.TaskResult, failures []string) *domain.ErrorCapsule
}

// Status is a snapshot of one workflow's progress, returned by Query.
type Status struct {
	WorkflowID   string
	Stage        domain.WorkflowStage
	Validation   *domain.ValidationReport
	Analysis     *domain.ConfidenceAnalysis
	Capsule      *domain.Capsule
	ErrorCapsule *domain.ErrorCapsule
	Err          string
}

// Deps wires the runtime to the rest of the system. Store, Bus, Validator,
// and Confidence may be left nil for a degraded-but-functional engine (no
// persistence / no progress events / skip that stage); Worker and
// Assembler are required to make any forward progress at all.
type Deps struct {
	Store      *store.Store
	Bus        *progressbus.Bus
	Validator  *validation.Mesh
	Confidence *confidence.Engine
	Assembler  Assembler
	Worker     scheduler.Worker

	BatchConcurrency  int
	HeartbeatInterval time.Duration
	CancelGrace       time.Duration
	HITLThreshold     float64
	HITLTimeout       time.Duration
	RetryPolicy       RetryPolicy

	Logger *slog.Logger
}

func (d *Deps) applyDefaults() {
	if d.BatchConcurrency <= 0 {
		d.BatchConcurrency = 8
	}
	if d.HeartbeatInterval <= 0 {
		d.HeartbeatInterval = 30 * time.Second
	}
	if d.CancelGrace <= 0 {
		d.CancelGrace = 10 * time.Second
	}
	if d.HITLThreshold <= 0 {
		d.HITLThreshold = 0.7
	}
	if d.HITLTimeout <= 0 {
		d.HITLTimeout = time.Hour
	}
	if d.RetryPolicy == (RetryPolicy{}) {
		d.RetryPolicy = DefaultRetryPolicy()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
}

type signal struct {
	name    string
	payload any
}

type handle struct {
	mu      sync.Mutex
	status  Status
	signals chan signal
	cancel  context.CancelFunc
	done    chan struct{}
}

// Engine runs and supervises workflows.
type Engine struct {
	deps Deps

	mu        sync.Mutex
	workflows map[string]*handle
}

// New returns a ready Engine.
func New(deps Deps) *Engine {
	deps.applyDefaults()
	return &Engine{deps: deps, workflows: make(map[string]*handle)}
}

// Start validates req, registers a new workflow, and runs it in the
// background, returning its workflow id immediately.
func (e *Engine) Start(ctx context.Context, req *domain.Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	workflowID := uuid.NewString()
	runCtx, cancel := context.WithCancel(context.Background())
	h := &handle{
		status:  Status{WorkflowID: workflowID, Stage: domain.StageCreated},
		signals: make(chan signal, 8),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	e.mu.Lock()
	e.workflows[workflowID] = h
	e.mu.Unlock()

	go e.run(runCtx, h, req, nil)
	return workflowID, nil
}

// Signal delivers a named signal ("approve", "reject", "cancel") to a
// running workflow. Cancel also cancels the workflow's context immediately
// so in-flight activities observe it without waiting for the decision loop.
func (e *Engine) Signal(workflowID, name string, payload any) error {
	h, ok := e.handle(workflowID)
	if !ok {
		return store.ErrNotFound
	}
	if name == "cancel" {
		h.cancel()
	}
	select {
	case h.signals <- signal{name: name, payload: payload}:
		return nil
	default:
		return &errorsx.ResourceExhausted{Resource: "workflow-signal-queue", Message: "workflow " + workflowID + " signal queue is full"}
	}
}

// Query returns the current status of workflowID.
func (e *Engine) Query(workflowID string) (Status, error) {
	h, ok := e.handle(workflowID)
	if !ok {
		return Status{}, store.ErrNotFound
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status, nil
}

func (e *Engine) handle(workflowID string) (*handle, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.workflows[workflowID]
	return h, ok
}

func (e *Engine) setStage(h *handle, stage domain.WorkflowStage) {
	h.mu.Lock()
	h.status.Stage = stage
	h.mu.Unlock()
}

func (e *Engine) setErr(h *handle, stage domain.WorkflowStage, err error) {
	h.mu.Lock()
	h.status.Stage = stage
	if err != nil {
		h.status.Err = err.Error()
	}
	h.mu.Unlock()
}

func (e *Engine) publish(workflowID string, kind domain.EventKind, data map[string]any) {
	if e.deps.Bus == nil {
		return
	}
	e.deps.Bus.Publish(domain.ProgressEvent{
		ID:         uuid.NewString(),
		Kind:       kind,
		Timestamp:  time.Now().UTC(),
		Source:     "runtime",
		WorkflowID: workflowID,
		Data:       data,
	})
}

// resumeState is the checkpoint payload: enough to rebuild the dependency
// graph and skip already-completed tasks on restart.
type resumeState struct {
	Request domain.Request               `json:"request"`
	Shared  domain.SharedContext         `json:"shared"`
	Tasks   []domain.Task                `json:"tasks"`
	Results map[string]domain.TaskResult `json:"results"`
}

// Resume loads workflowID's last checkpoint and continues it from the
// first non-completed batch.
func (e *Engine) Resume(ctx context.Context, workflowID string) error {
	if e.deps.Store == nil {
		return fmt.Errorf("runtime: resume requires a configured store")
	}
	cp, err := e.deps.Store.GetCheckpoint(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("runtime: load checkpoint: %w", err)
	}
	var rs resumeState
	if err := json.Unmarshal(cp.State, &rs); err != nil {
		return fmt.Errorf("runtime: decode checkpoint state: %w", err)
	}

	results := make(map[string]*domain.TaskResult, len(rs.Results))
	for id, r := range rs.Results {
		rCopy := r
		results[id] = &rCopy
	}

	runCtx, cancel := context.WithCancel(context.Background())
	h := &handle{
		status:  Status{WorkflowID: workflowID, Stage: cp.Stage},
		signals: make(chan signal, 8),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	e.mu.Lock()
	e.workflows[workflowID] = h
	e.mu.Unlock()

	go e.run(runCtx, h, &rs.Request, &resumeFrom{shared: &rs.Shared, tasks: rs.Tasks, results: results})
	return nil
}

type resumeFrom struct {
	shared  *domain.SharedContext
	tasks   []domain.Task
	results map[string]*domain.TaskResult
}

func (e *Engine) run(ctx context.Context, h *handle, req *domain.Request, resume *resumeFrom) {
	defer close(h.done)
	workflowID := h.status.WorkflowID
	e.publish(workflowID, domain.EventWorkflowStarted, nil)

	var shared *domain.SharedContext
	var graph *scheduler.DependencyGraph
	var tasks []domain.Task
	results := make(map[string]*domain.TaskResult)

	if resume != nil {
		shared = resume.shared
		tasks = resume.tasks
		results = resume.results
		var err error
		graph, err = scheduler.NewDependencyGraph(tasks)
		if err != nil {
			e.fail(ctx, h, req, results, []string{err.Error()})
			return
		}
		for id, r := range results {
			if r.Status == domain.TaskStatusCompleted {
				graph.MarkCompleted(id)
			} else if r.Status == domain.TaskStatusFailed || r.Status == domain.TaskStatusCancelled {
				graph.MarkSkipped(id)
			}
		}
	} else {
		e.setStage(h, domain.StageDecomposing)
		g, sc, err := scheduler.Decompose(req)
		if err != nil {
			e.fail(ctx, h, req, results, []string{err.Error()})
			return
		}
		graph, shared = g, sc
		tasks = collectAllTasks(g)
	}

	e.setStage(h, domain.StageExecuting)

	batchIndex := 0
	for !graph.IsEmpty() {
		if canceled := e.checkCancel(h); canceled {
			e.setStage(h, domain.StageCancelled)
			e.publish(workflowID, domain.EventWorkflowFailed, map[string]any{"reason": "cancelled"})
			return
		}

		batch := graph.ReadyTasks()
		if len(batch) == 0 {
			break
		}

		batchResults := scheduler.ExecuteBatch(ctx, batch, shared, results, e.deps.BatchConcurrency, e.wrapWorker())
		metrics.SchedulerBatchesTotal.Inc()
		for _, t := range batch {
			r, ok := batchResults[t.ID]
			if !ok {
				continue
			}
			results[t.ID] = r
			metrics.SchedulerTasksTotal.WithLabelValues(string(r.Status)).Inc()
			if r.Status == domain.TaskStatusCompleted {
				graph.MarkCompleted(t.ID)
			} else {
				graph.MarkSkipped(t.ID)
			}
		}

		batchIndex++
		e.checkpoint(ctx, workflowID, domain.StageExecuting, batchIndex, req, shared, tasks, results)
		e.publish(workflowID, domain.EventActivityCompleted, map[string]any{"batch_index": batchIndex})
	}

	successCount := 0
	var failures []string
	for _, r := range results {
		if r.Status == domain.TaskStatusCompleted {
			successCount++
		} else if r.Error != "" {
			failures = append(failures, r.Error)
		}
	}
	if successCount == 0 {
		e.fail(ctx, h, req, results, failures)
		return
	}

	e.setStage(h, domain.StageValidating)
	var report *domain.ValidationReport
	if e.deps.Validator != nil {
		artifact := validation.Artifact{Language: shared.PrimaryLanguage, Code: collectSource(results)}
		report = e.deps.Validator.Run(ctx, artifact)
	}

	e.setStage(h, domain.StageScoring)
	var analysis *domain.ConfidenceAnalysis
	if e.deps.Confidence != nil {
		in := confidence.Input{Capsule: protoCapsule(shared, results), Validation: report}
		analysis = e.deps.Confidence.Analyze(ctx, in)
	}

	h.mu.Lock()
	h.status.Validation = report
	h.status.Analysis = analysis
	h.mu.Unlock()

	if analysis != nil && (analysis.HumanReviewRequired || analysis.Overall < e.deps.HITLThreshold) {
		if !e.awaitHumanReview(h, workflowID) {
			return
		}
	}

	e.setStage(h, domain.StageAssembling)
	if e.deps.Assembler == nil {
		e.fail(ctx, h, req, results, append(failures, "no assembler configured"))
		return
	}
	// Assemble persists the capsule itself (store first, vector index
	// best-effort second) — see the canonical-capsule-creation-path
	// decision: the runtime never writes capsules directly.
	capsule, err := e.deps.Assembler.Assemble(ctx, req, shared, tasks, results, report, analysis)
	if err != nil {
		e.fail(ctx, h, req, results, append(failures, err.Error()))
		return
	}

	h.mu.Lock()
	h.status.Capsule = capsule
	h.status.Stage = domain.StageCompleted
	h.mu.Unlock()
	e.publish(workflowID, domain.EventWorkflowCompleted, map[string]any{"capsule_id": capsule.ID})
}

// awaitHumanReview blocks the workflow loop in HITL_REVIEW until an
// approve/reject signal arrives or HITLTimeout elapses (which fails the
// workflow). Returns true if the workflow should continue to assembling.
func (e *Engine) awaitHumanReview(h *handle, workflowID string) bool {
	e.setStage(h, domain.StageHumanReview)
	e.publish(workflowID, domain.EventStatus, map[string]any{"stage": string(domain.StageHumanReview)})

	timer := time.NewTimer(e.deps.HITLTimeout)
	defer timer.Stop()
	for {
		select {
		case sig := <-h.signals:
			switch sig.name {
			case "approve":
				return true
			case "reject":
				e.setErr(h, domain.StageFailed, fmt.Errorf("human review rejected"))
				e.publish(workflowID, domain.EventWorkflowFailed, map[string]any{"reason": "human review rejected"})
				return false
			case "cancel":
				e.setStage(h, domain.StageCancelled)
				return false
			}
		case <-timer.C:
			e.setErr(h, domain.StageFailed, fmt.Errorf("human review timed out"))
			e.publish(workflowID, domain.EventWorkflowFailed, map[string]any{"reason": "human review timeout"})
			return false
		}
	}
}

func (e *Engine) checkCancel(h *handle) bool {
	select {
	case sig := <-h.signals:
		if sig.name == "cancel" {
			return true
		}
	default:
	}
	return false
}

func (e *Engine) fail(ctx context.Context, h *handle, req *domain.Request, results map[string]*domain.TaskResult, failures []string) {
	workflowID := h.status.WorkflowID
	var errCapsule *domain.ErrorCapsule
	if e.deps.Assembler != nil {
		errCapsule = e.deps.Assembler.ErrorCapsule(req, results, failures)
	}
	h.mu.Lock()
	h.status.Stage = domain.StageFailed
	h.status.ErrorCapsule = errCapsule
	if len(failures) > 0 {
		h.status.Err = failures[0]
	}
	h.mu.Unlock()
	e.publish(workflowID, domain.EventWorkflowFailed, map[string]any{"failures": failures})
}

func (e *Engine) checkpoint(ctx context.Context, workflowID string, stage domain.WorkflowStage, batchIndex int, req *domain.Request, shared *domain.SharedContext, tasks []domain.Task, results map[string]*domain.TaskResult) {
	if e.deps.Store == nil {
		return
	}
	statuses := make(map[string]domain.TaskStatus, len(results))
	plainResults := make(map[string]domain.TaskResult, len(results))
	for id, r := range results {
		statuses[id] = r.Status
		plainResults[id] = *r
	}
	state, err := json.Marshal(resumeState{Request: *req, Shared: *shared, Tasks: tasks, Results: plainResults})
	if err != nil {
		e.deps.Logger.Error("runtime: failed to encode checkpoint state", "workflow_id", workflowID, "error", err)
		return
	}
	cp := &domain.WorkflowCheckpoint{
		WorkflowID:     workflowID,
		Stage:          stage,
		LastBatchIndex: batchIndex,
		TaskStatuses:   statuses,
		State:          state,
		UpdatedAt:      time.Now().UTC(),
	}
	if err := e.deps.Store.PutCheckpoint(ctx, cp); err != nil {
		e.deps.Logger.Error("runtime: failed to persist checkpoint", "workflow_id", workflowID, "error", err)
	}
}

// wrapWorker adapts the configured Worker with the heartbeat/retry
// contract every activity invocation carries.
func (e *Engine) wrapWorker() scheduler.Worker {
	worker := e.deps.Worker
	policy := e.deps.RetryPolicy
	heartbeatEvery := e.deps.HeartbeatInterval
	return func(ctx context.Context, task *domain.Task, frame *scheduler.ContextFrame) *domain.TaskResult {
		var result *domain.TaskResult
		_ = RunWithRetry(ctx, policy, func(ctx context.Context, attempt int) error {
			var activityErr error
			superviseErr := Supervise(ctx, ActivityLLM, heartbeatEvery, func(ctx context.Context, heartbeat func()) error {
				heartbeat()
				result = worker(ctx, task, frame)
				if result != nil && result.Status == domain.TaskStatusFailed {
					activityErr = &errorsx.DependencyError{Dependency: "task-worker", Cause: fmt.Errorf("%s", result.Error)}
				}
				return nil
			})
			if superviseErr != nil {
				return superviseErr
			}
			if activityErr != nil {
				result.RetryCount = attempt - 1
				return activityErr
			}
			return nil
		})
		if result == nil {
			result = &domain.TaskResult{TaskID: task.ID, Status: domain.TaskStatusFailed, Error: "activity lost: no heartbeat"}
		}
		return result
	}
}

func collectAllTasks(g *scheduler.DependencyGraph) []domain.Task {
	var tasks []domain.Task
	for _, batch := range g.PlanBatches() {
		for _, t := range batch {
			tasks = append(tasks, *t)
		}
	}
	return tasks
}

func collectSource(results map[string]*domain.TaskResult) string {
	var code string
	for _, r := range results {
		if r.Status != domain.TaskStatusCompleted || r.OutputKind != domain.OutputKindCode {
			continue
		}
		code += string(r.Payload) + "\n"
	}
	return code
}

func protoCapsule(shared *domain.SharedContext, results map[string]*domain.TaskResult) domain.Capsule {
	c := domain.Capsule{SourceCode: map[string]string{}, Tests: map[string]string{}}
	i := 0
	for id, r := range results {
		if r.Status != domain.TaskStatusCompleted {
			continue
		}
		switch r.OutputKind {
		case domain.OutputKindTests:
			c.Tests[id+"_test"] = string(r.Payload)
		case domain.OutputKindDocs:
			c.Documentation += string(r.Payload) + "\n"
		case domain.OutputKindCode:
			name := shared.MainFileName
			if i > 0 {
				name = fmt.Sprintf("%s_%d", shared.MainFileName, i)
			}
			c.SourceCode[name] = string(r.Payload)
			i++
		}
	}
	return c
}
