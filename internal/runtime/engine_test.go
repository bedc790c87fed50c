package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capsuleforge/core/internal/confidence"
	"github.com/capsuleforge/core/internal/domain"
	"github.com/capsuleforge/core/internal/progressbus"
	"github.com/capsuleforge/core/internal/scheduler"
	"github.com/capsuleforge/core/internal/validation"
)

type fakeAssembler struct {
	assembleErr error
}

func (a *fakeAssembler) Assemble(ctx context.Context, req *domain.Request, shared *domain.SharedContext, tasks []domain.Task, results map[string]*domain.TaskResult, report *domain.ValidationReport, analysis *domain.ConfidenceAnalysis) (*domain.Capsule, error) {
	if a.assembleErr != nil {
		return nil, a.assembleErr
	}
	return &domain.Capsule{ID: "capsule-" + req.ID, RequestID: req.ID, Manifest: domain.Manifest{Name: req.ID, Language: shared.PrimaryLanguage}}, nil
}

func (a *fakeAssembler) ErrorCapsule(req *domain.Request, results map[string]*domain.TaskResult, failures []string) *domain.ErrorCapsule {
	statuses := make(map[string]domain.TaskStatus, len(results))
	for id, r := range results {
		statuses[id] = r.Status
	}
	return &domain.ErrorCapsule{ID: "err-" + req.ID, RequestID: req.ID, Reason: "no successful tasks", Failures: failures, TaskStatuses: statuses}
}

// successWorker completes every task instantly with an output matching its
// declared type, so the whole pipeline can run end to end without a real
// tier router or sandbox.
func successWorker(ctx context.Context, task *domain.Task, frame *scheduler.ContextFrame) *domain.TaskResult {
	kind := domain.OutputKindCode
	payload := "package main\nfunc main() {}\n"
	switch task.Type {
	case domain.TaskTypeTestGeneration:
		kind = domain.OutputKindTests
		payload = "package main\nfunc TestMain(t *testing.T) {}\n"
	case domain.TaskTypeDocumentation:
		kind = domain.OutputKindDocs
		payload = "# docs\n"
	}
	return &domain.TaskResult{
		TaskID:     task.ID,
		Status:     domain.TaskStatusCompleted,
		OutputKind: kind,
		Payload:    []byte(payload),
		Confidence: 0.9,
	}
}

func failWorker(ctx context.Context, task *domain.Task, frame *scheduler.ContextFrame) *domain.TaskResult {
	return &domain.TaskResult{TaskID: task.ID, Status: domain.TaskStatusFailed, Error: "synthetic failure"}
}

func testRequest(id string) *domain.Request {
	return &domain.Request{ID: id, TenantID: "tenant-1", UserID: "user-1", Description: "build a small CLI tool"}
}

func waitForStage(t *testing.T, e *Engine, workflowID string, stage domain.WorkflowStage, timeout time.Duration) Status {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		st, err := e.Query(workflowID)
		require.NoError(t, err)
		if st.Stage == stage {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for stage %s, last seen %s (err=%s)", stage, st.Stage, st.Err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEngine_Start_RunsToCompletion(t *testing.T) {
	bus := progressbus.New()
	defer bus.Close()

	e := New(Deps{
		Bus:           bus,
		Validator:     validation.NewMesh(nil, nil),
		Confidence:    confidence.NewEngine(),
		Assembler:     &fakeAssembler{},
		Worker:        successWorker,
		HITLThreshold: 0.01, // low enough that this test's scores never trigger review
	})

	workflowID, err := e.Start(context.Background(), testRequest("req-1"))
	require.NoError(t, err)

	st := waitForStage(t, e, workflowID, domain.StageCompleted, 2*time.Second)
	require.NotNil(t, st.Capsule)
	assert.Equal(t, "capsule-req-1", st.Capsule.ID)
	assert.NotNil(t, st.Validation)
}

func TestEngine_Start_AllTasksFailProducesErrorCapsule(t *testing.T) {
	e := New(Deps{
		Assembler: &fakeAssembler{},
		Worker:    failWorker,
	})

	workflowID, err := e.Start(context.Background(), testRequest("req-2"))
	require.NoError(t, err)

	// The default retry policy backs off 1s then 2s before the third and
	// final attempt, so the failure surfaces after roughly 3s.
	st := waitForStage(t, e, workflowID, domain.StageFailed, 10*time.Second)
	require.NotNil(t, st.ErrorCapsule)
	assert.Equal(t, "err-req-2", st.ErrorCapsule.ID)
	assert.NotEmpty(t, st.ErrorCapsule.Failures)
}

func TestEngine_HumanReview_ApproveResumesToCompletion(t *testing.T) {
	e := New(Deps{
		Confidence:    confidence.NewEngine(),
		Assembler:     &fakeAssembler{},
		Worker:        successWorker,
		HITLThreshold: 2.0, // force review regardless of score
		HITLTimeout:   2 * time.Second,
	})

	workflowID, err := e.Start(context.Background(), testRequest("req-3"))
	require.NoError(t, err)

	waitForStage(t, e, workflowID, domain.StageHumanReview, 2*time.Second)
	require.NoError(t, e.Signal(workflowID, "approve", nil))

	st := waitForStage(t, e, workflowID, domain.StageCompleted, 2*time.Second)
	require.NotNil(t, st.Capsule)
}

func TestEngine_HumanReview_RejectFailsWorkflow(t *testing.T) {
	e := New(Deps{
		Confidence:    confidence.NewEngine(),
		Assembler:     &fakeAssembler{},
		Worker:        successWorker,
		HITLThreshold: 2.0,
		HITLTimeout:   2 * time.Second,
	})

	workflowID, err := e.Start(context.Background(), testRequest("req-4"))
	require.NoError(t, err)

	waitForStage(t, e, workflowID, domain.StageHumanReview, 2*time.Second)
	require.NoError(t, e.Signal(workflowID, "reject", nil))

	st := waitForStage(t, e, workflowID, domain.StageFailed, 2*time.Second)
	assert.Contains(t, st.Err, "rejected")
}

func TestEngine_HumanReview_TimeoutFailsWorkflow(t *testing.T) {
	e := New(Deps{
		Confidence:    confidence.NewEngine(),
		Assembler:     &fakeAssembler{},
		Worker:        successWorker,
		HITLThreshold: 2.0,
		HITLTimeout:   20 * time.Millisecond,
	})

	workflowID, err := e.Start(context.Background(), testRequest("req-5"))
	require.NoError(t, err)

	st := waitForStage(t, e, workflowID, domain.StageFailed, 2*time.Second)
	assert.Contains(t, st.Err, "timed out")
}

func TestEngine_Signal_UnknownWorkflowReturnsNotFound(t *testing.T) {
	e := New(Deps{Assembler: &fakeAssembler{}, Worker: successWorker})
	err := e.Signal("does-not-exist", "approve", nil)
	assert.Error(t, err)
}

func TestEngine_Query_UnknownWorkflowReturnsNotFound(t *testing.T) {
	e := New(Deps{Assembler: &fakeAssembler{}, Worker: successWorker})
	_, err := e.Query("does-not-exist")
	assert.Error(t, err)
}
