package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/capsuleforge/core/internal/domain"
)

func TestBuildContextFrame_DropsLowestConfidenceFirstWhenOverCap(t *testing.T) {
	task := &domain.Task{ID: "t", DependsOn: []string{"a", "b"}}
	results := map[string]*domain.TaskResult{
		"a": {TaskID: "a", Payload: make([]byte, 20), Confidence: 0.3},
		"b": {TaskID: "b", Payload: make([]byte, 20), Confidence: 0.9},
	}

	frame := BuildContextFrame(nil, task, results, nil, 25)
	assert.Len(t, frame.Dependencies, 1)
	assert.Equal(t, "b", frame.Dependencies[0].TaskID)
}

func TestBuildContextFrame_KeepsAllWhenUnderCap(t *testing.T) {
	task := &domain.Task{ID: "t", DependsOn: []string{"a", "b"}}
	results := map[string]*domain.TaskResult{
		"a": {TaskID: "a", Payload: make([]byte, 5), Confidence: 0.3},
		"b": {TaskID: "b", Payload: make([]byte, 5), Confidence: 0.9},
	}

	frame := BuildContextFrame(nil, task, results, nil, 1000)
	assert.Len(t, frame.Dependencies, 2)
}

func TestExecuteBatch_RunsAllTasksEvenOnPartialFailure(t *testing.T) {
	batch := []*domain.Task{{ID: "ok"}, {ID: "bad"}}
	worker := func(ctx context.Context, task *domain.Task, frame *ContextFrame) *domain.TaskResult {
		if task.ID == "bad" {
			return &domain.TaskResult{TaskID: task.ID, Status: domain.TaskStatusFailed, Error: "boom"}
		}
		return &domain.TaskResult{TaskID: task.ID, Status: domain.TaskStatusCompleted, Confidence: 0.9}
	}

	results := ExecuteBatch(context.Background(), batch, &domain.SharedContext{}, nil, 2, worker)
	assert.Len(t, results, 2)
	assert.Equal(t, domain.TaskStatusCompleted, results["ok"].Status)
	assert.Equal(t, domain.TaskStatusFailed, results["bad"].Status)
}

func TestExecuteBatch_NilWorkerResultBecomesFailed(t *testing.T) {
	batch := []*domain.Task{{ID: "t"}}
	worker := func(ctx context.Context, task *domain.Task, frame *ContextFrame) *domain.TaskResult {
		return nil
	}

	results := ExecuteBatch(context.Background(), batch, &domain.SharedContext{}, nil, 1, worker)
	assert.Equal(t, domain.TaskStatusFailed, results["t"].Status)
}
