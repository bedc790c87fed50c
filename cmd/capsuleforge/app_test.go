package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capsuleforge/core/internal/domain"
	"github.com/capsuleforge/core/internal/llmclient"
	"github.com/capsuleforge/core/internal/scheduler"
	"github.com/capsuleforge/core/internal/tier"
)

func TestApp_LookupUnknownWorkflowReturnsFalse(t *testing.T) {
	app := NewApp(nil, nil)
	_, _, ok := app.lookup("missing")
	assert.False(t, ok)
}

func TestApp_DispatchWorkerResolvesRegisteredRequest(t *testing.T) {
	app := NewApp(nil, nil)
	req := testReq()
	completer := &fakeCompleter{resp: &llmclient.Response{Content: "package main", FinishReason: "stop"}}

	app.mu.Lock()
	app.requests[req.ID] = req
	app.routers[req.ID] = tier.NewRouter(completer)
	app.mu.Unlock()

	task := &domain.Task{ID: "implementation", Type: domain.TaskTypeImplementation, ContextRef: req.ID}
	result := app.dispatchWorker(context.Background(), task, testFrame())

	require.Equal(t, domain.TaskStatusCompleted, result.Status)
	assert.Equal(t, "package main", string(result.Payload))
}

func TestApp_DispatchWorkerUnregisteredWorkflowFails(t *testing.T) {
	app := NewApp(nil, nil)
	task := &domain.Task{ID: "implementation", Type: domain.TaskTypeImplementation, ContextRef: "unknown-workflow"}

	result := app.dispatchWorker(context.Background(), task, &scheduler.ContextFrame{})

	assert.Equal(t, domain.TaskStatusFailed, result.Status)
	assert.Contains(t, result.Error, "unknown-workflow")
}
