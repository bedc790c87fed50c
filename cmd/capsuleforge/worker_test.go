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

type fakeCompleter struct {
	resp *llmclient.Response
	err  error
}

func (f *fakeCompleter) Complete(ctx context.Context, t string, messages []llmclient.Message, temperature *float64, maxTokens int) (*llmclient.Response, error) {
	return f.resp, f.err
}

func testFrame() *scheduler.ContextFrame {
	return &scheduler.ContextFrame{Shared: &domain.SharedContext{PrimaryLanguage: "go", Framework: "none", MainFileName: "main.go"}}
}

func testReq() *domain.Request {
	return &domain.Request{ID: "req-1", TenantID: "tenant-1", UserID: "user-1", Description: "build a CLI"}
}

func TestWorker_DispatchesThroughRouterAndReturnsCompleted(t *testing.T) {
	completer := &fakeCompleter{resp: &llmclient.Response{
		Content:      "package main",
		Model:        "claude-sonnet",
		FinishReason: "stop",
		Usage:        llmclient.TokenUsage{PromptTokens: 10, CompletionTokens: 20},
	}}
	router := tier.NewRouter(completer)
	w := newWorker(nil, router, nil, testReq(), "req-1")

	task := &domain.Task{ID: "implementation", Type: domain.TaskTypeImplementation, Complexity: domain.Complexity("simple")}
	result := w(context.Background(), task, testFrame())

	require.Equal(t, domain.TaskStatusCompleted, result.Status)
	assert.Equal(t, domain.OutputKindCode, result.OutputKind)
	assert.Equal(t, "package main", string(result.Payload))
	assert.InDelta(t, 0.85, result.Confidence, 0.0001)
}

func TestWorker_RouterErrorReturnsFailed(t *testing.T) {
	completer := &fakeCompleter{err: assert.AnError}
	router := tier.NewRouter(completer)
	w := newWorker(nil, router, nil, testReq(), "req-1")

	task := &domain.Task{ID: "implementation", Type: domain.TaskTypeImplementation, Complexity: domain.Complexity("simple")}
	result := w(context.Background(), task, testFrame())

	assert.Equal(t, domain.TaskStatusFailed, result.Status)
	assert.NotEmpty(t, result.Error)
}

func TestOutputKindFor_MapsTaskTypesToOutputKinds(t *testing.T) {
	assert.Equal(t, domain.OutputKindCode, outputKindFor(&domain.Task{Type: domain.TaskTypeImplementation}))
	assert.Equal(t, domain.OutputKindTests, outputKindFor(&domain.Task{Type: domain.TaskTypeTestGeneration}))
	assert.Equal(t, domain.OutputKindDocs, outputKindFor(&domain.Task{Type: domain.TaskTypeDocumentation}))
}

func TestExtractCached_RoundTripsThroughCacheableResult(t *testing.T) {
	task := &domain.Task{ID: "test_generation", Type: domain.TaskTypeTestGeneration}
	gr := cacheableResult(task, domain.OutputKindTests, "func TestX(t *testing.T) {}", 0.9)

	content, kind, ok := extractCached(task, gr)
	require.True(t, ok)
	assert.Equal(t, domain.OutputKindTests, kind)
	assert.Equal(t, "func TestX(t *testing.T) {}", content)
}

func TestExtractCached_MissingContentReturnsFalse(t *testing.T) {
	task := &domain.Task{ID: "implementation", Type: domain.TaskTypeImplementation}
	gr := domain.GenerationResult{Capsule: &domain.Capsule{SourceCode: map[string]string{}}}

	_, _, ok := extractCached(task, gr)
	assert.False(t, ok)
}

func TestBuildMessages_IncludesSystemDependencyAndTaskTurns(t *testing.T) {
	frame := &scheduler.ContextFrame{
		Shared:       &domain.SharedContext{PrimaryLanguage: "go", Framework: "none", MainFileName: "main.go"},
		Dependencies: []scheduler.DependencyOutput{{TaskID: "implementation", Payload: []byte("package main")}},
	}
	task := &domain.Task{Type: domain.TaskTypeTestGeneration, Description: "cover main"}

	messages := buildMessages(task, frame)

	require.Len(t, messages, 3)
	assert.Equal(t, "system", messages[0].Role)
	assert.Contains(t, messages[1].Content, "implementation")
	assert.Contains(t, messages[2].Content, "cover main")
}
