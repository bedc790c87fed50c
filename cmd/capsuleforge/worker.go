package main

import (
	"context"
	"fmt"
	"time"

	"github.com/capsuleforge/core/internal/costledger"
	"github.com/capsuleforge/core/internal/domain"
	"github.com/capsuleforge/core/internal/llmclient"
	"github.com/capsuleforge/core/internal/patterncache"
	"github.com/capsuleforge/core/internal/scheduler"
	"github.com/capsuleforge/core/internal/tier"
)

// newWorker builds the scheduler.Worker every workflow batch dispatches
// into: Pattern Cache, then the Agent Tier Router, then the Cost
// Accountant — the order spec.md's data-flow line gives for worker
// activities (consult C3, then C6, then the LLM, recording cost in C7).
func newWorker(cache *patterncache.Cache, router *tier.Router, ledger *costledger.Ledger, req *domain.Request, workflowID string) scheduler.Worker {
	return func(ctx context.Context, task *domain.Task, frame *scheduler.ContextFrame) *domain.TaskResult {
		start := time.Now()
		fp := patterncache.Fingerprint(task.Description, string(task.Type), requirementsFor(req))

		if cache != nil {
			if gr, ok, err := cache.Get(ctx, req.TenantID, fp); err == nil && ok {
				if payload, kind, ok := extractCached(task, *gr); ok {
					return &domain.TaskResult{
						TaskID:        task.ID,
						Status:        domain.TaskStatusCompleted,
						OutputKind:    kind,
						Payload:       []byte(payload),
						Confidence:    gr.Confidence,
						ExecutionTime: time.Since(start).Seconds(),
					}
				}
			}
		}

		startTier := tier.ForComplexity(task.Complexity)
		messages := buildMessages(task, frame)
		resp, reachedTier, err := router.Dispatch(ctx, workflowID, task.ID, startTier, messages, nil, 4096)
		if err != nil {
			return &domain.TaskResult{
				TaskID:        task.ID,
				Status:        domain.TaskStatusFailed,
				Tier:          string(reachedTier),
				Error:         err.Error(),
				ExecutionTime: time.Since(start).Seconds(),
			}
		}

		var costLedgerID string
		if ledger != nil {
			rec := ledger.Record(resp.Model, "tier-"+string(reachedTier), resp.Usage.PromptTokens, resp.Usage.CompletionTokens,
				workflowID, req.TenantID, req.UserID, task.ID, resp.LatencyMS)
			costLedgerID = rec.ID
		}

		kind := outputKindFor(task)
		confidence := estimateTaskConfidence(resp)

		if cache != nil && confidence >= domain.MinCacheReadConfidence {
			_ = cache.Put(ctx, req.TenantID, fp, cacheableResult(task, kind, resp.Content, confidence))
		}

		return &domain.TaskResult{
			TaskID:        task.ID,
			Status:        domain.TaskStatusCompleted,
			OutputKind:    kind,
			Payload:       []byte(resp.Content),
			Confidence:    confidence,
			Tier:          string(reachedTier),
			ExecutionTime: time.Since(start).Seconds(),
			CostLedgerID:  costLedgerID,
		}
	}
}

// requirementsFor returns a request's constraints as the requirements map
// the Pattern Cache fingerprints against; Fingerprint itself canonicalizes
// the map's key order.
func requirementsFor(req *domain.Request) map[string]string {
	if req.Constraints == nil {
		return nil
	}
	return req.Constraints
}

func outputKindFor(task *domain.Task) domain.OutputKind {
	switch task.Type {
	case domain.TaskTypeTestGeneration:
		return domain.OutputKindTests
	case domain.TaskTypeDocumentation:
		return domain.OutputKindDocs
	default:
		return domain.OutputKindCode
	}
}

// cacheableResult wraps one task's output in a GenerationResult so it can
// be replayed by extractCached on a future fingerprint hit. It carries
// only this task's content, not a full Capsule — the Pattern Cache is
// keyed at task granularity, not request granularity.
func cacheableResult(task *domain.Task, kind domain.OutputKind, content string, confidence float64) domain.GenerationResult {
	capsule := &domain.Capsule{SourceCode: map[string]string{}, Tests: map[string]string{}}
	switch kind {
	case domain.OutputKindTests:
		capsule.Tests[task.ID] = content
	case domain.OutputKindDocs:
		capsule.Documentation = content
	default:
		capsule.SourceCode[task.ID] = content
	}
	return domain.GenerationResult{Capsule: capsule, Confidence: confidence}
}

func extractCached(task *domain.Task, gr domain.GenerationResult) (string, domain.OutputKind, bool) {
	if gr.Capsule == nil {
		return "", "", false
	}
	kind := outputKindFor(task)
	switch kind {
	case domain.OutputKindTests:
		if content, ok := gr.Capsule.Tests[task.ID]; ok {
			return content, kind, true
		}
	case domain.OutputKindDocs:
		if gr.Capsule.Documentation != "" {
			return gr.Capsule.Documentation, kind, true
		}
	default:
		if content, ok := gr.Capsule.SourceCode[task.ID]; ok {
			return content, kind, true
		}
	}
	return "", "", false
}

// buildMessages turns a task and its context frame into the chat turns the
// LLM client expects: one system turn establishing the shared context, one
// user turn per kept dependency output, and the task's own instruction.
func buildMessages(task *domain.Task, frame *scheduler.ContextFrame) []llmclient.Message {
	messages := []llmclient.Message{
		{Role: "system", Content: systemPrompt(frame)},
	}
	for _, dep := range frame.Dependencies {
		messages = append(messages, llmclient.Message{
			Role:    "user",
			Content: fmt.Sprintf("Output from dependency %s:\n%s", dep.TaskID, string(dep.Payload)),
		})
	}
	messages = append(messages, llmclient.Message{Role: "user", Content: taskPrompt(task)})
	return messages
}

func systemPrompt(frame *scheduler.ContextFrame) string {
	if frame.Shared == nil {
		return "Generate production-quality code for the described task."
	}
	return fmt.Sprintf(
		"You are generating %s code for a %s project using the %s architecture pattern. Main file: %s.",
		frame.Shared.PrimaryLanguage, frame.Shared.Framework, frame.Shared.ArchitecturePattern, frame.Shared.MainFileName,
	)
}

func taskPrompt(task *domain.Task) string {
	switch task.Type {
	case domain.TaskTypeTestGeneration:
		return "Write tests for: " + task.Description
	case domain.TaskTypeDocumentation:
		return "Write documentation for: " + task.Description
	default:
		return "Implement: " + task.Description
	}
}

// estimateTaskConfidence derives a task-level confidence score from the
// completion's finish reason — the Confidence Engine (C8) scores the
// assembled Capsule later; this is only the per-task signal the Pattern
// Cache gates on.
func estimateTaskConfidence(resp *llmclient.Response) float64 {
	if resp.FinishReason == "stop" || resp.FinishReason == "" {
		return 0.85
	}
	return 0.6
}
