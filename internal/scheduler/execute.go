package scheduler

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/capsuleforge/core/internal/domain"
)

// Worker runs a single task to completion, given its context frame. It is
// implemented by internal/runtime, which wires in the tier router, the
// validation mesh, and the sandbox pool.
type Worker func(ctx context.Context, task *domain.Task, frame *ContextFrame) *domain.TaskResult

// DependencyOutput is what a completed dependency contributes to a
// downstream task's context frame.
type DependencyOutput struct {
	TaskID     string
	Payload    []byte
	Confidence float64
}

// ContextFrame is assembled per task from the shared context, direct
// dependency outputs, and pattern-cache hits, then capped in size.
type ContextFrame struct {
	Shared       *domain.SharedContext
	Dependencies []DependencyOutput
	CacheHits    []string
}

// defaultFrameCapBytes bounds the total size of a context frame; lower-confidence
// dependency payloads are dropped first when the cap would be exceeded.
const defaultFrameCapBytes = 32 * 1024

// BuildContextFrame assembles one task's context frame from the shared
// context and the results of its direct dependencies, dropping the
// lowest-confidence dependency outputs first if the total would exceed
// capBytes.
func BuildContextFrame(shared *domain.SharedContext, task *domain.Task, results map[string]*domain.TaskResult, cacheHits []string, capBytes int) *ContextFrame {
	if capBytes <= 0 {
		capBytes = defaultFrameCapBytes
	}

	deps := make([]DependencyOutput, 0, len(task.DependsOn))
	for _, depID := range task.DependsOn {
		if r, ok := results[depID]; ok && r != nil {
			deps = append(deps, DependencyOutput{TaskID: depID, Payload: r.Payload, Confidence: r.Confidence})
		}
	}

	// Sort ascending by confidence so the lowest-confidence items are the
	// ones trimmed first when the frame is over budget.
	for i := 1; i < len(deps); i++ {
		for j := i; j > 0 && deps[j].Confidence < deps[j-1].Confidence; j-- {
			deps[j], deps[j-1] = deps[j-1], deps[j]
		}
	}

	total := 0
	kept := make([]DependencyOutput, 0, len(deps))
	// Walk from highest confidence (end of the ascending-sorted slice) down,
	// keeping whatever fits; this preserves the strongest evidence first.
	for i := len(deps) - 1; i >= 0; i-- {
		total += len(deps[i].Payload)
		if total > capBytes {
			break
		}
		kept = append([]DependencyOutput{deps[i]}, kept...)
	}

	return &ContextFrame{Shared: shared, Dependencies: kept, CacheHits: cacheHits}
}

// ExecuteBatch runs every task in batch concurrently via worker, bounded
// by concurrency. A batch completes when every task terminates (success or
// failed); a single task's failure does not short-circuit its siblings.
func ExecuteBatch(ctx context.Context, batch []*domain.Task, shared *domain.SharedContext, priorResults map[string]*domain.TaskResult, concurrency int, worker Worker) map[string]*domain.TaskResult {
	if concurrency <= 0 {
		concurrency = 8
	}

	sem := semaphore.NewWeighted(int64(concurrency))
	results := make(map[string]*domain.TaskResult, len(batch))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, task := range batch {
		task := task
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				results[task.ID] = &domain.TaskResult{TaskID: task.ID, Status: domain.TaskStatusCancelled, Error: err.Error()}
				mu.Unlock()
				return
			}
			defer sem.Release(1)

			frame := BuildContextFrame(shared, task, priorResults, nil, 0)
			result := worker(ctx, task, frame)
			if result == nil {
				result = &domain.TaskResult{TaskID: task.ID, Status: domain.TaskStatusFailed, Error: "worker returned no result"}
			}

			mu.Lock()
			results[task.ID] = result
			mu.Unlock()
		}()
	}

	wg.Wait()
	return results
}
