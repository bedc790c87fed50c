// Package scheduler implements the Task Scheduler (C10): decomposition of
// a Request into a dependency graph, Kahn-style batch planning, and
// bounded-concurrency batch execution.
package scheduler

import (
	"sync"

	"github.com/capsuleforge/core/internal/domain"
	"github.com/capsuleforge/core/internal/errorsx"
)

// DependencyGraph tracks unmet-dependency counts for a set of tasks and
// yields newly-ready tasks as dependencies complete. Safe for concurrent
// use.
type DependencyGraph struct {
	mu         sync.Mutex
	tasks      map[string]*domain.Task
	inDegree   map[string]int
	dependents map[string][]string
}

// NewDependencyGraph builds a graph from tasks, refusing cyclic or
// dangling dependency references.
func NewDependencyGraph(tasks []domain.Task) (*DependencyGraph, error) {
	g := &DependencyGraph{
		tasks:      make(map[string]*domain.Task, len(tasks)),
		inDegree:   make(map[string]int, len(tasks)),
		dependents: make(map[string][]string, len(tasks)),
	}

	for i := range tasks {
		t := &tasks[i]
		g.tasks[t.ID] = t
		g.inDegree[t.ID] = 0
		g.dependents[t.ID] = nil
	}

	for _, t := range tasks {
		for _, depID := range t.DependsOn {
			if _, exists := g.tasks[depID]; !exists {
				return nil, &errorsx.IntegrityError{
					Invariant: "dependency-exists",
					Message:   "task " + t.ID + " depends on non-existent task " + depID,
				}
			}
			g.inDegree[t.ID]++
			g.dependents[depID] = append(g.dependents[depID], t.ID)
		}
	}

	if err := g.detectCycles(); err != nil {
		return nil, err
	}

	return g, nil
}

// detectCycles runs Kahn's algorithm; if fewer tasks are processed than
// exist in the graph, a cycle is present.
func (g *DependencyGraph) detectCycles() error {
	tempDegree := make(map[string]int, len(g.inDegree))
	for id, deg := range g.inDegree {
		tempDegree[id] = deg
	}

	var queue []string
	for id, deg := range tempDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}

	processed := 0
	for len(queue) > 0 {
		taskID := queue[0]
		queue = queue[1:]
		processed++

		for _, depID := range g.dependents[taskID] {
			tempDegree[depID]--
			if tempDegree[depID] == 0 {
				queue = append(queue, depID)
			}
		}
	}

	if processed != len(g.tasks) {
		return &errorsx.IntegrityError{
			Invariant: "acyclic-dependency-graph",
			Message:   "circular dependency detected",
		}
	}
	return nil
}

// ReadyTasks returns every task with no unmet dependencies.
func (g *DependencyGraph) ReadyTasks() []*domain.Task {
	g.mu.Lock()
	defer g.mu.Unlock()

	var ready []*domain.Task
	for id, deg := range g.inDegree {
		if deg == 0 {
			ready = append(ready, g.tasks[id])
		}
	}
	return ready
}

// MarkCompleted records taskID as done and returns tasks newly unblocked
// by its completion.
func (g *DependencyGraph) MarkCompleted(taskID string) []*domain.Task {
	g.mu.Lock()
	defer g.mu.Unlock()

	var newlyReady []*domain.Task
	for _, depID := range g.dependents[taskID] {
		g.inDegree[depID]--
		if g.inDegree[depID] == 0 {
			newlyReady = append(newlyReady, g.tasks[depID])
		}
	}
	delete(g.inDegree, taskID)
	return newlyReady
}

// MarkSkipped records taskID as permanently unavailable (its upstream
// dependency failed) without marking it complete, so its own dependents
// never become ready. Returns the transitive closure of tasks that must
// now also be skipped.
func (g *DependencyGraph) MarkSkipped(taskID string) []*domain.Task {
	g.mu.Lock()
	defer g.mu.Unlock()

	var skipped []*domain.Task
	pending := []string{taskID}
	for len(pending) > 0 {
		id := pending[0]
		pending = pending[1:]
		for _, depID := range g.dependents[id] {
			if _, exists := g.inDegree[depID]; !exists {
				continue
			}
			skipped = append(skipped, g.tasks[depID])
			delete(g.inDegree, depID)
			pending = append(pending, depID)
		}
	}
	delete(g.inDegree, taskID)
	return skipped
}

// IsEmpty reports whether every task has been processed.
func (g *DependencyGraph) IsEmpty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inDegree) == 0
}

// RemainingCount returns how many tasks are still pending.
func (g *DependencyGraph) RemainingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inDegree)
}

// GetTask returns a task by id, or nil.
func (g *DependencyGraph) GetTask(id string) *domain.Task {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tasks[id]
}

// PlanBatches computes the full Kahn-style layering up front: each layer
// is a batch whose tasks may run concurrently once every prior layer
// completes. This does not mutate the graph — ExecuteBatch / MarkCompleted
// drive the live version during actual execution.
func (g *DependencyGraph) PlanBatches() [][]*domain.Task {
	g.mu.Lock()
	defer g.mu.Unlock()

	tempDegree := make(map[string]int, len(g.inDegree))
	for id, deg := range g.inDegree {
		tempDegree[id] = deg
	}

	var batches [][]*domain.Task
	for len(tempDegree) > 0 {
		var layer []string
		for id, deg := range tempDegree {
			if deg == 0 {
				layer = append(layer, id)
			}
		}
		if len(layer) == 0 {
			break
		}

		batchTasks := make([]*domain.Task, 0, len(layer))
		for _, id := range layer {
			batchTasks = append(batchTasks, g.tasks[id])
			delete(tempDegree, id)
		}
		batches = append(batches, batchTasks)

		for _, id := range layer {
			for _, depID := range g.dependents[id] {
				if _, ok := tempDegree[depID]; ok {
					tempDegree[depID]--
				}
			}
		}
	}

	return batches
}
