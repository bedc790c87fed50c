package domain

import "github.com/capsuleforge/core/internal/errorsx"

// TaskType classifies the kind of work a task represents.
type TaskType string

const (
	TaskTypeImplementation  TaskType = "implementation"
	TaskTypeTestGeneration  TaskType = "test_generation"
	TaskTypeDocumentation   TaskType = "documentation"
	TaskTypeAnalysis        TaskType = "analysis"
	TaskTypeReview          TaskType = "review"
	TaskTypeMeta            TaskType = "meta"
)

// Complexity classifies how hard a task is expected to be. It drives both
// the tier hint (internal/tier) and the per-task timeout.
type Complexity string

const (
	ComplexityTrivial Complexity = "trivial"
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
	ComplexityMeta    Complexity = "meta"
)

// Task is a unit of work in the decomposition graph. Frozen once the
// scheduler seals the graph; never mutated afterward.
type Task struct {
	ID           string     `json:"id"`
	Type         TaskType   `json:"type"`
	Description  string     `json:"description"`
	Complexity   Complexity `json:"complexity"`
	DependsOn    []string   `json:"depends_on,omitempty"`
	LanguageHint string     `json:"language_hint,omitempty"`
	ContextRef   string     `json:"context_ref"`
}

// Validate reports whether the task is well-formed.
func (t *Task) Validate() error {
	if t.ID == "" {
		return &errorsx.ValidationError{Field: "id", Message: "task id is required"}
	}
	if t.Description == "" {
		return &errorsx.ValidationError{Field: "description", Message: "task description is required"}
	}
	return nil
}

// SharedContext is the per-workflow agreement on primary language, main
// file name, framework, architecture pattern, and common imports. Created
// before the first task runs; read-only to workers thereafter.
type SharedContext struct {
	WorkflowID          string   `json:"workflow_id"`
	PrimaryLanguage     string   `json:"primary_language"`
	MainFileName        string   `json:"main_file_name"`
	Framework           string   `json:"framework,omitempty"`
	ArchitecturePattern string   `json:"architecture_pattern,omitempty"`
	CommonImports       []string `json:"common_imports,omitempty"`
}

// TaskStatus is the execution state of a Task Result. Terminal states
// (Completed, Failed, Cancelled) may only be set once — see
// internal/scheduler's compare-and-set enforcement.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// IsTerminal reports whether the status is one a Task Result cannot leave.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// OutputKind classifies the payload shape of a Task Result.
type OutputKind string

const (
	OutputKindCode  OutputKind = "code"
	OutputKindTests OutputKind = "tests"
	OutputKindDocs  OutputKind = "docs"
	OutputKindError OutputKind = "error"
)

// TaskResult is the per-task output, written at most once terminally.
type TaskResult struct {
	TaskID        string     `json:"task_id"`
	Status        TaskStatus `json:"status"`
	OutputKind    OutputKind `json:"output_kind,omitempty"`
	Payload       []byte     `json:"payload,omitempty"`
	Confidence    float64    `json:"confidence"`
	Tier          string     `json:"tier,omitempty"`
	ExecutionTime float64    `json:"execution_time_seconds"`
	CostLedgerID  string     `json:"cost_ledger_id,omitempty"`
	RetryCount    int        `json:"retry_count"`
	Error         string     `json:"error,omitempty"`
}
