package domain

import "time"

// WorkflowStage is the coarse-grained stage a workflow occupies. It is
// distinct from TaskStatus, which tracks individual tasks.
type WorkflowStage string

const (
	StageCreated     WorkflowStage = "created"
	StageDecomposing WorkflowStage = "decomposing"
	StageExecuting   WorkflowStage = "executing"
	StageValidating  WorkflowStage = "validating"
	StageScoring     WorkflowStage = "scoring"
	StageHumanReview WorkflowStage = "hitl_review"
	StageAssembling  WorkflowStage = "assembling"
	StageCompleted   WorkflowStage = "completed"
	StageFailed      WorkflowStage = "failed"
	StageCancelled   WorkflowStage = "cancelled"
)

// WorkflowCheckpoint is written after every batch completes so the runtime
// can resume a crashed workflow from the last persisted point.
type WorkflowCheckpoint struct {
	WorkflowID     string                `json:"workflow_id"`
	Stage          WorkflowStage         `json:"stage"`
	LastBatchIndex int                   `json:"last_batch_index"`
	TaskStatuses   map[string]TaskStatus `json:"task_statuses"`
	State          []byte                `json:"state,omitempty"`
	UpdatedAt      time.Time             `json:"updated_at"`
}
