// Package domain holds the core data model shared by every orchestrator
// component: Request, Task, SharedContext, TaskResult, ValidationReport,
// ConfidenceAnalysis, Capsule, LLMCostRecord, WorkflowCheckpoint, and
// PatternCacheEntry, exactly as specified.
package domain

import (
	"time"

	"github.com/capsuleforge/core/internal/errorsx"
)

// Request is the immutable input to the pipeline. It is created by the
// external API and never mutated after creation.
type Request struct {
	ID           string            `json:"id"`
	TenantID     string            `json:"tenant_id"`
	UserID       string            `json:"user_id"`
	Description  string            `json:"description"`
	Requirements []string          `json:"requirements,omitempty"`
	Constraints  map[string]string `json:"constraints,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Validate reports whether the request is well-formed enough to decompose.
func (r *Request) Validate() error {
	if r.ID == "" {
		return &errorsx.ValidationError{Field: "id", Message: "request id is required"}
	}
	if r.Description == "" {
		return &errorsx.ValidationError{Field: "description", Message: "description must not be empty"}
	}
	return nil
}

// Language returns the constraint-declared language, or "" if unset.
func (r *Request) Language() string {
	if r.Constraints == nil {
		return ""
	}
	return r.Constraints["language"]
}

// Framework returns the constraint-declared framework, or "" if unset.
func (r *Request) Framework() string {
	if r.Constraints == nil {
		return ""
	}
	return r.Constraints["framework"]
}
