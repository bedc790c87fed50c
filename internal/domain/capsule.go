package domain

import "time"

// HealthCheck describes how to probe a running capsule for liveness.
type HealthCheck struct {
	Command  string        `json:"command,omitempty"`
	Path     string        `json:"path,omitempty"`
	Interval time.Duration `json:"interval,omitempty"`
	Timeout  time.Duration `json:"timeout,omitempty"`
}

// Resources captures compute limits a capsule expects at runtime.
type Resources struct {
	CPUCores float64 `json:"cpu_cores,omitempty"`
	MemoryMB int     `json:"memory_mb,omitempty"`
	DiskMB   int     `json:"disk_mb,omitempty"`
}

// Manifest describes how to run a capsule.
type Manifest struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Language     string            `json:"language"`
	Type         string            `json:"type"`
	Description  string            `json:"description,omitempty"`
	EntryPoint   string            `json:"entry_point"`
	Commands     map[string]string `json:"commands,omitempty"`
	Dependencies []string          `json:"dependencies,omitempty"`
	EnvVars      map[string]string `json:"env_vars,omitempty"`
	Ports        []int             `json:"ports,omitempty"`
	Resources    Resources         `json:"resources,omitempty"`
	HealthCheck  *HealthCheck      `json:"health_check,omitempty"`
}

// CapsuleMetadata carries generation metrics and quality scores alongside
// the artifact, for observability without re-deriving them.
type CapsuleMetadata struct {
	GenerationMetrics map[string]float64 `json:"generation_metrics,omitempty"`
	QualityScores     map[string]float64 `json:"quality_scores,omitempty"`
}

// Capsule is the terminal, immutable output artifact of a workflow. A
// re-generation for the same request id always produces a new Capsule with
// a new ID; an existing Capsule is never mutated.
type Capsule struct {
	ID               string            `json:"id"`
	RequestID        string            `json:"request_id"`
	SchemaVersion    int               `json:"schema_version"`
	Manifest         Manifest          `json:"manifest"`
	SourceCode       map[string]string `json:"source_code"`
	Tests            map[string]string `json:"tests"`
	Documentation    string            `json:"documentation"`
	Validation       *ValidationReport `json:"validation,omitempty"`
	DeploymentConfig map[string]string `json:"deployment_config,omitempty"`
	Metadata         CapsuleMetadata   `json:"metadata"`
	Checksum         string            `json:"checksum"`
	CreatedAt        time.Time         `json:"created_at"`
}

// ErrorCapsule is the terminal artifact produced when zero code tasks
// succeed, or the workflow otherwise terminates FAILED: it carries
// diagnostics instead of source.
type ErrorCapsule struct {
	ID           string                `json:"id"`
	RequestID    string                `json:"request_id"`
	Reason       string                `json:"reason"`
	Failures     []string              `json:"failures"`
	TaskStatuses map[string]TaskStatus `json:"task_statuses,omitempty"`
	README       string                `json:"readme"`
	CreatedAt    time.Time             `json:"created_at"`
}
