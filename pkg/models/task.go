// Package models defines the core domain models for dependency-graph workflow execution.
package models

import "time"

// TaskType tags a task with the handler responsible for executing it. The set is
// closed: handlers are registered per type at startup and definitions referencing
// an unknown type are rejected at creation time.
type TaskType string

const (
	TaskTypeDocumentProcess   TaskType = "document_process"
	TaskTypeEmbeddingGenerate TaskType = "embedding_generate"
	TaskTypeEntityExtract     TaskType = "entity_extract"
	TaskTypeGraphBuild        TaskType = "graph_build"
	TaskTypeIndexUpdate       TaskType = "index_update"
	TaskTypeNotification      TaskType = "notification"
	TaskTypeDataSync          TaskType = "data_sync"
	TaskTypeBackup            TaskType = "backup"
	TaskTypeCleanup           TaskType = "cleanup"
	TaskTypeCustom            TaskType = "custom"
)

// TaskTypes returns every known task type tag.
func TaskTypes() []TaskType {
	return []TaskType{
		TaskTypeDocumentProcess,
		TaskTypeEmbeddingGenerate,
		TaskTypeEntityExtract,
		TaskTypeGraphBuild,
		TaskTypeIndexUpdate,
		TaskTypeNotification,
		TaskTypeDataSync,
		TaskTypeBackup,
		TaskTypeCleanup,
		TaskTypeCustom,
	}
}

// Valid reports whether t is one of the known task types.
func (t TaskType) Valid() bool {
	for _, known := range TaskTypes() {
		if t == known {
			return true
		}
	}

	return false
}

// TaskStatus represents the runtime state of a task within one workflow instance.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusSkipped   TaskStatus = "skipped"
	TaskStatusRetrying  TaskStatus = "retrying"
)

const (
	// DefaultMaxRetries is applied when an API request omits max_retries.
	// An explicit zero disables retries and is preserved as-is.
	DefaultMaxRetries = 3

	// DefaultTaskTimeout bounds a single execution attempt when the task spec
	// leaves timeout unset.
	DefaultTaskTimeout = time.Hour
)

// WorkflowTask is one unit of work inside a workflow definition. Within a
// definition the task list is immutable; each instance works on its own copy
// so that status, result and timestamps can be tracked per run.
type WorkflowTask struct {
	ID           string         `json:"id"                     validate:"required"`
	Name         string         `json:"name"                   validate:"required"`
	Type         TaskType       `json:"type"                   validate:"required"`
	Config       map[string]any `json:"config,omitempty"`
	Dependencies []string       `json:"dependencies,omitempty"`
	MaxRetries   int            `json:"max_retries"`
	Timeout      time.Duration  `json:"timeout"`
	Status       TaskStatus     `json:"status"`
	Result       map[string]any `json:"result,omitempty"`
	Error        string         `json:"error,omitempty"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// Critical reports whether a failure of this task must fail the owning instance.
func (t *WorkflowTask) Critical() bool {
	critical, ok := t.Config["critical"].(bool)

	return ok && critical
}

// Normalize fills unset fields with engine defaults. MaxRetries of zero is a
// valid setting (single attempt, no retries), so only negative values are
// replaced; the wire layer applies DefaultMaxRetries when the field is omitted.
func (t *WorkflowTask) Normalize() {
	if t.MaxRetries < 0 {
		t.MaxRetries = DefaultMaxRetries
	}

	if t.Timeout <= 0 {
		t.Timeout = DefaultTaskTimeout
	}

	if t.Status == "" {
		t.Status = TaskStatusPending
	}
}

// Clone returns a deep copy of the task, suitable for per-instance runtime state.
func (t *WorkflowTask) Clone() *WorkflowTask {
	clone := *t

	clone.Config = cloneMap(t.Config)
	clone.Result = cloneMap(t.Result)
	clone.Dependencies = append([]string(nil), t.Dependencies...)

	return &clone
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}

	return out
}
