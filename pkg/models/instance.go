package models

import "time"

// InstanceStatus represents the lifecycle state of a workflow instance.
type InstanceStatus string

const (
	InstanceStatusDraft     InstanceStatus = "draft"
	InstanceStatusActive    InstanceStatus = "active"
	InstanceStatusPaused    InstanceStatus = "paused"
	InstanceStatusCompleted InstanceStatus = "completed"
	InstanceStatusFailed    InstanceStatus = "failed"
	InstanceStatusCancelled InstanceStatus = "cancelled"
)

// Terminal reports whether the status is final. Terminal instances are immutable.
func (s InstanceStatus) Terminal() bool {
	return s == InstanceStatusCompleted || s == InstanceStatusFailed || s == InstanceStatusCancelled
}

// WorkflowInstance is one run of a workflow definition. An instance is owned
// exclusively by its driver goroutine while active; the task-id sets are
// mutually exclusive at every observable point.
type WorkflowInstance struct {
	ID             string                   `json:"id"`
	WorkflowID     string                   `json:"workflow_id"`
	Status         InstanceStatus           `json:"status"`
	Context        map[string]any           `json:"context,omitempty"`
	Tasks          map[string]*WorkflowTask `json:"tasks"`
	CurrentTasks   map[string]bool          `json:"current_tasks"`
	CompletedTasks map[string]bool          `json:"completed_tasks"`
	FailedTasks    map[string]bool          `json:"failed_tasks"`
	StartedAt      time.Time                `json:"started_at"`
	CompletedAt    *time.Time               `json:"completed_at,omitempty"`
	Error          string                   `json:"error,omitempty"`
}

// NewWorkflowInstance creates an Active instance for the given definition.
func NewWorkflowInstance(id string, definition *WorkflowDefinition, context map[string]any) *WorkflowInstance {
	if context == nil {
		context = make(map[string]any)
	}

	return &WorkflowInstance{
		ID:             id,
		WorkflowID:     definition.ID,
		Status:         InstanceStatusActive,
		Context:        context,
		Tasks:          definition.CloneTasks(),
		CurrentTasks:   make(map[string]bool),
		CompletedTasks: make(map[string]bool),
		FailedTasks:    make(map[string]bool),
		StartedAt:      time.Now().UTC(),
	}
}

// Progress returns the completion percentage: 100 * completed / total.
func (i *WorkflowInstance) Progress() float64 {
	if len(i.Tasks) == 0 {
		return 0
	}

	return 100 * float64(len(i.CompletedTasks)) / float64(len(i.Tasks))
}

// Done reports whether every task of the instance has completed.
func (i *WorkflowInstance) Done() bool {
	return len(i.CompletedTasks) == len(i.Tasks)
}

// Clone returns a deep copy of the instance, safe to hand out while the driver
// keeps mutating the original.
func (i *WorkflowInstance) Clone() *WorkflowInstance {
	clone := *i

	clone.Context = cloneMap(i.Context)
	clone.CurrentTasks = cloneSet(i.CurrentTasks)
	clone.CompletedTasks = cloneSet(i.CompletedTasks)
	clone.FailedTasks = cloneSet(i.FailedTasks)

	clone.Tasks = make(map[string]*WorkflowTask, len(i.Tasks))
	for id, task := range i.Tasks {
		clone.Tasks[id] = task.Clone()
	}

	return &clone
}

func cloneSet(s map[string]bool) map[string]bool {
	out := make(map[string]bool, len(s))
	for k := range s {
		out[k] = true
	}

	return out
}
