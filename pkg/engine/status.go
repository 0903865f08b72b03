package engine

import (
	"sort"
	"time"

	"github.com/kbflow/kbflow/pkg/models"
)

// StatusReport is a point-in-time view of a workflow instance suitable for
// API responses. Task id slices are sorted for stable output.
type StatusReport struct {
	InstanceID     string                       `json:"instance_id"`
	WorkflowID     string                       `json:"workflow_id"`
	Status         models.InstanceStatus        `json:"status"`
	Progress       float64                      `json:"progress"`
	TaskStatuses   map[string]models.TaskStatus `json:"task_statuses"`
	CompletedTasks []string                     `json:"completed_tasks"`
	FailedTasks    []string                     `json:"failed_tasks"`
	CurrentTasks   []string                     `json:"current_tasks"`
	Error          string                       `json:"error,omitempty"`
	StartedAt      time.Time                    `json:"started_at"`
	CompletedAt    *time.Time                   `json:"completed_at,omitempty"`
}

// NewStatusReport builds a report from an instance snapshot. The snapshot must
// not be shared with a running driver; callers pass clones.
func NewStatusReport(instance *models.WorkflowInstance) *StatusReport {
	statuses := make(map[string]models.TaskStatus, len(instance.Tasks))
	for id, task := range instance.Tasks {
		statuses[id] = task.Status
	}

	return &StatusReport{
		InstanceID:     instance.ID,
		WorkflowID:     instance.WorkflowID,
		Status:         instance.Status,
		Progress:       instance.Progress(),
		TaskStatuses:   statuses,
		CompletedTasks: sortedKeys(instance.CompletedTasks),
		FailedTasks:    sortedKeys(instance.FailedTasks),
		CurrentTasks:   sortedKeys(instance.CurrentTasks),
		Error:          instance.Error,
		StartedAt:      instance.StartedAt,
		CompletedAt:    instance.CompletedAt,
	}
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}
