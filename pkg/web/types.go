// Package web provides HTTP handlers and REST API endpoints for workflow
// management.
package web

import (
	"time"

	"github.com/kbflow/kbflow/pkg/models"
)

// TaskSpec is the wire form of one task in a workflow definition.
type TaskSpec struct {
	ID           string         `json:"id"                      validate:"required,min=1"`
	Name         string         `json:"name"                    validate:"required,min=1"`
	Type         string         `json:"type"                    validate:"required"`
	Config       map[string]any `json:"config,omitempty"`
	Dependencies []string       `json:"dependencies,omitempty"`
	MaxRetries   *int           `json:"max_retries,omitempty"   validate:"omitempty,min=0"`
	TimeoutSec   *int           `json:"timeout_sec,omitempty"   validate:"omitempty,min=1"`
}

// TriggerSpec is the wire form of one trigger item.
type TriggerSpec struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"          validate:"required"`
	Configuration map[string]any `json:"configuration,omitempty"`
}

// CreateWorkflowRequest represents the request body for creating a new workflow.
type CreateWorkflowRequest struct {
	Name        string         `json:"name"                 validate:"required,min=3"`
	Description string         `json:"description"`
	Tasks       []TaskSpec     `json:"tasks"                validate:"required,min=1,dive"`
	Triggers    []*TriggerSpec `json:"triggers,omitempty"   validate:"omitempty,dive"`
}

// StartInstanceRequest represents the request body for starting an instance.
type StartInstanceRequest struct {
	Context map[string]any `json:"context,omitempty"`
}

// StartInstanceResponse carries the id of the newly started instance.
type StartInstanceResponse struct {
	InstanceID string `json:"instance_id"`
	WorkflowID string `json:"workflow_id"`
}

// toModel converts a TaskSpec to the domain task.
func (t TaskSpec) toModel() *models.WorkflowTask {
	task := &models.WorkflowTask{
		ID:           t.ID,
		Name:         t.Name,
		Type:         models.TaskType(t.Type),
		Config:       t.Config,
		Dependencies: t.Dependencies,
	}

	if t.MaxRetries != nil {
		task.MaxRetries = *t.MaxRetries
	} else {
		task.MaxRetries = models.DefaultMaxRetries
	}

	if t.TimeoutSec != nil {
		task.Timeout = time.Duration(*t.TimeoutSec) * time.Second
	}

	return task
}

// toModels converts the request's task and trigger specs to domain models.
func (r CreateWorkflowRequest) toModels() ([]*models.WorkflowTask, []*models.TriggerItem) {
	tasks := make([]*models.WorkflowTask, 0, len(r.Tasks))
	for _, spec := range r.Tasks {
		tasks = append(tasks, spec.toModel())
	}

	triggers := make([]*models.TriggerItem, 0, len(r.Triggers))
	for _, spec := range r.Triggers {
		triggers = append(triggers, &models.TriggerItem{
			ID:            spec.ID,
			Type:          spec.Type,
			Configuration: spec.Configuration,
		})
	}

	return tasks, triggers
}
