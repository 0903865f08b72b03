package models

import "time"

// TriggerItem describes an external activation source for a workflow. The engine
// stores trigger items verbatim and never interprets them; the scheduler process
// reads them to start instances.
type TriggerItem struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	Configuration map[string]any `json:"configuration,omitempty"`
}

// WorkflowDefinition is an immutable template describing a set of tasks and the
// dependency edges between them. Definitions are validated once at creation and
// never mutated afterwards.
type WorkflowDefinition struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"        validate:"required,min=3"`
	Description string          `json:"description"`
	Tasks       []*WorkflowTask `json:"tasks"`
	Triggers    []*TriggerItem  `json:"triggers,omitempty"`
	Variables   map[string]any  `json:"variables,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// TaskByID returns the task with the given id, or nil when absent.
func (d *WorkflowDefinition) TaskByID(id string) *WorkflowTask {
	for _, task := range d.Tasks {
		if task.ID == id {
			return task
		}
	}

	return nil
}

// CloneTasks returns deep copies of the definition's tasks keyed by id, used as
// the per-instance runtime task state.
func (d *WorkflowDefinition) CloneTasks() map[string]*WorkflowTask {
	tasks := make(map[string]*WorkflowTask, len(d.Tasks))
	for _, task := range d.Tasks {
		tasks[task.ID] = task.Clone()
	}

	return tasks
}
