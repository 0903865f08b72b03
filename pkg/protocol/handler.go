// Package protocol defines the contracts between the engine and pluggable task handlers.
package protocol

import (
	"context"

	"github.com/kbflow/kbflow/pkg/models"
)

// TaskHandler performs the actual work for one task type. Implementations must
// be safe for concurrent invocation: the engine dispatches every ready task of
// a round in its own goroutine.
type TaskHandler interface {
	// Execute runs one attempt of the task. The context carries the per-attempt
	// timeout; implementations should return promptly once it is done.
	Execute(ctx context.Context, task models.WorkflowTask, instance models.WorkflowInstance) (map[string]any, error)

	// Type returns the task type tag this handler serves.
	Type() models.TaskType

	// Schema returns the JSON schema the task config document must satisfy,
	// or nil when the handler accepts any config.
	Schema() map[string]any
}

// TriggerCallback is invoked by a trigger when a workflow should be started.
type TriggerCallback func(ctx context.Context, workflowID string, data map[string]any) error

// Trigger is an external activation source managed outside the engine core.
type Trigger interface {
	Start(ctx context.Context, callback TriggerCallback) error
	Stop(ctx context.Context) error
}
