// Package engine implements the dependency-graph workflow engine: definition
// validation, readiness resolution, timed task execution and the per-instance
// driver loop.
package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrWorkflowNotFound indicates no definition exists for the given id.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrInstanceNotFound indicates no instance exists for the given id.
	ErrInstanceNotFound = errors.New("workflow instance not found")

	// Definition validation errors, returned synchronously by CreateWorkflow.
	ErrNoTasks           = errors.New("workflow must have at least one task")
	ErrDuplicateTaskID   = errors.New("duplicate task id")
	ErrUnknownDependency = errors.New("unknown dependency")
	ErrCyclicDependency  = errors.New("cyclic dependency")
	ErrUnknownTaskType   = errors.New("unknown task type")
	ErrInvalidTaskConfig = errors.New("invalid task config")

	// ErrHandlerNotRegistered indicates a task references a type with no
	// registered handler. This is a configuration error, not a per-task
	// runtime failure: the task can never succeed.
	ErrHandlerNotRegistered = errors.New("no handler registered for task type")

	// ErrTaskTimeout is recorded on a task whose handler outlived its timeout budget.
	ErrTaskTimeout = errors.New("task execution timed out")

	// ErrInstanceStalled indicates the instance has unfinished tasks none of
	// which can ever become ready.
	ErrInstanceStalled = errors.New("workflow stalled: unfinished tasks can never become ready")

	// Lifecycle transition errors.
	ErrInstanceNotActive = errors.New("workflow instance is not active")
	ErrInstanceNotPaused = errors.New("workflow instance is not paused")
	ErrInstanceTerminal  = errors.New("workflow instance already reached a terminal state")
)

// ValidationError wraps a definition validation failure with the offending task.
type ValidationError struct {
	TaskID string
	Detail string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("invalid workflow definition: task %s: %s (%v)", e.TaskID, e.Detail, e.Err)
	}

	return fmt.Sprintf("invalid workflow definition: task %s: %v", e.TaskID, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func (e *ValidationError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func newValidationError(taskID string, err error, detail string) *ValidationError {
	return &ValidationError{TaskID: taskID, Detail: detail, Err: err}
}

// IsValidationError checks if an error is a definition validation failure that
// should be reported to the caller as a bad request.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrNoTasks) ||
		errors.Is(err, ErrDuplicateTaskID) ||
		errors.Is(err, ErrUnknownDependency) ||
		errors.Is(err, ErrCyclicDependency) ||
		errors.Is(err, ErrUnknownTaskType) ||
		errors.Is(err, ErrInvalidTaskConfig)
}

// IsNotFound checks if an error indicates a missing workflow or instance.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound) || errors.Is(err, ErrInstanceNotFound)
}
