// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow definition was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrInstanceNotFound indicates a workflow instance snapshot was not found.
	ErrInstanceNotFound = errors.New("workflow instance not found")

	// ErrWorkflowAlreadyExists indicates a definition with the same identifier already exists.
	ErrWorkflowAlreadyExists = errors.New("workflow already exists")
)

// StoreError wraps persistence errors with operation context.
type StoreError struct {
	Op         string // Operation being performed (e.g., "GetByID", "SaveSnapshot")
	WorkflowID string // Workflow definition ID if applicable
	InstanceID string // Instance ID if applicable
	Err        error  // Underlying error
}

func (e *StoreError) Error() string {
	target := e.WorkflowID
	if e.InstanceID != "" {
		target = fmt.Sprintf("instance %s", e.InstanceID)
	}

	return fmt.Sprintf("%s operation failed for %s: %v", e.Op, target, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkflowError creates a store error for definition operations.
func NewWorkflowError(op, workflowID string, err error) *StoreError {
	return &StoreError{
		Op:         op,
		WorkflowID: workflowID,
		Err:        err,
	}
}

// NewInstanceError creates a store error for instance operations.
func NewInstanceError(op, instanceID string, err error) *StoreError {
	return &StoreError{
		Op:         op,
		InstanceID: instanceID,
		Err:        err,
	}
}

// IsWorkflowNotFound checks if an error indicates a workflow definition was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsInstanceNotFound checks if an error indicates an instance snapshot was not found.
func IsInstanceNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound)
}
