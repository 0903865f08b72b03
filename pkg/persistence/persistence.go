// Package persistence provides the data storage abstraction for workflow
// definitions and instance snapshots.
package persistence

import (
	"context"

	"github.com/kbflow/kbflow/pkg/models"
)

// Persistence is the gateway the engine writes through. Definitions are saved
// once at creation; instance snapshots are written after every round with
// at-least-once semantics.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	InstanceRepository() InstanceRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores immutable workflow definitions.
type WorkflowRepository interface {
	Save(ctx context.Context, definition *models.WorkflowDefinition) error

	// GetByID returns nil, nil when no definition exists for the id.
	GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error)
	GetAll(ctx context.Context) ([]*models.WorkflowDefinition, error)
	Delete(ctx context.Context, id string) error
}

// InstanceRepository stores instance snapshots. The engine only writes and
// lists; the load path exists for status queries after the owning driver is
// gone and for external consumers.
type InstanceRepository interface {
	SaveSnapshot(ctx context.Context, instance *models.WorkflowInstance) error

	// GetByID returns nil, nil when no snapshot exists for the id.
	GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error)
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowInstance, error)
}
