package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kbflow/kbflow/pkg/models"
	"github.com/kbflow/kbflow/pkg/persistence"
)

// InstanceRepository handles instance snapshot database operations.
type InstanceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewInstanceRepository creates a new instance repository.
func NewInstanceRepository(db *sql.DB, logger *slog.Logger) *InstanceRepository {
	return &InstanceRepository{db: db, logger: logger}
}

// SaveSnapshot upserts an instance snapshot, last write wins.
func (r *InstanceRepository) SaveSnapshot(ctx context.Context, instance *models.WorkflowInstance) error {
	contextJSON, err := json.Marshal(instance.Context)
	if err != nil {
		return persistence.NewInstanceError("save_snapshot", instance.ID,
			fmt.Errorf("failed to marshal context: %w", err))
	}

	tasksJSON, err := json.Marshal(instance.Tasks)
	if err != nil {
		return persistence.NewInstanceError("save_snapshot", instance.ID,
			fmt.Errorf("failed to marshal tasks: %w", err))
	}

	currentJSON, err := json.Marshal(instance.CurrentTasks)
	if err != nil {
		return persistence.NewInstanceError("save_snapshot", instance.ID,
			fmt.Errorf("failed to marshal current tasks: %w", err))
	}

	completedJSON, err := json.Marshal(instance.CompletedTasks)
	if err != nil {
		return persistence.NewInstanceError("save_snapshot", instance.ID,
			fmt.Errorf("failed to marshal completed tasks: %w", err))
	}

	failedJSON, err := json.Marshal(instance.FailedTasks)
	if err != nil {
		return persistence.NewInstanceError("save_snapshot", instance.ID,
			fmt.Errorf("failed to marshal failed tasks: %w", err))
	}

	query := `
		INSERT INTO workflow_instances
			(id, workflow_id, status, context, tasks, current_tasks, completed_tasks,
			 failed_tasks, error, started_at, completed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			context = EXCLUDED.context,
			tasks = EXCLUDED.tasks,
			current_tasks = EXCLUDED.current_tasks,
			completed_tasks = EXCLUDED.completed_tasks,
			failed_tasks = EXCLUDED.failed_tasks,
			error = EXCLUDED.error,
			completed_at = EXCLUDED.completed_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		instance.ID, instance.WorkflowID, string(instance.Status),
		contextJSON, tasksJSON, currentJSON, completedJSON, failedJSON,
		instance.Error, instance.StartedAt, instance.CompletedAt, time.Now().UTC())
	if err != nil {
		return persistence.NewInstanceError("save_snapshot", instance.ID,
			fmt.Errorf("failed to save instance snapshot: %w", err))
	}

	return nil
}

// GetByID returns nil, nil when no snapshot exists for the id.
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	query := `
		SELECT id, workflow_id, status, context, tasks, current_tasks,
			   completed_tasks, failed_tasks, error, started_at, completed_at
		FROM workflow_instances
		WHERE id = $1
	`

	instance, err := r.scanInstance(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, persistence.NewInstanceError("get", id, err)
	}

	return instance, nil
}

// ListByWorkflow returns every instance snapshot of a definition, newest first.
func (r *InstanceRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowInstance, error) {
	query := `
		SELECT id, workflow_id, status, context, tasks, current_tasks,
			   completed_tasks, failed_tasks, error, started_at, completed_at
		FROM workflow_instances
		WHERE workflow_id = $1
		ORDER BY started_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, persistence.NewInstanceError("list", "",
			fmt.Errorf("failed to query instances: %w", err))
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	instances := make([]*models.WorkflowInstance, 0)

	for rows.Next() {
		instance, err := r.scanInstance(rows)
		if err != nil {
			return nil, persistence.NewInstanceError("list", "",
				fmt.Errorf("failed to scan instance: %w", err))
		}

		instances = append(instances, instance)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.NewInstanceError("list", "",
			fmt.Errorf("error iterating instances: %w", err))
	}

	return instances, nil
}

func (r *InstanceRepository) scanInstance(row rowScanner) (*models.WorkflowInstance, error) {
	var (
		instance      models.WorkflowInstance
		status        string
		contextJSON   []byte
		tasksJSON     []byte
		currentJSON   []byte
		completedJSON []byte
		failedJSON    []byte
	)

	err := row.Scan(
		&instance.ID, &instance.WorkflowID, &status,
		&contextJSON, &tasksJSON, &currentJSON, &completedJSON, &failedJSON,
		&instance.Error, &instance.StartedAt, &instance.CompletedAt)
	if err != nil {
		return nil, err
	}

	instance.Status = models.InstanceStatus(status)

	err = json.Unmarshal(contextJSON, &instance.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal context: %w", err)
	}

	err = json.Unmarshal(tasksJSON, &instance.Tasks)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal tasks: %w", err)
	}

	err = json.Unmarshal(currentJSON, &instance.CurrentTasks)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal current tasks: %w", err)
	}

	err = json.Unmarshal(completedJSON, &instance.CompletedTasks)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal completed tasks: %w", err)
	}

	err = json.Unmarshal(failedJSON, &instance.FailedTasks)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal failed tasks: %w", err)
	}

	return &instance, nil
}
