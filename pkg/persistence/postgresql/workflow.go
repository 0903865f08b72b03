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

// WorkflowRepository handles workflow definition database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

// Save upserts a workflow definition.
func (r *WorkflowRepository) Save(ctx context.Context, definition *models.WorkflowDefinition) error {
	tasksJSON, err := json.Marshal(definition.Tasks)
	if err != nil {
		return persistence.NewWorkflowError("save", definition.ID,
			fmt.Errorf("failed to marshal tasks: %w", err))
	}

	triggersJSON, err := json.Marshal(definition.Triggers)
	if err != nil {
		return persistence.NewWorkflowError("save", definition.ID,
			fmt.Errorf("failed to marshal triggers: %w", err))
	}

	variablesJSON, err := json.Marshal(definition.Variables)
	if err != nil {
		return persistence.NewWorkflowError("save", definition.ID,
			fmt.Errorf("failed to marshal variables: %w", err))
	}

	query := `
		INSERT INTO workflow_definitions
			(id, name, description, tasks, triggers, variables, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			tasks = EXCLUDED.tasks,
			triggers = EXCLUDED.triggers,
			variables = EXCLUDED.variables,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		definition.ID, definition.Name, definition.Description,
		tasksJSON, triggersJSON, variablesJSON,
		definition.CreatedAt, definition.UpdatedAt)
	if err != nil {
		return persistence.NewWorkflowError("save", definition.ID,
			fmt.Errorf("failed to save workflow: %w", err))
	}

	return nil
}

// GetByID returns nil, nil when no definition exists for the id.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	query := `
		SELECT id, name, description, tasks, triggers, variables, created_at, updated_at
		FROM workflow_definitions
		WHERE id = $1 AND deleted_at IS NULL
	`

	definition, err := r.scanDefinition(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, persistence.NewWorkflowError("get", id, err)
	}

	return definition, nil
}

// GetAll returns every stored definition, newest first.
func (r *WorkflowRepository) GetAll(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	query := `
		SELECT id, name, description, tasks, triggers, variables, created_at, updated_at
		FROM workflow_definitions
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, persistence.NewWorkflowError("list", "", fmt.Errorf("failed to query workflows: %w", err))
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	definitions := make([]*models.WorkflowDefinition, 0)

	for rows.Next() {
		definition, err := r.scanDefinition(rows)
		if err != nil {
			return nil, persistence.NewWorkflowError("list", "", fmt.Errorf("failed to scan workflow: %w", err))
		}

		definitions = append(definitions, definition)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.NewWorkflowError("list", "", fmt.Errorf("error iterating workflows: %w", err))
	}

	return definitions, nil
}

// Delete soft deletes a definition by setting deleted_at.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE workflow_definitions SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL",
		time.Now().UTC(), id)
	if err != nil {
		return persistence.NewWorkflowError("delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewWorkflowError("delete", id, err)
	}

	if affected == 0 {
		return persistence.NewWorkflowError("delete", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *WorkflowRepository) scanDefinition(row rowScanner) (*models.WorkflowDefinition, error) {
	var (
		definition    models.WorkflowDefinition
		tasksJSON     []byte
		triggersJSON  []byte
		variablesJSON []byte
	)

	err := row.Scan(
		&definition.ID, &definition.Name, &definition.Description,
		&tasksJSON, &triggersJSON, &variablesJSON,
		&definition.CreatedAt, &definition.UpdatedAt)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(tasksJSON, &definition.Tasks)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal tasks: %w", err)
	}

	err = json.Unmarshal(triggersJSON, &definition.Triggers)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal triggers: %w", err)
	}

	err = json.Unmarshal(variablesJSON, &definition.Variables)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
	}

	return &definition, nil
}
