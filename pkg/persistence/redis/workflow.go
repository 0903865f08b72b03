package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/kbflow/kbflow/pkg/models"
	"github.com/kbflow/kbflow/pkg/persistence"
)

// WorkflowRepository stores workflow definitions as JSON values.
type WorkflowRepository struct {
	client *redis.Client
}

func NewWorkflowRepository(client *redis.Client) *WorkflowRepository {
	return &WorkflowRepository{client: client}
}

func (r *WorkflowRepository) Save(ctx context.Context, definition *models.WorkflowDefinition) error {
	payload, err := json.Marshal(definition)
	if err != nil {
		return persistence.NewWorkflowError("save", definition.ID,
			fmt.Errorf("failed to marshal workflow: %w", err))
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, workflowKeyPrefix+definition.ID, payload, 0)
	pipe.SAdd(ctx, workflowIndexKey, definition.ID)

	_, err = pipe.Exec(ctx)
	if err != nil {
		return persistence.NewWorkflowError("save", definition.ID, err)
	}

	return nil
}

// GetByID returns nil, nil when no definition exists for the id.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	payload, err := r.client.Get(ctx, workflowKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		return nil, persistence.NewWorkflowError("get", id, err)
	}

	var definition models.WorkflowDefinition

	err = json.Unmarshal(payload, &definition)
	if err != nil {
		return nil, persistence.NewWorkflowError("get", id,
			fmt.Errorf("failed to unmarshal workflow: %w", err))
	}

	return &definition, nil
}

func (r *WorkflowRepository) GetAll(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	ids, err := r.client.SMembers(ctx, workflowIndexKey).Result()
	if err != nil {
		return nil, persistence.NewWorkflowError("list", "", err)
	}

	definitions := make([]*models.WorkflowDefinition, 0, len(ids))

	for _, id := range ids {
		definition, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		// Index entries may outlive deleted values.
		if definition == nil {
			continue
		}

		definitions = append(definitions, definition)
	}

	return definitions, nil
}

func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	removed, err := r.client.Del(ctx, workflowKeyPrefix+id).Result()
	if err != nil {
		return persistence.NewWorkflowError("delete", id, err)
	}

	if removed == 0 {
		return persistence.NewWorkflowError("delete", id, persistence.ErrWorkflowNotFound)
	}

	err = r.client.SRem(ctx, workflowIndexKey, id).Err()
	if err != nil {
		return persistence.NewWorkflowError("delete", id, err)
	}

	return nil
}
