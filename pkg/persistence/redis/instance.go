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

// InstanceRepository stores instance snapshots as JSON values, indexed per
// workflow for listing.
type InstanceRepository struct {
	client *redis.Client
}

func NewInstanceRepository(client *redis.Client) *InstanceRepository {
	return &InstanceRepository{client: client}
}

// SaveSnapshot writes the snapshot, last write wins.
func (r *InstanceRepository) SaveSnapshot(ctx context.Context, instance *models.WorkflowInstance) error {
	payload, err := json.Marshal(instance)
	if err != nil {
		return persistence.NewInstanceError("save_snapshot", instance.ID,
			fmt.Errorf("failed to marshal instance: %w", err))
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, instanceKeyPrefix+instance.ID, payload, 0)
	pipe.SAdd(ctx, instanceIndexKey+instance.WorkflowID, instance.ID)

	_, err = pipe.Exec(ctx)
	if err != nil {
		return persistence.NewInstanceError("save_snapshot", instance.ID, err)
	}

	return nil
}

// GetByID returns nil, nil when no snapshot exists for the id.
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	payload, err := r.client.Get(ctx, instanceKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		return nil, persistence.NewInstanceError("get", id, err)
	}

	var instance models.WorkflowInstance

	err = json.Unmarshal(payload, &instance)
	if err != nil {
		return nil, persistence.NewInstanceError("get", id,
			fmt.Errorf("failed to unmarshal instance: %w", err))
	}

	return &instance, nil
}

func (r *InstanceRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowInstance, error) {
	ids, err := r.client.SMembers(ctx, instanceIndexKey+workflowID).Result()
	if err != nil {
		return nil, persistence.NewInstanceError("list", "", err)
	}

	instances := make([]*models.WorkflowInstance, 0, len(ids))

	for _, id := range ids {
		instance, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if instance == nil {
			continue
		}

		instances = append(instances, instance)
	}

	return instances, nil
}
