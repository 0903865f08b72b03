package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/kbflow/kbflow/pkg/models"
)

// InstanceRepository handles instance snapshot files under <root>/instances.
type InstanceRepository struct {
	root string
}

// NewInstanceRepository creates a new instance snapshot repository.
func NewInstanceRepository(root string) *InstanceRepository {
	return &InstanceRepository{root: root}
}

// SaveSnapshot overwrites the stored snapshot for the instance. The engine
// calls this after every round; the last write wins.
func (ir *InstanceRepository) SaveSnapshot(_ context.Context, instance *models.WorkflowInstance) error {
	err := os.MkdirAll(ir.root+"/instances", 0750)
	if err != nil {
		return fmt.Errorf("failed to create instances directory: %w", err)
	}

	data, err := json.MarshalIndent(instance, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal instance %s: %w", instance.ID, err)
	}

	filePath := path.Join(ir.root+"/instances", instance.ID+".json")

	return os.WriteFile(filePath, data, 0600)
}

// GetByID retrieves an instance snapshot by its ID, returning nil, nil when absent.
func (ir *InstanceRepository) GetByID(_ context.Context, id string) (*models.WorkflowInstance, error) {
	filePath := filepath.Clean(path.Join(ir.root, "instances", id+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to fetch instance %s: %w", id, err)
	}

	var instance models.WorkflowInstance

	err = json.Unmarshal(body, &instance)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal instance %s: %w", id, err)
	}

	return &instance, nil
}

// ListByWorkflow returns every snapshot belonging to the given definition.
func (ir *InstanceRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowInstance, error) {
	root := os.DirFS(ir.root + "/instances")

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list instance files: %w", err)
	}

	instances := make([]*models.WorkflowInstance, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		id := file[:len(file)-5]

		instance, err := ir.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load instance %s: %w", id, err)
		}

		if instance != nil && instance.WorkflowID == workflowID {
			instances = append(instances, instance)
		}
	}

	return instances, nil
}
