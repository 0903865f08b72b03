package registry

import (
	"fmt"

	"github.com/kbflow/kbflow/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// ValidateTaskConfig checks a task's config document against the JSON schema
// declared by the handler for its type. Handlers without a schema accept any
// config; tasks without a registered handler are accepted here and rejected
// later only if the engine is asked to run them.
func (r *Registry) ValidateTaskConfig(task *models.WorkflowTask) error {
	r.mu.RLock()
	handler, ok := r.handlers[task.Type]
	r.mu.RUnlock()

	if !ok {
		return nil
	}

	schema := handler.Schema()
	if schema == nil {
		return nil
	}

	config := task.Config
	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return fmt.Errorf("failed to validate config for task %s: %w", task.ID, err)
	}

	if !result.Valid() {
		return fmt.Errorf("invalid config for task %s: %s", task.ID, result.Errors()[0].String())
	}

	return nil
}
