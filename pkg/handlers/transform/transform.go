// Package transform provides a data sync task handler that reshapes values in
// the workflow context.
package transform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kbflow/kbflow/pkg/models"
)

var (
	// ErrTransformSourceMissing is returned when the task config has no source key.
	ErrTransformSourceMissing = errors.New("missing or invalid 'source' in configuration")
	// ErrTransformTargetMissing is returned when the task config has no target key.
	ErrTransformTargetMissing = errors.New("missing or invalid 'target' in configuration")
	// ErrTransformOperationInvalid is returned for an unsupported operation.
	ErrTransformOperationInvalid = errors.New("invalid transform operation")
)

type Handler struct {
	logger *slog.Logger
}

func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{logger: logger.With("module", "transform_handler")}
}

func (h *Handler) Type() models.TaskType {
	return models.TaskTypeDataSync
}

func (h *Handler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"source": map[string]any{
				"type":        "string",
				"description": "Context key to read the input value from.",
			},
			"target": map[string]any{
				"type":        "string",
				"description": "Context key the transformed value is written to.",
			},
			"operation": map[string]any{
				"type":        "string",
				"description": "Transformation applied to the value.",
				"enum":        []string{"copy", "uppercase", "lowercase", "count", "merge"},
			},
		},
		"required": []string{"source", "target"},
	}
}

func (h *Handler) Execute(
	ctx context.Context,
	task models.WorkflowTask,
	instance models.WorkflowInstance,
) (map[string]any, error) {
	source, ok := task.Config["source"].(string)
	if !ok || source == "" {
		return nil, ErrTransformSourceMissing
	}

	target, ok := task.Config["target"].(string)
	if !ok || target == "" {
		return nil, ErrTransformTargetMissing
	}

	operation, _ := task.Config["operation"].(string)
	if operation == "" {
		operation = "copy"
	}

	value, exists := instance.Context[source]
	if !exists {
		return nil, fmt.Errorf("context key '%s' not found", source)
	}

	transformed, err := apply(operation, value, instance.Context)
	if err != nil {
		return nil, err
	}

	// Written into the handler's instance clone; the engine merges it back on
	// success.
	instance.Context[target] = transformed

	h.logger.InfoContext(ctx, "Transformed context value",
		slog.String("source", source),
		slog.String("target", target),
		slog.String("operation", operation))

	return map[string]any{
		"source":    source,
		"target":    target,
		"operation": operation,
	}, nil
}

func apply(operation string, value any, context map[string]any) (any, error) {
	switch operation {
	case "copy":
		return value, nil
	case "uppercase":
		return strings.ToUpper(fmt.Sprintf("%v", value)), nil
	case "lowercase":
		return strings.ToLower(fmt.Sprintf("%v", value)), nil
	case "count":
		switch v := value.(type) {
		case []any:
			return len(v), nil
		case map[string]any:
			return len(v), nil
		case string:
			return len(v), nil
		default:
			return nil, fmt.Errorf("cannot count value of type %T", value)
		}
	case "merge":
		base, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("cannot merge value of type %T", value)
		}

		merged := make(map[string]any, len(base)+len(context))
		for k, v := range context {
			merged[k] = v
		}

		for k, v := range base {
			merged[k] = v
		}

		return merged, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrTransformOperationInvalid, operation)
	}
}
