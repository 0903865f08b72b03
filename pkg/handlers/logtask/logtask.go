// Package logtask provides a custom task handler that logs a message, useful
// as a placeholder step and in tests.
package logtask

import (
	"context"
	"log/slog"

	"github.com/kbflow/kbflow/pkg/models"
)

type Handler struct {
	logger *slog.Logger
}

func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{logger: logger.With("module", "logtask_handler")}
}

func (h *Handler) Type() models.TaskType {
	return models.TaskTypeCustom
}

func (h *Handler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Message to log.",
			},
			"level": map[string]any{
				"type": "string",
				"enum": []string{"debug", "info", "warn", "error"},
			},
		},
	}
}

func (h *Handler) Execute(
	ctx context.Context,
	task models.WorkflowTask,
	instance models.WorkflowInstance,
) (map[string]any, error) {
	message, _ := task.Config["message"].(string)
	if message == "" {
		message = "Log task executed"
	}

	level, _ := task.Config["level"].(string)

	attrs := []any{
		slog.String("instance_id", instance.ID),
		slog.String("task_id", task.ID),
	}

	switch level {
	case "debug":
		h.logger.DebugContext(ctx, message, attrs...)
	case "warn":
		h.logger.WarnContext(ctx, message, attrs...)
	case "error":
		h.logger.ErrorContext(ctx, message, attrs...)
	default:
		h.logger.InfoContext(ctx, message, attrs...)
	}

	return map[string]any{"message": message}, nil
}
