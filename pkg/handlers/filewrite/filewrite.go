// Package filewrite provides a backup task handler that serializes the
// workflow context, or a slice of it, to a JSON file on disk.
package filewrite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kbflow/kbflow/pkg/models"
)

// ErrFileNameMissing is returned when the task config has no file_name.
var ErrFileNameMissing = errors.New("missing or invalid 'file_name' in configuration")

type Handler struct {
	logger *slog.Logger
}

func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{logger: logger.With("module", "filewrite_handler")}
}

func (h *Handler) Type() models.TaskType {
	return models.TaskTypeBackup
}

func (h *Handler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_name": map[string]any{
				"type":        "string",
				"description": "Name of the file to write.",
			},
			"directory": map[string]any{
				"type":        "string",
				"description": "Target directory, defaults to the system temp dir.",
			},
			"overwrite": map[string]any{
				"type":        "boolean",
				"description": "Replace the file if it already exists.",
			},
			"source": map[string]any{
				"type":        "string",
				"description": "Context key to back up. When empty the whole context is written.",
			},
		},
		"required": []string{"file_name"},
	}
}

func (h *Handler) Execute(
	ctx context.Context,
	task models.WorkflowTask,
	instance models.WorkflowInstance,
) (map[string]any, error) {
	fileName, ok := task.Config["file_name"].(string)
	if !ok || fileName == "" {
		return nil, ErrFileNameMissing
	}

	directory, _ := task.Config["directory"].(string)
	if directory == "" {
		directory = os.TempDir()
	}

	overwrite, _ := task.Config["overwrite"].(bool)

	var data any = instance.Context

	if source, ok := task.Config["source"].(string); ok && source != "" {
		value, exists := instance.Context[source]
		if !exists {
			return nil, fmt.Errorf("context key '%s' not found", source)
		}

		data = value
	}

	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal data to JSON: %w", err)
	}

	fullPath := filepath.Join(directory, fileName)

	if !overwrite {
		if _, err := os.Stat(fullPath); err == nil {
			return nil, fmt.Errorf("file '%s' already exists and overwrite is false", fullPath)
		}
	}

	err = os.MkdirAll(directory, 0750)
	if err != nil {
		return nil, fmt.Errorf("failed to create directory '%s': %w", directory, err)
	}

	err = os.WriteFile(fullPath, payload, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to write file '%s': %w", fullPath, err)
	}

	h.logger.InfoContext(ctx, "Wrote backup file",
		slog.String("path", fullPath), slog.Int("bytes", len(payload)))

	return map[string]any{
		"file_path":     fullPath,
		"bytes_written": len(payload),
	}, nil
}
