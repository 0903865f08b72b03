// Package cleanup provides a task handler that removes files older than a
// retention window from a directory.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kbflow/kbflow/pkg/models"
)

// ErrDirectoryMissing is returned when the task config has no directory.
var ErrDirectoryMissing = errors.New("missing or invalid 'directory' in configuration")

const defaultMaxAgeHours = 24

type Handler struct {
	logger *slog.Logger
}

func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{logger: logger.With("module", "cleanup_handler")}
}

func (h *Handler) Type() models.TaskType {
	return models.TaskTypeCleanup
}

func (h *Handler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"directory": map[string]any{
				"type":        "string",
				"description": "Directory to clean.",
			},
			"max_age_hours": map[string]any{
				"type":        "number",
				"description": "Files older than this many hours are removed. Defaults to 24.",
			},
			"pattern": map[string]any{
				"type":        "string",
				"description": "Glob the file name must match, e.g. '*.json'. When empty every file is eligible.",
			},
		},
		"required": []string{"directory"},
	}
}

func (h *Handler) Execute(
	ctx context.Context,
	task models.WorkflowTask,
	instance models.WorkflowInstance,
) (map[string]any, error) {
	directory, ok := task.Config["directory"].(string)
	if !ok || directory == "" {
		return nil, ErrDirectoryMissing
	}

	maxAgeHours := float64(defaultMaxAgeHours)
	if v, ok := task.Config["max_age_hours"].(float64); ok && v > 0 {
		maxAgeHours = v
	}

	pattern, _ := task.Config["pattern"].(string)

	cutoff := time.Now().Add(-time.Duration(maxAgeHours * float64(time.Hour)))

	entries, err := os.ReadDir(directory)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory '%s': %w", directory, err)
	}

	removed := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if pattern != "" {
			matched, err := filepath.Match(pattern, entry.Name())
			if err != nil {
				return nil, fmt.Errorf("invalid pattern '%s': %w", pattern, err)
			}

			if !matched {
				continue
			}
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(directory, entry.Name())

		err = os.Remove(path)
		if err != nil {
			h.logger.WarnContext(ctx, "Failed to remove file",
				slog.String("path", path), slog.String("error", err.Error()))

			continue
		}

		removed++
	}

	h.logger.InfoContext(ctx, "Cleanup completed",
		slog.String("directory", directory), slog.Int("removed", removed))

	return map[string]any{
		"directory": directory,
		"removed":   removed,
	}, nil
}
