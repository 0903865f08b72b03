// Package webhook provides a notification task handler that delivers a JSON
// payload to an HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kbflow/kbflow/pkg/models"
)

const defaultTimeout = 30 * time.Second

var (
	// ErrWebhookURLMissing is returned when the task config has no url.
	ErrWebhookURLMissing = errors.New("missing or invalid 'url' in configuration")
	// ErrWebhookServerError is returned when the endpoint answers with a 5xx status.
	ErrWebhookServerError = errors.New("server error during webhook delivery")
)

type Handler struct {
	logger *slog.Logger
	client *http.Client
}

func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{
		logger: logger.With("module", "webhook_handler"),
		client: &http.Client{Timeout: defaultTimeout},
	}
}

func (h *Handler) Type() models.TaskType {
	return models.TaskTypeNotification
}

func (h *Handler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Endpoint the notification payload is delivered to.",
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method, defaults to POST.",
				"enum":        []string{"POST", "PUT", "PATCH"},
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "Extra request headers.",
			},
			"payload": map[string]any{
				"type":        "object",
				"description": "Static payload body. Merged with the instance context under the 'context' key when include_context is true.",
			},
			"include_context": map[string]any{
				"type":        "boolean",
				"description": "Attach the workflow context to the payload.",
			},
		},
		"required": []string{"url"},
	}
}

func (h *Handler) Execute(
	ctx context.Context,
	task models.WorkflowTask,
	instance models.WorkflowInstance,
) (map[string]any, error) {
	url, ok := task.Config["url"].(string)
	if !ok || url == "" {
		return nil, ErrWebhookURLMissing
	}

	method, _ := task.Config["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	payload := map[string]any{
		"workflow_id": instance.WorkflowID,
		"instance_id": instance.ID,
		"task_id":     task.ID,
	}

	if static, ok := task.Config["payload"].(map[string]any); ok {
		for k, v := range static {
			payload[k] = v
		}
	}

	if include, _ := task.Config["include_context"].(bool); include {
		payload["context"] = instance.Context
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if headers, ok := task.Config["headers"].(map[string]any); ok {
		for k, v := range headers {
			if value, ok := v.(string); ok {
				req.Header.Set(k, value)
			}
		}
	}

	h.logger.InfoContext(ctx, "Delivering webhook",
		slog.String("url", url), slog.String("method", req.Method))

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: status %d", ErrWebhookServerError, resp.StatusCode)
	}

	var parsed any

	err = json.Unmarshal(respBody, &parsed)
	if err != nil {
		parsed = string(respBody)
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"body":        parsed,
	}, nil
}
