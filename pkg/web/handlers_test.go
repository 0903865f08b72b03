package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbflow/kbflow/pkg/engine"
	"github.com/kbflow/kbflow/pkg/handlers/logtask"
	"github.com/kbflow/kbflow/pkg/models"
	"github.com/kbflow/kbflow/pkg/persistence/file"
	"github.com/kbflow/kbflow/pkg/registry"
	"github.com/kbflow/kbflow/pkg/web"
)

func setupTestApp(t *testing.T) (*fiber.App, *engine.Engine) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	reg := registry.NewRegistry(slog.Default())
	reg.RegisterHandler(logtask.NewHandler(slog.Default()))

	eng := engine.NewEngine(slog.Default(), store, reg, nil,
		engine.WithRetryBackoff(time.Millisecond))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = eng.Shutdown(ctx)
	})

	handlers := web.NewAPIHandlers(eng, store, reg, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Post("/:id/start", handlers.StartWorkflow)
	w.Get("/:id/instances", handlers.GetInstances)

	i := app.Group("/instances")
	i.Get("/:id", handlers.GetInstanceStatus)
	i.Post("/:id/cancel", handlers.CancelInstance)
	i.Post("/:id/pause", handlers.PauseInstance)
	i.Post("/:id/resume", handlers.ResumeInstance)

	app.Get("/health", handlers.HealthCheck)

	return app, eng
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()

	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")

	return req
}

func validCreateRequest() web.CreateWorkflowRequest {
	return web.CreateWorkflowRequest{
		Name:        "Test Workflow",
		Description: "created from a test",
		Tasks: []web.TaskSpec{
			{ID: "a", Name: "A", Type: string(models.TaskTypeCustom)},
			{ID: "b", Name: "B", Type: string(models.TaskTypeCustom), Dependencies: []string{"a"}},
		},
	}
}

func TestCreateWorkflow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
	}{
		{
			name:           "successful creation",
			requestBody:    validCreateRequest(),
			expectedStatus: http.StatusCreated,
		},
		{
			name: "name too short",
			requestBody: web.CreateWorkflowRequest{
				Name:  "ab",
				Tasks: []web.TaskSpec{{ID: "a", Name: "A", Type: "custom"}},
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "no tasks",
			requestBody: web.CreateWorkflowRequest{
				Name: "Empty Workflow",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "unknown task type",
			requestBody: web.CreateWorkflowRequest{
				Name:  "Bad Type Workflow",
				Tasks: []web.TaskSpec{{ID: "a", Name: "A", Type: "frobnicate"}},
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "cyclic dependencies",
			requestBody: web.CreateWorkflowRequest{
				Name: "Cyclic Workflow",
				Tasks: []web.TaskSpec{
					{ID: "a", Name: "A", Type: "custom", Dependencies: []string{"b"}},
					{ID: "b", Name: "B", Type: "custom", Dependencies: []string{"a"}},
				},
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid JSON",
			requestBody:    "not-json",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app, _ := setupTestApp(t)

			resp, err := app.Test(jsonRequest(t, http.MethodPost, "/workflows/", tt.requestBody))
			require.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectedStatus == http.StatusCreated {
				body, err := io.ReadAll(resp.Body)
				require.NoError(t, err)

				var created models.WorkflowDefinition
				require.NoError(t, json.Unmarshal(body, &created))
				assert.NotEmpty(t, created.ID)
				assert.Len(t, created.Tasks, 2)
			}
		})
	}
}

func TestGetWorkflow(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/workflows/", validCreateRequest()))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var created models.WorkflowDefinition
	require.NoError(t, json.Unmarshal(body, &created))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/workflows/"+created.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/workflows/ghost", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStartWorkflowAndStatus(t *testing.T) {
	t.Parallel()

	app, eng := setupTestApp(t)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/workflows/", validCreateRequest()))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var created models.WorkflowDefinition
	require.NoError(t, json.Unmarshal(body, &created))

	resp, err = app.Test(jsonRequest(t, http.MethodPost, "/workflows/"+created.ID+"/start",
		web.StartInstanceRequest{Context: map[string]any{"env": "test"}}))
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)

	var started web.StartInstanceResponse
	require.NoError(t, json.Unmarshal(body, &started))
	assert.NotEmpty(t, started.InstanceID)
	assert.Equal(t, created.ID, started.WorkflowID)

	require.Eventually(t, func() bool {
		report, err := eng.GetWorkflowStatus(context.Background(), started.InstanceID)

		return err == nil && report.Status == models.InstanceStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/instances/"+started.InstanceID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)

	var report engine.StatusReport
	require.NoError(t, json.Unmarshal(body, &report))
	assert.Equal(t, models.InstanceStatusCompleted, report.Status)
	assert.ElementsMatch(t, []string{"a", "b"}, report.CompletedTasks)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/workflows/"+created.ID+"/instances", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStartWorkflowNotFound(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/workflows/ghost/start", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInstanceLifecycleConflicts(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/instances/ghost/cancel", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(jsonRequest(t, http.MethodPost, "/instances/ghost/resume", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var health map[string]any
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "healthy", health["status"])
}
