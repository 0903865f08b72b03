package engine_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbflow/kbflow/pkg/engine"
	"github.com/kbflow/kbflow/pkg/models"
)

const (
	waitTimeout = 5 * time.Second
	waitTick    = 10 * time.Millisecond
)

type fakeHandler struct {
	taskType models.TaskType
	schema   map[string]any
	fn       func(ctx context.Context, task models.WorkflowTask, instance models.WorkflowInstance) (map[string]any, error)
}

func (h *fakeHandler) Execute(ctx context.Context, task models.WorkflowTask, instance models.WorkflowInstance) (map[string]any, error) {
	if h.fn == nil {
		return map[string]any{}, nil
	}

	return h.fn(ctx, task, instance)
}

func (h *fakeHandler) Type() models.TaskType { return h.taskType }

func (h *fakeHandler) Schema() map[string]any { return h.schema }

// orderRecorder tracks completion order across concurrently executing tasks.
type orderRecorder struct {
	mu    sync.Mutex
	order []string
}

func (r *orderRecorder) record(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.order = append(r.order, id)
}

func (r *orderRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.order...)
}

func waitForStatus(t *testing.T, eng *engine.Engine, instanceID string, want models.InstanceStatus) *engine.StatusReport {
	t.Helper()

	var report *engine.StatusReport

	require.Eventually(t, func() bool {
		var err error

		report, err = eng.GetWorkflowStatus(context.Background(), instanceID)
		if err != nil {
			return false
		}

		return report.Status == want
	}, waitTimeout, waitTick, "instance %s never reached status %s", instanceID, want)

	return report
}

func TestEngine_LinearChainRunsInDependencyOrder(t *testing.T) {
	t.Parallel()

	eng, reg, _ := newTestEngine(t, engine.WithRetryBackoff(time.Millisecond))
	recorder := &orderRecorder{}

	reg.RegisterHandler(&fakeHandler{
		taskType: models.TaskTypeCustom,
		fn: func(_ context.Context, task models.WorkflowTask, _ models.WorkflowInstance) (map[string]any, error) {
			recorder.record(task.ID)

			return map[string]any{"task": task.ID}, nil
		},
	})

	created, err := eng.CreateWorkflow(context.Background(), "linear chain", "",
		[]*models.WorkflowTask{task("ingest"), task("process", "ingest"), task("index", "process")}, nil)
	require.NoError(t, err)

	instanceID, err := eng.StartWorkflow(context.Background(), created.ID, nil)
	require.NoError(t, err)

	report := waitForStatus(t, eng, instanceID, models.InstanceStatusCompleted)

	assert.Equal(t, []string{"ingest", "process", "index"}, recorder.snapshot())
	assert.InDelta(t, 100.0, report.Progress, 0.001)
	assert.ElementsMatch(t, []string{"ingest", "process", "index"}, report.CompletedTasks)
	assert.Empty(t, report.FailedTasks)
	assert.NotNil(t, report.CompletedAt)
}

func TestEngine_DiamondFailureSkipsDownstream(t *testing.T) {
	t.Parallel()

	eng, reg, store := newTestEngine(t, engine.WithRetryBackoff(time.Millisecond))

	reg.RegisterHandler(&fakeHandler{
		taskType: models.TaskTypeCustom,
		fn: func(_ context.Context, task models.WorkflowTask, _ models.WorkflowInstance) (map[string]any, error) {
			if task.ID == "broken" {
				return nil, errors.New("branch exploded")
			}

			return map[string]any{}, nil
		},
	})

	created, err := eng.CreateWorkflow(context.Background(), "diamond", "",
		[]*models.WorkflowTask{
			task("root"),
			task("broken", "root"),
			task("healthy", "root"),
			task("join", "broken", "healthy"),
		}, nil)
	require.NoError(t, err)

	instanceID, err := eng.StartWorkflow(context.Background(), created.ID, nil)
	require.NoError(t, err)

	report := waitForStatus(t, eng, instanceID, models.InstanceStatusFailed)

	// The healthy sibling still completed; only the join is skipped.
	assert.ElementsMatch(t, []string{"root", "healthy"}, report.CompletedTasks)
	assert.ElementsMatch(t, []string{"broken"}, report.FailedTasks)
	assert.Equal(t, models.TaskStatusSkipped, report.TaskStatuses["join"])
	assert.Contains(t, report.Error, "1 of 4 tasks failed")

	// The terminal snapshot is persisted.
	snapshot, err := store.InstanceRepository().GetByID(context.Background(), instanceID)
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, models.InstanceStatusFailed, snapshot.Status)
	assert.Contains(t, snapshot.Tasks["broken"].Error, "branch exploded")
}

func TestEngine_TaskTimeoutFailsTask(t *testing.T) {
	t.Parallel()

	eng, reg, store := newTestEngine(t, engine.WithRetryBackoff(time.Millisecond))

	reg.RegisterHandler(&fakeHandler{
		taskType: models.TaskTypeCustom,
		fn: func(ctx context.Context, _ models.WorkflowTask, _ models.WorkflowInstance) (map[string]any, error) {
			<-ctx.Done()

			return nil, ctx.Err()
		},
	})

	slow := task("slow")
	slow.Timeout = 20 * time.Millisecond
	slow.MaxRetries = 1

	created, err := eng.CreateWorkflow(context.Background(), "timeouts", "",
		[]*models.WorkflowTask{slow}, nil)
	require.NoError(t, err)

	instanceID, err := eng.StartWorkflow(context.Background(), created.ID, nil)
	require.NoError(t, err)

	waitForStatus(t, eng, instanceID, models.InstanceStatusFailed)

	snapshot, err := store.InstanceRepository().GetByID(context.Background(), instanceID)
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, "task execution timed out", snapshot.Tasks["slow"].Error)
}

func TestEngine_CriticalTaskFailureFailsInstance(t *testing.T) {
	t.Parallel()

	eng, reg, _ := newTestEngine(t, engine.WithRetryBackoff(time.Millisecond))

	reg.RegisterHandler(&fakeHandler{
		taskType: models.TaskTypeCustom,
		fn: func(_ context.Context, task models.WorkflowTask, _ models.WorkflowInstance) (map[string]any, error) {
			if task.ID == "guard" {
				return nil, errors.New("guard tripped")
			}

			return map[string]any{}, nil
		},
	})

	guard := task("guard")
	guard.Config = map[string]any{"critical": true}
	guard.MaxRetries = 1

	created, err := eng.CreateWorkflow(context.Background(), "critical", "",
		[]*models.WorkflowTask{guard, task("sibling"), task("downstream", "sibling")}, nil)
	require.NoError(t, err)

	instanceID, err := eng.StartWorkflow(context.Background(), created.ID, nil)
	require.NoError(t, err)

	report := waitForStatus(t, eng, instanceID, models.InstanceStatusFailed)

	assert.Contains(t, report.Error, "critical task")
	// The sibling in the same round still ran to completion before the
	// instance failed; downstream work never started.
	assert.Contains(t, report.CompletedTasks, "sibling")
	assert.Equal(t, models.TaskStatusSkipped, report.TaskStatuses["downstream"])
}

func TestEngine_TransientFailureRetriesToSuccess(t *testing.T) {
	t.Parallel()

	eng, reg, _ := newTestEngine(t, engine.WithRetryBackoff(time.Millisecond))

	var (
		mu       sync.Mutex
		attempts int
	)

	reg.RegisterHandler(&fakeHandler{
		taskType: models.TaskTypeCustom,
		fn: func(_ context.Context, _ models.WorkflowTask, _ models.WorkflowInstance) (map[string]any, error) {
			mu.Lock()
			defer mu.Unlock()

			attempts++
			if attempts < 3 {
				return nil, errors.New("flaky")
			}

			return map[string]any{}, nil
		},
	})

	flaky := task("flaky")
	flaky.MaxRetries = 3

	created, err := eng.CreateWorkflow(context.Background(), "retries", "",
		[]*models.WorkflowTask{flaky}, nil)
	require.NoError(t, err)

	instanceID, err := eng.StartWorkflow(context.Background(), created.ID, nil)
	require.NoError(t, err)

	waitForStatus(t, eng, instanceID, models.InstanceStatusCompleted)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, attempts)
}

func TestEngine_ContextFlowsBetweenTasks(t *testing.T) {
	t.Parallel()

	eng, reg, _ := newTestEngine(t, engine.WithRetryBackoff(time.Millisecond))

	var (
		mu   sync.Mutex
		seen any
	)

	reg.RegisterHandler(&fakeHandler{
		taskType: models.TaskTypeCustom,
		fn: func(_ context.Context, task models.WorkflowTask, instance models.WorkflowInstance) (map[string]any, error) {
			switch task.ID {
			case "producer":
				instance.Context["artifact"] = "doc-42"
			case "consumer":
				mu.Lock()
				seen = instance.Context["artifact"]
				mu.Unlock()
			}

			return map[string]any{}, nil
		},
	})

	created, err := eng.CreateWorkflow(context.Background(), "context flow", "",
		[]*models.WorkflowTask{task("producer"), task("consumer", "producer")}, nil)
	require.NoError(t, err)

	instanceID, err := eng.StartWorkflow(context.Background(), created.ID, nil)
	require.NoError(t, err)

	waitForStatus(t, eng, instanceID, models.InstanceStatusCompleted)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "doc-42", seen)
}

func TestEngine_CancelSkipsRemainingTasks(t *testing.T) {
	t.Parallel()

	eng, reg, _ := newTestEngine(t, engine.WithRetryBackoff(time.Millisecond))

	started := make(chan struct{})
	release := make(chan struct{})

	reg.RegisterHandler(&fakeHandler{
		taskType: models.TaskTypeCustom,
		fn: func(_ context.Context, task models.WorkflowTask, _ models.WorkflowInstance) (map[string]any, error) {
			if task.ID == "first" {
				close(started)
				<-release
			}

			return map[string]any{}, nil
		},
	})

	created, err := eng.CreateWorkflow(context.Background(), "cancellable", "",
		[]*models.WorkflowTask{task("first"), task("second", "first")}, nil)
	require.NoError(t, err)

	instanceID, err := eng.StartWorkflow(context.Background(), created.ID, nil)
	require.NoError(t, err)

	<-started

	require.NoError(t, eng.CancelWorkflow(context.Background(), instanceID))
	close(release)

	report := waitForStatus(t, eng, instanceID, models.InstanceStatusCancelled)

	// The in-flight round finished; work behind the round boundary is skipped.
	assert.Contains(t, report.CompletedTasks, "first")
	assert.Equal(t, models.TaskStatusSkipped, report.TaskStatuses["second"])

	// Cancelling a terminal instance is rejected.
	err = eng.CancelWorkflow(context.Background(), instanceID)
	require.ErrorIs(t, err, engine.ErrInstanceTerminal)
}

func TestEngine_PauseAndResume(t *testing.T) {
	t.Parallel()

	eng, reg, _ := newTestEngine(t, engine.WithRetryBackoff(time.Millisecond))

	started := make(chan struct{})
	release := make(chan struct{})

	reg.RegisterHandler(&fakeHandler{
		taskType: models.TaskTypeCustom,
		fn: func(_ context.Context, task models.WorkflowTask, _ models.WorkflowInstance) (map[string]any, error) {
			if task.ID == "first" {
				close(started)
				<-release
			}

			return map[string]any{}, nil
		},
	})

	created, err := eng.CreateWorkflow(context.Background(), "pausable", "",
		[]*models.WorkflowTask{task("first"), task("second", "first")}, nil)
	require.NoError(t, err)

	instanceID, err := eng.StartWorkflow(context.Background(), created.ID, nil)
	require.NoError(t, err)

	<-started

	require.NoError(t, eng.PauseWorkflow(context.Background(), instanceID))
	close(release)

	waitForStatus(t, eng, instanceID, models.InstanceStatusPaused)

	// Pausing twice is rejected; the instance is no longer active.
	err = eng.PauseWorkflow(context.Background(), instanceID)
	require.ErrorIs(t, err, engine.ErrInstanceNotActive)

	require.NoError(t, eng.ResumeWorkflow(context.Background(), instanceID))

	report := waitForStatus(t, eng, instanceID, models.InstanceStatusCompleted)
	assert.ElementsMatch(t, []string{"first", "second"}, report.CompletedTasks)

	err = eng.ResumeWorkflow(context.Background(), instanceID)
	require.Error(t, err)
}

func TestEngine_PauseDuringFinalRoundStillCompletes(t *testing.T) {
	t.Parallel()

	eng, reg, _ := newTestEngine(t, engine.WithRetryBackoff(time.Millisecond))

	started := make(chan struct{})
	release := make(chan struct{})

	reg.RegisterHandler(&fakeHandler{
		taskType: models.TaskTypeCustom,
		fn: func(_ context.Context, _ models.WorkflowTask, _ models.WorkflowInstance) (map[string]any, error) {
			close(started)
			<-release

			return map[string]any{}, nil
		},
	})

	created, err := eng.CreateWorkflow(context.Background(), "final round pause", "",
		[]*models.WorkflowTask{task("only")}, nil)
	require.NoError(t, err)

	instanceID, err := eng.StartWorkflow(context.Background(), created.ID, nil)
	require.NoError(t, err)

	<-started

	// The pause lands while the last remaining task is in flight. Once that
	// round finishes there is nothing left to pause: the instance completes
	// without ever needing a resume.
	require.NoError(t, eng.PauseWorkflow(context.Background(), instanceID))
	close(release)

	report := waitForStatus(t, eng, instanceID, models.InstanceStatusCompleted)
	assert.ElementsMatch(t, []string{"only"}, report.CompletedTasks)
}

func TestEngine_StalledInstanceFails(t *testing.T) {
	t.Parallel()

	eng, reg, store := newTestEngine(t,
		engine.WithRetryBackoff(time.Millisecond),
		engine.WithPollInterval(20*time.Millisecond))

	reg.RegisterHandler(&fakeHandler{taskType: models.TaskTypeCustom})

	// A cyclic definition cannot pass CreateWorkflow, so plant it directly in
	// the store to simulate a corrupted definition source.
	definition := &models.WorkflowDefinition{
		ID:   "corrupt-wf",
		Name: "corrupt workflow",
		Tasks: []*models.WorkflowTask{
			task("a"),
			task("b", "c"),
			task("c", "b"),
		},
	}
	for _, item := range definition.Tasks {
		item.Normalize()
	}

	require.NoError(t, store.WorkflowRepository().Save(context.Background(), definition))

	instanceID, err := eng.StartWorkflow(context.Background(), "corrupt-wf", nil)
	require.NoError(t, err)

	report := waitForStatus(t, eng, instanceID, models.InstanceStatusFailed)

	assert.Contains(t, report.Error, "stalled")
	assert.Contains(t, report.CompletedTasks, "a")
	assert.Equal(t, models.TaskStatusSkipped, report.TaskStatuses["b"])
	assert.Equal(t, models.TaskStatusSkipped, report.TaskStatuses["c"])
}

func TestEngine_NotFoundErrors(t *testing.T) {
	t.Parallel()

	eng, _, _ := newTestEngine(t)

	_, err := eng.StartWorkflow(context.Background(), "ghost", nil)
	require.ErrorIs(t, err, engine.ErrWorkflowNotFound)

	_, err = eng.GetWorkflowStatus(context.Background(), "ghost")
	require.ErrorIs(t, err, engine.ErrInstanceNotFound)

	err = eng.CancelWorkflow(context.Background(), "ghost")
	require.ErrorIs(t, err, engine.ErrInstanceNotFound)

	_, err = eng.WorkflowByID(context.Background(), "ghost")
	require.ErrorIs(t, err, engine.ErrWorkflowNotFound)
	assert.True(t, engine.IsNotFound(err))
}

func TestEngine_StatusSurvivesFromSnapshotStore(t *testing.T) {
	t.Parallel()

	eng, reg, store := newTestEngine(t)
	reg.RegisterHandler(&fakeHandler{taskType: models.TaskTypeCustom})

	created, err := eng.CreateWorkflow(context.Background(), "snapshot read", "",
		[]*models.WorkflowTask{task("only")}, nil)
	require.NoError(t, err)

	instanceID, err := eng.StartWorkflow(context.Background(), created.ID, nil)
	require.NoError(t, err)

	waitForStatus(t, eng, instanceID, models.InstanceStatusCompleted)

	// A fresh engine sharing the store answers status from snapshots.
	other := engine.NewEngine(slog.Default(), store, reg, nil)

	report, err := other.GetWorkflowStatus(context.Background(), instanceID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCompleted, report.Status)

	instances, err := other.InstancesByWorkflow(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Len(t, instances, 1)
}
