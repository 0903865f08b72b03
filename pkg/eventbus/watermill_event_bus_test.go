package eventbus_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbflow/kbflow/pkg/channels/gochannel"
	"github.com/kbflow/kbflow/pkg/eventbus"
	"github.com/kbflow/kbflow/pkg/events"
	"github.com/kbflow/kbflow/pkg/models"
)

func setupTestBus(t *testing.T) *eventbus.WatermillEventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func testInstance() *models.WorkflowInstance {
	return &models.WorkflowInstance{
		ID:         "inst-1",
		WorkflowID: "wf-1",
		Context:    map[string]any{"env": "test"},
		StartedAt:  time.Now().UTC(),
	}
}

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	t.Parallel()

	bus := setupTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu       sync.Mutex
		received []*events.InstanceStarted
	)

	err := bus.Handle(events.InstanceStartedEvent, func(_ context.Context, event any) error {
		started, ok := event.(*events.InstanceStarted)
		require.True(t, ok)

		mu.Lock()
		received = append(received, started)
		mu.Unlock()

		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Subscribe(ctx))

	instance := testInstance()
	require.NoError(t, bus.Publish(ctx, instance.ID, events.NewInstanceStarted(instance)))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(received) == 1
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "inst-1", received[0].InstanceID)
	assert.Equal(t, "wf-1", received[0].WorkflowID)
	assert.Equal(t, events.InstanceStartedEvent, received[0].Type)
	assert.Equal(t, "test", received[0].Context["env"])
}

func TestWatermillEventBus_DispatchesByEventType(t *testing.T) {
	t.Parallel()

	bus := setupTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu     sync.Mutex
		failed []*events.TaskFailed
	)

	err := bus.Handle(events.TaskFailedEvent, func(_ context.Context, event any) error {
		taskFailed, ok := event.(*events.TaskFailed)
		require.True(t, ok)

		mu.Lock()
		failed = append(failed, taskFailed)
		mu.Unlock()

		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Subscribe(ctx))

	instance := testInstance()

	// Only the task failed handler is registered; the completed event is
	// acked and dropped.
	require.NoError(t, bus.Publish(ctx, instance.ID, events.NewTaskCompleted(instance, "a")))
	require.NoError(t, bus.Publish(ctx, instance.ID, events.NewTaskFailed(instance, "b", "boom")))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(failed) == 1
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "b", failed[0].TaskID)
	assert.Equal(t, "boom", failed[0].Error)
}

func TestWatermillEventBus_GenerateID(t *testing.T) {
	t.Parallel()

	bus := setupTestBus(t)

	first := bus.GenerateID()
	second := bus.GenerateID()

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}
