package schedule_test

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbflow/kbflow/pkg/triggers/schedule"
)

func validConfig() map[string]any {
	return map[string]any{
		"id":          "trg-1",
		"cron":        "* * * * *",
		"workflow_id": "wf-1",
	}
}

func TestNewTrigger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(config map[string]any)
		wantErr error
	}{
		{
			name:   "valid",
			mutate: func(map[string]any) {},
		},
		{
			name:    "missing id",
			mutate:  func(config map[string]any) { delete(config, "id") },
			wantErr: schedule.ErrTriggerIDRequired,
		},
		{
			name:    "missing cron expression",
			mutate:  func(config map[string]any) { delete(config, "cron") },
			wantErr: schedule.ErrCronExprRequired,
		},
		{
			name:    "missing workflow id",
			mutate:  func(config map[string]any) { delete(config, "workflow_id") },
			wantErr: schedule.ErrWorkflowIDRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			config := validConfig()
			tt.mutate(config)

			trigger, err := schedule.NewTrigger(config, slog.Default())

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, "trg-1", trigger.ID)
			assert.Equal(t, "wf-1", trigger.WorkflowID)
			assert.True(t, trigger.Enabled)
		})
	}
}

func TestNewTrigger_InvalidCronExpression(t *testing.T) {
	t.Parallel()

	config := validConfig()
	config["cron"] = "not a schedule"

	_, err := schedule.NewTrigger(config, slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cron expression")
}

func TestTrigger_DisabledDoesNotArm(t *testing.T) {
	t.Parallel()

	config := validConfig()
	config["enabled"] = false

	trigger, err := schedule.NewTrigger(config, slog.Default())
	require.NoError(t, err)
	assert.False(t, trigger.Enabled)

	var fired atomic.Int32

	err = trigger.Start(context.Background(), func(context.Context, string, map[string]any) error {
		fired.Add(1)

		return nil
	})
	require.NoError(t, err)
	require.NoError(t, trigger.Stop(context.Background()))

	assert.Equal(t, int32(0), fired.Load())
}

func TestTrigger_EverySecondFires(t *testing.T) {
	t.Parallel()

	config := validConfig()
	config["cron"] = "@every 1s"

	trigger, err := schedule.NewTrigger(config, slog.Default())
	require.NoError(t, err)

	var fired atomic.Int32

	workflowIDs := make(chan string, 8)

	err = trigger.Start(context.Background(), func(_ context.Context, workflowID string, data map[string]any) error {
		fired.Add(1)
		workflowIDs <- workflowID

		assert.Equal(t, "trg-1", data["trigger_id"])
		assert.NotEmpty(t, data["triggered_at"])

		return nil
	})
	require.NoError(t, err)

	t.Cleanup(func() { _ = trigger.Stop(context.Background()) })

	require.Eventually(t, func() bool {
		return fired.Load() >= 1
	}, 5*time.Second, 50*time.Millisecond)

	assert.Equal(t, "wf-1", <-workflowIDs)
}
