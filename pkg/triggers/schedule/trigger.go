// Package schedule provides a cron-based trigger that starts workflow
// instances on a schedule.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kbflow/kbflow/pkg/protocol"
)

var (
	// ErrTriggerIDRequired is returned when the trigger config has no id.
	ErrTriggerIDRequired = errors.New("schedule trigger ID is required")
	// ErrCronExprRequired is returned when the trigger config has no cron expression.
	ErrCronExprRequired = errors.New("schedule trigger cron expression is required")
	// ErrWorkflowIDRequired is returned when the trigger config has no workflow id.
	ErrWorkflowIDRequired = errors.New("schedule trigger workflow ID is required")
)

// Trigger fires a workflow on a cron schedule.
type Trigger struct {
	ID         string
	CronExpr   string
	WorkflowID string
	Enabled    bool

	cron     *cron.Cron
	callback protocol.TriggerCallback
	logger   *slog.Logger
}

func NewTrigger(config map[string]any, logger *slog.Logger) (*Trigger, error) {
	id, _ := config["id"].(string)
	cronExpr, _ := config["cron"].(string)
	workflowID, _ := config["workflow_id"].(string)

	enabled := true
	if v, ok := config["enabled"].(bool); ok {
		enabled = v
	}

	trigger := &Trigger{
		ID:         id,
		CronExpr:   cronExpr,
		WorkflowID: workflowID,
		Enabled:    enabled,
		logger: logger.With(
			"module", "schedule_trigger",
			"id", id,
			"cron", cronExpr,
			"workflow_id", workflowID,
		),
	}

	err := trigger.Validate()
	if err != nil {
		return nil, err
	}

	return trigger, nil
}

func (t *Trigger) Validate() error {
	if t.ID == "" {
		return ErrTriggerIDRequired
	}

	if t.CronExpr == "" {
		return ErrCronExprRequired
	}

	if t.WorkflowID == "" {
		return ErrWorkflowIDRequired
	}

	_, err := cron.ParseStandard(t.CronExpr)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	return nil
}

func (t *Trigger) Start(ctx context.Context, callback protocol.TriggerCallback) error {
	if !t.Enabled {
		t.logger.InfoContext(ctx, "Schedule trigger is disabled")

		return nil
	}

	t.logger.InfoContext(ctx, "Starting schedule trigger")
	t.callback = callback

	t.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := t.cron.AddFunc(t.CronExpr, t.fire)
	if err != nil {
		return fmt.Errorf("failed to add cron job for trigger %s: %w", t.ID, err)
	}

	t.cron.Start()

	return nil
}

func (t *Trigger) fire() {
	t.logger.Info("Cron schedule fired")

	data := map[string]any{
		"trigger_id":   t.ID,
		"triggered_at": time.Now().UTC().Format(time.RFC3339),
	}

	go func() {
		err := t.callback(context.Background(), t.WorkflowID, data)
		if err != nil {
			t.logger.Error("Failed to start workflow from schedule", "error", err)
		}
	}()
}

func (t *Trigger) Stop(ctx context.Context) error {
	t.logger.InfoContext(ctx, "Stopping schedule trigger")

	if t.cron != nil {
		t.cron.Stop()
	}

	return nil
}
