package main

import (
	"context"
	"log/slog"

	"github.com/kbflow/kbflow/pkg/engine"
	"github.com/kbflow/kbflow/pkg/triggers/schedule"
)

// Scheduler starts one cron trigger per schedule trigger item found in the
// stored workflow definitions.
type Scheduler struct {
	logger   *slog.Logger
	engine   *engine.Engine
	triggers []*schedule.Trigger
}

func NewScheduler(logger *slog.Logger, eng *engine.Engine) *Scheduler {
	return &Scheduler{
		logger: logger,
		engine: eng,
	}
}

// Start loads every definition and arms its schedule triggers. Definitions
// without schedule triggers are skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	definitions, err := s.engine.Workflows(ctx)
	if err != nil {
		return err
	}

	for _, definition := range definitions {
		for _, item := range definition.Triggers {
			if item.Type != "schedule" {
				continue
			}

			config := make(map[string]any, len(item.Configuration)+2)
			for k, v := range item.Configuration {
				config[k] = v
			}

			config["id"] = item.ID
			config["workflow_id"] = definition.ID

			trigger, err := schedule.NewTrigger(config, s.logger)
			if err != nil {
				s.logger.ErrorContext(ctx, "Skipping invalid schedule trigger",
					"workflow_id", definition.ID, "trigger_id", item.ID, "error", err)

				continue
			}

			err = trigger.Start(ctx, s.startWorkflow)
			if err != nil {
				return err
			}

			s.triggers = append(s.triggers, trigger)
		}
	}

	s.logger.InfoContext(ctx, "Scheduler started", "triggers", len(s.triggers))

	return nil
}

func (s *Scheduler) startWorkflow(ctx context.Context, workflowID string, data map[string]any) error {
	instanceID, err := s.engine.StartWorkflow(ctx, workflowID, data)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Started scheduled instance",
		"workflow_id", workflowID, "instance_id", instanceID)

	return nil
}

// Stop stops every armed trigger.
func (s *Scheduler) Stop(ctx context.Context) error {
	for _, trigger := range s.triggers {
		err := trigger.Stop(ctx)
		if err != nil {
			return err
		}
	}

	return nil
}
