package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kbflow/kbflow/pkg/models"
	"github.com/kbflow/kbflow/pkg/otelhelper"
	"github.com/kbflow/kbflow/pkg/protocol"
	"github.com/kbflow/kbflow/pkg/registry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultBackoffBase = time.Second
	maxBackoff         = 30 * time.Second
)

// Executor runs a single task through its registered handler, bounded by the
// task's timeout budget per attempt and retried with exponential backoff up to
// the task's retry allowance.
type Executor struct {
	registry    *registry.Registry
	logger      *slog.Logger
	tracer      trace.Tracer
	backoffBase time.Duration
}

func NewExecutor(reg *registry.Registry, logger *slog.Logger) *Executor {
	return &Executor{
		registry:    reg,
		logger:      logger,
		tracer:      otel.Tracer("github.com/kbflow/kbflow/pkg/engine"),
		backoffBase: defaultBackoffBase,
	}
}

// Execute runs one task to a final outcome. The task and instance are passed by
// value: the driver owns the shared state and merges the returned result under
// its own lock. The notify callback, when non-nil, receives intermediate status
// transitions (Running, Retrying) for live status reporting.
func (e *Executor) Execute(
	ctx context.Context,
	task models.WorkflowTask,
	instance models.WorkflowInstance,
	notify func(models.TaskStatus),
) (map[string]any, error) {
	logger := e.logger.With(
		slog.String("instance_id", instance.ID),
		slog.String("task_id", task.ID),
		slog.String("task_type", string(task.Type)),
	)

	handler, err := e.registry.Handler(task.Type)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrHandlerNotRegistered, task.Type)
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "task.execute",
		attribute.String(otelhelper.WorkflowIDKey, instance.WorkflowID),
		attribute.String(otelhelper.InstanceIDKey, instance.ID),
		attribute.String(otelhelper.TaskIDKey, task.ID),
		attribute.String(otelhelper.TaskTypeKey, string(task.Type)),
	)
	defer span.End()

	if notify != nil {
		notify(models.TaskStatusRunning)
	}

	attempts := task.MaxRetries + 1

	for attempt := 1; ; attempt++ {
		result, err := e.runAttempt(ctx, handler, task, instance)
		if err == nil {
			logger.InfoContext(ctx, "Task completed", slog.Int("attempt", attempt))

			return result, nil
		}

		// A cancelled parent context means the instance is being torn down,
		// not that the attempt failed on its own merits.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if attempt >= attempts {
			logger.ErrorContext(ctx, "Task failed permanently",
				slog.Int("attempts", attempt), slog.String("error", err.Error()))
			otelhelper.SetError(span, err, attribute.String(otelhelper.TaskIDKey, task.ID))

			return nil, err
		}

		logger.WarnContext(ctx, "Task attempt failed, retrying",
			slog.Int("attempt", attempt), slog.String("error", err.Error()))

		if notify != nil {
			notify(models.TaskStatusRetrying)
		}

		select {
		case <-time.After(e.backoff(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		if notify != nil {
			notify(models.TaskStatusRunning)
		}
	}
}

// runAttempt races one handler invocation against the task's timeout budget.
func (e *Executor) runAttempt(
	ctx context.Context,
	handler protocol.TaskHandler,
	task models.WorkflowTask,
	instance models.WorkflowInstance,
) (map[string]any, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, task.Timeout)
	defer cancel()

	type attemptResult struct {
		result map[string]any
		err    error
	}

	done := make(chan attemptResult, 1)

	go func() {
		result, err := handler.Execute(attemptCtx, task, instance)
		done <- attemptResult{result: result, err: err}
	}()

	select {
	case res := <-done:
		return res.result, res.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, ErrTaskTimeout
		}

		return nil, attemptCtx.Err()
	}
}

func (e *Executor) backoff(attempt int) time.Duration {
	// Clamp the shift so large attempt counts cannot overflow the delay into
	// a negative value that would bypass the cap.
	shift := attempt - 1
	if shift > 30 {
		shift = 30
	}

	delay := e.backoffBase << shift
	if delay <= 0 || delay > maxBackoff {
		delay = maxBackoff
	}

	return delay
}
