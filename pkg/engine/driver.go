package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kbflow/kbflow/pkg/eventbus"
	"github.com/kbflow/kbflow/pkg/events"
	"github.com/kbflow/kbflow/pkg/models"
	"github.com/kbflow/kbflow/pkg/persistence"
)

// driver owns one workflow instance for its entire lifetime. All mutation of
// the instance happens on the driver goroutine or under its mutex; the public
// API only ever observes clones.
type driver struct {
	logger       *slog.Logger
	executor     *Executor
	persistence  persistence.Persistence
	eventBus     eventbus.EventBus
	definition   *models.WorkflowDefinition
	pollInterval time.Duration

	mu       sync.RWMutex
	instance *models.WorkflowInstance

	cancelRequested atomic.Bool
	pauseRequested  atomic.Bool
	resumeCh        chan struct{}
	wakeCh          chan struct{}
	done            chan struct{}
}

func newDriver(
	logger *slog.Logger,
	executor *Executor,
	store persistence.Persistence,
	eventBus eventbus.EventBus,
	definition *models.WorkflowDefinition,
	instance *models.WorkflowInstance,
	pollInterval time.Duration,
) *driver {
	return &driver{
		logger: logger.With(
			slog.String("workflow_id", definition.ID),
			slog.String("instance_id", instance.ID),
		),
		executor:     executor,
		persistence:  store,
		eventBus:     eventBus,
		definition:   definition,
		instance:     instance,
		pollInterval: pollInterval,
		resumeCh:     make(chan struct{}, 1),
		wakeCh:       make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
}

// snapshot returns a deep copy of the instance, safe for callers to keep.
func (d *driver) snapshot() *models.WorkflowInstance {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.instance.Clone()
}

func (d *driver) status() models.InstanceStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.instance.Status
}

// cancel requests cooperative cancellation, observed at the next round boundary.
func (d *driver) cancel() error {
	if d.status().Terminal() {
		return ErrInstanceTerminal
	}

	d.cancelRequested.Store(true)
	d.wake()

	return nil
}

// pause requests a cooperative pause at the next round boundary.
func (d *driver) pause() error {
	if d.status() != models.InstanceStatusActive {
		return ErrInstanceNotActive
	}

	d.pauseRequested.Store(true)

	return nil
}

// resume releases a paused driver.
func (d *driver) resume() error {
	if d.status() != models.InstanceStatusPaused && !d.pauseRequested.Load() {
		return ErrInstanceNotPaused
	}

	d.pauseRequested.Store(false)

	select {
	case d.resumeCh <- struct{}{}:
	default:
	}

	return nil
}

func (d *driver) wake() {
	select {
	case d.wakeCh <- struct{}{}:
	default:
	}
}

// run is the round loop: compute ready tasks, dispatch them concurrently, join,
// merge outcomes, snapshot, repeat until a terminal state.
func (d *driver) run(ctx context.Context) {
	defer close(d.done)

	d.logger.InfoContext(ctx, "Driver started", slog.Int("tasks", len(d.definition.Tasks)))

	round := 0

	for {
		if ctx.Err() != nil || d.cancelRequested.Load() {
			d.finish(ctx, models.InstanceStatusCancelled, "workflow cancelled")

			return
		}

		d.mu.RLock()
		ready := ReadyTasks(d.instance)
		allDone := d.instance.Done()
		failed := len(d.instance.FailedTasks)
		total := len(d.instance.Tasks)
		d.mu.RUnlock()

		// Terminal outcomes are resolved before a pending pause so that a
		// pause landing during the final round never parks a finished instance.
		if len(ready) == 0 {
			if allDone {
				d.finish(ctx, models.InstanceStatusCompleted, "")

				return
			}

			if failed > 0 {
				d.finish(ctx, models.InstanceStatusFailed,
					fmt.Sprintf("%d of %d tasks failed", failed, total))

				return
			}
		}

		if d.pauseRequested.Load() {
			if !d.waitResume(ctx) {
				d.finish(ctx, models.InstanceStatusCancelled, "workflow cancelled")

				return
			}

			continue
		}

		if len(ready) == 0 {
			// All outcomes merge at the round barrier, so an empty ready set
			// with pending work cannot resolve itself. Re-check once after the
			// poll interval, then report the stall.
			if !d.sleep(ctx) {
				continue
			}

			d.mu.RLock()
			ready = ReadyTasks(d.instance)
			blocked := blockedTasks(d.instance)
			d.mu.RUnlock()

			if len(ready) == 0 {
				d.logger.ErrorContext(ctx, "Workflow stalled",
					slog.Int("round", round), slog.Any("blocked_tasks", blocked))
				d.finish(ctx, models.InstanceStatusFailed, ErrInstanceStalled.Error())

				return
			}
		}

		round++

		criticalFailure := d.runRound(ctx, round, ready)
		d.saveSnapshot(ctx)

		if criticalFailure != "" {
			d.finish(ctx, models.InstanceStatusFailed, criticalFailure)

			return
		}
	}
}

// sleep waits one poll interval. It returns false when interrupted by a wake-up
// or context cancellation, in which case the caller should re-enter the loop.
func (d *driver) sleep(ctx context.Context) bool {
	select {
	case <-time.After(d.pollInterval):
		return true
	case <-d.wakeCh:
		return false
	case <-ctx.Done():
		return false
	}
}

type taskOutcome struct {
	taskID      string
	result      map[string]any
	contextVars map[string]any
	err         error
}

// runRound dispatches every ready task concurrently and joins them all before
// merging outcomes. It returns a non-empty message when a critical task failed.
func (d *driver) runRound(ctx context.Context, round int, ready []*models.WorkflowTask) string {
	d.logger.InfoContext(ctx, "Dispatching round",
		slog.Int("round", round), slog.Int("ready_tasks", len(ready)))

	startedAt := time.Now().UTC()

	d.mu.Lock()
	for _, task := range ready {
		task.Status = models.TaskStatusRunning
		started := startedAt
		task.StartedAt = &started
		d.instance.CurrentTasks[task.ID] = true
	}

	instanceView := d.instance
	taskViews := make([]models.WorkflowTask, len(ready))

	for i, task := range ready {
		taskViews[i] = *task.Clone()
	}
	d.mu.Unlock()

	outcomes := make(chan taskOutcome, len(ready))

	var wg sync.WaitGroup

	for _, view := range taskViews {
		wg.Add(1)

		go func(task models.WorkflowTask) {
			defer wg.Done()

			// Each task gets its own instance clone so handlers may read and
			// write the context without racing their round siblings.
			d.mu.RLock()
			instance := instanceView.Clone()
			d.mu.RUnlock()

			result, err := d.executor.Execute(ctx, task, *instance, func(status models.TaskStatus) {
				d.setTaskStatus(task.ID, status)
			})

			outcomes <- taskOutcome{
				taskID:      task.ID,
				result:      result,
				contextVars: instance.Context,
				err:         err,
			}
		}(view)
	}

	wg.Wait()
	close(outcomes)

	criticalFailure := ""
	finished := make([]taskOutcome, 0, len(ready))

	d.mu.Lock()

	for outcome := range outcomes {
		task := d.instance.Tasks[outcome.taskID]
		completedAt := time.Now().UTC()
		task.CompletedAt = &completedAt

		delete(d.instance.CurrentTasks, outcome.taskID)

		if outcome.err != nil {
			task.Status = models.TaskStatusFailed
			task.Error = outcome.err.Error()
			d.instance.FailedTasks[outcome.taskID] = true

			if task.Critical() && criticalFailure == "" {
				criticalFailure = fmt.Sprintf("critical task %s failed: %v", task.Name, outcome.err)
			}
		} else {
			task.Status = models.TaskStatusCompleted
			task.Result = outcome.result
			d.instance.CompletedTasks[outcome.taskID] = true

			// Handler context writes merge back last-write-wins.
			for k, v := range outcome.contextVars {
				d.instance.Context[k] = v
			}
		}

		finished = append(finished, outcome)
	}

	d.mu.Unlock()

	for _, outcome := range finished {
		d.publishTaskOutcome(ctx, outcome)
	}

	d.publish(ctx, events.NewRoundCompleted(d.snapshotForEvent(), round, len(ready)))

	return criticalFailure
}

func (d *driver) setTaskStatus(taskID string, status models.TaskStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if task, ok := d.instance.Tasks[taskID]; ok {
		task.Status = status
	}
}

// waitResume parks the driver in the Paused state until resumed. It returns
// false when the driver should cancel instead of resuming.
func (d *driver) waitResume(ctx context.Context) bool {
	d.mu.Lock()
	d.instance.Status = models.InstanceStatusPaused
	d.mu.Unlock()

	d.logger.InfoContext(ctx, "Instance paused")
	d.saveSnapshot(ctx)
	d.publish(ctx, events.NewInstancePaused(d.snapshotForEvent()))

	for {
		select {
		case <-d.resumeCh:
			d.mu.Lock()
			d.instance.Status = models.InstanceStatusActive
			d.mu.Unlock()

			d.logger.InfoContext(ctx, "Instance resumed")
			d.publish(ctx, events.NewInstanceResumed(d.snapshotForEvent()))

			return true
		case <-d.wakeCh:
			if d.cancelRequested.Load() {
				return false
			}
		case <-ctx.Done():
			return false
		}
	}
}

// finish transitions the instance to a terminal state, marks tasks that never
// ran as skipped, snapshots and publishes the terminal event.
func (d *driver) finish(ctx context.Context, status models.InstanceStatus, errMsg string) {
	now := time.Now().UTC()

	d.mu.Lock()
	d.instance.Status = status
	d.instance.Error = errMsg
	d.instance.CompletedAt = &now

	if status != models.InstanceStatusCompleted {
		for id, task := range d.instance.Tasks {
			if d.instance.CompletedTasks[id] || d.instance.FailedTasks[id] {
				continue
			}

			task.Status = models.TaskStatusSkipped
			delete(d.instance.CurrentTasks, id)
		}
	}
	d.mu.Unlock()

	d.saveSnapshot(ctx)

	snapshot := d.snapshotForEvent()

	switch status {
	case models.InstanceStatusCompleted:
		d.logger.InfoContext(ctx, "Instance completed")
		d.publish(ctx, events.NewInstanceCompleted(snapshot))
	case models.InstanceStatusFailed:
		d.logger.ErrorContext(ctx, "Instance failed", slog.String("error", errMsg))
		d.publish(ctx, events.NewInstanceFailed(snapshot, errMsg))
	case models.InstanceStatusCancelled:
		d.logger.InfoContext(ctx, "Instance cancelled")
		d.publish(ctx, events.NewInstanceCancelled(snapshot))
	case models.InstanceStatusDraft, models.InstanceStatusActive, models.InstanceStatusPaused:
	}
}

// saveSnapshot persists the current instance state. Snapshot failures are
// logged, never fatal: persistence is an at-least-once observer, not a
// scheduling dependency.
func (d *driver) saveSnapshot(ctx context.Context) {
	snapshot := d.snapshot()

	err := d.persistence.InstanceRepository().SaveSnapshot(ctx, snapshot)
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to save instance snapshot", slog.String("error", err.Error()))
	}
}

func (d *driver) snapshotForEvent() *models.WorkflowInstance {
	return d.snapshot()
}

func (d *driver) publishTaskOutcome(ctx context.Context, outcome taskOutcome) {
	snapshot := d.snapshotForEvent()

	if outcome.err != nil {
		d.publish(ctx, events.NewTaskFailed(snapshot, outcome.taskID, outcome.err.Error()))

		return
	}

	d.publish(ctx, events.NewTaskCompleted(snapshot, outcome.taskID))
}

func (d *driver) publish(ctx context.Context, event eventbus.Event) {
	if d.eventBus == nil {
		return
	}

	err := d.eventBus.Publish(ctx, d.instance.ID, event)
	if err != nil {
		d.logger.WarnContext(ctx, "Failed to publish event",
			slog.String("event_type", string(event.GetType())),
			slog.String("error", err.Error()))
	}
}
