package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kbflow/kbflow/pkg/eventbus"
	"github.com/kbflow/kbflow/pkg/events"
	"github.com/kbflow/kbflow/pkg/models"
	"github.com/kbflow/kbflow/pkg/persistence"
	"github.com/kbflow/kbflow/pkg/registry"
)

const defaultPollInterval = time.Second

// Engine is the public API of the workflow engine: definition creation,
// instance start, status reporting and instance lifecycle control. Drivers
// never reach into each other's state; the engine only hands out clones.
type Engine struct {
	logger       *slog.Logger
	persistence  persistence.Persistence
	registry     *registry.Registry
	eventBus     eventbus.EventBus
	executor     *Executor
	pollInterval time.Duration

	mu      sync.RWMutex
	drivers map[string]*driver

	baseCtx   context.Context
	cancelAll context.CancelFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithPollInterval overrides the stall re-check interval.
func WithPollInterval(interval time.Duration) Option {
	return func(e *Engine) {
		e.pollInterval = interval
	}
}

// WithRetryBackoff overrides the base delay of the retry backoff.
func WithRetryBackoff(base time.Duration) Option {
	return func(e *Engine) {
		e.executor.backoffBase = base
	}
}

// NewEngine creates a workflow engine. The event bus may be nil, in which case
// lifecycle events are not published.
func NewEngine(
	logger *slog.Logger,
	store persistence.Persistence,
	reg *registry.Registry,
	eventBus eventbus.EventBus,
	opts ...Option,
) *Engine {
	baseCtx, cancelAll := context.WithCancel(context.Background())

	engine := &Engine{
		logger:       logger,
		persistence:  store,
		registry:     reg,
		eventBus:     eventBus,
		executor:     NewExecutor(reg, logger),
		pollInterval: defaultPollInterval,
		drivers:      make(map[string]*driver),
		baseCtx:      baseCtx,
		cancelAll:    cancelAll,
	}

	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

// CreateWorkflow validates and stores a new immutable workflow definition.
// Validation failures are returned synchronously and nothing is stored.
func (e *Engine) CreateWorkflow(
	ctx context.Context,
	name, description string,
	tasks []*models.WorkflowTask,
	triggers []*models.TriggerItem,
) (*models.WorkflowDefinition, error) {
	now := time.Now().UTC()

	definition := &models.WorkflowDefinition{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		Tasks:       tasks,
		Triggers:    triggers,
		Variables:   make(map[string]any),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	for _, task := range definition.Tasks {
		task.Normalize()
	}

	if err := e.validateDefinition(definition); err != nil {
		return nil, err
	}

	err := e.persistence.WorkflowRepository().Save(ctx, definition)
	if err != nil {
		return nil, fmt.Errorf("failed to save workflow %s: %w", definition.ID, err)
	}

	e.logger.InfoContext(ctx, "Created workflow",
		slog.String("workflow_id", definition.ID),
		slog.String("name", name),
		slog.Int("tasks", len(tasks)))

	return definition, nil
}

// WorkflowByID fetches a stored definition.
func (e *Engine) WorkflowByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	definition, err := e.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if definition == nil {
		return nil, ErrWorkflowNotFound
	}

	return definition, nil
}

// Workflows lists every stored definition.
func (e *Engine) Workflows(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	return e.persistence.WorkflowRepository().GetAll(ctx)
}

// StartWorkflow creates an instance of the definition, spawns its driver loop
// and returns the instance id immediately. Task failures surface only through
// GetWorkflowStatus, never through this call.
func (e *Engine) StartWorkflow(ctx context.Context, workflowID string, contextVars map[string]any) (string, error) {
	definition, err := e.WorkflowByID(ctx, workflowID)
	if err != nil {
		return "", err
	}

	instance := models.NewWorkflowInstance(uuid.New().String(), definition, contextVars)

	drv := newDriver(e.logger, e.executor, e.persistence, e.eventBus, definition, instance, e.pollInterval)

	e.mu.Lock()
	e.drivers[instance.ID] = drv
	e.mu.Unlock()

	err = e.persistence.InstanceRepository().SaveSnapshot(ctx, instance)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to save initial instance snapshot",
			slog.String("instance_id", instance.ID), slog.String("error", err.Error()))
	}

	if e.eventBus != nil {
		err = e.eventBus.Publish(ctx, instance.ID, events.NewInstanceStarted(instance))
		if err != nil {
			e.logger.WarnContext(ctx, "Failed to publish instance started event",
				slog.String("instance_id", instance.ID), slog.String("error", err.Error()))
		}
	}

	go func() {
		drv.run(e.baseCtx)

		// Terminal instances answer status from the snapshot store; keeping
		// the driver around would grow the registry for the process lifetime.
		e.evictDriver(instance.ID)
	}()

	e.logger.InfoContext(ctx, "Started workflow instance",
		slog.String("workflow_id", workflowID),
		slog.String("instance_id", instance.ID))

	return instance.ID, nil
}

// GetWorkflowStatus reports the live status of an instance. Instances whose
// driver is gone (e.g. after a restart) are answered from the snapshot store.
func (e *Engine) GetWorkflowStatus(ctx context.Context, instanceID string) (*StatusReport, error) {
	if drv, ok := e.driver(instanceID); ok {
		return NewStatusReport(drv.snapshot()), nil
	}

	instance, err := e.persistence.InstanceRepository().GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	if instance == nil {
		return nil, ErrInstanceNotFound
	}

	return NewStatusReport(instance), nil
}

// CancelWorkflow requests cooperative cancellation, honored at the next round
// boundary.
func (e *Engine) CancelWorkflow(ctx context.Context, instanceID string) error {
	drv, ok := e.driver(instanceID)
	if !ok {
		return e.missingDriverErr(ctx, instanceID)
	}

	return drv.cancel()
}

// PauseWorkflow requests a cooperative pause at the next round boundary.
func (e *Engine) PauseWorkflow(ctx context.Context, instanceID string) error {
	drv, ok := e.driver(instanceID)
	if !ok {
		return e.missingDriverErr(ctx, instanceID)
	}

	return drv.pause()
}

// ResumeWorkflow releases a paused instance.
func (e *Engine) ResumeWorkflow(ctx context.Context, instanceID string) error {
	drv, ok := e.driver(instanceID)
	if !ok {
		return e.missingDriverErr(ctx, instanceID)
	}

	return drv.resume()
}

// InstancesByWorkflow lists snapshots of every instance of a definition.
func (e *Engine) InstancesByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowInstance, error) {
	return e.persistence.InstanceRepository().ListByWorkflow(ctx, workflowID)
}

// Shutdown cancels all running drivers and waits for them to finish, bounded
// by the context deadline.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.cancelAll()

	e.mu.RLock()
	drivers := make([]*driver, 0, len(e.drivers))
	for _, drv := range e.drivers {
		drivers = append(drivers, drv)
	}
	e.mu.RUnlock()

	for _, drv := range drivers {
		select {
		case <-drv.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

func (e *Engine) evictDriver(instanceID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.drivers, instanceID)
}

func (e *Engine) driver(instanceID string) (*driver, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	drv, ok := e.drivers[instanceID]

	return drv, ok
}

// missingDriverErr distinguishes an unknown instance from one that already
// reached a terminal state and whose driver is gone.
func (e *Engine) missingDriverErr(ctx context.Context, instanceID string) error {
	instance, err := e.persistence.InstanceRepository().GetByID(ctx, instanceID)
	if err != nil {
		return err
	}

	if instance == nil {
		return ErrInstanceNotFound
	}

	if instance.Status.Terminal() {
		return ErrInstanceTerminal
	}

	return ErrInstanceNotFound
}
