// Package events defines event types and structures for workflow lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/kbflow/kbflow/pkg/models"
)

type EventType string

// Topic is the event bus topic all workflow lifecycle events are published to.
const Topic = "kbflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	InstanceStartedEvent   EventType = "instance.started"
	InstanceCompletedEvent EventType = "instance.completed"
	InstanceFailedEvent    EventType = "instance.failed"
	InstanceCancelledEvent EventType = "instance.cancelled"
	InstancePausedEvent    EventType = "instance.paused"
	InstanceResumedEvent   EventType = "instance.resumed"

	RoundCompletedEvent EventType = "round.completed"
	TaskCompletedEvent  EventType = "task.completed"
	TaskFailedEvent     EventType = "task.failed"
)

type BaseEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	WorkflowID string    `json:"workflow_id"`
	InstanceID string    `json:"instance_id"`
}

func newBaseEvent(eventType EventType, instance *models.WorkflowInstance) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: instance.WorkflowID,
		InstanceID: instance.ID,
	}
}

type InstanceStarted struct {
	BaseEvent

	Context map[string]any `json:"context,omitempty"`
	Tasks   int            `json:"tasks"`
}

func NewInstanceStarted(instance *models.WorkflowInstance) InstanceStarted {
	return InstanceStarted{
		BaseEvent: newBaseEvent(InstanceStartedEvent, instance),
		Context:   instance.Context,
		Tasks:     len(instance.Tasks),
	}
}

func (e InstanceStarted) GetType() EventType {
	return InstanceStartedEvent
}

type InstanceCompleted struct {
	BaseEvent

	DurationMs int64 `json:"duration_ms"`
	Tasks      int   `json:"tasks"`
}

func NewInstanceCompleted(instance *models.WorkflowInstance) InstanceCompleted {
	return InstanceCompleted{
		BaseEvent:  newBaseEvent(InstanceCompletedEvent, instance),
		DurationMs: durationMs(instance),
		Tasks:      len(instance.Tasks),
	}
}

func (e InstanceCompleted) GetType() EventType {
	return InstanceCompletedEvent
}

type InstanceFailed struct {
	BaseEvent

	Error      string  `json:"error"`
	DurationMs int64   `json:"duration_ms"`
	Progress   float64 `json:"progress"`
}

func NewInstanceFailed(instance *models.WorkflowInstance, errMsg string) InstanceFailed {
	return InstanceFailed{
		BaseEvent:  newBaseEvent(InstanceFailedEvent, instance),
		Error:      errMsg,
		DurationMs: durationMs(instance),
		Progress:   instance.Progress(),
	}
}

func (e InstanceFailed) GetType() EventType {
	return InstanceFailedEvent
}

type InstanceCancelled struct {
	BaseEvent

	Progress float64 `json:"progress"`
}

func NewInstanceCancelled(instance *models.WorkflowInstance) InstanceCancelled {
	return InstanceCancelled{
		BaseEvent: newBaseEvent(InstanceCancelledEvent, instance),
		Progress:  instance.Progress(),
	}
}

func (e InstanceCancelled) GetType() EventType {
	return InstanceCancelledEvent
}

type InstancePaused struct {
	BaseEvent

	Progress float64 `json:"progress"`
}

func NewInstancePaused(instance *models.WorkflowInstance) InstancePaused {
	return InstancePaused{
		BaseEvent: newBaseEvent(InstancePausedEvent, instance),
		Progress:  instance.Progress(),
	}
}

func (e InstancePaused) GetType() EventType {
	return InstancePausedEvent
}

type InstanceResumed struct {
	BaseEvent
}

func NewInstanceResumed(instance *models.WorkflowInstance) InstanceResumed {
	return InstanceResumed{
		BaseEvent: newBaseEvent(InstanceResumedEvent, instance),
	}
}

func (e InstanceResumed) GetType() EventType {
	return InstanceResumedEvent
}

type RoundCompleted struct {
	BaseEvent

	Round           int     `json:"round"`
	TasksDispatched int     `json:"tasks_dispatched"`
	Progress        float64 `json:"progress"`
}

func NewRoundCompleted(instance *models.WorkflowInstance, round, dispatched int) RoundCompleted {
	return RoundCompleted{
		BaseEvent:       newBaseEvent(RoundCompletedEvent, instance),
		Round:           round,
		TasksDispatched: dispatched,
		Progress:        instance.Progress(),
	}
}

func (e RoundCompleted) GetType() EventType {
	return RoundCompletedEvent
}

type TaskCompleted struct {
	BaseEvent

	TaskID string `json:"task_id"`
}

func NewTaskCompleted(instance *models.WorkflowInstance, taskID string) TaskCompleted {
	return TaskCompleted{
		BaseEvent: newBaseEvent(TaskCompletedEvent, instance),
		TaskID:    taskID,
	}
}

func (e TaskCompleted) GetType() EventType {
	return TaskCompletedEvent
}

type TaskFailed struct {
	BaseEvent

	TaskID string `json:"task_id"`
	Error  string `json:"error"`
}

func NewTaskFailed(instance *models.WorkflowInstance, taskID, errMsg string) TaskFailed {
	return TaskFailed{
		BaseEvent: newBaseEvent(TaskFailedEvent, instance),
		TaskID:    taskID,
		Error:     errMsg,
	}
}

func (e TaskFailed) GetType() EventType {
	return TaskFailedEvent
}

func durationMs(instance *models.WorkflowInstance) int64 {
	if instance.CompletedAt == nil {
		return 0
	}

	return instance.CompletedAt.Sub(instance.StartedAt).Milliseconds()
}
