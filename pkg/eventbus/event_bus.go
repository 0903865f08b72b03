// Package eventbus provides publish/subscribe plumbing for workflow lifecycle events.
package eventbus

import (
	"context"

	"github.com/kbflow/kbflow/pkg/events"
)

// Event is any workflow lifecycle event that knows its own type tag.
type Event interface {
	GetType() events.EventType
}

// EventHandler processes one deserialized event.
type EventHandler func(ctx context.Context, event any) error

// EventBus publishes lifecycle events and dispatches subscriptions. The engine
// treats the bus as an observer: publish failures are logged, never fatal.
type EventBus interface {
	Publish(ctx context.Context, key string, event Event) error
	Subscribe(ctx context.Context) error
	Handle(eventType events.EventType, handler EventHandler) error
	GenerateID() string
	Close() error
}
