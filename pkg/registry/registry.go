// Package registry maps task type tags to their executable handlers.
package registry

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/kbflow/kbflow/pkg/models"
	"github.com/kbflow/kbflow/pkg/protocol"
)

// Registry holds the handler for each task type. It is populated at startup and
// read-mostly afterwards; the mutex exists so late registration (tests, plugins)
// stays safe alongside concurrent lookups from running drivers.
type Registry struct {
	logger   *slog.Logger
	mu       sync.RWMutex
	handlers map[models.TaskType]protocol.TaskHandler
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:   log,
		handlers: make(map[models.TaskType]protocol.TaskHandler),
	}
}

// RegisterHandler binds a handler to its task type, replacing any previous binding.
func (r *Registry) RegisterHandler(handler protocol.TaskHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[handler.Type()] = handler
	r.logger.Info("Registered task handler", slog.String("task_type", string(handler.Type())))
}

// Handler returns the handler registered for the given task type.
func (r *Registry) Handler(taskType models.TaskType) (protocol.TaskHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.handlers[taskType]
	if !ok {
		return nil, fmt.Errorf("task type '%s' not registered", taskType)
	}

	return handler, nil
}

// HasHandler reports whether a handler is registered for the given task type.
func (r *Registry) HasHandler(taskType models.TaskType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.handlers[taskType]

	return ok
}

// RegisteredTypes returns the task types with a registered handler.
func (r *Registry) RegisteredTypes() []models.TaskType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]models.TaskType, 0, len(r.handlers))
	for taskType := range r.handlers {
		types = append(types, taskType)
	}

	return types
}
