package engine

import (
	"fmt"

	"github.com/kbflow/kbflow/pkg/models"
)

// validateDefinition enforces the structural invariants of a workflow
// definition: unique task ids, dependencies referencing tasks in the same
// definition, known task types with schema-valid configs, and an acyclic
// dependency graph.
func (e *Engine) validateDefinition(definition *models.WorkflowDefinition) error {
	if len(definition.Tasks) == 0 {
		return ErrNoTasks
	}

	seen := make(map[string]bool, len(definition.Tasks))
	for _, task := range definition.Tasks {
		if seen[task.ID] {
			return newValidationError(task.ID, ErrDuplicateTaskID, "")
		}

		seen[task.ID] = true

		if !task.Type.Valid() {
			return newValidationError(task.ID, ErrUnknownTaskType, string(task.Type))
		}

		if err := e.registry.ValidateTaskConfig(task); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidTaskConfig, err)
		}
	}

	for _, task := range definition.Tasks {
		for _, dep := range task.Dependencies {
			if !seen[dep] {
				return newValidationError(task.ID, ErrUnknownDependency, dep)
			}
		}
	}

	return detectCycle(definition.Tasks)
}

type visitColor uint8

const (
	colorWhite visitColor = iota // unvisited
	colorGray                    // on the current DFS path
	colorBlack                   // fully explored
)

// detectCycle runs a white/gray/black depth-first traversal over the
// dependency edges. A gray node reached twice closes a cycle.
func detectCycle(tasks []*models.WorkflowTask) error {
	index := make(map[string]*models.WorkflowTask, len(tasks))
	for _, task := range tasks {
		index[task.ID] = task
	}

	colors := make(map[string]visitColor, len(tasks))

	var visit func(id string) error

	visit = func(id string) error {
		colors[id] = colorGray

		for _, dep := range index[id].Dependencies {
			switch colors[dep] {
			case colorGray:
				return newValidationError(id, ErrCyclicDependency, fmt.Sprintf("depends on %s", dep))
			case colorWhite:
				if err := visit(dep); err != nil {
					return err
				}
			case colorBlack:
			}
		}

		colors[id] = colorBlack

		return nil
	}

	for _, task := range tasks {
		if colors[task.ID] == colorWhite {
			if err := visit(task.ID); err != nil {
				return err
			}
		}
	}

	return nil
}
