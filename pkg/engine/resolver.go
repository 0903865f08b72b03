package engine

import "github.com/kbflow/kbflow/pkg/models"

// ReadyTasks computes the next dispatchable task set for an instance. A task is
// ready iff it is not already completed, failed or running, and every one of
// its dependencies is in the completed set. No ordering is guaranteed among the
// returned tasks; the driver dispatches them all concurrently in one round.
func ReadyTasks(instance *models.WorkflowInstance) []*models.WorkflowTask {
	ready := make([]*models.WorkflowTask, 0)

	for id, task := range instance.Tasks {
		if instance.CompletedTasks[id] || instance.FailedTasks[id] || instance.CurrentTasks[id] {
			continue
		}

		if task.Status == models.TaskStatusSkipped {
			continue
		}

		if depsSatisfied(task, instance) {
			ready = append(ready, task)
		}
	}

	return ready
}

func depsSatisfied(task *models.WorkflowTask, instance *models.WorkflowInstance) bool {
	for _, dep := range task.Dependencies {
		if !instance.CompletedTasks[dep] {
			return false
		}
	}

	return true
}

// blockedTasks lists the unfinished tasks of a stalled instance, the ones that
// can never become ready because their dependency chain contains a failure or
// missing work.
func blockedTasks(instance *models.WorkflowInstance) []string {
	blocked := make([]string, 0)

	for id := range instance.Tasks {
		if instance.CompletedTasks[id] || instance.FailedTasks[id] {
			continue
		}

		blocked = append(blocked, id)
	}

	return blocked
}
