package scope

import "fmt"

// Task statuses.
const (
	TaskPending    = "pending"
	TaskInProgress = "in_progress"
	TaskCompleted  = "completed"
	TaskBlocked    = "blocked"
)

func validTaskStatus(s string) bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted, TaskBlocked:
		return true
	}
	return false
}

// EnsureTaskTransition enforces the task status state machine. completed is
// terminal for every role, admin included: the only accepted write against a
// completed task is the no-op completed -> completed, which repeats a racing
// writer's outcome without altering the row. A same-status transition is
// always a permitted no-op. Everything among pending/in_progress/blocked is
// unrestricted, and each of those may move to completed.
func EnsureTaskTransition(from, to string) error {
	if !validTaskStatus(to) {
		return fmt.Errorf("unknown task status %q", to)
	}
	if from == "" {
		from = TaskPending
	}
	if from == to {
		return nil
	}
	if from == TaskCompleted {
		return InvalidTransitionError{From: from, To: to}
	}
	return nil
}
