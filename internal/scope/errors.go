package scope

import "fmt"

// PermissionDeniedError indicates the actor lacks rights for the requested
// action. Callers must surface it, never swallow it.
type PermissionDeniedError struct {
	Action string
}

func (e PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied: %s", e.Action)
}

// ScopeEmptyError indicates the actor is authorized in principle but the
// requested target lies outside their resolved scope. The message carries no
// detail about the target, so an unauthorized caller cannot tell a scoped-out
// entity from a missing one.
type ScopeEmptyError struct {
	Kind string
}

func (e ScopeEmptyError) Error() string {
	return fmt.Sprintf("%s not found in scope", e.Kind)
}

// InvalidTransitionError indicates a task status change the state machine
// forbids, independent of role.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid task status transition %s -> %s", e.From, e.To)
}
