package workflow

import (
	"errors"
	"fmt"

	"github.com/signflow-io/signflow/types"
)

// Standard error definitions
var (
	ErrWorkflowNotFound      = errors.New("workflow not found")
	ErrNodeNotFound          = errors.New("node not found")
	ErrStartNodeNotFound     = errors.New("starting node not found")
	ErrInvalidDefinition     = errors.New("invalid workflow definition")
	ErrUnknownActionType     = errors.New("unknown action type")
	ErrCollaboratorMissing   = errors.New("collaborator not configured")
	ErrMaxIterationsExceeded = errors.New("maximum iterations exceeded")
)

// StateTransitionError reports a lifecycle transition the state machine
// does not allow.
type StateTransitionError struct {
	WorkflowID string
	From       types.Status
	To         types.Status
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("workflow %s cannot transition from %s to %s", e.WorkflowID, e.From, e.To)
}

// DispatchError wraps a failure raised while executing a node action.
// Recoverable failures pause the workflow so an operator can resume it;
// fatal ones fail the workflow. There is no automatic retry.
type DispatchError struct {
	ActionType  types.ActionType
	Recoverable bool
	Cause       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("action %s failed: %v", e.ActionType, e.Cause)
}

func (e *DispatchError) Unwrap() error {
	return e.Cause
}

// NewDispatchError classifies a handler failure.
func NewDispatchError(actionType types.ActionType, recoverable bool, cause error) *DispatchError {
	return &DispatchError{ActionType: actionType, Recoverable: recoverable, Cause: cause}
}

// ConditionError wraps a failure while evaluating a node's entry
// conditions. The workflow pauses rather than fails, so the data or the
// definition can be corrected and the run resumed.
type ConditionError struct {
	NodeID string
	Cause  error
}

func (e *ConditionError) Error() string {
	return fmt.Sprintf("conditions for node %s: %v", e.NodeID, e.Cause)
}

func (e *ConditionError) Unwrap() error {
	return e.Cause
}

// isRecoverable decides whether an execution error pauses or fails the
// workflow. Explicit classifications win; configuration problems are
// fatal; everything else, timeouts included, is treated as transient.
func isRecoverable(err error) bool {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Recoverable
	}
	switch {
	case errors.Is(err, ErrUnknownActionType),
		errors.Is(err, ErrCollaboratorMissing),
		errors.Is(err, ErrMaxIterationsExceeded),
		errors.Is(err, ErrNodeNotFound):
		return false
	}
	return true
}

// errorType names an execution error for history and metrics.
func errorType(err error) string {
	var de *DispatchError
	var ce *ConditionError
	switch {
	case errors.As(err, &ce):
		return "ConditionError"
	case errors.As(err, &de):
		return "DispatchError"
	case errors.Is(err, ErrMaxIterationsExceeded):
		return "MaxIterationsExceeded"
	case errors.Is(err, ErrNodeNotFound):
		return "NodeNotFound"
	case errors.Is(err, ErrUnknownActionType):
		return "UnknownActionType"
	case errors.Is(err, ErrCollaboratorMissing):
		return "CollaboratorMissing"
	default:
		return "ExecutionError"
	}
}
