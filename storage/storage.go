package storage

import (
	"context"

	"github.com/signflow-io/signflow/types"
)

// Storage persists workflow definitions and instance runtime state. The
// engine writes through it on every lifecycle transition, so paused
// workflows survive a restart.
type Storage interface {
	// SaveDefinition saves a workflow definition.
	SaveDefinition(ctx context.Context, def types.Definition) error

	// GetDefinition retrieves a workflow definition by ID.
	GetDefinition(ctx context.Context, id string) (types.Definition, error)

	// SaveState saves a workflow instance's runtime state.
	SaveState(ctx context.Context, st types.WorkflowState) error

	// GetState retrieves a workflow instance's runtime state by workflow ID.
	GetState(ctx context.Context, workflowID string) (types.WorkflowState, error)
}

// withContext is a standalone generic helper function.
func withContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	default:
		return fn()
	}
}
