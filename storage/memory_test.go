package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/signflow-io/signflow/types"
)

func TestMemoryStorage(t *testing.T) {
	// Helper function to create a sample definition
	newDefinition := func(id string) types.Definition {
		return types.Definition{
			ID:        id,
			Name:      "Contract Signing",
			StartNode: "start",
			Nodes: []types.WorkflowNode{
				{ID: "start", Type: types.NodeTypeStart, Action: types.WorkflowAction{Type: types.ActionUpdateStatus}, NextNodes: []string{"done"}},
				{ID: "done", Type: types.NodeTypeCompletion, Action: types.WorkflowAction{Type: types.ActionUpdateStatus}},
			},
		}
	}

	// Helper function to create a sample instance state
	newState := func(id string, status types.Status) types.WorkflowState {
		return types.WorkflowState{
			WorkflowID:  id,
			CurrentNode: "start",
			Status:      status,
			Data:        map[string]interface{}{"document_id": "doc-1"},
			StartedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		}
	}

	t.Run("NewMemoryStorage", func(t *testing.T) {
		store := NewMemoryStorage()
		assert.NotNil(t, store)
		assert.Empty(t, store.definitions)
		assert.Empty(t, store.states)
	})

	t.Run("SaveAndGetDefinition", func(t *testing.T) {
		store := NewMemoryStorage()
		ctx := context.Background()

		def := newDefinition("wf-1")
		err := store.SaveDefinition(ctx, def)
		assert.NoError(t, err)

		got, err := store.GetDefinition(ctx, "wf-1")
		assert.NoError(t, err)
		assert.Equal(t, def, got)

		_, err = store.GetDefinition(ctx, "wf-2")
		assert.ErrorIs(t, err, ErrDefinitionNotFound)
	})

	t.Run("SaveAndGetState", func(t *testing.T) {
		store := NewMemoryStorage()
		ctx := context.Background()

		st := newState("wf-1", types.StatusActive)
		err := store.SaveState(ctx, st)
		assert.NoError(t, err)

		got, err := store.GetState(ctx, "wf-1")
		assert.NoError(t, err)
		assert.Equal(t, st, got)

		_, err = store.GetState(ctx, "wf-2")
		assert.ErrorIs(t, err, ErrStateNotFound)
	})

	t.Run("SaveDefinitions", func(t *testing.T) {
		store := NewMemoryStorage()
		ctx := context.Background()

		defs := []types.Definition{newDefinition("wf-1"), newDefinition("wf-2"), newDefinition("wf-3")}
		err := store.SaveDefinitions(ctx, defs)
		assert.NoError(t, err)

		for _, def := range defs {
			got, err := store.GetDefinition(ctx, def.ID)
			assert.NoError(t, err)
			assert.Equal(t, def, got)
		}
	})

	t.Run("ClearTerminal", func(t *testing.T) {
		store := NewMemoryStorage()
		ctx := context.Background()

		assert.NoError(t, store.SaveState(ctx, newState("wf-1", types.StatusActive)))
		assert.NoError(t, store.SaveState(ctx, newState("wf-2", types.StatusCompleted)))
		assert.NoError(t, store.SaveState(ctx, newState("wf-3", types.StatusFailed)))
		assert.NoError(t, store.SaveState(ctx, newState("wf-4", types.StatusCancelled)))
		assert.NoError(t, store.SaveState(ctx, newState("wf-5", types.StatusPaused)))

		err := store.ClearTerminal(ctx)
		assert.NoError(t, err)

		_, err = store.GetState(ctx, "wf-1")
		assert.NoError(t, err) // active survives
		_, err = store.GetState(ctx, "wf-5")
		assert.NoError(t, err) // paused survives
		for _, id := range []string{"wf-2", "wf-3", "wf-4"} {
			_, err = store.GetState(ctx, id)
			assert.ErrorIs(t, err, ErrStateNotFound)
		}
	})

	t.Run("ContextCancellation", func(t *testing.T) {
		store := NewMemoryStorage()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := store.SaveDefinition(ctx, newDefinition("wf-1"))
		assert.ErrorIs(t, err, context.Canceled)

		_, err = store.GetDefinition(ctx, "wf-1")
		assert.ErrorIs(t, err, context.Canceled)

		err = store.SaveState(ctx, newState("wf-1", types.StatusActive))
		assert.ErrorIs(t, err, context.Canceled)

		_, err = store.GetState(ctx, "wf-1")
		assert.ErrorIs(t, err, context.Canceled)

		err = store.SaveDefinitions(ctx, []types.Definition{newDefinition("wf-1")})
		assert.ErrorIs(t, err, context.Canceled)

		err = store.ClearTerminal(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("ConcurrentAccess", func(t *testing.T) {
		store := NewMemoryStorage()
		ctx := context.Background()
		var wgWrite sync.WaitGroup
		var wgRead sync.WaitGroup

		for i := 0; i < 100; i++ {
			wgWrite.Add(1)
			go func(i int) {
				defer wgWrite.Done()
				id := fmt.Sprintf("wf-%d", i)
				if err := store.SaveState(ctx, newState(id, types.StatusActive)); err != nil {
					t.Errorf("SaveState failed for id=%s: %v", id, err)
				}
			}(i)
		}
		wgWrite.Wait()

		errCh := make(chan error, 100)
		for i := 0; i < 100; i++ {
			wgRead.Add(1)
			go func(i int) {
				defer wgRead.Done()
				id := fmt.Sprintf("wf-%d", i)
				if _, err := store.GetState(ctx, id); err != nil {
					errCh <- fmt.Errorf("GetState failed for id=%s: %v", id, err)
				}
			}(i)
		}
		wgRead.Wait()
		close(errCh)

		for err := range errCh {
			assert.NoError(t, err)
		}
	})
}

func TestGetItem(t *testing.T) {
	ctx := context.Background()
	m := map[string]string{"a": "one", "b": "two"}

	t.Run("Found", func(t *testing.T) {
		result, err := getItem(ctx, m, "a", errors.New("not found"))
		assert.NoError(t, err)
		assert.Equal(t, "one", result)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := getItem(ctx, m, "c", errors.New("not found"))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "not found: id=c")
	})

	t.Run("CanceledContext", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := getItem(ctx, m, "a", errors.New("not found"))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestWithContext(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		ctx := context.Background()
		result, err := withContext(ctx, func() (string, error) {
			return "success", nil
		})
		assert.NoError(t, err)
		assert.Equal(t, "success", result)
	})

	t.Run("Error", func(t *testing.T) {
		ctx := context.Background()
		_, err := withContext(ctx, func() (string, error) {
			return "", errors.New("fail")
		})
		assert.Error(t, err)
		assert.Equal(t, "fail", err.Error())
	})

	t.Run("CanceledContext", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := withContext(ctx, func() (string, error) {
			return "success", nil
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
