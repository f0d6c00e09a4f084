package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/signflow-io/signflow/types"
)

// MemoryStorage is an in-memory implementation of the Storage interface.
// It is the default backing store for a single-process engine.
type MemoryStorage struct {
	definitions map[string]types.Definition
	states      map[string]types.WorkflowState
	mu          sync.RWMutex
}

// NewMemoryStorage creates a new MemoryStorage instance.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		definitions: make(map[string]types.Definition),
		states:      make(map[string]types.WorkflowState),
	}
}

// getItem is a standalone generic helper function.
func getItem[T any](ctx context.Context, m map[string]T, id string, errNotFound error) (T, error) {
	return withContext(ctx, func() (T, error) {
		item, ok := m[id]
		if !ok {
			var zero T
			return zero, fmt.Errorf("%w: id=%s", errNotFound, id)
		}
		return item, nil
	})
}

// SaveDefinition saves a workflow definition to memory.
func (s *MemoryStorage) SaveDefinition(ctx context.Context, def types.Definition) error {
	_, err := withContext(ctx, func() (struct{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.definitions[def.ID] = def
		return struct{}{}, nil
	})
	return err
}

// GetDefinition retrieves a workflow definition from memory.
func (s *MemoryStorage) GetDefinition(ctx context.Context, id string) (types.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getItem(ctx, s.definitions, id, ErrDefinitionNotFound)
}

// SaveState saves a workflow instance's state to memory.
func (s *MemoryStorage) SaveState(ctx context.Context, st types.WorkflowState) error {
	_, err := withContext(ctx, func() (struct{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.states[st.WorkflowID] = st
		return struct{}{}, nil
	})
	return err
}

// GetState retrieves a workflow instance's state from memory.
func (s *MemoryStorage) GetState(ctx context.Context, workflowID string) (types.WorkflowState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getItem(ctx, s.states, workflowID, ErrStateNotFound)
}

// SaveDefinitions saves multiple definitions in a single lock.
func (s *MemoryStorage) SaveDefinitions(ctx context.Context, defs []types.Definition) error {
	_, err := withContext(ctx, func() (struct{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, def := range defs {
			s.definitions[def.ID] = def
		}
		return struct{}{}, nil
	})
	return err
}

// ClearTerminal removes states whose workflows have finished, failed, or
// been cancelled.
func (s *MemoryStorage) ClearTerminal(ctx context.Context) error {
	_, err := withContext(ctx, func() (struct{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		for id, st := range s.states {
			if st.Status.Terminal() {
				delete(s.states, id)
			}
		}
		return struct{}{}, nil
	})
	return err
}

// Errors
var (
	ErrDefinitionNotFound = errors.New("definition not found")
	ErrStateNotFound      = errors.New("state not found")
)
