package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// ContextStore persists per-node input contexts and intermediate outputs,
// scoped by (execution_id, node_id). Each node writes once per run, so
// last-writer-wins semantics are acceptable.
type ContextStore interface {
	SaveContext(ctx context.Context, executionID, nodeID string, input map[string]interface{}) error
	SaveOutput(ctx context.Context, executionID, nodeID string, output interface{}) error
	LoadOutput(ctx context.Context, executionID, nodeID string) (interface{}, bool, error)
	Close() error
}

// MemoryStore is an in-memory context store for embedded use and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	contexts map[string][]byte
	outputs  map[string][]byte
}

// NewMemoryStore creates an in-memory context store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contexts: make(map[string][]byte),
		outputs:  make(map[string][]byte),
	}
}

func storeKey(executionID, nodeID string) string {
	return fmt.Sprintf("%s:%s", executionID, nodeID)
}

// SaveContext records the input context for a node execution.
func (s *MemoryStore) SaveContext(ctx context.Context, executionID, nodeID string, input map[string]interface{}) error {
	data, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("failed to marshal context: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[storeKey(executionID, nodeID)] = data
	return nil
}

// SaveOutput records a node's output.
func (s *MemoryStore) SaveOutput(ctx context.Context, executionID, nodeID string, output interface{}) error {
	data, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs[storeKey(executionID, nodeID)] = data
	return nil
}

// LoadOutput retrieves a previously saved output.
func (s *MemoryStore) LoadOutput(ctx context.Context, executionID, nodeID string) (interface{}, bool, error) {
	s.mu.RLock()
	data, exists := s.outputs[storeKey(executionID, nodeID)]
	s.mu.RUnlock()
	if !exists {
		return nil, false, nil
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal output: %w", err)
	}
	return out, true, nil
}

// Close clears the store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts = nil
	s.outputs = nil
	return nil
}
