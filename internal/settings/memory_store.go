package settings

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStore keeps values in process memory. Used by tests and the CLI dry runs.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]json.RawMessage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]json.RawMessage)}
}

func (s *MemoryStore) Get(_ context.Context, scope, key string) (json.RawMessage, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[storageKey(scope, key)]
	if !ok {
		return nil, false, nil
	}
	return append(json.RawMessage(nil), v...), true, nil
}

func (s *MemoryStore) Set(_ context.Context, scope, key string, value any) error {
	raw, err := marshalValue(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.values[storageKey(scope, key)] = raw
	s.mu.Unlock()
	return nil
}
