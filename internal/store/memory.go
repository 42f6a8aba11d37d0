package store

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStore is an in-memory Store used for tests and embedded setups that
// do not need persistence across restarts.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]map[string]json.RawMessage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]json.RawMessage)}
}

func (s *MemoryStore) Get(_ context.Context, namespace, key string, def json.RawMessage) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.data[namespace]
	if !ok {
		return def, nil
	}
	v, ok := ns[key]
	if !ok {
		return def, nil
	}
	out := make(json.RawMessage, len(v))
	copy(out, v)
	return out, nil
}

func (s *MemoryStore) Set(_ context.Context, namespace, key string, value json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.data[namespace]
	if !ok {
		ns = make(map[string]json.RawMessage)
		s.data[namespace] = ns
	}
	v := make(json.RawMessage, len(value))
	copy(v, value)
	ns[key] = v
	return nil
}

func (s *MemoryStore) Close() error { return nil }
