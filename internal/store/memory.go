package store

import (
	"context"
	"sync"
)

// MemStore keeps entities in a map. Used by tests and RAIL_STORE=memory.
type MemStore struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{
		data: make(map[string]map[string][]byte),
	}
}

func (s *MemStore) Get(_ context.Context, kind, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.data[kind][id]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (s *MemStore) Put(_ context.Context, kind, id string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.data[kind]
	if !ok {
		bucket = make(map[string][]byte)
		s.data[kind] = bucket
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	bucket[id] = stored
	return nil
}

func (s *MemStore) Count(_ context.Context, kind string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[kind]), nil
}

func (s *MemStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]map[string][]byte)
	return nil
}

// WriteBatch applies entries under one lock.
func (s *MemStore) WriteBatch(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		bucket, ok := s.data[e.Kind]
		if !ok {
			bucket = make(map[string][]byte)
			s.data[e.Kind] = bucket
		}
		stored := make([]byte, len(e.Value))
		copy(stored, e.Value)
		bucket[e.ID] = stored
	}
	return nil
}

// Close satisfies the Store interface for MemStore.
func (s *MemStore) Close() error {
	return nil
}
