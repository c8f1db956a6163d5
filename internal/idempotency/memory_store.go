package idempotency

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store used by tests and local development. The
// mutex gives the same insert-if-absent atomicity the Redis store provides,
// but only within a single process.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
}

// NewMemoryStore creates an empty in-memory idempotency store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (s *MemoryStore) Find(_ context.Context, key, callerID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[storeKey(key, callerID)]
	if !ok {
		return nil, nil
	}
	copied := *rec
	return &copied, nil
}

func (s *MemoryStore) PutIfAbsent(_ context.Context, rec *Record) (*Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := storeKey(rec.Key, rec.CallerID)
	if existing, ok := s.records[k]; ok {
		copied := *existing
		return &copied, false, nil
	}
	copied := *rec
	s.records[k] = &copied
	return rec, true, nil
}
