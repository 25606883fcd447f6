package storage

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store, used by tests and for runs that
// do not need durable history.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]CheckpointRecord
	order   []string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]CheckpointRecord)}
}

func (s *MemoryStore) Init(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) SaveCheckpoint(ctx context.Context, rec CheckpointRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.ID]; !exists {
		s.order = append(s.order, rec.ID)
	}
	s.records[rec.ID] = cloneRecord(rec)
	return nil
}

func (s *MemoryStore) GetCheckpoint(ctx context.Context, id string) (CheckpointRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return CheckpointRecord{}, false, nil
	}
	return cloneRecord(rec), true, nil
}

func (s *MemoryStore) ListCheckpoints(ctx context.Context, runID string) ([]CheckpointRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []CheckpointRecord
	for _, id := range s.order {
		rec := s.records[id]
		if rec.RunID == runID {
			out = append(out, cloneRecord(rec))
		}
	}
	return out, nil
}

func (s *MemoryStore) LatestCheckpoint(ctx context.Context, runID string) (CheckpointRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	found := false
	var latest CheckpointRecord
	for _, id := range s.order {
		rec := s.records[id]
		if rec.RunID != runID {
			continue
		}
		if !found || rec.Generation > latest.Generation {
			latest = rec
			found = true
		}
	}
	if !found {
		return CheckpointRecord{}, false, nil
	}
	return cloneRecord(latest), true, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func cloneRecord(rec CheckpointRecord) CheckpointRecord {
	out := rec
	out.Elite = append([]float64(nil), rec.Elite...)
	return out
}
