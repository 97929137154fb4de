package archive

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps encoded reports in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, report Report) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	if err := report.validate(); err != nil {
		return err
	}
	raw, err := encode(report)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[report.RunID] = raw
	return nil
}

func (s *MemoryStore) Get(_ context.Context, runID string) (Report, error) {
	if s == nil {
		return Report{}, fmt.Errorf("store is nil")
	}
	runID, err := cleanRunID(runID)
	if err != nil {
		return Report{}, err
	}
	s.mu.RLock()
	raw, ok := s.data[runID]
	s.mu.RUnlock()
	if !ok {
		return Report{}, ErrNotFound
	}
	return decode(raw)
}

func (s *MemoryStore) List(_ context.Context) ([]string, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.data))
	for id := range s.data {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
