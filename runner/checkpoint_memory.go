package runner

import (
	"context"
	"sort"
	"sync"
)

// MemoryCheckpointStore is an in-memory CheckpointStore, suitable for tests
// and single-process deployments.
type MemoryCheckpointStore struct {
	mu          sync.RWMutex
	checkpoints map[string]Checkpoint
}

// NewMemoryCheckpointStore creates an empty in-memory checkpoint store.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{checkpoints: make(map[string]Checkpoint)}
}

func (s *MemoryCheckpointStore) Save(ctx context.Context, cp Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp.PendingTasks = append([]Task(nil), cp.PendingTasks...)
	s.checkpoints[cp.RunID] = cp
	return nil
}

func (s *MemoryCheckpointStore) Load(ctx context.Context, runID string) (Checkpoint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.checkpoints[runID]
	if !ok {
		return Checkpoint{}, false, nil
	}
	cp.PendingTasks = append([]Task(nil), cp.PendingTasks...)
	return cp, true, nil
}

func (s *MemoryCheckpointStore) Delete(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.checkpoints, runID)
	return nil
}

func (s *MemoryCheckpointStore) List(ctx context.Context) ([]Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cps := make([]Checkpoint, 0, len(s.checkpoints))
	for _, cp := range s.checkpoints {
		cp.PendingTasks = append([]Task(nil), cp.PendingTasks...)
		cps = append(cps, cp)
	}
	sort.Slice(cps, func(i, j int) bool { return cps[i].RunID < cps[j].RunID })
	return cps, nil
}
