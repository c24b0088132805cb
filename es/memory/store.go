// Package memory provides an in-memory event store for tests and
// single-process deployments.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/getpup/evalrun/es"
)

// Store is an in-memory implementation of es.Store.
// It provides thread-safe access to per-entity event logs using a sync.RWMutex.
type Store struct {
	mu        sync.RWMutex
	logs      map[string][]es.Envelope // entityType/entityID -> ordered log
	all       []es.Envelope            // global order
	globalSeq int64
}

// New creates a new in-memory store with initialized maps.
func New() *Store {
	return &Store{
		logs: make(map[string][]es.Envelope),
	}
}

func logKey(entityType, entityID string) string {
	return entityType + "/" + entityID
}

// Append appends events to the log of (entityType, entityID).
// Returns es.ErrSequenceConflict if expectedSeq does not match the log head.
func (s *Store) Append(ctx context.Context, entityType, entityID string, expectedSeq int, events []es.Event) ([]es.Envelope, error) {
	if len(events) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := logKey(entityType, entityID)
	log := s.logs[key]
	if len(log) != expectedSeq {
		return nil, fmt.Errorf("append to %s/%s at seq %d, head is %d: %w",
			entityType, entityID, expectedSeq, len(log), es.ErrSequenceConflict)
	}

	now := time.Now().UTC()
	appended := make([]es.Envelope, 0, len(events))
	for i, event := range events {
		data, err := json.Marshal(event.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s event: %w", event.Type, err)
		}

		s.globalSeq++
		env := es.Envelope{
			GlobalSeq:  s.globalSeq,
			EntityType: entityType,
			EntityID:   entityID,
			Seq:        expectedSeq + i + 1,
			EventType:  event.Type,
			Data:       data,
			RecordedAt: now,
		}
		appended = append(appended, env)
	}

	s.logs[key] = append(log, appended...)
	s.all = append(s.all, appended...)

	return appended, nil
}

// Load returns the full ordered log for (entityType, entityID).
func (s *Store) Load(ctx context.Context, entityType, entityID string) ([]es.Envelope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.logs[logKey(entityType, entityID)]
	out := make([]es.Envelope, len(log))
	copy(out, log)
	return out, nil
}

// ReadSince returns up to limit envelopes with GlobalSeq greater than
// afterGlobalSeq, in global order.
func (s *Store) ReadSince(ctx context.Context, afterGlobalSeq int64, limit int) ([]es.Envelope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []es.Envelope
	for _, env := range s.all {
		if env.GlobalSeq <= afterGlobalSeq {
			continue
		}
		out = append(out, env)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
