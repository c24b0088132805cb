// Package entity provides the event-sourced entity scaffold. An entity's
// state is never stored directly: it is a pure fold of the entity's committed
// events, replayed from an empty state. Commands load the current state, decide
// which new events to emit, and append them with an optimistic sequence check,
// so concurrent writers cannot interleave.
package entity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/getpup/evalrun/es"
)

// Definition describes one entity type: its stream name, its empty state, and
// the fold that applies a committed event to a state.
type Definition[S any] interface {
	// EntityType returns the stream name shared by all entities of this type.
	EntityType() string

	// Empty returns the state of an entity that has no events yet.
	Empty(id string) S

	// Apply folds one committed event into the state. Apply must be pure:
	// no I/O, no clock reads, no randomness. Replaying the same events
	// must always rebuild the same state.
	Apply(state S, env es.Envelope) (S, error)
}

// Repository loads and mutates entities of one type against an event store.
type Repository[S any] struct {
	store es.Store
	def   Definition[S]

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRepository creates a Repository for the given definition.
func NewRepository[S any](store es.Store, def Definition[S]) *Repository[S] {
	return &Repository[S]{
		store: store,
		def:   def,
		locks: make(map[string]*sync.Mutex),
	}
}

// Load rebuilds the entity's current state by replaying its log. It returns
// the state and the sequence number of the last applied event (0 for an
// entity with no events).
func (r *Repository[S]) Load(ctx context.Context, id string) (S, int, error) {
	state := r.def.Empty(id)

	envs, err := r.store.Load(ctx, r.def.EntityType(), id)
	if err != nil {
		return state, 0, fmt.Errorf("failed to load %s/%s: %w", r.def.EntityType(), id, err)
	}

	seq := 0
	for _, env := range envs {
		state, err = r.def.Apply(state, env)
		if err != nil {
			return state, 0, fmt.Errorf("failed to apply %s event %d for %s/%s: %w",
				env.EventType, env.Seq, r.def.EntityType(), id, err)
		}
		seq = env.Seq
	}
	return state, seq, nil
}

// Execute runs a command against the entity. The decide function receives the
// current state and returns the events to append; returning no events makes
// the command a no-op. The append carries the sequence observed at load time,
// so a concurrent write in between surfaces as es.ErrSequenceConflict and the
// command is retried against the fresh state.
func (r *Repository[S]) Execute(ctx context.Context, id string, decide func(state S) ([]es.Event, error)) (S, error) {
	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	for {
		state, seq, err := r.Load(ctx, id)
		if err != nil {
			return state, err
		}

		events, err := decide(state)
		if err != nil {
			return state, err
		}
		if len(events) == 0 {
			return state, nil
		}

		envs, err := r.store.Append(ctx, r.def.EntityType(), id, seq, events)
		if err != nil {
			if errors.Is(err, es.ErrSequenceConflict) {
				continue
			}
			return state, fmt.Errorf("failed to append to %s/%s: %w", r.def.EntityType(), id, err)
		}

		for _, env := range envs {
			state, err = r.def.Apply(state, env)
			if err != nil {
				return state, fmt.Errorf("failed to apply %s event %d for %s/%s: %w",
					env.EventType, env.Seq, r.def.EntityType(), id, err)
			}
		}
		return state, nil
	}
}

func (r *Repository[S]) lockFor(id string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[id] = lock
	}
	return lock
}
