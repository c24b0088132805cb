package entity

import (
	"context"
	"fmt"

	"github.com/getpup/evalrun"
	"github.com/getpup/evalrun/es"
)

// Judge entity event types.
const (
	EventJudgeCreated = "judge-created"
	EventJudgeUpdated = "judge-updated"
	EventJudgeDeleted = "judge-deleted"
)

// JudgeCreated records the full initial judge definition.
type JudgeCreated struct {
	Judge evalrun.Judge `json:"judge"`
}

// JudgeUpdated records the full replacement judge definition.
type JudgeUpdated struct {
	Judge evalrun.Judge `json:"judge"`
}

// JudgeDeleted folds the judge back to the empty state. The id can be
// created again afterwards.
type JudgeDeleted struct {
	JudgeID string `json:"judgeId"`
}

type judgeDefinition struct{}

func (judgeDefinition) EntityType() string { return "judges" }

func (judgeDefinition) Empty(id string) *evalrun.Judge { return nil }

func (judgeDefinition) Apply(state *evalrun.Judge, env es.Envelope) (*evalrun.Judge, error) {
	switch env.EventType {
	case EventJudgeCreated:
		var e JudgeCreated
		if err := env.DecodeData(&e); err != nil {
			return state, err
		}
		return &e.Judge, nil
	case EventJudgeUpdated:
		var e JudgeUpdated
		if err := env.DecodeData(&e); err != nil {
			return state, err
		}
		return &e.Judge, nil
	case EventJudgeDeleted:
		return nil, nil
	default:
		return state, fmt.Errorf("unknown judge event type %q", env.EventType)
	}
}

// JudgeService executes commands against judge entities.
type JudgeService struct {
	repo *Repository[*evalrun.Judge]
}

// NewJudgeService creates a JudgeService backed by the given event store.
func NewJudgeService(store es.Store) *JudgeService {
	return &JudgeService{repo: NewRepository[*evalrun.Judge](store, judgeDefinition{})}
}

// Create records a new judge. Creating an id that currently exists returns
// evalrun.ErrAlreadyExists; a deleted id is free again.
func (s *JudgeService) Create(ctx context.Context, judge evalrun.Judge) (evalrun.Judge, error) {
	state, err := s.repo.Execute(ctx, judge.ID, func(state *evalrun.Judge) ([]es.Event, error) {
		if state != nil {
			return nil, fmt.Errorf("judge %s: %w", judge.ID, evalrun.ErrAlreadyExists)
		}
		return []es.Event{{Type: EventJudgeCreated, Data: JudgeCreated{Judge: judge}}}, nil
	})
	if err != nil {
		return evalrun.Judge{}, err
	}
	return *state, nil
}

// Update replaces the judge definition. The id cannot change.
func (s *JudgeService) Update(ctx context.Context, judge evalrun.Judge) (evalrun.Judge, error) {
	state, err := s.repo.Execute(ctx, judge.ID, func(state *evalrun.Judge) ([]es.Event, error) {
		if state == nil {
			return nil, fmt.Errorf("judge %s: %w", judge.ID, evalrun.ErrNotFound)
		}
		return []es.Event{{Type: EventJudgeUpdated, Data: JudgeUpdated{Judge: judge}}}, nil
	})
	if err != nil {
		return evalrun.Judge{}, err
	}
	return *state, nil
}

// SetActive flips the judge's active flag. Setting the current value is a
// no-op and appends nothing.
func (s *JudgeService) SetActive(ctx context.Context, judgeID string, active bool) (evalrun.Judge, error) {
	state, err := s.repo.Execute(ctx, judgeID, func(state *evalrun.Judge) ([]es.Event, error) {
		if state == nil {
			return nil, fmt.Errorf("judge %s: %w", judgeID, evalrun.ErrNotFound)
		}
		if state.Active == active {
			return nil, nil
		}
		updated := *state
		updated.Active = active
		return []es.Event{{Type: EventJudgeUpdated, Data: JudgeUpdated{Judge: updated}}}, nil
	})
	if err != nil {
		return evalrun.Judge{}, err
	}
	return *state, nil
}

// Delete removes the judge. Deleting an absent or already deleted judge
// returns evalrun.ErrNotFound.
func (s *JudgeService) Delete(ctx context.Context, judgeID string) error {
	_, err := s.repo.Execute(ctx, judgeID, func(state *evalrun.Judge) ([]es.Event, error) {
		if state == nil {
			return nil, fmt.Errorf("judge %s: %w", judgeID, evalrun.ErrNotFound)
		}
		return []es.Event{{Type: EventJudgeDeleted, Data: JudgeDeleted{JudgeID: judgeID}}}, nil
	})
	return err
}

// Get returns the judge's current state, or evalrun.ErrNotFound if it was
// never created or has been deleted.
func (s *JudgeService) Get(ctx context.Context, judgeID string) (evalrun.Judge, error) {
	state, _, err := s.repo.Load(ctx, judgeID)
	if err != nil {
		return evalrun.Judge{}, err
	}
	if state == nil {
		return evalrun.Judge{}, fmt.Errorf("judge %s: %w", judgeID, evalrun.ErrNotFound)
	}
	return *state, nil
}
