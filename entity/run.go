package entity

import (
	"context"
	"fmt"
	"time"

	"github.com/getpup/evalrun"
	"github.com/getpup/evalrun/es"
)

// Run entity event types. Both events carry the full run snapshot, so the
// fold is a plain replacement and the status rule lives in the command side
// only.
const (
	EventRunStarted         = "run-started"
	EventRunProgressUpdated = "run-progress-updated"
)

// RunStarted records the initial run snapshot.
type RunStarted struct {
	Run evalrun.Run `json:"run"`
}

// RunProgressUpdated records the run snapshot after one task was accounted for.
type RunProgressUpdated struct {
	Run evalrun.Run `json:"run"`
}

type runDefinition struct{}

func (runDefinition) EntityType() string { return "runs" }

func (runDefinition) Empty(id string) *evalrun.Run { return nil }

func (runDefinition) Apply(state *evalrun.Run, env es.Envelope) (*evalrun.Run, error) {
	switch env.EventType {
	case EventRunStarted:
		var e RunStarted
		if err := env.DecodeData(&e); err != nil {
			return state, err
		}
		return &e.Run, nil
	case EventRunProgressUpdated:
		var e RunProgressUpdated
		if err := env.DecodeData(&e); err != nil {
			return state, err
		}
		return &e.Run, nil
	default:
		return state, fmt.Errorf("unknown run event type %q", env.EventType)
	}
}

// RunService executes commands against run entities.
type RunService struct {
	repo *Repository[*evalrun.Run]
}

// NewRunService creates a RunService backed by the given event store.
func NewRunService(store es.Store) *RunService {
	return &RunService{repo: NewRepository[*evalrun.Run](store, runDefinition{})}
}

// Start records a new run with the given planned task count. A run planned
// with zero tasks is terminal immediately. Starting an id that already exists
// returns evalrun.ErrAlreadyExists.
func (s *RunService) Start(ctx context.Context, runID, queueID string, plannedCount int, now time.Time) (evalrun.Run, error) {
	state, err := s.repo.Execute(ctx, runID, func(state *evalrun.Run) ([]es.Event, error) {
		if state != nil {
			return nil, fmt.Errorf("run %s: %w", runID, evalrun.ErrAlreadyExists)
		}
		run := evalrun.Run{
			ID:           runID,
			QueueID:      queueID,
			PlannedCount: plannedCount,
			StartedAt:    now,
		}
		run = withRecomputedStatus(run, now)
		return []es.Event{{Type: EventRunStarted, Data: RunStarted{Run: run}}}, nil
	})
	if err != nil {
		return evalrun.Run{}, err
	}
	return *state, nil
}

// MarkCompleted accounts one successfully evaluated task.
func (s *RunService) MarkCompleted(ctx context.Context, runID string, now time.Time) (evalrun.Run, error) {
	return s.advance(ctx, runID, now, func(run *evalrun.Run) { run.CompletedCount++ })
}

// MarkFailed accounts one task whose evaluation failed.
func (s *RunService) MarkFailed(ctx context.Context, runID string, now time.Time) (evalrun.Run, error) {
	return s.advance(ctx, runID, now, func(run *evalrun.Run) { run.FailedCount++ })
}

func (s *RunService) advance(ctx context.Context, runID string, now time.Time, bump func(*evalrun.Run)) (evalrun.Run, error) {
	state, err := s.repo.Execute(ctx, runID, func(state *evalrun.Run) ([]es.Event, error) {
		if state == nil {
			return nil, fmt.Errorf("run %s: %w", runID, evalrun.ErrNotFound)
		}
		run := *state
		bump(&run)
		run = withRecomputedStatus(run, now)
		return []es.Event{{Type: EventRunProgressUpdated, Data: RunProgressUpdated{Run: run}}}, nil
	})
	if err != nil {
		return evalrun.Run{}, err
	}
	return *state, nil
}

// Get returns the run's current state, or evalrun.ErrNotFound if it was
// never started.
func (s *RunService) Get(ctx context.Context, runID string) (evalrun.Run, error) {
	state, _, err := s.repo.Load(ctx, runID)
	if err != nil {
		return evalrun.Run{}, err
	}
	if state == nil {
		return evalrun.Run{}, fmt.Errorf("run %s: %w", runID, evalrun.ErrNotFound)
	}
	return *state, nil
}

// withRecomputedStatus derives the run status from its counters. Once every
// planned task is accounted for, the run is FAILED only when every task
// failed; a single success makes it COMPLETED. CompletedAt is stamped exactly
// once, at the transition into a terminal status.
func withRecomputedStatus(run evalrun.Run, now time.Time) evalrun.Run {
	if run.TotalProcessed() >= run.PlannedCount {
		if run.CompletedCount == 0 && run.FailedCount > 0 {
			run.Status = evalrun.RunStatusFailed
		} else {
			run.Status = evalrun.RunStatusCompleted
		}
		if run.CompletedAt.IsZero() {
			run.CompletedAt = now
		}
	} else {
		run.Status = evalrun.RunStatusRunning
	}
	return run
}
