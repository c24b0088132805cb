package entity

import (
	"context"
	"fmt"

	"github.com/getpup/evalrun"
	"github.com/getpup/evalrun/es"
)

// Judge assignment entity event types.
const (
	EventAssignmentsSet     = "assignments-set"
	EventJudgeAdded         = "judge-added"
	EventJudgeRemoved       = "judge-removed"
	EventAssignmentsDeleted = "assignments-deleted"
)

// AssignmentsSet records a full replacement of the judge set for a question.
type AssignmentsSet struct {
	QueueID    string   `json:"queueId"`
	QuestionID string   `json:"questionId"`
	JudgeIDs   []string `json:"judgeIds"`
}

// JudgeAdded records one judge joining the question's judge set.
type JudgeAdded struct {
	JudgeID string `json:"judgeId"`
}

// JudgeRemoved records one judge leaving the question's judge set.
type JudgeRemoved struct {
	JudgeID string `json:"judgeId"`
}

// AssignmentsDeleted clears the assignment entirely.
type AssignmentsDeleted struct{}

type assignmentDefinition struct{}

func (assignmentDefinition) EntityType() string { return "judge-assignments" }

func (assignmentDefinition) Empty(id string) *evalrun.JudgeAssignment { return nil }

func (assignmentDefinition) Apply(state *evalrun.JudgeAssignment, env es.Envelope) (*evalrun.JudgeAssignment, error) {
	switch env.EventType {
	case EventAssignmentsSet:
		var e AssignmentsSet
		if err := env.DecodeData(&e); err != nil {
			return state, err
		}
		a := evalrun.JudgeAssignment{QueueID: e.QueueID, QuestionID: e.QuestionID}.WithJudgeIDs(e.JudgeIDs)
		return &a, nil
	case EventJudgeAdded:
		var e JudgeAdded
		if err := env.DecodeData(&e); err != nil {
			return state, err
		}
		if state == nil {
			return state, fmt.Errorf("judge-added on absent assignment %s", env.EntityID)
		}
		a := state.WithJudgeAdded(e.JudgeID)
		return &a, nil
	case EventJudgeRemoved:
		var e JudgeRemoved
		if err := env.DecodeData(&e); err != nil {
			return state, err
		}
		if state == nil {
			return state, fmt.Errorf("judge-removed on absent assignment %s", env.EntityID)
		}
		a := state.WithJudgeRemoved(e.JudgeID)
		return &a, nil
	case EventAssignmentsDeleted:
		return nil, nil
	default:
		return state, fmt.Errorf("unknown assignment event type %q", env.EventType)
	}
}

// AssignmentService executes commands against judge assignment entities.
// Assignments are keyed by (queueID, questionID), folded into a composite
// entity id.
type AssignmentService struct {
	repo *Repository[*evalrun.JudgeAssignment]
}

// NewAssignmentService creates an AssignmentService backed by the given event store.
func NewAssignmentService(store es.Store) *AssignmentService {
	return &AssignmentService{repo: NewRepository[*evalrun.JudgeAssignment](store, assignmentDefinition{})}
}

// Set replaces the judge set for a question. Setting on an absent assignment
// creates it; setting an empty list leaves the assignment present with no
// judges.
func (s *AssignmentService) Set(ctx context.Context, queueID, questionID string, judgeIDs []string) (evalrun.JudgeAssignment, error) {
	id := evalrun.AssignmentID(queueID, questionID)
	state, err := s.repo.Execute(ctx, id, func(state *evalrun.JudgeAssignment) ([]es.Event, error) {
		return []es.Event{{Type: EventAssignmentsSet, Data: AssignmentsSet{
			QueueID:    queueID,
			QuestionID: questionID,
			JudgeIDs:   judgeIDs,
		}}}, nil
	})
	if err != nil {
		return evalrun.JudgeAssignment{}, err
	}
	return *state, nil
}

// AddJudge adds one judge to the question's judge set. Adding to an absent
// assignment creates it first. Adding a judge already in the set is a no-op.
func (s *AssignmentService) AddJudge(ctx context.Context, queueID, questionID, judgeID string) (evalrun.JudgeAssignment, error) {
	id := evalrun.AssignmentID(queueID, questionID)
	state, err := s.repo.Execute(ctx, id, func(state *evalrun.JudgeAssignment) ([]es.Event, error) {
		if state == nil {
			return []es.Event{
				{Type: EventAssignmentsSet, Data: AssignmentsSet{QueueID: queueID, QuestionID: questionID}},
				{Type: EventJudgeAdded, Data: JudgeAdded{JudgeID: judgeID}},
			}, nil
		}
		if state.HasJudge(judgeID) {
			return nil, nil
		}
		return []es.Event{{Type: EventJudgeAdded, Data: JudgeAdded{JudgeID: judgeID}}}, nil
	})
	if err != nil {
		return evalrun.JudgeAssignment{}, err
	}
	return *state, nil
}

// RemoveJudge removes one judge from the question's judge set. Removing from
// an absent assignment returns evalrun.ErrNotFound; removing a judge that is
// not in the set is a no-op.
func (s *AssignmentService) RemoveJudge(ctx context.Context, queueID, questionID, judgeID string) (evalrun.JudgeAssignment, error) {
	id := evalrun.AssignmentID(queueID, questionID)
	state, err := s.repo.Execute(ctx, id, func(state *evalrun.JudgeAssignment) ([]es.Event, error) {
		if state == nil {
			return nil, fmt.Errorf("assignment %s: %w", id, evalrun.ErrNotFound)
		}
		if !state.HasJudge(judgeID) {
			return nil, nil
		}
		return []es.Event{{Type: EventJudgeRemoved, Data: JudgeRemoved{JudgeID: judgeID}}}, nil
	})
	if err != nil {
		return evalrun.JudgeAssignment{}, err
	}
	return *state, nil
}

// Delete clears the assignment. Deleting an absent assignment returns
// evalrun.ErrNotFound.
func (s *AssignmentService) Delete(ctx context.Context, queueID, questionID string) error {
	id := evalrun.AssignmentID(queueID, questionID)
	_, err := s.repo.Execute(ctx, id, func(state *evalrun.JudgeAssignment) ([]es.Event, error) {
		if state == nil {
			return nil, fmt.Errorf("assignment %s: %w", id, evalrun.ErrNotFound)
		}
		return []es.Event{{Type: EventAssignmentsDeleted, Data: AssignmentsDeleted{}}}, nil
	})
	return err
}

// Get returns the assignment for a question, or evalrun.ErrNotFound if none
// is recorded.
func (s *AssignmentService) Get(ctx context.Context, queueID, questionID string) (evalrun.JudgeAssignment, error) {
	id := evalrun.AssignmentID(queueID, questionID)
	state, _, err := s.repo.Load(ctx, id)
	if err != nil {
		return evalrun.JudgeAssignment{}, err
	}
	if state == nil {
		return evalrun.JudgeAssignment{}, fmt.Errorf("assignment %s: %w", id, evalrun.ErrNotFound)
	}
	return *state, nil
}
