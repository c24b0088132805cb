package entity

import (
	"context"
	"fmt"

	"github.com/getpup/evalrun"
	"github.com/getpup/evalrun/es"
)

// EventEvaluationRecorded is the single evaluation event type. Evaluations
// are write-once: recording the same id twice is rejected, which is what
// makes replaying a crashed run step safe.
const EventEvaluationRecorded = "evaluation-recorded"

// EvaluationRecorded records the full evaluation result.
type EvaluationRecorded struct {
	Evaluation evalrun.Evaluation `json:"evaluation"`
}

type evaluationDefinition struct{}

func (evaluationDefinition) EntityType() string { return "evaluations" }

func (evaluationDefinition) Empty(id string) *evalrun.Evaluation { return nil }

func (evaluationDefinition) Apply(state *evalrun.Evaluation, env es.Envelope) (*evalrun.Evaluation, error) {
	switch env.EventType {
	case EventEvaluationRecorded:
		var e EvaluationRecorded
		if err := env.DecodeData(&e); err != nil {
			return state, err
		}
		return &e.Evaluation, nil
	default:
		return state, fmt.Errorf("unknown evaluation event type %q", env.EventType)
	}
}

// EvaluationService executes commands against evaluation entities.
type EvaluationService struct {
	repo *Repository[*evalrun.Evaluation]
}

// NewEvaluationService creates an EvaluationService backed by the given event store.
func NewEvaluationService(store es.Store) *EvaluationService {
	return &EvaluationService{repo: NewRepository[*evalrun.Evaluation](store, evaluationDefinition{})}
}

// Record writes one evaluation. Recording an id that already exists returns
// evalrun.ErrAlreadyExists and leaves the stored evaluation untouched.
func (s *EvaluationService) Record(ctx context.Context, eval evalrun.Evaluation) (evalrun.Evaluation, error) {
	state, err := s.repo.Execute(ctx, eval.ID, func(state *evalrun.Evaluation) ([]es.Event, error) {
		if state != nil {
			return nil, fmt.Errorf("evaluation %s: %w", eval.ID, evalrun.ErrAlreadyExists)
		}
		return []es.Event{{Type: EventEvaluationRecorded, Data: EvaluationRecorded{Evaluation: eval}}}, nil
	})
	if err != nil {
		return evalrun.Evaluation{}, err
	}
	return *state, nil
}

// Get returns the evaluation, or evalrun.ErrNotFound if it was never recorded.
func (s *EvaluationService) Get(ctx context.Context, evaluationID string) (evalrun.Evaluation, error) {
	state, _, err := s.repo.Load(ctx, evaluationID)
	if err != nil {
		return evalrun.Evaluation{}, err
	}
	if state == nil {
		return evalrun.Evaluation{}, fmt.Errorf("evaluation %s: %w", evaluationID, evalrun.ErrNotFound)
	}
	return *state, nil
}
