package entity

import (
	"context"
	"fmt"

	"github.com/getpup/evalrun"
	"github.com/getpup/evalrun/es"
)

// EventSubmissionImported is the single submission event type. Submissions
// are immutable after import, so the log of a submission is always exactly
// one event.
const EventSubmissionImported = "submission-imported"

// SubmissionImported records the full imported submission.
type SubmissionImported struct {
	Submission evalrun.Submission `json:"submission"`
}

type submissionDefinition struct{}

func (submissionDefinition) EntityType() string { return "submissions" }

func (submissionDefinition) Empty(id string) *evalrun.Submission { return nil }

func (submissionDefinition) Apply(state *evalrun.Submission, env es.Envelope) (*evalrun.Submission, error) {
	switch env.EventType {
	case EventSubmissionImported:
		var e SubmissionImported
		if err := env.DecodeData(&e); err != nil {
			return state, err
		}
		return &e.Submission, nil
	default:
		return state, fmt.Errorf("unknown submission event type %q", env.EventType)
	}
}

// SubmissionService executes commands against submission entities.
type SubmissionService struct {
	repo *Repository[*evalrun.Submission]
}

// NewSubmissionService creates a SubmissionService backed by the given event store.
func NewSubmissionService(store es.Store) *SubmissionService {
	return &SubmissionService{repo: NewRepository[*evalrun.Submission](store, submissionDefinition{})}
}

// Import records a new submission. Importing an id that already exists
// returns evalrun.ErrAlreadyExists without touching the stored submission.
func (s *SubmissionService) Import(ctx context.Context, sub evalrun.Submission) (evalrun.Submission, error) {
	state, err := s.repo.Execute(ctx, sub.ID, func(state *evalrun.Submission) ([]es.Event, error) {
		if state != nil {
			return nil, fmt.Errorf("submission %s: %w", sub.ID, evalrun.ErrAlreadyExists)
		}
		return []es.Event{{Type: EventSubmissionImported, Data: SubmissionImported{Submission: sub}}}, nil
	})
	if err != nil {
		return evalrun.Submission{}, err
	}
	return *state, nil
}

// Get returns the submission, or evalrun.ErrNotFound if it was never imported.
func (s *SubmissionService) Get(ctx context.Context, submissionID string) (evalrun.Submission, error) {
	state, _, err := s.repo.Load(ctx, submissionID)
	if err != nil {
		return evalrun.Submission{}, err
	}
	if state == nil {
		return evalrun.Submission{}, fmt.Errorf("submission %s: %w", submissionID, evalrun.ErrNotFound)
	}
	return *state, nil
}
