package views

import (
	"context"
	"fmt"

	"github.com/getpup/evalrun"
	"github.com/getpup/evalrun/entity"
	"github.com/getpup/evalrun/es"
)

// Projector folds committed events into the view store. Register attaches it
// to a dispatcher; from then on every committed event flows through exactly
// one handler per entity type. Handlers return errors to the dispatcher, which
// holds the offset back so the event is redelivered once the store recovers.
type Projector struct {
	store Store
}

// NewProjector creates a Projector writing to the given view store.
func NewProjector(store Store) *Projector {
	return &Projector{store: store}
}

// Register subscribes the projector's handlers on the dispatcher.
func (p *Projector) Register(d *es.Dispatcher) {
	d.Subscribe("judges", p.handleJudgeEvent)
	d.Subscribe("submissions", p.handleSubmissionEvent)
	d.Subscribe("judge-assignments", p.handleAssignmentEvent)
	d.Subscribe("runs", p.handleRunEvent)
	d.Subscribe("evaluations", p.handleEvaluationEvent)
}

func (p *Projector) handleJudgeEvent(ctx context.Context, env es.Envelope) error {
	switch env.EventType {
	case entity.EventJudgeCreated:
		var e entity.JudgeCreated
		if err := env.DecodeData(&e); err != nil {
			return err
		}
		return p.store.UpsertJudge(ctx, JudgeRow{
			JudgeID:      e.Judge.ID,
			Name:         e.Judge.Name,
			SystemPrompt: e.Judge.SystemPrompt,
			TargetModel:  e.Judge.TargetModel,
			Active:       e.Judge.Active,
		})
	case entity.EventJudgeUpdated:
		var e entity.JudgeUpdated
		if err := env.DecodeData(&e); err != nil {
			return err
		}
		return p.store.UpsertJudge(ctx, JudgeRow{
			JudgeID:      e.Judge.ID,
			Name:         e.Judge.Name,
			SystemPrompt: e.Judge.SystemPrompt,
			TargetModel:  e.Judge.TargetModel,
			Active:       e.Judge.Active,
		})
	case entity.EventJudgeDeleted:
		return p.store.DeleteJudge(ctx, env.EntityID)
	default:
		return fmt.Errorf("unknown judge event type %q", env.EventType)
	}
}

func (p *Projector) handleSubmissionEvent(ctx context.Context, env es.Envelope) error {
	if env.EventType != entity.EventSubmissionImported {
		return fmt.Errorf("unknown submission event type %q", env.EventType)
	}
	var e entity.SubmissionImported
	if err := env.DecodeData(&e); err != nil {
		return err
	}

	sub := e.Submission
	if err := p.store.UpsertSubmission(ctx, SubmissionRow{
		SubmissionID:  sub.ID,
		QueueID:       sub.QueueID,
		QuestionCount: len(sub.Questions),
	}); err != nil {
		return err
	}
	for _, qa := range sub.Questions {
		if err := p.store.UpsertQuestion(ctx, sub.QueueID, qa.QuestionID, qa.QuestionText); err != nil {
			return err
		}
	}
	return nil
}

func (p *Projector) handleAssignmentEvent(ctx context.Context, env es.Envelope) error {
	queueID, questionID, err := evalrun.SplitAssignmentID(env.EntityID)
	if err != nil {
		return err
	}

	switch env.EventType {
	case entity.EventAssignmentsSet:
		var e entity.AssignmentsSet
		if err := env.DecodeData(&e); err != nil {
			return err
		}
		return p.store.SetQuestionJudges(ctx, e.QueueID, e.QuestionID, e.JudgeIDs)
	case entity.EventJudgeAdded:
		var e entity.JudgeAdded
		if err := env.DecodeData(&e); err != nil {
			return err
		}
		return p.store.AddQuestionJudge(ctx, queueID, questionID, e.JudgeID)
	case entity.EventJudgeRemoved:
		var e entity.JudgeRemoved
		if err := env.DecodeData(&e); err != nil {
			return err
		}
		return p.store.RemoveQuestionJudge(ctx, queueID, questionID, e.JudgeID)
	case entity.EventAssignmentsDeleted:
		return p.store.SetQuestionJudges(ctx, queueID, questionID, nil)
	default:
		return fmt.Errorf("unknown assignment event type %q", env.EventType)
	}
}

func (p *Projector) handleRunEvent(ctx context.Context, env es.Envelope) error {
	var run entity.RunStarted
	switch env.EventType {
	case entity.EventRunStarted, entity.EventRunProgressUpdated:
		if err := env.DecodeData(&run); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown run event type %q", env.EventType)
	}

	r := run.Run
	return p.store.UpsertRun(ctx, RunRow{
		RunID:          r.ID,
		QueueID:        r.QueueID,
		Status:         r.Status,
		PlannedCount:   r.PlannedCount,
		CompletedCount: r.CompletedCount,
		FailedCount:    r.FailedCount,
		StartedAt:      r.StartedAt,
		CompletedAt:    r.CompletedAt,
	})
}

func (p *Projector) handleEvaluationEvent(ctx context.Context, env es.Envelope) error {
	if env.EventType != entity.EventEvaluationRecorded {
		return fmt.Errorf("unknown evaluation event type %q", env.EventType)
	}
	var e entity.EvaluationRecorded
	if err := env.DecodeData(&e); err != nil {
		return err
	}

	eval := e.Evaluation
	return p.store.UpsertEvaluation(ctx, EvaluationRow{
		EvaluationID: eval.ID,
		RunID:        eval.RunID,
		SubmissionID: eval.SubmissionID,
		QueueID:      eval.QueueID,
		QuestionID:   eval.QuestionID,
		JudgeID:      eval.JudgeID,
		Verdict:      eval.Verdict,
		Reasoning:    eval.Reasoning,
		EvaluatedAt:  eval.EvaluatedAt,
	})
}
