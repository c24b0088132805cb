// Package views maintains the read models of the system. Views are projected
// asynchronously from committed events and may briefly lag the entity logs;
// every upsert is idempotent so redelivered events are harmless.
package views

import (
	"context"
	"time"

	"github.com/getpup/evalrun"
)

// JudgeRow is the projected judge listing entry.
type JudgeRow struct {
	JudgeID      string `json:"judgeId"`
	Name         string `json:"name"`
	SystemPrompt string `json:"systemPrompt"`
	TargetModel  string `json:"targetModel"`
	Active       bool   `json:"active"`
}

// QueueRow summarizes one logical queue: every queue id seen in an import.
type QueueRow struct {
	QueueID         string `json:"queueId"`
	SubmissionCount int    `json:"submissionCount"`
	QuestionCount   int    `json:"questionCount"`
}

// QuestionRow is one question within a queue. A question appears once per
// queue regardless of how many submissions answered it, carrying the judge
// set assigned to it.
type QuestionRow struct {
	QueueID      string   `json:"queueId"`
	QuestionID   string   `json:"questionId"`
	QuestionText string   `json:"questionText"`
	JudgeIDs     []string `json:"judgeIds"`
}

// SubmissionRow is the projected submission listing entry.
type SubmissionRow struct {
	SubmissionID  string `json:"submissionId"`
	QueueID       string `json:"queueId"`
	QuestionCount int    `json:"questionCount"`
}

// RunRow is the projected run listing entry.
type RunRow struct {
	RunID          string            `json:"runId"`
	QueueID        string            `json:"queueId"`
	Status         evalrun.RunStatus `json:"status"`
	PlannedCount   int               `json:"plannedCount"`
	CompletedCount int               `json:"completedCount"`
	FailedCount    int               `json:"failedCount"`
	StartedAt      time.Time         `json:"startedAt"`
	CompletedAt    time.Time         `json:"completedAt,omitzero"`
}

// EvaluationRow is the projected evaluation listing entry.
type EvaluationRow struct {
	EvaluationID string          `json:"evaluationId"`
	RunID        string          `json:"runId"`
	SubmissionID string          `json:"submissionId"`
	QueueID      string          `json:"queueId"`
	QuestionID   string          `json:"questionId"`
	JudgeID      string          `json:"judgeId"`
	Verdict      evalrun.Verdict `json:"verdict"`
	Reasoning    string          `json:"reasoning"`
	EvaluatedAt  time.Time       `json:"evaluatedAt"`
}

// EvaluationFilter narrows evaluation queries. Zero-valued fields match
// everything.
type EvaluationFilter struct {
	RunID        string
	QueueID      string
	SubmissionID string
	QuestionID   string
	JudgeID      string
	Verdict      evalrun.Verdict
}

// Matches reports whether the row satisfies every set filter field.
func (f EvaluationFilter) Matches(row EvaluationRow) bool {
	if f.RunID != "" && row.RunID != f.RunID {
		return false
	}
	if f.QueueID != "" && row.QueueID != f.QueueID {
		return false
	}
	if f.SubmissionID != "" && row.SubmissionID != f.SubmissionID {
		return false
	}
	if f.QuestionID != "" && row.QuestionID != f.QuestionID {
		return false
	}
	if f.JudgeID != "" && row.JudgeID != f.JudgeID {
		return false
	}
	if f.Verdict != "" && row.Verdict != f.Verdict {
		return false
	}
	return true
}

// Store is the projection target and query surface for all views. Writes are
// idempotent upserts keyed by the row's natural id. Implementations must be
// safe for concurrent use.
type Store interface {
	// Projection writes.
	UpsertJudge(ctx context.Context, row JudgeRow) error
	DeleteJudge(ctx context.Context, judgeID string) error
	UpsertSubmission(ctx context.Context, row SubmissionRow) error
	UpsertQuestion(ctx context.Context, queueID, questionID, questionText string) error
	SetQuestionJudges(ctx context.Context, queueID, questionID string, judgeIDs []string) error
	AddQuestionJudge(ctx context.Context, queueID, questionID, judgeID string) error
	RemoveQuestionJudge(ctx context.Context, queueID, questionID, judgeID string) error
	UpsertRun(ctx context.Context, row RunRow) error
	UpsertEvaluation(ctx context.Context, row EvaluationRow) error

	// Queries.
	Judges(ctx context.Context) ([]JudgeRow, error)
	ActiveJudges(ctx context.Context) ([]JudgeRow, error)
	Queues(ctx context.Context) ([]QueueRow, error)
	QuestionsByQueue(ctx context.Context, queueID string) ([]QuestionRow, error)
	SubmissionsByQueue(ctx context.Context, queueID string) ([]SubmissionRow, error)
	Runs(ctx context.Context, queueID string) ([]RunRow, error)
	Run(ctx context.Context, runID string) (RunRow, error)
	Evaluations(ctx context.Context, filter EvaluationFilter) ([]EvaluationRow, error)
	SummarizeVerdicts(ctx context.Context, filter EvaluationFilter) (map[evalrun.Verdict]int, error)
}
