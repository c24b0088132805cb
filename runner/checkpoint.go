// Package runner drives evaluation runs. A run is a durable, sequential state
// machine: plan the task list, process tasks one at a time, finish. Progress
// is checkpointed after every step, so a crashed process resumes where it
// stopped instead of starting over.
package runner

import (
	"context"
	"time"
)

// Phase is the state machine position of a run.
type Phase string

const (
	// PhasePlanning means the task list has not been committed yet.
	PhasePlanning Phase = "PLANNING"

	// PhaseProcessing means tasks are being evaluated one at a time.
	PhaseProcessing Phase = "PROCESSING"

	// PhaseDone means the run reached a terminal status.
	PhaseDone Phase = "DONE"
)

// Task is one planned evaluation: a judge applied to one question within one
// submission.
type Task struct {
	SubmissionID string `json:"submissionId"`
	QuestionID   string `json:"questionId"`
	JudgeID      string `json:"judgeId"`
}

// Checkpoint is the durable progress record of one run. The pending list
// shrinks as tasks are processed; replaying a checkpoint after a crash at
// worst repeats the head task, which the record layer rejects as a duplicate.
type Checkpoint struct {
	RunID        string    `json:"runId"`
	QueueID      string    `json:"queueId"`
	Phase        Phase     `json:"phase"`
	PendingTasks []Task    `json:"pendingTasks"`
	PlannedCount int       `json:"plannedCount"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// CheckpointStore persists run checkpoints. Implementations must be safe for
// concurrent use.
type CheckpointStore interface {
	// Save writes the checkpoint, replacing any previous one for the run.
	Save(ctx context.Context, cp Checkpoint) error

	// Load returns the checkpoint for a run. The second return is false if
	// none exists.
	Load(ctx context.Context, runID string) (Checkpoint, bool, error)

	// Delete removes the checkpoint for a run. Deleting a missing
	// checkpoint is not an error.
	Delete(ctx context.Context, runID string) error

	// List returns every stored checkpoint.
	List(ctx context.Context) ([]Checkpoint, error)
}
