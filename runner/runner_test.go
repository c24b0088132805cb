package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/getpup/evalrun"
	"github.com/getpup/evalrun/entity"
	"github.com/getpup/evalrun/es"
	esmemory "github.com/getpup/evalrun/es/memory"
	"github.com/getpup/evalrun/evaluator"
	"github.com/getpup/evalrun/views"
	viewmemory "github.com/getpup/evalrun/views/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	events      es.Store
	dispatcher  *es.Dispatcher
	viewStore   *viewmemory.Store
	checkpoints *MemoryCheckpointStore
	mock        *evaluator.MockClient
	runner      *Runner

	judges      *entity.JudgeService
	submissions *entity.SubmissionService
	assignments *entity.AssignmentService
	runs        *entity.RunService
	evals       *entity.EvaluationService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	events := esmemory.New()
	viewStore := viewmemory.New()

	dispatcher, err := es.NewDispatcher(es.DispatcherConfig{Store: events})
	require.NoError(t, err)
	views.NewProjector(viewStore).Register(dispatcher)

	h := &harness{
		events:      events,
		dispatcher:  dispatcher,
		viewStore:   viewStore,
		checkpoints: NewMemoryCheckpointStore(),
		mock:        &evaluator.MockClient{},
		judges:      entity.NewJudgeService(events),
		submissions: entity.NewSubmissionService(events),
		assignments: entity.NewAssignmentService(events),
		runs:        entity.NewRunService(events),
		evals:       entity.NewEvaluationService(events),
	}

	h.runner, err = New(Config{
		Views:       viewStore,
		Checkpoints: h.checkpoints,
		Evaluator:   h.mock,
		Runs:        h.runs,
		Judges:      h.judges,
		Submissions: h.submissions,
		Evaluations: h.evals,
		StepTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return h
}

func (h *harness) drain(t *testing.T) {
	t.Helper()
	require.NoError(t, h.dispatcher.Drain(context.Background()))
}

// seedQueue sets up two active judges, one inactive judge, one submission
// with two questions, and assignments for both questions.
func (h *harness) seedQueue(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	for _, j := range []evalrun.Judge{
		{ID: "j1", Name: "Accuracy", SystemPrompt: "Check accuracy.", TargetModel: "gpt-4o", Active: true},
		{ID: "j2", Name: "Style", SystemPrompt: "Check style.", TargetModel: "gpt-4o", Active: true},
		{ID: "j3", Name: "Dormant", SystemPrompt: "Unused.", TargetModel: "gpt-4o", Active: false},
	} {
		_, err := h.judges.Create(ctx, j)
		require.NoError(t, err)
	}

	_, err := h.submissions.Import(ctx, evalrun.Submission{
		ID:      "s1",
		QueueID: "queue-1",
		Questions: map[string]evalrun.QuestionAnswer{
			"q1": {QuestionID: "q1", QuestionText: "What is 2+2?", AnswerChoice: "4"},
			"q2": {QuestionID: "q2", QuestionText: "Capital of France?", AnswerChoice: "Paris"},
		},
	})
	require.NoError(t, err)

	_, err = h.assignments.Set(ctx, "queue-1", "q1", []string{"j1", "j2", "j3"})
	require.NoError(t, err)
	_, err = h.assignments.Set(ctx, "queue-1", "q2", []string{"j1"})
	require.NoError(t, err)

	h.drain(t)
}

func (h *harness) runToCompletion(t *testing.T, queueID string) string {
	t.Helper()
	ctx := context.Background()
	runID, err := h.runner.StartRun(ctx, queueID)
	require.NoError(t, err)
	require.NoError(t, h.runner.Drive(ctx, runID))
	return runID
}

func TestRunner_PlansDeterministically(t *testing.T) {
	h := newHarness(t)
	h.seedQueue(t)

	runID := h.runToCompletion(t, "queue-1")

	// Questions outer, submissions middle, judges inner, all sorted.
	// j3 is inactive and planned for nothing.
	require.Equal(t, 3, h.mock.CallCount())
	assert.Equal(t, "q1", h.mock.Calls[0].Question.QuestionID)
	assert.Equal(t, "j1", h.mock.Calls[0].Judge.ID)
	assert.Equal(t, "q1", h.mock.Calls[1].Question.QuestionID)
	assert.Equal(t, "j2", h.mock.Calls[1].Judge.ID)
	assert.Equal(t, "q2", h.mock.Calls[2].Question.QuestionID)
	assert.Equal(t, "j1", h.mock.Calls[2].Judge.ID)

	run, err := h.runs.Get(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, evalrun.RunStatusCompleted, run.Status)
	assert.Equal(t, 3, run.PlannedCount)
	assert.Equal(t, 3, run.CompletedCount)
	assert.Equal(t, 0, run.FailedCount)
	assert.False(t, run.CompletedAt.IsZero())
}

func TestRunner_RecordsEvaluations(t *testing.T) {
	h := newHarness(t)
	h.seedQueue(t)
	h.mock.EvaluateFunc = func(ctx context.Context, req evaluator.Request) (evaluator.Result, error) {
		if req.Judge.ID == "j2" {
			return evaluator.Result{Verdict: evalrun.VerdictFail, Reasoning: "Sloppy."}, nil
		}
		return evaluator.Result{Verdict: evalrun.VerdictPass, Reasoning: "Fine."}, nil
	}

	runID := h.runToCompletion(t, "queue-1")
	h.drain(t)

	rows, err := h.viewStore.Evaluations(context.Background(), views.EvaluationFilter{RunID: runID})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	summary, err := h.viewStore.SummarizeVerdicts(context.Background(), views.EvaluationFilter{RunID: runID})
	require.NoError(t, err)
	assert.Equal(t, 2, summary[evalrun.VerdictPass])
	assert.Equal(t, 1, summary[evalrun.VerdictFail])

	seen := make(map[string]bool)
	for _, row := range rows {
		assert.NotEmpty(t, row.EvaluationID)
		assert.False(t, seen[row.EvaluationID], "evaluation ids are unique")
		seen[row.EvaluationID] = true
		assert.Equal(t, "queue-1", row.QueueID)
		assert.Equal(t, "s1", row.SubmissionID)
	}
}

func TestRunner_EmptyQueueCompletesImmediately(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	runID := h.runToCompletion(t, "queue-empty")

	assert.Equal(t, 0, h.mock.CallCount())
	run, err := h.runs.Get(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, evalrun.RunStatusCompleted, run.Status)
	assert.Equal(t, 0, run.PlannedCount)

	_, ok, err := h.checkpoints.Load(ctx, runID)
	require.NoError(t, err)
	assert.False(t, ok, "checkpoint is removed once the run is done")
}

func TestRunner_FailedTaskDoesNotStopTheRun(t *testing.T) {
	h := newHarness(t)
	h.seedQueue(t)
	h.mock.EvaluateFunc = func(ctx context.Context, req evaluator.Request) (evaluator.Result, error) {
		if req.Judge.ID == "j2" {
			return evaluator.Result{}, errors.New("model overloaded")
		}
		return evaluator.Result{Verdict: evalrun.VerdictPass}, nil
	}

	runID := h.runToCompletion(t, "queue-1")

	run, err := h.runs.Get(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, evalrun.RunStatusCompleted, run.Status, "partial failure still completes")
	assert.Equal(t, 2, run.CompletedCount)
	assert.Equal(t, 1, run.FailedCount)
}

func TestRunner_PlansUnansweredQuestionsAsFailingTasks(t *testing.T) {
	h := newHarness(t)
	h.seedQueue(t)

	// s2 never answered q2, so its q2 task is planned and then fails.
	_, err := h.submissions.Import(context.Background(), evalrun.Submission{
		ID:      "s2",
		QueueID: "queue-1",
		Questions: map[string]evalrun.QuestionAnswer{
			"q1": {QuestionID: "q1", QuestionText: "What is 2+2?", AnswerChoice: "5"},
		},
	})
	require.NoError(t, err)
	h.drain(t)

	runID := h.runToCompletion(t, "queue-1")

	run, err := h.runs.Get(context.Background(), runID)
	require.NoError(t, err)
	// q1 x {s1,s2} x {j1,j2} plus q2 x {s1,s2} x {j1}.
	assert.Equal(t, 6, run.PlannedCount)
	assert.Equal(t, 5, run.CompletedCount)
	assert.Equal(t, 1, run.FailedCount)
	assert.Equal(t, evalrun.RunStatusCompleted, run.Status)

	// The missing answer fails before the judge is ever called.
	assert.Equal(t, 5, h.mock.CallCount())
}

func TestRunner_AllTasksFailingFailsTheRun(t *testing.T) {
	h := newHarness(t)
	h.seedQueue(t)
	h.mock.EvaluateFunc = func(ctx context.Context, req evaluator.Request) (evaluator.Result, error) {
		return evaluator.Result{}, errors.New("model unreachable")
	}

	runID := h.runToCompletion(t, "queue-1")

	run, err := h.runs.Get(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, evalrun.RunStatusFailed, run.Status)
	assert.Equal(t, 0, run.CompletedCount)
	assert.Equal(t, 3, run.FailedCount)
}

func TestRunner_ResumesFromCheckpoint(t *testing.T) {
	h := newHarness(t)
	h.seedQueue(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// Simulate a crash mid-processing: the run was planned with 3 tasks,
	// the first already completed and its evaluation recorded, two tasks
	// still pending.
	_, err := h.runs.Start(ctx, "r1", "queue-1", 3, now)
	require.NoError(t, err)
	_, err = h.evals.Record(ctx, evalrun.Evaluation{
		ID: "e-done", RunID: "r1", SubmissionID: "s1", QueueID: "queue-1",
		QuestionID: "q1", JudgeID: "j1",
		Verdict: evalrun.VerdictPass, EvaluatedAt: now,
	})
	require.NoError(t, err)
	_, err = h.runs.MarkCompleted(ctx, "r1", now)
	require.NoError(t, err)

	require.NoError(t, h.checkpoints.Save(ctx, Checkpoint{
		RunID:   "r1",
		QueueID: "queue-1",
		Phase:   PhaseProcessing,
		PendingTasks: []Task{
			{SubmissionID: "s1", QuestionID: "q1", JudgeID: "j2"},
			{SubmissionID: "s1", QuestionID: "q2", JudgeID: "j1"},
		},
		PlannedCount: 3,
	}))

	require.NoError(t, h.runner.Resume(ctx))

	assert.Equal(t, 2, h.mock.CallCount(), "only the pending tasks are evaluated")
	run, err := h.runs.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, evalrun.RunStatusCompleted, run.Status)
	assert.Equal(t, 3, run.CompletedCount)

	_, ok, err := h.checkpoints.Load(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunner_ResumeRepeatsInterruptedPlanning(t *testing.T) {
	h := newHarness(t)
	h.seedQueue(t)
	ctx := context.Background()

	// A crash right after StartRun leaves a planning-phase checkpoint.
	runID, err := h.runner.StartRun(ctx, "queue-1")
	require.NoError(t, err)

	require.NoError(t, h.runner.Resume(ctx))

	run, err := h.runs.Get(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, evalrun.RunStatusCompleted, run.Status)
	assert.Equal(t, 3, run.PlannedCount)
}

func TestRunner_DriveAfterDoneIsNoop(t *testing.T) {
	h := newHarness(t)
	h.seedQueue(t)
	ctx := context.Background()

	runID := h.runToCompletion(t, "queue-1")
	calls := h.mock.CallCount()

	require.NoError(t, h.runner.Drive(ctx, runID))
	assert.Equal(t, calls, h.mock.CallCount())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
