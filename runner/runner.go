package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/getpup/evalrun"
	"github.com/getpup/evalrun/entity"
	"github.com/getpup/evalrun/es"
	"github.com/getpup/evalrun/evaluator"
	"github.com/getpup/evalrun/metrics"
	"github.com/getpup/evalrun/views"
)

// Config configures a Runner.
type Config struct {
	// Views is the read model used to plan runs (required).
	Views views.Store

	// Checkpoints persists run progress (required).
	Checkpoints CheckpointStore

	// Evaluator produces verdicts (required).
	Evaluator evaluator.Client

	// Entity services (all required).
	Runs        *entity.RunService
	Judges      *entity.JudgeService
	Submissions *entity.SubmissionService
	Evaluations *entity.EvaluationService

	// StepTimeout bounds one evaluation call (default: 30m).
	StepTimeout time.Duration

	// Include controls which answer fields the judges see
	// (default: question, answer, and answer reasoning).
	Include *evaluator.IncludedFields

	// Logger is for observability (optional).
	Logger es.Logger

	// Collector records metrics (optional).
	Collector *metrics.Collector
}

// Runner drives evaluation runs to completion. Each run advances one small
// step at a time and checkpoints after every step. Tasks are processed
// strictly sequentially within a run; a failing task is accounted and the run
// moves on to the next one.
type Runner struct {
	config Config

	mu      sync.Mutex
	driving map[string]bool
}

// New creates a Runner with the given configuration.
// Applies default values for StepTimeout and Include if unset.
func New(cfg Config) (*Runner, error) {
	if cfg.Views == nil {
		return nil, fmt.Errorf("view store is required")
	}
	if cfg.Checkpoints == nil {
		return nil, fmt.Errorf("checkpoint store is required")
	}
	if cfg.Evaluator == nil {
		return nil, fmt.Errorf("evaluator client is required")
	}
	if cfg.Runs == nil || cfg.Judges == nil || cfg.Submissions == nil || cfg.Evaluations == nil {
		return nil, fmt.Errorf("entity services are required")
	}
	if cfg.StepTimeout == 0 {
		cfg.StepTimeout = 30 * time.Minute
	}
	if cfg.Include == nil {
		include := evaluator.DefaultIncludedFields()
		cfg.Include = &include
	}

	return &Runner{
		config:  cfg,
		driving: make(map[string]bool),
	}, nil
}

// StartRun registers a new run over the given queue and returns its id. The
// run is durable once StartRun returns; call Drive to execute it.
func (r *Runner) StartRun(ctx context.Context, queueID string) (string, error) {
	runID := uuid.NewString()

	cp := Checkpoint{
		RunID:   runID,
		QueueID: queueID,
		Phase:   PhasePlanning,
	}
	if err := r.config.Checkpoints.Save(ctx, cp); err != nil {
		return "", fmt.Errorf("failed to checkpoint new run: %w", err)
	}

	r.logInfo(ctx, "run registered", "runId", runID, "queueId", queueID)
	return runID, nil
}

// Drive executes the run until it is done. Drive is safe to call again for a
// run that already finished, and refuses to double-drive a run this process
// is already driving.
func (r *Runner) Drive(ctx context.Context, runID string) error {
	r.mu.Lock()
	if r.driving[runID] {
		r.mu.Unlock()
		return fmt.Errorf("run %s is already being driven", runID)
	}
	r.driving[runID] = true
	r.mu.Unlock()

	r.config.Collector.AddActiveRuns(1)
	defer func() {
		r.config.Collector.AddActiveRuns(-1)
		r.mu.Lock()
		delete(r.driving, runID)
		r.mu.Unlock()
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		cp, ok, err := r.config.Checkpoints.Load(ctx, runID)
		if err != nil {
			return fmt.Errorf("failed to load checkpoint: %w", err)
		}
		if !ok {
			// No checkpoint means the run already finished.
			return nil
		}

		switch cp.Phase {
		case PhasePlanning:
			if err := r.planStep(ctx, cp); err != nil {
				return err
			}
		case PhaseProcessing:
			done, err := r.processStep(ctx, cp)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		case PhaseDone:
			return r.config.Checkpoints.Delete(ctx, runID)
		default:
			return fmt.Errorf("run %s has unknown phase %q", runID, cp.Phase)
		}
	}
}

// Resume drives every checkpointed run to completion. Call it once at
// startup to pick up runs interrupted by a crash or restart.
func (r *Runner) Resume(ctx context.Context) error {
	cps, err := r.config.Checkpoints.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list checkpoints: %w", err)
	}
	if len(cps) == 0 {
		return nil
	}

	r.logInfo(ctx, "resuming interrupted runs", "count", len(cps))

	var wg sync.WaitGroup
	errs := make([]error, len(cps))
	for i, cp := range cps {
		wg.Add(1)
		go func(i int, runID string) {
			defer wg.Done()
			errs[i] = r.Drive(ctx, runID)
		}(i, cp.RunID)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// planStep builds the task list for the run and commits it together with the
// run entity. Enumeration order is deterministic: questions, then
// submissions, then judges, each sorted by id, so two plannings of the same
// state produce the same list.
func (r *Runner) planStep(ctx context.Context, cp Checkpoint) error {
	questions, err := r.config.Views.QuestionsByQueue(ctx, cp.QueueID)
	if err != nil {
		return fmt.Errorf("failed to read questions for queue %s: %w", cp.QueueID, err)
	}
	subRows, err := r.config.Views.SubmissionsByQueue(ctx, cp.QueueID)
	if err != nil {
		return fmt.Errorf("failed to read submissions for queue %s: %w", cp.QueueID, err)
	}
	activeJudges, err := r.config.Views.ActiveJudges(ctx)
	if err != nil {
		return fmt.Errorf("failed to read active judges: %w", err)
	}

	// The active set is snapshotted here, once per run. Judges deactivated
	// after this point keep their planned tasks.
	active := make(map[string]bool, len(activeJudges))
	for _, j := range activeJudges {
		active[j.JudgeID] = true
	}

	// Every (question, submission) pair gets a task per assigned active
	// judge, whether or not the submission answered the question. A missing
	// answer fails at evaluation time and is accounted on the run.
	var tasks []Task
	for _, q := range questions {
		for _, sub := range subRows {
			for _, judgeID := range q.JudgeIDs {
				if !active[judgeID] {
					continue
				}
				tasks = append(tasks, Task{
					SubmissionID: sub.SubmissionID,
					QuestionID:   q.QuestionID,
					JudgeID:      judgeID,
				})
			}
		}
	}

	_, err = r.config.Runs.Start(ctx, cp.RunID, cp.QueueID, len(tasks), time.Now().UTC())
	if err != nil && !errors.Is(err, evalrun.ErrAlreadyExists) {
		return fmt.Errorf("failed to start run %s: %w", cp.RunID, err)
	}

	r.config.Collector.IncRunsStarted(cp.QueueID)
	r.config.Collector.AddTasksPlanned(cp.QueueID, len(tasks))
	r.logInfo(ctx, "run planned", "runId", cp.RunID, "queueId", cp.QueueID, "tasks", len(tasks))

	cp.Phase = PhaseProcessing
	cp.PendingTasks = tasks
	cp.PlannedCount = len(tasks)
	if err := r.config.Checkpoints.Save(ctx, cp); err != nil {
		return fmt.Errorf("failed to checkpoint plan: %w", err)
	}
	return nil
}

// processStep evaluates the head pending task, accounts the outcome on the
// run, and checkpoints the shrunk task list. With no tasks left it finishes
// the run. Returns true once the run is done.
func (r *Runner) processStep(ctx context.Context, cp Checkpoint) (bool, error) {
	if len(cp.PendingTasks) == 0 {
		return true, r.finish(ctx, cp)
	}

	task := cp.PendingTasks[0]
	if err := r.evaluateTask(ctx, cp, task); err != nil {
		r.logWarn(ctx, "task failed", "runId", cp.RunID,
			"submissionId", task.SubmissionID, "questionId", task.QuestionID,
			"judgeId", task.JudgeID, "error", err)
		r.config.Collector.IncTaskFailures(cp.QueueID)
		if _, err := r.config.Runs.MarkFailed(ctx, cp.RunID, time.Now().UTC()); err != nil {
			return false, fmt.Errorf("failed to mark task failed: %w", err)
		}
	} else {
		if _, err := r.config.Runs.MarkCompleted(ctx, cp.RunID, time.Now().UTC()); err != nil {
			return false, fmt.Errorf("failed to mark task completed: %w", err)
		}
	}

	cp.PendingTasks = cp.PendingTasks[1:]
	if err := r.config.Checkpoints.Save(ctx, cp); err != nil {
		return false, fmt.Errorf("failed to checkpoint progress: %w", err)
	}
	return false, nil
}

// evaluateTask runs one judge against one answered question and records the
// verdict. Any error counts the task as failed; the run keeps going.
func (r *Runner) evaluateTask(ctx context.Context, cp Checkpoint, task Task) error {
	stepCtx, cancel := context.WithTimeout(ctx, r.config.StepTimeout)
	defer cancel()

	judge, err := r.config.Judges.Get(stepCtx, task.JudgeID)
	if err != nil {
		return fmt.Errorf("failed to load judge: %w", err)
	}
	sub, err := r.config.Submissions.Get(stepCtx, task.SubmissionID)
	if err != nil {
		return fmt.Errorf("failed to load submission: %w", err)
	}
	qa, ok := sub.Questions[task.QuestionID]
	if !ok {
		return fmt.Errorf("submission %s has no question %s", task.SubmissionID, task.QuestionID)
	}

	started := time.Now()
	result, err := r.config.Evaluator.Evaluate(stepCtx, evaluator.Request{
		Judge:    judge,
		Question: qa,
		Include:  *r.config.Include,
	})
	r.config.Collector.ObserveEvaluatorDuration(task.JudgeID, time.Since(started).Seconds())
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	// Every recording attempt gets a fresh id. A crash between recording
	// and checkpointing means the retried task records a second evaluation
	// rather than overwriting the first.
	_, err = r.config.Evaluations.Record(stepCtx, evalrun.Evaluation{
		ID:           uuid.NewString(),
		RunID:        cp.RunID,
		SubmissionID: task.SubmissionID,
		QueueID:      cp.QueueID,
		QuestionID:   task.QuestionID,
		JudgeID:      task.JudgeID,
		Verdict:      result.Verdict,
		Reasoning:    result.Reasoning,
		EvaluatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to record evaluation: %w", err)
	}

	r.config.Collector.IncVerdicts(cp.QueueID, string(result.Verdict))
	return nil
}

func (r *Runner) finish(ctx context.Context, cp Checkpoint) error {
	run, err := r.config.Runs.Get(ctx, cp.RunID)
	if err != nil {
		return fmt.Errorf("failed to load run %s: %w", cp.RunID, err)
	}

	r.config.Collector.IncRunsFinished(cp.QueueID, string(run.Status))
	r.logInfo(ctx, "run finished", "runId", cp.RunID, "status", string(run.Status),
		"completed", run.CompletedCount, "failed", run.FailedCount)

	cp.Phase = PhaseDone
	cp.PendingTasks = nil
	if err := r.config.Checkpoints.Save(ctx, cp); err != nil {
		return fmt.Errorf("failed to checkpoint finish: %w", err)
	}
	return r.config.Checkpoints.Delete(ctx, cp.RunID)
}

func (r *Runner) logInfo(ctx context.Context, msg string, kv ...any) {
	if r.config.Logger != nil {
		r.config.Logger.Info(ctx, msg, kv...)
	}
}

func (r *Runner) logWarn(ctx context.Context, msg string, kv ...any) {
	if r.config.Logger != nil {
		r.config.Logger.Warn(ctx, msg, kv...)
	}
}
