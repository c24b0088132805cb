package evalrun

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Verdict is the three-valued outcome of a judge's evaluation of one answer.
type Verdict string

const (
	// VerdictPass indicates the answer meets all criteria in the judge's rubric.
	VerdictPass Verdict = "PASS"

	// VerdictFail indicates the answer does not meet the criteria.
	VerdictFail Verdict = "FAIL"

	// VerdictInconclusive indicates the judge could not determine a clear verdict.
	VerdictInconclusive Verdict = "INCONCLUSIVE"
)

// ParseVerdict parses a verdict token case-insensitively, ignoring surrounding
// whitespace. Any token other than pass/fail/inconclusive returns
// ErrInvalidVerdict.
func ParseVerdict(s string) (Verdict, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(VerdictPass):
		return VerdictPass, nil
	case string(VerdictFail):
		return VerdictFail, nil
	case string(VerdictInconclusive):
		return VerdictInconclusive, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidVerdict, s)
	}
}

// RunStatus represents the lifecycle state of an evaluation run.
type RunStatus string

const (
	// RunStatusRunning indicates the run still has unprocessed tasks.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusCompleted indicates all tasks were processed and at least one succeeded.
	RunStatusCompleted RunStatus = "COMPLETED"

	// RunStatusFailed indicates all tasks were processed and every one of them failed.
	RunStatusFailed RunStatus = "FAILED"
)

// Judge is an AI judge definition: a rubric (system prompt) plus the model
// that should apply it. Inactive judges are excluded from run planning.
type Judge struct {
	ID           string `json:"judgeId"`
	Name         string `json:"name"`
	SystemPrompt string `json:"systemPrompt"`
	TargetModel  string `json:"targetModel"`
	Active       bool   `json:"active"`
}

// QuestionAnswer is one question and its answer within a submission.
type QuestionAnswer struct {
	QuestionID      string         `json:"questionId"`
	QuestionText    string         `json:"questionText"`
	AnswerChoice    string         `json:"answerChoice"`
	AnswerReasoning string         `json:"answerReasoning"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Submission is an uploaded set of question answers for one logical queue.
// Submissions are immutable once imported.
type Submission struct {
	ID        string                    `json:"submissionId"`
	QueueID   string                    `json:"queueId"`
	Questions map[string]QuestionAnswer `json:"questions"`
}

// JudgeAssignment maps the judges that should evaluate one question within a
// queue. JudgeIDs is a set, kept sorted so downstream enumeration is
// deterministic.
type JudgeAssignment struct {
	QueueID    string   `json:"queueId"`
	QuestionID string   `json:"questionId"`
	JudgeIDs   []string `json:"judgeIds"`
}

// HasJudge reports whether judgeID is part of the assignment.
func (a JudgeAssignment) HasJudge(judgeID string) bool {
	for _, id := range a.JudgeIDs {
		if id == judgeID {
			return true
		}
	}
	return false
}

// WithJudgeIDs returns a copy of the assignment with the judge set replaced.
// The input is deduplicated and sorted.
func (a JudgeAssignment) WithJudgeIDs(judgeIDs []string) JudgeAssignment {
	a.JudgeIDs = normalizeJudgeIDs(judgeIDs)
	return a
}

// WithJudgeAdded returns a copy of the assignment with judgeID added.
// Adding a judge that is already assigned is a no-op.
func (a JudgeAssignment) WithJudgeAdded(judgeID string) JudgeAssignment {
	if a.HasJudge(judgeID) {
		return a
	}
	ids := make([]string, 0, len(a.JudgeIDs)+1)
	ids = append(ids, a.JudgeIDs...)
	ids = append(ids, judgeID)
	a.JudgeIDs = normalizeJudgeIDs(ids)
	return a
}

// WithJudgeRemoved returns a copy of the assignment with judgeID removed.
// Removing a judge that is not assigned is a no-op.
func (a JudgeAssignment) WithJudgeRemoved(judgeID string) JudgeAssignment {
	ids := make([]string, 0, len(a.JudgeIDs))
	for _, id := range a.JudgeIDs {
		if id != judgeID {
			ids = append(ids, id)
		}
	}
	a.JudgeIDs = ids
	return a
}

func normalizeJudgeIDs(judgeIDs []string) []string {
	seen := make(map[string]struct{}, len(judgeIDs))
	ids := make([]string, 0, len(judgeIDs))
	for _, id := range judgeIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AssignmentID builds the composite entity id for a judge assignment.
func AssignmentID(queueID, questionID string) string {
	return queueID + "|" + questionID
}

// SplitAssignmentID splits a composite assignment id back into its
// (queueID, questionID) key. Returns an error if the id is malformed.
func SplitAssignmentID(id string) (queueID, questionID string, err error) {
	parts := strings.SplitN(id, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid assignment id %q: want queueId|questionId", id)
	}
	return parts[0], parts[1], nil
}

// Run tracks the progress of one evaluation run over a queue.
type Run struct {
	ID             string    `json:"runId"`
	QueueID        string    `json:"queueId"`
	Status         RunStatus `json:"status"`
	PlannedCount   int       `json:"plannedCount"`
	CompletedCount int       `json:"completedCount"`
	FailedCount    int       `json:"failedCount"`
	StartedAt      time.Time `json:"startedAt"`
	CompletedAt    time.Time `json:"completedAt,omitzero"`
}

// TotalProcessed returns the number of tasks accounted for so far.
func (r Run) TotalProcessed() int {
	return r.CompletedCount + r.FailedCount
}

// IsTerminal reports whether the run has reached COMPLETED or FAILED.
func (r Run) IsTerminal() bool {
	return r.Status == RunStatusCompleted || r.Status == RunStatusFailed
}

// Evaluation is one recorded judge verdict for a (submission, question, judge)
// task. Evaluations are write-once.
type Evaluation struct {
	ID           string    `json:"evaluationId"`
	RunID        string    `json:"runId"`
	SubmissionID string    `json:"submissionId"`
	QueueID      string    `json:"queueId"`
	QuestionID   string    `json:"questionId"`
	JudgeID      string    `json:"judgeId"`
	Verdict      Verdict   `json:"verdict"`
	Reasoning    string    `json:"reasoning"`
	EvaluatedAt  time.Time `json:"evaluatedAt"`
}
