// Package memory provides an in-memory view store, suitable for tests and
// single-process deployments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/getpup/evalrun"
	"github.com/getpup/evalrun/views"
)

// Store is an in-memory implementation of views.Store.
// Safe for concurrent use.
type Store struct {
	mu             sync.RWMutex
	judges         map[string]views.JudgeRow
	submissions    map[string]views.SubmissionRow
	questionTexts  map[string]string              // queueId|questionId -> text, imported questions only
	questionJudges map[string]map[string]struct{} // queueId|questionId -> judge set
	runs           map[string]views.RunRow
	evaluations    map[string]views.EvaluationRow
}

// New creates an empty in-memory view store.
func New() *Store {
	return &Store{
		judges:         make(map[string]views.JudgeRow),
		submissions:    make(map[string]views.SubmissionRow),
		questionTexts:  make(map[string]string),
		questionJudges: make(map[string]map[string]struct{}),
		runs:           make(map[string]views.RunRow),
		evaluations:    make(map[string]views.EvaluationRow),
	}
}

func (s *Store) UpsertJudge(ctx context.Context, row views.JudgeRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.judges[row.JudgeID] = row
	return nil
}

func (s *Store) DeleteJudge(ctx context.Context, judgeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.judges, judgeID)
	return nil
}

func (s *Store) UpsertSubmission(ctx context.Context, row views.SubmissionRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions[row.SubmissionID] = row
	return nil
}

func (s *Store) UpsertQuestion(ctx context.Context, queueID, questionID, questionText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questionTexts[evalrun.AssignmentID(queueID, questionID)] = questionText
	return nil
}

func (s *Store) SetQuestionJudges(ctx context.Context, queueID, questionID string, judgeIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[string]struct{}, len(judgeIDs))
	for _, id := range judgeIDs {
		set[id] = struct{}{}
	}
	s.questionJudges[evalrun.AssignmentID(queueID, questionID)] = set
	return nil
}

func (s *Store) AddQuestionJudge(ctx context.Context, queueID, questionID, judgeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := evalrun.AssignmentID(queueID, questionID)
	set, ok := s.questionJudges[key]
	if !ok {
		set = make(map[string]struct{})
		s.questionJudges[key] = set
	}
	set[judgeID] = struct{}{}
	return nil
}

func (s *Store) RemoveQuestionJudge(ctx context.Context, queueID, questionID, judgeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.questionJudges[evalrun.AssignmentID(queueID, questionID)], judgeID)
	return nil
}

func (s *Store) UpsertRun(ctx context.Context, row views.RunRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[row.RunID] = row
	return nil
}

func (s *Store) UpsertEvaluation(ctx context.Context, row views.EvaluationRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evaluations[row.EvaluationID] = row
	return nil
}

func (s *Store) Judges(ctx context.Context) ([]views.JudgeRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := make([]views.JudgeRow, 0, len(s.judges))
	for _, row := range s.judges {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].JudgeID < rows[j].JudgeID })
	return rows, nil
}

func (s *Store) ActiveJudges(ctx context.Context) ([]views.JudgeRow, error) {
	all, err := s.Judges(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]views.JudgeRow, 0, len(all))
	for _, row := range all {
		if row.Active {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (s *Store) Queues(ctx context.Context) ([]views.QueueRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byQueue := make(map[string]*views.QueueRow)
	for _, sub := range s.submissions {
		row, ok := byQueue[sub.QueueID]
		if !ok {
			row = &views.QueueRow{QueueID: sub.QueueID}
			byQueue[sub.QueueID] = row
		}
		row.SubmissionCount++
	}
	for key := range s.questionTexts {
		queueID, _, err := evalrun.SplitAssignmentID(key)
		if err != nil {
			return nil, err
		}
		if row, ok := byQueue[queueID]; ok {
			row.QuestionCount++
		}
	}

	rows := make([]views.QueueRow, 0, len(byQueue))
	for _, row := range byQueue {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].QueueID < rows[j].QueueID })
	return rows, nil
}

func (s *Store) QuestionsByQueue(ctx context.Context, queueID string) ([]views.QuestionRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []views.QuestionRow
	for key, text := range s.questionTexts {
		qID, questionID, err := evalrun.SplitAssignmentID(key)
		if err != nil {
			return nil, err
		}
		if qID != queueID {
			continue
		}
		judgeIDs := make([]string, 0, len(s.questionJudges[key]))
		for id := range s.questionJudges[key] {
			judgeIDs = append(judgeIDs, id)
		}
		sort.Strings(judgeIDs)
		rows = append(rows, views.QuestionRow{
			QueueID:      queueID,
			QuestionID:   questionID,
			QuestionText: text,
			JudgeIDs:     judgeIDs,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].QuestionID < rows[j].QuestionID })
	return rows, nil
}

func (s *Store) SubmissionsByQueue(ctx context.Context, queueID string) ([]views.SubmissionRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []views.SubmissionRow
	for _, row := range s.submissions {
		if row.QueueID == queueID {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].SubmissionID < rows[j].SubmissionID })
	return rows, nil
}

func (s *Store) Runs(ctx context.Context, queueID string) ([]views.RunRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []views.RunRow
	for _, row := range s.runs {
		if queueID == "" || row.QueueID == queueID {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].StartedAt.Equal(rows[j].StartedAt) {
			return rows[i].StartedAt.Before(rows[j].StartedAt)
		}
		return rows[i].RunID < rows[j].RunID
	})
	return rows, nil
}

func (s *Store) Run(ctx context.Context, runID string) (views.RunRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.runs[runID]
	if !ok {
		return views.RunRow{}, fmt.Errorf("run %s: %w", runID, evalrun.ErrNotFound)
	}
	return row, nil
}

func (s *Store) Evaluations(ctx context.Context, filter views.EvaluationFilter) ([]views.EvaluationRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []views.EvaluationRow
	for _, row := range s.evaluations {
		if filter.Matches(row) {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].EvaluatedAt.Equal(rows[j].EvaluatedAt) {
			return rows[i].EvaluatedAt.Before(rows[j].EvaluatedAt)
		}
		return rows[i].EvaluationID < rows[j].EvaluationID
	})
	return rows, nil
}

func (s *Store) SummarizeVerdicts(ctx context.Context, filter views.EvaluationFilter) (map[evalrun.Verdict]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := make(map[evalrun.Verdict]int)
	for _, row := range s.evaluations {
		if filter.Matches(row) {
			summary[row.Verdict]++
		}
	}
	return summary, nil
}
