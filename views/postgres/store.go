// Package postgres provides a PostgreSQL-backed view store.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/getpup/evalrun"
	"github.com/getpup/evalrun/views"
)

// Store is a PostgreSQL implementation of views.Store over database/sql.
// Upserts use ON CONFLICT, so redelivered events settle into the same rows.
type Store struct {
	db     *sql.DB
	config TableConfig
}

// New creates a Store using the default table names.
func New(db *sql.DB) *Store {
	return NewWithConfig(db, DefaultTableConfig())
}

// NewWithConfig creates a Store with custom table names.
func NewWithConfig(db *sql.DB, config TableConfig) *Store {
	return &Store{db: db, config: config}
}

func (s *Store) UpsertJudge(ctx context.Context, row views.JudgeRow) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (judge_id, name, system_prompt, target_model, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (judge_id) DO UPDATE SET
			name = EXCLUDED.name,
			system_prompt = EXCLUDED.system_prompt,
			target_model = EXCLUDED.target_model,
			active = EXCLUDED.active
	`, s.config.JudgesTable)

	_, err := s.db.ExecContext(ctx, query, row.JudgeID, row.Name, row.SystemPrompt, row.TargetModel, row.Active)
	if err != nil {
		return fmt.Errorf("failed to upsert judge: %w", err)
	}
	return nil
}

func (s *Store) DeleteJudge(ctx context.Context, judgeID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE judge_id = $1`, s.config.JudgesTable)
	if _, err := s.db.ExecContext(ctx, query, judgeID); err != nil {
		return fmt.Errorf("failed to delete judge: %w", err)
	}
	return nil
}

func (s *Store) UpsertSubmission(ctx context.Context, row views.SubmissionRow) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (submission_id, queue_id, question_count)
		VALUES ($1, $2, $3)
		ON CONFLICT (submission_id) DO UPDATE SET
			queue_id = EXCLUDED.queue_id,
			question_count = EXCLUDED.question_count
	`, s.config.SubmissionsTable)

	_, err := s.db.ExecContext(ctx, query, row.SubmissionID, row.QueueID, row.QuestionCount)
	if err != nil {
		return fmt.Errorf("failed to upsert submission: %w", err)
	}
	return nil
}

func (s *Store) UpsertQuestion(ctx context.Context, queueID, questionID, questionText string) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (queue_id, question_id, question_text)
		VALUES ($1, $2, $3)
		ON CONFLICT (queue_id, question_id) DO UPDATE SET
			question_text = EXCLUDED.question_text
	`, s.config.QuestionsTable)

	_, err := s.db.ExecContext(ctx, query, queueID, questionID, questionText)
	if err != nil {
		return fmt.Errorf("failed to upsert question: %w", err)
	}
	return nil
}

func (s *Store) SetQuestionJudges(ctx context.Context, queueID, questionID string, judgeIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	deleteQuery := fmt.Sprintf(`DELETE FROM %s WHERE queue_id = $1 AND question_id = $2`, s.config.QuestionJudgesTable)
	if _, err := tx.ExecContext(ctx, deleteQuery, queueID, questionID); err != nil {
		return fmt.Errorf("failed to clear question judges: %w", err)
	}

	insertQuery := fmt.Sprintf(`
		INSERT INTO %s (queue_id, question_id, judge_id)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, s.config.QuestionJudgesTable)
	for _, judgeID := range judgeIDs {
		if _, err := tx.ExecContext(ctx, insertQuery, queueID, questionID, judgeID); err != nil {
			return fmt.Errorf("failed to insert question judge: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) AddQuestionJudge(ctx context.Context, queueID, questionID, judgeID string) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (queue_id, question_id, judge_id)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, s.config.QuestionJudgesTable)

	if _, err := s.db.ExecContext(ctx, query, queueID, questionID, judgeID); err != nil {
		return fmt.Errorf("failed to add question judge: %w", err)
	}
	return nil
}

func (s *Store) RemoveQuestionJudge(ctx context.Context, queueID, questionID, judgeID string) error {
	query := fmt.Sprintf(`
		DELETE FROM %s WHERE queue_id = $1 AND question_id = $2 AND judge_id = $3
	`, s.config.QuestionJudgesTable)

	if _, err := s.db.ExecContext(ctx, query, queueID, questionID, judgeID); err != nil {
		return fmt.Errorf("failed to remove question judge: %w", err)
	}
	return nil
}

func (s *Store) UpsertRun(ctx context.Context, row views.RunRow) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (run_id, queue_id, status, planned_count, completed_count, failed_count, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id) DO UPDATE SET
			status = EXCLUDED.status,
			planned_count = EXCLUDED.planned_count,
			completed_count = EXCLUDED.completed_count,
			failed_count = EXCLUDED.failed_count,
			completed_at = EXCLUDED.completed_at
	`, s.config.RunsTable)

	completedAt := sql.NullTime{Time: row.CompletedAt, Valid: !row.CompletedAt.IsZero()}
	_, err := s.db.ExecContext(ctx, query,
		row.RunID, row.QueueID, string(row.Status),
		row.PlannedCount, row.CompletedCount, row.FailedCount,
		row.StartedAt, completedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert run: %w", err)
	}
	return nil
}

func (s *Store) UpsertEvaluation(ctx context.Context, row views.EvaluationRow) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (evaluation_id, run_id, submission_id, queue_id, question_id, judge_id, verdict, reasoning, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (evaluation_id) DO NOTHING
	`, s.config.EvaluationsTable)

	_, err := s.db.ExecContext(ctx, query,
		row.EvaluationID, row.RunID, row.SubmissionID, row.QueueID,
		row.QuestionID, row.JudgeID, string(row.Verdict), row.Reasoning, row.EvaluatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert evaluation: %w", err)
	}
	return nil
}

func (s *Store) Judges(ctx context.Context) ([]views.JudgeRow, error) {
	query := fmt.Sprintf(`
		SELECT judge_id, name, system_prompt, target_model, active
		FROM %s ORDER BY judge_id
	`, s.config.JudgesTable)
	return s.queryJudges(ctx, query)
}

func (s *Store) ActiveJudges(ctx context.Context) ([]views.JudgeRow, error) {
	query := fmt.Sprintf(`
		SELECT judge_id, name, system_prompt, target_model, active
		FROM %s WHERE active ORDER BY judge_id
	`, s.config.JudgesTable)
	return s.queryJudges(ctx, query)
}

func (s *Store) queryJudges(ctx context.Context, query string, args ...any) ([]views.JudgeRow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query judges: %w", err)
	}
	defer rows.Close()

	var result []views.JudgeRow
	for rows.Next() {
		var row views.JudgeRow
		if err := rows.Scan(&row.JudgeID, &row.Name, &row.SystemPrompt, &row.TargetModel, &row.Active); err != nil {
			return nil, fmt.Errorf("failed to scan judge row: %w", err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate judge rows: %w", err)
	}
	return result, nil
}

func (s *Store) Queues(ctx context.Context) ([]views.QueueRow, error) {
	query := fmt.Sprintf(`
		SELECT s.queue_id,
			COUNT(DISTINCT s.submission_id),
			COUNT(DISTINCT q.question_id)
		FROM %s s
		LEFT JOIN %s q ON q.queue_id = s.queue_id
		GROUP BY s.queue_id
		ORDER BY s.queue_id
	`, s.config.SubmissionsTable, s.config.QuestionsTable)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query queues: %w", err)
	}
	defer rows.Close()

	var result []views.QueueRow
	for rows.Next() {
		var row views.QueueRow
		if err := rows.Scan(&row.QueueID, &row.SubmissionCount, &row.QuestionCount); err != nil {
			return nil, fmt.Errorf("failed to scan queue row: %w", err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate queue rows: %w", err)
	}
	return result, nil
}

func (s *Store) QuestionsByQueue(ctx context.Context, queueID string) ([]views.QuestionRow, error) {
	query := fmt.Sprintf(`
		SELECT question_id, question_text
		FROM %s WHERE queue_id = $1 ORDER BY question_id
	`, s.config.QuestionsTable)

	rows, err := s.db.QueryContext(ctx, query, queueID)
	if err != nil {
		return nil, fmt.Errorf("failed to query questions: %w", err)
	}
	defer rows.Close()

	var result []views.QuestionRow
	for rows.Next() {
		row := views.QuestionRow{QueueID: queueID}
		if err := rows.Scan(&row.QuestionID, &row.QuestionText); err != nil {
			return nil, fmt.Errorf("failed to scan question row: %w", err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate question rows: %w", err)
	}

	for i := range result {
		judgeIDs, err := s.questionJudges(ctx, queueID, result[i].QuestionID)
		if err != nil {
			return nil, err
		}
		result[i].JudgeIDs = judgeIDs
	}
	return result, nil
}

func (s *Store) questionJudges(ctx context.Context, queueID, questionID string) ([]string, error) {
	query := fmt.Sprintf(`
		SELECT judge_id FROM %s
		WHERE queue_id = $1 AND question_id = $2 ORDER BY judge_id
	`, s.config.QuestionJudgesTable)

	rows, err := s.db.QueryContext(ctx, query, queueID, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query question judges: %w", err)
	}
	defer rows.Close()

	judgeIDs := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan question judge row: %w", err)
		}
		judgeIDs = append(judgeIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate question judge rows: %w", err)
	}
	return judgeIDs, nil
}

func (s *Store) SubmissionsByQueue(ctx context.Context, queueID string) ([]views.SubmissionRow, error) {
	query := fmt.Sprintf(`
		SELECT submission_id, queue_id, question_count
		FROM %s WHERE queue_id = $1 ORDER BY submission_id
	`, s.config.SubmissionsTable)

	rows, err := s.db.QueryContext(ctx, query, queueID)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()

	var result []views.SubmissionRow
	for rows.Next() {
		var row views.SubmissionRow
		if err := rows.Scan(&row.SubmissionID, &row.QueueID, &row.QuestionCount); err != nil {
			return nil, fmt.Errorf("failed to scan submission row: %w", err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate submission rows: %w", err)
	}
	return result, nil
}

func (s *Store) Runs(ctx context.Context, queueID string) ([]views.RunRow, error) {
	query := fmt.Sprintf(`
		SELECT run_id, queue_id, status, planned_count, completed_count, failed_count, started_at, completed_at
		FROM %s
		WHERE ($1 = '' OR queue_id = $1)
		ORDER BY started_at, run_id
	`, s.config.RunsTable)

	rows, err := s.db.QueryContext(ctx, query, queueID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var result []views.RunRow
	for rows.Next() {
		row, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate run rows: %w", err)
	}
	return result, nil
}

func (s *Store) Run(ctx context.Context, runID string) (views.RunRow, error) {
	query := fmt.Sprintf(`
		SELECT run_id, queue_id, status, planned_count, completed_count, failed_count, started_at, completed_at
		FROM %s WHERE run_id = $1
	`, s.config.RunsTable)

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return views.RunRow{}, fmt.Errorf("failed to query run: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return views.RunRow{}, fmt.Errorf("failed to query run: %w", err)
		}
		return views.RunRow{}, fmt.Errorf("run %s: %w", runID, evalrun.ErrNotFound)
	}
	return scanRun(rows)
}

func scanRun(rows *sql.Rows) (views.RunRow, error) {
	var row views.RunRow
	var status string
	var completedAt sql.NullTime
	err := rows.Scan(&row.RunID, &row.QueueID, &status,
		&row.PlannedCount, &row.CompletedCount, &row.FailedCount,
		&row.StartedAt, &completedAt)
	if err != nil {
		return views.RunRow{}, fmt.Errorf("failed to scan run row: %w", err)
	}
	row.Status = evalrun.RunStatus(status)
	if completedAt.Valid {
		row.CompletedAt = completedAt.Time
	}
	return row, nil
}

func (s *Store) Evaluations(ctx context.Context, filter views.EvaluationFilter) ([]views.EvaluationRow, error) {
	query := fmt.Sprintf(`
		SELECT evaluation_id, run_id, submission_id, queue_id, question_id, judge_id, verdict, reasoning, evaluated_at
		FROM %s
		WHERE ($1 = '' OR run_id = $1)
			AND ($2 = '' OR queue_id = $2)
			AND ($3 = '' OR submission_id = $3)
			AND ($4 = '' OR question_id = $4)
			AND ($5 = '' OR judge_id = $5)
			AND ($6 = '' OR verdict = $6)
		ORDER BY evaluated_at, evaluation_id
	`, s.config.EvaluationsTable)

	rows, err := s.db.QueryContext(ctx, query,
		filter.RunID, filter.QueueID, filter.SubmissionID,
		filter.QuestionID, filter.JudgeID, string(filter.Verdict))
	if err != nil {
		return nil, fmt.Errorf("failed to query evaluations: %w", err)
	}
	defer rows.Close()

	var result []views.EvaluationRow
	for rows.Next() {
		var row views.EvaluationRow
		var verdict string
		err := rows.Scan(&row.EvaluationID, &row.RunID, &row.SubmissionID, &row.QueueID,
			&row.QuestionID, &row.JudgeID, &verdict, &row.Reasoning, &row.EvaluatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan evaluation row: %w", err)
		}
		row.Verdict = evalrun.Verdict(verdict)
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate evaluation rows: %w", err)
	}
	return result, nil
}

func (s *Store) SummarizeVerdicts(ctx context.Context, filter views.EvaluationFilter) (map[evalrun.Verdict]int, error) {
	query := fmt.Sprintf(`
		SELECT verdict, COUNT(*)
		FROM %s
		WHERE ($1 = '' OR run_id = $1)
			AND ($2 = '' OR queue_id = $2)
			AND ($3 = '' OR submission_id = $3)
			AND ($4 = '' OR question_id = $4)
			AND ($5 = '' OR judge_id = $5)
			AND ($6 = '' OR verdict = $6)
		GROUP BY verdict
	`, s.config.EvaluationsTable)

	rows, err := s.db.QueryContext(ctx, query,
		filter.RunID, filter.QueueID, filter.SubmissionID,
		filter.QuestionID, filter.JudgeID, string(filter.Verdict))
	if err != nil {
		return nil, fmt.Errorf("failed to summarize verdicts: %w", err)
	}
	defer rows.Close()

	summary := make(map[evalrun.Verdict]int)
	for rows.Next() {
		var verdict string
		var count int
		if err := rows.Scan(&verdict, &count); err != nil {
			return nil, fmt.Errorf("failed to scan verdict summary row: %w", err)
		}
		summary[evalrun.Verdict(verdict)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate verdict summary rows: %w", err)
	}
	return summary, nil
}
