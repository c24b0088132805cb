package postgres

import "fmt"

// TableConfig specifies the table names used by the view store.
type TableConfig struct {
	JudgesTable         string
	SubmissionsTable    string
	QuestionsTable      string
	QuestionJudgesTable string
	RunsTable           string
	EvaluationsTable    string
}

// DefaultTableConfig returns the standard table names.
func DefaultTableConfig() TableConfig {
	return TableConfig{
		JudgesTable:         "view_judges",
		SubmissionsTable:    "view_submissions",
		QuestionsTable:      "view_questions",
		QuestionJudgesTable: "view_question_judges",
		RunsTable:           "view_runs",
		EvaluationsTable:    "view_evaluations",
	}
}

// MigrationUp returns the SQL to create the view tables.
func MigrationUp(config TableConfig) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	judge_id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	system_prompt TEXT NOT NULL,
	target_model TEXT NOT NULL,
	active BOOLEAN NOT NULL
);

CREATE TABLE IF NOT EXISTS %s (
	submission_id TEXT PRIMARY KEY,
	queue_id TEXT NOT NULL,
	question_count INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_%s_queue ON %s (queue_id);

CREATE TABLE IF NOT EXISTS %s (
	queue_id TEXT NOT NULL,
	question_id TEXT NOT NULL,
	question_text TEXT NOT NULL,
	PRIMARY KEY (queue_id, question_id)
);

CREATE TABLE IF NOT EXISTS %s (
	queue_id TEXT NOT NULL,
	question_id TEXT NOT NULL,
	judge_id TEXT NOT NULL,
	PRIMARY KEY (queue_id, question_id, judge_id)
);

CREATE TABLE IF NOT EXISTS %s (
	run_id TEXT PRIMARY KEY,
	queue_id TEXT NOT NULL,
	status TEXT NOT NULL,
	planned_count INTEGER NOT NULL,
	completed_count INTEGER NOT NULL,
	failed_count INTEGER NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_%s_queue ON %s (queue_id);

CREATE TABLE IF NOT EXISTS %s (
	evaluation_id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	submission_id TEXT NOT NULL,
	queue_id TEXT NOT NULL,
	question_id TEXT NOT NULL,
	judge_id TEXT NOT NULL,
	verdict TEXT NOT NULL,
	reasoning TEXT NOT NULL,
	evaluated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_%s_run ON %s (run_id);
CREATE INDEX IF NOT EXISTS idx_%s_queue ON %s (queue_id);
`,
		config.JudgesTable,
		config.SubmissionsTable,
		config.SubmissionsTable, config.SubmissionsTable,
		config.QuestionsTable,
		config.QuestionJudgesTable,
		config.RunsTable,
		config.RunsTable, config.RunsTable,
		config.EvaluationsTable,
		config.EvaluationsTable, config.EvaluationsTable,
		config.EvaluationsTable, config.EvaluationsTable,
	)
}

// MigrationDown returns the SQL to drop the view tables.
func MigrationDown(config TableConfig) string {
	return fmt.Sprintf(`
DROP TABLE IF EXISTS %s;
DROP TABLE IF EXISTS %s;
DROP TABLE IF EXISTS %s;
DROP TABLE IF EXISTS %s;
DROP TABLE IF EXISTS %s;
DROP TABLE IF EXISTS %s;
`,
		config.EvaluationsTable,
		config.RunsTable,
		config.QuestionJudgesTable,
		config.QuestionsTable,
		config.SubmissionsTable,
		config.JudgesTable,
	)
}
