package runner

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLCheckpointStore is a PostgreSQL-backed CheckpointStore. The pending task
// list is stored as a JSON document alongside the run's phase, so a checkpoint
// write is a single upsert.
type SQLCheckpointStore struct {
	db    *sql.DB
	table string
}

// SQLCheckpointConfig configures a SQLCheckpointStore.
type SQLCheckpointConfig struct {
	// DB is the database connection (required).
	DB *sql.DB

	// Table is the checkpoint table name (default: "run_checkpoints").
	Table string
}

// NewSQLCheckpointStore creates a SQLCheckpointStore with the given
// configuration. Applies the default table name if unset.
func NewSQLCheckpointStore(config SQLCheckpointConfig) (*SQLCheckpointStore, error) {
	if config.DB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if config.Table == "" {
		config.Table = "run_checkpoints"
	}
	return &SQLCheckpointStore{db: config.DB, table: config.Table}, nil
}

func (s *SQLCheckpointStore) Save(ctx context.Context, cp Checkpoint) error {
	tasks, err := json.Marshal(cp.PendingTasks)
	if err != nil {
		return fmt.Errorf("failed to marshal pending tasks: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (run_id, queue_id, phase, pending_tasks, planned_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id) DO UPDATE SET
			phase = EXCLUDED.phase,
			pending_tasks = EXCLUDED.pending_tasks,
			planned_count = EXCLUDED.planned_count,
			updated_at = EXCLUDED.updated_at
	`, s.table)

	_, err = s.db.ExecContext(ctx, query,
		cp.RunID, cp.QueueID, string(cp.Phase), tasks, cp.PlannedCount, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

func (s *SQLCheckpointStore) Load(ctx context.Context, runID string) (Checkpoint, bool, error) {
	query := fmt.Sprintf(`
		SELECT run_id, queue_id, phase, pending_tasks, planned_count, updated_at
		FROM %s WHERE run_id = $1
	`, s.table)

	cp, err := scanCheckpoint(s.db.QueryRowContext(ctx, query, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, err
	}
	return cp, true, nil
}

func (s *SQLCheckpointStore) Delete(ctx context.Context, runID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE run_id = $1`, s.table)
	if _, err := s.db.ExecContext(ctx, query, runID); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

func (s *SQLCheckpointStore) List(ctx context.Context) ([]Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT run_id, queue_id, phase, pending_tasks, planned_count, updated_at
		FROM %s ORDER BY run_id
	`, s.table)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var cps []Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		cps = append(cps, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate checkpoints: %w", err)
	}
	return cps, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row rowScanner) (Checkpoint, error) {
	var cp Checkpoint
	var phase string
	var tasks []byte

	err := row.Scan(&cp.RunID, &cp.QueueID, &phase, &tasks, &cp.PlannedCount, &cp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, err
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("failed to scan checkpoint: %w", err)
	}

	cp.Phase = Phase(phase)
	if err := json.Unmarshal(tasks, &cp.PendingTasks); err != nil {
		return Checkpoint{}, fmt.Errorf("failed to unmarshal pending tasks: %w", err)
	}
	return cp, nil
}

// MigrationUp returns the SQL to create the checkpoint table.
func MigrationUp(table string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id TEXT PRIMARY KEY,
	queue_id TEXT NOT NULL,
	phase TEXT NOT NULL,
	pending_tasks JSONB NOT NULL,
	planned_count INTEGER NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`, table)
}

// MigrationDown returns the SQL to drop the checkpoint table.
func MigrationDown(table string) string {
	return fmt.Sprintf(`DROP TABLE IF EXISTS %s;`, table)
}
