// Package postgres provides a PostgreSQL-backed event store.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/getpup/evalrun/es"
)

const pqUniqueViolation = "23505"

// isSequenceConflict reports whether err is the unique-constraint violation
// raised when a concurrent writer took the same (entity_type, entity_id, seq)
// slot between the head check and the insert.
func isSequenceConflict(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

// Store is a PostgreSQL implementation of es.Store.
// One table holds every entity's log; (entity_type, entity_id, seq) is unique,
// which is what turns a lost append race into es.ErrSequenceConflict instead
// of a corrupted log.
type Store struct {
	db            *sql.DB
	eventLogTable string
}

// New creates a new PostgreSQL store with the default table name.
func New(db *sql.DB) *Store {
	return NewWithConfig(db, DefaultTableConfig())
}

// NewWithConfig creates a new PostgreSQL store with a custom table name.
func NewWithConfig(db *sql.DB, config TableConfig) *Store {
	return &Store{
		db:            db,
		eventLogTable: config.EventLogTable,
	}
}

// Append appends events to the log of (entityType, entityID) in one
// transaction. Returns es.ErrSequenceConflict if expectedSeq does not match
// the log head.
func (s *Store) Append(ctx context.Context, entityType, entityID string, expectedSeq int, events []es.Event) ([]es.Envelope, error) {
	if len(events) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	headQuery := fmt.Sprintf(`
		SELECT COALESCE(MAX(seq), 0)
		FROM %s
		WHERE entity_type = $1 AND entity_id = $2
	`, s.eventLogTable)

	var head int
	if err := tx.QueryRowContext(ctx, headQuery, entityType, entityID).Scan(&head); err != nil {
		return nil, fmt.Errorf("failed to read log head: %w", err)
	}
	if head != expectedSeq {
		return nil, fmt.Errorf("append to %s/%s at seq %d, head is %d: %w",
			entityType, entityID, expectedSeq, head, es.ErrSequenceConflict)
	}

	insertQuery := fmt.Sprintf(`
		INSERT INTO %s (entity_type, entity_id, seq, event_type, data, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING global_seq
	`, s.eventLogTable)

	now := time.Now().UTC()
	appended := make([]es.Envelope, 0, len(events))
	for i, event := range events {
		data, err := json.Marshal(event.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s event: %w", event.Type, err)
		}

		env := es.Envelope{
			EntityType: entityType,
			EntityID:   entityID,
			Seq:        expectedSeq + i + 1,
			EventType:  event.Type,
			Data:       data,
			RecordedAt: now,
		}

		err = tx.QueryRowContext(ctx, insertQuery,
			entityType, entityID, env.Seq, event.Type, data, now,
		).Scan(&env.GlobalSeq)
		if isSequenceConflict(err) {
			return nil, fmt.Errorf("append to %s/%s at seq %d lost a concurrent write: %w",
				entityType, entityID, env.Seq, es.ErrSequenceConflict)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to append %s event: %w", event.Type, err)
		}

		appended = append(appended, env)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return appended, nil
}

// Load returns the full ordered log for (entityType, entityID).
func (s *Store) Load(ctx context.Context, entityType, entityID string) ([]es.Envelope, error) {
	query := fmt.Sprintf(`
		SELECT global_seq, entity_type, entity_id, seq, event_type, data, recorded_at
		FROM %s
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY seq
	`, s.eventLogTable)

	rows, err := s.db.QueryContext(ctx, query, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load event log: %w", err)
	}
	defer rows.Close()

	return scanEnvelopes(rows)
}

// ReadSince returns up to limit envelopes with GlobalSeq greater than
// afterGlobalSeq, in global order.
func (s *Store) ReadSince(ctx context.Context, afterGlobalSeq int64, limit int) ([]es.Envelope, error) {
	query := fmt.Sprintf(`
		SELECT global_seq, entity_type, entity_id, seq, event_type, data, recorded_at
		FROM %s
		WHERE global_seq > $1
		ORDER BY global_seq
		LIMIT $2
	`, s.eventLogTable)

	rows, err := s.db.QueryContext(ctx, query, afterGlobalSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	defer rows.Close()

	return scanEnvelopes(rows)
}

func scanEnvelopes(rows *sql.Rows) ([]es.Envelope, error) {
	var envs []es.Envelope
	for rows.Next() {
		var env es.Envelope
		err := rows.Scan(
			&env.GlobalSeq,
			&env.EntityType,
			&env.EntityID,
			&env.Seq,
			&env.EventType,
			&env.Data,
			&env.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		envs = append(envs, env)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return envs, nil
}
