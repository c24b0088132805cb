//go:build integration

package migrations_test

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/getpup/evalrun/pkg/migrations"
)

// NOTE: Integration tests use string interpolation for SQL queries with validated
// configuration values. This is acceptable in test code as all config values are
// controlled by the test and have been validated by the migrations package.
// Production code should always use parameterized queries.

func TestIntegrationPostgres(t *testing.T) {
	dbURL := os.Getenv("POSTGRES_URL")
	if dbURL == "" {
		t.Skip("POSTGRES_URL not set, skipping PostgreSQL integration test")
	}

	tmpDir := t.TempDir()
	config := migrations.Config{
		OutputFolder:     tmpDir,
		OutputFilename:   "postgres_integration.sql",
		SchemaName:       "evalrun_test",
		EventLogTable:    "event_log",
		CheckpointsTable: "run_checkpoints",
	}

	if err := migrations.GeneratePostgres(&config); err != nil {
		t.Fatalf("Failed to generate migration: %v", err)
	}

	migrationSQL, err := os.ReadFile(filepath.Join(tmpDir, config.OutputFilename))
	if err != nil {
		t.Fatalf("Failed to read migration file: %v", err)
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(string(migrationSQL)); err != nil {
		t.Fatalf("Failed to execute migration: %v", err)
	}

	var schemaExists bool
	err = db.QueryRow("SELECT EXISTS(SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)", config.SchemaName).Scan(&schemaExists)
	if err != nil {
		t.Fatalf("Failed to check schema existence: %v", err)
	}
	if !schemaExists {
		t.Errorf("Schema %s was not created", config.SchemaName)
	}

	for _, table := range []string{config.EventLogTable, config.CheckpointsTable} {
		var exists bool
		err = db.QueryRow(fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_schema = '%s' AND table_name = '%s')",
			config.SchemaName, table)).Scan(&exists)
		if err != nil {
			t.Fatalf("Failed to check %s table: %v", table, err)
		}
		if !exists {
			t.Errorf("%s table was not created", table)
		}
	}

	// Append an event and read back the assigned global sequence
	var globalSeq int64
	err = db.QueryRow(fmt.Sprintf("INSERT INTO %s.%s (entity_type, entity_id, seq, event_type, data) VALUES ($1, $2, $3, $4, $5) RETURNING global_seq",
		config.SchemaName, config.EventLogTable), "judges", "j1", 1, "judge-created", `{"judge":{"id":"j1"}}`).Scan(&globalSeq)
	if err != nil {
		t.Fatalf("Failed to insert into event log: %v", err)
	}
	if globalSeq == 0 {
		t.Error("global_seq was not assigned")
	}

	// The uniqueness constraint backs optimistic concurrency
	_, err = db.Exec(fmt.Sprintf("INSERT INTO %s.%s (entity_type, entity_id, seq, event_type, data) VALUES ($1, $2, $3, $4, $5)",
		config.SchemaName, config.EventLogTable), "judges", "j1", 1, "judge-created", `{}`)
	if err == nil {
		t.Error("Duplicate (entity_type, entity_id, seq) insert should fail")
	}

	_, err = db.Exec(fmt.Sprintf("INSERT INTO %s.%s (run_id, queue_id, phase, pending_tasks) VALUES ($1, $2, $3, $4)",
		config.SchemaName, config.CheckpointsTable), "run-1", "queue-1", "PLANNING", `[]`)
	if err != nil {
		t.Fatalf("Failed to insert into checkpoints: %v", err)
	}

	// Phase values outside the state machine are rejected
	_, err = db.Exec(fmt.Sprintf("INSERT INTO %s.%s (run_id, queue_id, phase, pending_tasks) VALUES ($1, $2, $3, $4)",
		config.SchemaName, config.CheckpointsTable), "run-2", "queue-1", "BOGUS", `[]`)
	if err == nil {
		t.Error("Insert with invalid phase should fail")
	}

	if _, err := db.Exec(fmt.Sprintf("DROP SCHEMA %s CASCADE", config.SchemaName)); err != nil {
		t.Logf("Warning: Failed to clean up schema: %v", err)
	}
}

func TestIntegrationMySQL(t *testing.T) {
	dbURL := os.Getenv("MYSQL_URL")
	if dbURL == "" {
		t.Skip("MYSQL_URL not set, skipping MySQL integration test")
	}

	tmpDir := t.TempDir()
	config := migrations.Config{
		OutputFolder:     tmpDir,
		OutputFilename:   "mysql_integration.sql",
		SchemaName:       "evalrun_test",
		EventLogTable:    "event_log",
		CheckpointsTable: "run_checkpoints",
	}

	if err := migrations.GenerateMySQL(&config); err != nil {
		t.Fatalf("Failed to generate migration: %v", err)
	}

	migrationSQL, err := os.ReadFile(filepath.Join(tmpDir, config.OutputFilename))
	if err != nil {
		t.Fatalf("Failed to read migration file: %v", err)
	}

	db, err := sql.Open("mysql", dbURL+"?multiStatements=true")
	if err != nil {
		t.Fatalf("Failed to connect to MySQL: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(string(migrationSQL)); err != nil {
		t.Fatalf("Failed to execute migration: %v", err)
	}

	var dbExists int
	err = db.QueryRow("SELECT COUNT(*) FROM information_schema.schemata WHERE schema_name = ?", config.SchemaName).Scan(&dbExists)
	if err != nil {
		t.Fatalf("Failed to check database existence: %v", err)
	}
	if dbExists == 0 {
		t.Errorf("Database %s was not created", config.SchemaName)
	}

	if _, err := db.Exec(fmt.Sprintf("USE %s", config.SchemaName)); err != nil {
		t.Fatalf("Failed to switch to test database: %v", err)
	}

	for _, table := range []string{config.EventLogTable, config.CheckpointsTable} {
		var exists int
		err = db.QueryRow("SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = ? AND table_name = ?",
			config.SchemaName, table).Scan(&exists)
		if err != nil {
			t.Fatalf("Failed to check %s table: %v", table, err)
		}
		if exists == 0 {
			t.Errorf("%s table was not created", table)
		}
	}

	_, err = db.Exec(fmt.Sprintf("INSERT INTO %s (entity_type, entity_id, seq, event_type, data) VALUES (?, ?, ?, ?, ?)",
		config.EventLogTable), "judges", "j1", 1, "judge-created", `{"judge":{"id":"j1"}}`)
	if err != nil {
		t.Fatalf("Failed to insert into event log: %v", err)
	}

	_, err = db.Exec(fmt.Sprintf("INSERT INTO %s (entity_type, entity_id, seq, event_type, data) VALUES (?, ?, ?, ?, ?)",
		config.EventLogTable), "judges", "j1", 1, "judge-created", `{}`)
	if err == nil {
		t.Error("Duplicate (entity_type, entity_id, seq) insert should fail")
	}

	_, err = db.Exec(fmt.Sprintf("INSERT INTO %s (run_id, queue_id, phase, pending_tasks) VALUES (?, ?, ?, ?)",
		config.CheckpointsTable), "run-1", "queue-1", "PLANNING", `[]`)
	if err != nil {
		t.Fatalf("Failed to insert into checkpoints: %v", err)
	}

	if _, err := db.Exec(fmt.Sprintf("DROP DATABASE IF EXISTS %s", config.SchemaName)); err != nil {
		t.Logf("Warning: Failed to clean up database: %v", err)
	}
}

func TestIntegrationSQLite(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	config := migrations.Config{
		OutputFolder:     tmpDir,
		OutputFilename:   "sqlite_integration.sql",
		SchemaName:       "evalrun",
		EventLogTable:    "event_log",
		CheckpointsTable: "run_checkpoints",
	}

	if err := migrations.GenerateSQLite(&config); err != nil {
		t.Fatalf("Failed to generate migration: %v", err)
	}

	migrationSQL, err := os.ReadFile(filepath.Join(tmpDir, config.OutputFilename))
	if err != nil {
		t.Fatalf("Failed to read migration file: %v", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("Failed to connect to SQLite: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(string(migrationSQL)); err != nil {
		t.Fatalf("Failed to execute migration: %v", err)
	}

	// SQLite uses table name prefixes instead of schemas
	eventLogTable := config.SchemaName + "_" + config.EventLogTable
	checkpointsTable := config.SchemaName + "_" + config.CheckpointsTable

	for _, table := range []string{eventLogTable, checkpointsTable} {
		var exists int
		err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&exists)
		if err != nil {
			t.Fatalf("Failed to check %s table: %v", table, err)
		}
		if exists == 0 {
			t.Errorf("%s table was not created", table)
		}
	}

	_, err = db.Exec(fmt.Sprintf("INSERT INTO %s (entity_type, entity_id, seq, event_type, data) VALUES (?, ?, ?, ?, ?)",
		eventLogTable), "judges", "j1", 1, "judge-created", `{"judge":{"id":"j1"}}`)
	if err != nil {
		t.Fatalf("Failed to insert into event log: %v", err)
	}

	_, err = db.Exec(fmt.Sprintf("INSERT INTO %s (entity_type, entity_id, seq, event_type, data) VALUES (?, ?, ?, ?, ?)",
		eventLogTable), "judges", "j1", 1, "judge-created", `{}`)
	if err == nil {
		t.Error("Duplicate (entity_type, entity_id, seq) insert should fail")
	}

	var globalSeq int64
	err = db.QueryRow(fmt.Sprintf("SELECT global_seq FROM %s WHERE entity_id = ?", eventLogTable), "j1").Scan(&globalSeq)
	if err != nil {
		t.Fatalf("Failed to read back event: %v", err)
	}
	if globalSeq == 0 {
		t.Error("global_seq was not assigned")
	}

	_, err = db.Exec(fmt.Sprintf("INSERT INTO %s (run_id, queue_id, phase, pending_tasks, updated_at) VALUES (?, ?, ?, ?, ?)",
		checkpointsTable), "run-1", "queue-1", "PROCESSING", `[{"submissionId":"s1","questionId":"q1","judgeId":"j1"}]`, "2026-01-01T00:00:00Z")
	if err != nil {
		t.Fatalf("Failed to insert into checkpoints: %v", err)
	}
}
