package migrations

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

var identifierRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// validateIdentifier ensures an identifier contains only safe characters for SQL.
// Returns an error if the identifier contains characters that could be used for SQL injection.
func validateIdentifier(name, fieldName string) error {
	if name == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("%s must start with a letter and contain only letters, numbers, and underscores (got: %s)", fieldName, name)
	}
	return nil
}

// validateConfig validates all configuration values to prevent SQL injection.
func validateConfig(config *Config) error {
	if err := validateIdentifier(config.SchemaName, "SchemaName"); err != nil {
		return err
	}
	if err := validateIdentifier(config.EventLogTable, "EventLogTable"); err != nil {
		return err
	}
	if err := validateIdentifier(config.CheckpointsTable, "CheckpointsTable"); err != nil {
		return err
	}
	return nil
}

// Config configures migration generation for the durable core tables.
type Config struct {
	// OutputFolder is the directory where the migration file will be written
	OutputFolder string

	// OutputFilename is the name of the migration file
	OutputFilename string

	// SchemaName is the database schema name (PostgreSQL) or database name (MySQL)
	// For SQLite, table name prefixes are used instead of schemas (e.g., evalrun_table_name)
	SchemaName string

	// EventLogTable is the name of the append-only event log table
	EventLogTable string

	// CheckpointsTable is the name of the run checkpoint table
	CheckpointsTable string
}

// DefaultConfig returns the default configuration for evalrun migrations.
func DefaultConfig() Config {
	timestamp := time.Now().Format("20060102150405")
	return Config{
		OutputFolder:     "migrations",
		OutputFilename:   fmt.Sprintf("%s_init_evalrun_core.sql", timestamp),
		SchemaName:       "evalrun",
		EventLogTable:    "event_log",
		CheckpointsTable: "run_checkpoints",
	}
}

// GeneratePostgres generates a PostgreSQL migration file.
func GeneratePostgres(config *Config) error {
	// Validate configuration to prevent SQL injection
	if err := validateConfig(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Ensure output folder exists
	if err := os.MkdirAll(config.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	sql := generatePostgresSQL(config)

	outputPath := filepath.Join(config.OutputFolder, config.OutputFilename)
	if err := os.WriteFile(outputPath, []byte(sql), 0o600); err != nil {
		return fmt.Errorf("failed to write migration file: %w", err)
	}

	return nil
}

func generatePostgresSQL(config *Config) string {
	return fmt.Sprintf(`-- Evalrun Durable Core Migration
-- Generated: %s
-- Database: PostgreSQL

-- Create schema for evalrun tables
CREATE SCHEMA IF NOT EXISTS %s;

-- Event log is the append-only source of truth for every entity
-- Entity state is a fold of its events; nothing here is ever updated or deleted
-- The (entity_type, entity_id, seq) uniqueness enforces optimistic concurrency
CREATE TABLE IF NOT EXISTS %s.%s (
    global_seq BIGSERIAL PRIMARY KEY,
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    seq INT NOT NULL,
    event_type TEXT NOT NULL,
    data JSONB NOT NULL,
    recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    UNIQUE (entity_type, entity_id, seq)
);

-- Index for replaying a single entity's log
CREATE INDEX IF NOT EXISTS idx_%s_entity
    ON %s.%s (entity_type, entity_id, seq);

-- Run checkpoints track in-flight evaluation runs
-- One row per active run; rows are removed once the run is done
-- The pending task list shrinks as tasks are processed
CREATE TABLE IF NOT EXISTS %s.%s (
    run_id TEXT PRIMARY KEY,
    queue_id TEXT NOT NULL,
    phase TEXT NOT NULL CHECK (phase IN ('PLANNING', 'PROCESSING', 'DONE')),
    pending_tasks JSONB NOT NULL,
    planned_count INT NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- Index for finding stale runs by age
CREATE INDEX IF NOT EXISTS idx_%s_updated
    ON %s.%s (updated_at DESC);
`,
		time.Now().Format(time.RFC3339),
		config.SchemaName,
		config.SchemaName, config.EventLogTable,
		config.EventLogTable, config.SchemaName, config.EventLogTable,
		config.SchemaName, config.CheckpointsTable,
		config.CheckpointsTable, config.SchemaName, config.CheckpointsTable,
	)
}

// GenerateMySQL generates a MySQL/MariaDB migration file.
func GenerateMySQL(config *Config) error {
	// Validate configuration to prevent SQL injection
	if err := validateConfig(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Ensure output folder exists
	if err := os.MkdirAll(config.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	sql := generateMySQLSQL(config)

	outputPath := filepath.Join(config.OutputFolder, config.OutputFilename)
	if err := os.WriteFile(outputPath, []byte(sql), 0o600); err != nil {
		return fmt.Errorf("failed to write migration file: %w", err)
	}

	return nil
}

func generateMySQLSQL(config *Config) string {
	return fmt.Sprintf(`-- Evalrun Durable Core Migration
-- Generated: %s
-- Database: MySQL/MariaDB

-- Create database for evalrun if it doesn't exist
-- In MySQL, we use a separate database instead of schema
CREATE DATABASE IF NOT EXISTS %s
    DEFAULT CHARACTER SET utf8mb4
    DEFAULT COLLATE utf8mb4_unicode_ci;

-- Switch to evalrun database
USE %s;

-- Event log is the append-only source of truth for every entity
-- Entity state is a fold of its events; nothing here is ever updated or deleted
-- The (entity_type, entity_id, seq) uniqueness enforces optimistic concurrency
CREATE TABLE IF NOT EXISTS %s (
    global_seq BIGINT AUTO_INCREMENT PRIMARY KEY,
    entity_type VARCHAR(255) NOT NULL,
    entity_id VARCHAR(255) NOT NULL,
    seq INT NOT NULL,
    event_type VARCHAR(255) NOT NULL,
    data JSON NOT NULL,
    recorded_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),

    UNIQUE KEY uq_%s_entity_seq (entity_type, entity_id, seq)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;

-- Index for replaying a single entity's log
CREATE INDEX idx_%s_entity
    ON %s (entity_type, entity_id, seq);

-- Run checkpoints track in-flight evaluation runs
-- One row per active run; rows are removed once the run is done
-- The pending task list shrinks as tasks are processed
CREATE TABLE IF NOT EXISTS %s (
    run_id VARCHAR(255) PRIMARY KEY,
    queue_id VARCHAR(255) NOT NULL,
    phase ENUM('PLANNING', 'PROCESSING', 'DONE') NOT NULL,
    pending_tasks JSON NOT NULL,
    planned_count INT NOT NULL DEFAULT 0,
    updated_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;

-- Index for finding stale runs by age
CREATE INDEX idx_%s_updated
    ON %s (updated_at DESC);
`,
		time.Now().Format(time.RFC3339),
		config.SchemaName,
		config.SchemaName,
		config.EventLogTable,
		config.EventLogTable,
		config.EventLogTable, config.EventLogTable,
		config.CheckpointsTable,
		config.CheckpointsTable, config.CheckpointsTable,
	)
}

// GenerateSQLite generates a SQLite migration file.
func GenerateSQLite(config *Config) error {
	// Validate configuration to prevent SQL injection
	if err := validateConfig(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Ensure output folder exists
	if err := os.MkdirAll(config.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	sql := generateSQLiteSQL(config)

	outputPath := filepath.Join(config.OutputFolder, config.OutputFilename)
	if err := os.WriteFile(outputPath, []byte(sql), 0o600); err != nil {
		return fmt.Errorf("failed to write migration file: %w", err)
	}

	return nil
}

func generateSQLiteSQL(config *Config) string {
	// SQLite doesn't support schemas, so we use table name prefixes instead
	eventLogTable := config.SchemaName + "_" + config.EventLogTable
	checkpointsTable := config.SchemaName + "_" + config.CheckpointsTable

	return fmt.Sprintf(`-- Evalrun Durable Core Migration
-- Generated: %s
-- Database: SQLite

-- Event log is the append-only source of truth for every entity
-- Entity state is a fold of its events; nothing here is ever updated or deleted
-- The (entity_type, entity_id, seq) uniqueness enforces optimistic concurrency
CREATE TABLE IF NOT EXISTS %s (
    global_seq INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    event_type TEXT NOT NULL,
    data TEXT NOT NULL,
    recorded_at TEXT NOT NULL DEFAULT (datetime('now')),

    UNIQUE (entity_type, entity_id, seq)
);

-- Index for replaying a single entity's log
CREATE INDEX IF NOT EXISTS idx_%s_entity
    ON %s (entity_type, entity_id, seq);

-- Run checkpoints track in-flight evaluation runs
-- One row per active run; rows are removed once the run is done
-- The pending task list shrinks as tasks are processed
CREATE TABLE IF NOT EXISTS %s (
    run_id TEXT PRIMARY KEY,
    queue_id TEXT NOT NULL,
    phase TEXT NOT NULL CHECK (phase IN ('PLANNING', 'PROCESSING', 'DONE')),
    pending_tasks TEXT NOT NULL,
    planned_count INTEGER NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Index for finding stale runs by age
CREATE INDEX IF NOT EXISTS idx_%s_updated
    ON %s (updated_at DESC);
`,
		time.Now().Format(time.RFC3339),
		eventLogTable,
		eventLogTable, eventLogTable,
		checkpointsTable,
		checkpointsTable, checkpointsTable,
	)
}
