// Command migrate-gen generates SQL migration files for the evalrun durable
// core tables.
//
// Usage:
//
//	go run github.com/getpup/evalrun/cmd/migrate-gen -output migrations -filename init.sql
//
// Or with go generate:
//
//	//go:generate go run github.com/getpup/evalrun/cmd/migrate-gen -output migrations
//
// Generate migrations for different database adapters:
//
//	go run github.com/getpup/evalrun/cmd/migrate-gen -adapter postgres -output migrations
//	go run github.com/getpup/evalrun/cmd/migrate-gen -adapter mysql -output migrations
//	go run github.com/getpup/evalrun/cmd/migrate-gen -adapter sqlite -output migrations
//
// Customize table names:
//
//	go run github.com/getpup/evalrun/cmd/migrate-gen -schema evalrun -output migrations
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/getpup/evalrun/pkg/migrations"
)

func main() {
	var (
		adapter          = flag.String("adapter", "postgres", "Database adapter: postgres, mysql, or sqlite")
		outputFolder     = flag.String("output", "migrations", "Output folder for migration file")
		outputFilename   = flag.String("filename", "", "Output filename (default: timestamp-based)")
		schemaName       = flag.String("schema", "evalrun", "Schema name (PostgreSQL) or database name (MySQL)")
		eventLogTable    = flag.String("event-log-table", "event_log", "Name of the event log table")
		checkpointsTable = flag.String("checkpoints-table", "run_checkpoints", "Name of the run checkpoint table")
	)

	flag.Parse()

	config := migrations.DefaultConfig()
	config.OutputFolder = *outputFolder
	config.SchemaName = *schemaName
	config.EventLogTable = *eventLogTable
	config.CheckpointsTable = *checkpointsTable

	if *outputFilename != "" {
		config.OutputFilename = *outputFilename
	}

	var err error
	switch *adapter {
	case "postgres":
		err = migrations.GeneratePostgres(&config)
	case "mysql":
		err = migrations.GenerateMySQL(&config)
	case "sqlite":
		err = migrations.GenerateSQLite(&config)
	default:
		fmt.Fprintf(os.Stderr, "Error: unsupported adapter '%s'. Supported adapters are: postgres, mysql, sqlite\n", *adapter)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating migration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %s migration: %s/%s\n", *adapter, config.OutputFolder, config.OutputFilename)
}
