// Package migrations provides SQL migration generation for the durable core
// of the evaluation service: the append-only event log and the run checkpoint
// table. It generates database schema migrations across PostgreSQL,
// MySQL/MariaDB, and SQLite databases.
package migrations
