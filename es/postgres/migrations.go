package postgres

import "fmt"

// TableConfig configures the table name used by the event store.
type TableConfig struct {
	// EventLogTable is the name of the append-only event log table.
	EventLogTable string
}

// DefaultTableConfig returns the default table configuration.
func DefaultTableConfig() TableConfig {
	return TableConfig{
		EventLogTable: "event_log",
	}
}

// MigrationUp returns the SQL to create the event log table.
// The unique (entity_type, entity_id, seq) constraint backs the optimistic
// append; global_seq orders events for subscription delivery.
func MigrationUp(config TableConfig) string {
	return fmt.Sprintf(`-- Create event log table
CREATE TABLE %s (
    global_seq BIGSERIAL PRIMARY KEY,
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    event_type TEXT NOT NULL,
    data JSONB NOT NULL,
    recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    UNIQUE (entity_type, entity_id, seq)
);

-- Index for replaying one entity's log
CREATE INDEX idx_%s_entity ON %s(entity_type, entity_id, seq);
`, config.EventLogTable, config.EventLogTable, config.EventLogTable)
}

// MigrationDown returns the SQL to drop the event log table.
func MigrationDown(config TableConfig) string {
	return fmt.Sprintf(`-- Drop event log table
DROP TABLE IF EXISTS %s;
`, config.EventLogTable)
}
