package storage

import (
	"database/sql"
	"fmt"
)

// MigrationVersion tracks the current database schema version.
const MigrationVersion = 2

// migration is one forward-only schema step.
type migration struct {
	version    int
	statements []string
}

var migrations = []migration{
	{
		version: 1,
		statements: []string{
			`CREATE TABLE telemetry (
				id TEXT PRIMARY KEY,
				command_id TEXT NOT NULL,
				creator TEXT NOT NULL DEFAULT '',
				module TEXT NOT NULL DEFAULT '',
				source TEXT NOT NULL DEFAULT '',
				host TEXT NOT NULL DEFAULT '',
				machine TEXT,
				arguments TEXT,
				status TEXT NOT NULL,
				started_at INTEGER NOT NULL,
				completed_at INTEGER,
				execution_time INTEGER NOT NULL DEFAULT 0,
				trace TEXT,
				error TEXT,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);`,
			// Primary indexes for filtering
			"CREATE INDEX idx_telemetry_command_id ON telemetry(command_id, started_at DESC);",
			"CREATE INDEX idx_telemetry_status ON telemetry(status, started_at DESC);",
			"CREATE INDEX idx_telemetry_started_at ON telemetry(started_at DESC);",
		},
	},
	{
		version: 2,
		statements: []string{
			// Composite index for combined command + status queries
			"CREATE INDEX idx_telemetry_command_status ON telemetry(command_id, status, started_at DESC);",
		},
	},
}

// InitializeDatabase creates or upgrades the telemetry schema.
// Applied versions are tracked in the migrations table.
func InitializeDatabase(db *sql.DB) error {
	// Create migrations table to track schema version
	migrationsTable := `
	CREATE TABLE IF NOT EXISTS migrations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		version INTEGER NOT NULL UNIQUE,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`

	if _, err := db.Exec(migrationsTable); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	currentVersion, err := SchemaVersion(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if err := applyMigration(db, m); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", m.version, err)
		}
	}

	return nil
}

// SchemaVersion returns the highest applied migration, 0 for a fresh database.
func SchemaVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to check migration version: %w", err)
	}
	return version, nil
}

func applyMigration(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range m.statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute %q: %w", stmt, err)
		}
	}

	if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (?)", m.version); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}
