// Package storage persists execution telemetry.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/dshills/cmdkit/pkg/domain/telemetry"
	"github.com/dshills/cmdkit/pkg/domain/types"
)

// SQLiteTelemetryRepository implements telemetry.Repository using SQLite storage.
type SQLiteTelemetryRepository struct {
	db *sql.DB
}

// NewSQLiteTelemetryRepository opens (creating if needed) the database at
// dbPath and brings its schema up to date.
func NewSQLiteTelemetryRepository(dbPath string) (*SQLiteTelemetryRepository, error) {
	// Create directory if it doesn't exist
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open database connection
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(1) // SQLite works best with single connection
	db.SetMaxIdleConns(1)

	// Initialize database schema
	if err := InitializeDatabase(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &SQLiteTelemetryRepository{db: db}, nil
}

// Close closes the database connection.
func (r *SQLiteTelemetryRepository) Close() error {
	return r.db.Close()
}

// Save persists a record, replacing an existing one with the same ID.
func (r *SQLiteTelemetryRepository) Save(t *telemetry.Telemetry) error {
	if t == nil {
		return fmt.Errorf("cannot save nil telemetry")
	}
	if t.ID.IsZero() {
		return fmt.Errorf("telemetry ID cannot be empty")
	}

	machine, err := json.Marshal(t.Machine)
	if err != nil {
		return fmt.Errorf("failed to encode machine: %w", err)
	}

	var arguments sql.NullString
	if len(t.Arguments) > 0 {
		data, err := json.Marshal(t.Arguments)
		if err != nil {
			// Arguments that do not encode are kept as their Go rendering
			data, _ = json.Marshal(fmt.Sprintf("%v", t.Arguments))
		}
		arguments = sql.NullString{String: string(data), Valid: true}
	}

	var completedAt sql.NullInt64
	if !t.CompletedAt.IsZero() {
		completedAt = sql.NullInt64{Int64: t.CompletedAt.UnixNano(), Valid: true}
	}

	query := `
		INSERT INTO telemetry (
			id, command_id, creator, module, source, host, machine, arguments,
			status, started_at, completed_at, execution_time, trace, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			completed_at = excluded.completed_at,
			execution_time = excluded.execution_time,
			trace = excluded.trace,
			error = excluded.error
	`

	_, err = r.db.Exec(query,
		t.ID.String(),
		string(t.CommandID),
		t.Creator,
		t.Module,
		t.Source,
		t.Host,
		string(machine),
		arguments,
		string(t.Status),
		t.StartedAt.UnixNano(),
		completedAt,
		int64(t.ExecutionTime),
		nullString(t.Trace),
		nullString(t.Error),
	)
	if err != nil {
		return fmt.Errorf("failed to save telemetry: %w", err)
	}
	return nil
}

const selectColumns = `
	SELECT id, command_id, creator, module, source, host, machine, arguments,
	       status, started_at, completed_at, execution_time, trace, error
	FROM telemetry`

// Load retrieves a record by its ID.
func (r *SQLiteTelemetryRepository) Load(id types.ExecutionID) (*telemetry.Telemetry, error) {
	if id.IsZero() {
		return nil, fmt.Errorf("execution ID cannot be empty")
	}

	t, err := scanTelemetry(r.db.QueryRow(selectColumns+" WHERE id = ?", id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", telemetry.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load telemetry: %w", err)
	}
	return t, nil
}

// List returns records matching opts, most recent first.
func (r *SQLiteTelemetryRepository) List(opts telemetry.ListOptions) ([]*telemetry.Telemetry, error) {
	var where []string
	var args []any

	if opts.CommandID != "" {
		where = append(where, "command_id = ?")
		args = append(args, string(opts.CommandID))
	}
	if opts.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(opts.Status))
	}
	if !opts.StartedAfter.IsZero() {
		where = append(where, "started_at > ?")
		args = append(args, opts.StartedAfter.UnixNano())
	}

	query := selectColumns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC"

	if opts.Limit > 0 || opts.Offset > 0 {
		limit := opts.Limit
		if limit <= 0 {
			limit = -1 // SQLite: no limit
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, opts.Offset)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query telemetry: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]*telemetry.Telemetry, 0)
	for rows.Next() {
		t, err := scanTelemetry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan telemetry: %w", err)
		}
		records = append(records, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating telemetry: %w", err)
	}

	return records, nil
}

// Delete removes a record.
func (r *SQLiteTelemetryRepository) Delete(id types.ExecutionID) error {
	if id.IsZero() {
		return fmt.Errorf("execution ID cannot be empty")
	}

	result, err := r.db.Exec("DELETE FROM telemetry WHERE id = ?", id.String())
	if err != nil {
		return fmt.Errorf("failed to delete telemetry: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deletion: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", telemetry.ErrNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTelemetry(row rowScanner) (*telemetry.Telemetry, error) {
	var t telemetry.Telemetry
	var id, commandID, status string
	var machine, arguments, trace, errText sql.NullString
	var startedAt, executionTime int64
	var completedAt sql.NullInt64

	err := row.Scan(
		&id,
		&commandID,
		&t.Creator,
		&t.Module,
		&t.Source,
		&t.Host,
		&machine,
		&arguments,
		&status,
		&startedAt,
		&completedAt,
		&executionTime,
		&trace,
		&errText,
	)
	if err != nil {
		return nil, err
	}

	t.ID = types.ExecutionID(id)
	t.CommandID = types.CommandID(commandID)
	t.Status = telemetry.Status(status)
	t.StartedAt = time.Unix(0, startedAt)
	t.ExecutionTime = time.Duration(executionTime)
	t.Trace = trace.String
	t.Error = errText.String

	// Deserialize optional fields
	if completedAt.Valid {
		t.CompletedAt = time.Unix(0, completedAt.Int64)
	}
	if machine.Valid {
		if err := json.Unmarshal([]byte(machine.String), &t.Machine); err != nil {
			return nil, fmt.Errorf("failed to decode machine: %w", err)
		}
	}
	if arguments.Valid {
		var args map[string]any
		if err := json.Unmarshal([]byte(arguments.String), &args); err == nil {
			t.Arguments = args
		}
	}

	return &t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ telemetry.Repository = (*SQLiteTelemetryRepository)(nil)
