package telemetry

import (
	"errors"
	"time"

	"github.com/dshills/cmdkit/pkg/domain/types"
)

// ErrNotFound is returned by a Repository when no record has the requested ID.
var ErrNotFound = errors.New("telemetry record not found")

// ListOptions filters and pages a List call. Zero values disable a filter.
type ListOptions struct {
	CommandID    types.CommandID
	Status       Status
	Limit        int
	Offset       int
	StartedAfter time.Time
}

// Repository persists finalized telemetry records.
// Implementations will typically use SQLite for storage.
type Repository interface {
	// Save persists a record, replacing one with the same ID.
	Save(t *Telemetry) error

	// Load retrieves a record by its ID.
	// Returns ErrNotFound if no record exists.
	Load(id types.ExecutionID) (*Telemetry, error)

	// List returns records matching opts, most recent first.
	List(opts ListOptions) ([]*Telemetry, error)

	// Delete removes a record.
	Delete(id types.ExecutionID) error
}
