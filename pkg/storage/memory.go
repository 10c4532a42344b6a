package storage

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dshills/cmdkit/pkg/domain/telemetry"
	"github.com/dshills/cmdkit/pkg/domain/types"
)

// MemoryRepository keeps telemetry in process memory. It is used when no
// database path is configured and in tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[types.ExecutionID]telemetry.Telemetry
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[types.ExecutionID]telemetry.Telemetry)}
}

// Save stores a copy of t.
func (m *MemoryRepository) Save(t *telemetry.Telemetry) error {
	if t == nil {
		return fmt.Errorf("cannot save nil telemetry")
	}
	if t.ID.IsZero() {
		return fmt.Errorf("telemetry ID cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[t.ID] = copyTelemetry(t)
	return nil
}

// Load returns a copy of the record with the given ID.
func (m *MemoryRepository) Load(id types.ExecutionID) (*telemetry.Telemetry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", telemetry.ErrNotFound, id)
	}
	out := copyTelemetry(&t)
	return &out, nil
}

// List returns records matching opts, most recent first.
func (m *MemoryRepository) List(opts telemetry.ListOptions) ([]*telemetry.Telemetry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]*telemetry.Telemetry, 0, len(m.records))
	for _, t := range m.records {
		if opts.CommandID != "" && t.CommandID != opts.CommandID {
			continue
		}
		if opts.Status != "" && t.Status != opts.Status {
			continue
		}
		if !opts.StartedAfter.IsZero() && !t.StartedAt.After(opts.StartedAfter) {
			continue
		}
		c := copyTelemetry(&t)
		records = append(records, &c)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(records) {
			return []*telemetry.Telemetry{}, nil
		}
		records = records[opts.Offset:]
	}
	if opts.Limit > 0 && len(records) > opts.Limit {
		records = records[:opts.Limit]
	}
	return records, nil
}

// Delete removes a record.
func (m *MemoryRepository) Delete(id types.ExecutionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[id]; !ok {
		return fmt.Errorf("%w: %s", telemetry.ErrNotFound, id)
	}
	delete(m.records, id)
	return nil
}

// Len returns the number of stored records.
func (m *MemoryRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func copyTelemetry(t *telemetry.Telemetry) telemetry.Telemetry {
	c := *t
	if t.Arguments != nil {
		c.Arguments = make(map[string]any, len(t.Arguments))
		for k, v := range t.Arguments {
			c.Arguments[k] = v
		}
	}
	return c
}

var _ telemetry.Repository = (*MemoryRepository)(nil)
