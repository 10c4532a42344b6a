// Package registry discovers command definitions and indexes them by id.
//
// Definitions reach a Registry three ways: directly through RegisterCommand,
// from a dotted module reference resolved through a ModuleTable, or from
// files on disk read by a Loader (manifests and Go sources, see pkg/plugin).
// RegisterByEnv drives the latter two from a path-list environment variable.
package registry

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/dshills/cmdkit/pkg/command"
	"github.com/dshills/cmdkit/pkg/validation"
)

// ErrUnknownModule is returned when a dotted reference names no module.
var ErrUnknownModule = errors.New("unknown module")

// ErrNoLoader is returned when no loader handles a file's extension.
var ErrNoLoader = errors.New("no loader for file")

// Loader reads command definitions from a file.
type Loader interface {
	// Extensions lists the file extensions handled, with the leading dot.
	Extensions() []string
	// Load returns the definitions declared in the file at path.
	Load(path string) ([]command.Definition, error)
}

// Registry is the append-only index of command definitions. Entries are
// immutable once inserted; registering an id twice keeps the first entry.
//
// A Registry is safe for concurrent lookup. Registration is serialized
// internally but callers still own the order in which discovery runs.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]command.Definition
	visited map[string][]command.Definition // absolute file path -> loaded definitions
	loaders map[string]Loader               // extension -> loader
	modules *ModuleTable
	logger  *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLoader registers l for each of its extensions. Later loaders win for a
// shared extension.
func WithLoader(l Loader) Option {
	return func(r *Registry) {
		for _, ext := range l.Extensions() {
			r.loaders[strings.ToLower(ext)] = l
		}
	}
}

// WithModules resolves dotted references through t instead of DefaultModules.
func WithModules(t *ModuleTable) Option {
	return func(r *Registry) {
		r.modules = t
	}
}

// New creates an empty registry. A nil logger disables logging.
func New(logger *zap.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		entries: make(map[string]command.Definition),
		visited: make(map[string][]command.Definition),
		loaders: make(map[string]Loader),
		modules: DefaultModules,
		logger:  logger.Named("registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterCommand adds def. It returns def and true on success, or the zero
// Definition and false when def does not satisfy the command contract. If the
// id is already registered the existing entry is returned unchanged.
func (r *Registry) RegisterCommand(def command.Definition) (command.Definition, bool) {
	if !def.Valid() {
		r.logger.Debug("skipping invalid definition",
			zap.String("id", def.ID),
			zap.String("module", def.Module),
		)
		return command.Definition{}, false
	}
	if err := validation.ValidateCommandID(def.ID); err != nil {
		r.logger.Debug("skipping definition", zap.Error(err))
		return command.Definition{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[def.ID]; ok {
		return existing, true
	}
	r.entries[def.ID] = def
	r.logger.Debug("registered command",
		zap.String("id", def.ID),
		zap.String("creator", def.Creator),
		zap.String("module", def.Module),
	)
	return def, true
}

// register applies RegisterCommand to each def and returns the accepted
// entries without duplicates.
func (r *Registry) register(defs []command.Definition) []command.Definition {
	seen := make(map[string]struct{}, len(defs))
	out := make([]command.Definition, 0, len(defs))
	for _, def := range defs {
		got, ok := r.RegisterCommand(def)
		if !ok {
			continue
		}
		if _, dup := seen[got.ID]; dup {
			continue
		}
		seen[got.ID] = struct{}{}
		out = append(out, got)
	}
	return out
}

// Find returns the definition registered under id.
func (r *Registry) Find(id string) (command.Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.entries[id]
	return def, ok
}

// Definitions returns every entry sorted by id.
func (r *Registry) Definitions() []command.Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]command.Definition, 0, len(r.entries))
	for _, def := range r.entries {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	return defs
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
