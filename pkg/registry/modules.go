package registry

import (
	"sort"
	"sync"

	"github.com/dshills/cmdkit/pkg/command"
)

// ModuleTable maps dotted module references to the command definitions they
// export. It replaces runtime import-by-name: operation packages add
// themselves from an init function and discovery settings name them.
//
//	func init() {
//	    registry.DefaultModules.Provide("studio.rigging",
//	        command.Define(func() command.Command { return &MirrorJoints{} }),
//	    )
//	}
type ModuleTable struct {
	mu      sync.RWMutex
	modules map[string][]command.Definition
}

// DefaultModules is the process-wide table used by registries that are not
// given one explicitly.
var DefaultModules = NewModuleTable()

// NewModuleTable creates an empty table.
func NewModuleTable() *ModuleTable {
	return &ModuleTable{modules: make(map[string][]command.Definition)}
}

// Provide appends defs to the module called name.
func (t *ModuleTable) Provide(name string, defs ...command.Definition) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.modules[name] = append(t.modules[name], defs...)
}

// Lookup returns a copy of the definitions exported by name.
func (t *ModuleTable) Lookup(name string) ([]command.Definition, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	defs, ok := t.modules[name]
	if !ok {
		return nil, false
	}
	return append([]command.Definition(nil), defs...), true
}

// Names returns the known module names, sorted.
func (t *ModuleTable) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, len(t.modules))
	for name := range t.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
