package command

import (
	"reflect"
	"runtime"

	"github.com/Masterminds/semver/v3"
)

// Factory constructs a fresh command instance.
type Factory func() Command

// Definition is the registry entry of a command type: its identity, where it
// was declared, and how to construct instances of it.
type Definition struct {
	ID      string
	Creator string
	Version *semver.Version // optional
	Module  string          // declaring package path or manifest name
	Source  string          // declaring file path
	New     Factory

	// instanceID is the id reported by the instance the definition was built
	// from. Valid trusts it instead of constructing another instance.
	instanceID string
}

// Define builds a Definition from a factory. One probe instance is constructed
// to read the identity; Module is the probe's Go package path and Source is
// the file that called Define.
func Define(factory Factory) Definition {
	def := Definition{New: factory}
	if factory == nil {
		return def
	}
	if probe := factory(); probe != nil {
		def = FromInstance(probe, factory)
	}
	if _, file, _, ok := runtime.Caller(1); ok {
		def.Source = file
	}
	return def
}

// FromInstance builds a Definition from an instance the caller already
// constructed with factory. Module is the instance's Go package path; Source
// is left to the caller.
func FromInstance(cmd Command, factory Factory) Definition {
	return Definition{
		ID:         cmd.ID(),
		Creator:    cmd.Creator(),
		Module:     packagePath(cmd),
		New:        factory,
		instanceID: cmd.ID(),
	}
}

// WithVersion returns a copy of d carrying v.
func (d Definition) WithVersion(v *semver.Version) Definition {
	d.Version = v
	return d
}

// Valid reports whether d satisfies the command contract: a factory that
// yields a non-nil command whose ID matches the definition. A definition
// built from an instance is not constructed again.
func (d Definition) Valid() bool {
	if d.New == nil || d.ID == "" {
		return false
	}
	if d.instanceID != "" {
		return d.instanceID == d.ID
	}
	probe := d.New()
	if probe == nil {
		return false
	}
	return probe.ID() == d.ID
}

// VersionString returns the semver string or "" when unversioned.
func (d Definition) VersionString() string {
	if d.Version == nil {
		return ""
	}
	return d.Version.String()
}

func packagePath(v any) string {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.PkgPath()
}
