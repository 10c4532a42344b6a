package command

import (
	"fmt"
	"sort"

	cmderrors "github.com/dshills/cmdkit/pkg/errors"
)

// Parameter declares one accepted keyword of a command.
type Parameter struct {
	Name        string
	Default     any
	Required    bool // no default; such a command cannot be executed
	Description string
}

// Param declares a keyword with a default value.
func Param(name string, def any) Parameter {
	return Parameter{Name: name, Default: def}
}

// RequiredParam declares a keyword without a default.
func RequiredParam(name string) Parameter {
	return Parameter{Name: name, Required: true}
}

// Schema is the accepted keyword set of a command with a default for every
// keyword, in declaration order.
type Schema struct {
	commandID string
	names     []string
	defaults  map[string]any
}

// DeriveSchema builds the schema of cmd from its declared parameters. It fails
// with an ErrSchema error naming the command when a parameter has no default,
// an empty name, or a duplicated name.
func DeriveSchema(cmd Command) (Schema, error) {
	id := cmd.ID()
	params := cmd.Parameters()

	s := Schema{
		commandID: id,
		names:     make([]string, 0, len(params)),
		defaults:  make(map[string]any, len(params)),
	}
	for _, p := range params {
		if p.Name == "" {
			return Schema{}, cmderrors.NewSchemaError(id, "parameter with empty name")
		}
		if _, dup := s.defaults[p.Name]; dup {
			return Schema{}, cmderrors.NewSchemaError(id, fmt.Sprintf("parameter %q declared twice", p.Name))
		}
		if p.Required {
			return Schema{}, cmderrors.NewSchemaError(id, fmt.Sprintf("parameter %q has no default", p.Name))
		}
		s.names = append(s.names, p.Name)
		s.defaults[p.Name] = p.Default
	}
	return s, nil
}

// Names returns the accepted keywords in declaration order.
func (s Schema) Names() []string {
	return append([]string(nil), s.names...)
}

// Defaults returns a fresh copy of the default argument set.
func (s Schema) Defaults() Arguments {
	out := make(Arguments, len(s.defaults))
	for k, v := range s.defaults {
		out[k] = v
	}
	return out
}

// Accepts reports whether name is a declared keyword.
func (s Schema) Accepts(name string) bool {
	_, ok := s.defaults[name]
	return ok
}

// Unaccepted returns the keys of args outside the schema, sorted.
func (s Schema) Unaccepted(args Arguments) []string {
	var extra []string
	for k := range args {
		if !s.Accepts(k) {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return extra
}

// Validate fails with an ErrUnacceptedArguments error naming the command and
// every key of args outside the schema.
func (s Schema) Validate(args Arguments) error {
	if extra := s.Unaccepted(args); len(extra) > 0 {
		return cmderrors.NewUnacceptedArgumentsError(s.commandID, extra)
	}
	return nil
}

// Merge returns the defaults overlaid with args. Keys outside the schema are
// not copied; call Validate first to reject them.
func (s Schema) Merge(args Arguments) Arguments {
	out := s.Defaults()
	for k, v := range args {
		if s.Accepts(k) {
			out[k] = v
		}
	}
	return out
}
