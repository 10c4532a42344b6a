// Package command defines the contract every invocable cmdkit operation
// implements.
//
// A concrete command embeds Base to inherit the default hooks and supplies at
// least ID, Creator and DoIt:
//
//	type Rename struct {
//	    command.Base
//	    previous string
//	}
//
//	func (r *Rename) ID() string       { return "scene.rename" }
//	func (r *Rename) Creator() string  { return "pipeline-team" }
//	func (r *Rename) IsUndoable() bool { return true }
//	func (r *Rename) Parameters() []command.Parameter {
//	    return []command.Parameter{command.Param("name", "node1")}
//	}
//	func (r *Rename) DoIt(ctx context.Context, args command.Arguments) (any, error) { ... }
//	func (r *Rename) UndoIt(ctx context.Context) error { ... }
//
// Instances are created fresh by an executor for every invocation and are
// never reused across invocations.
package command

import (
	"context"

	cmderrors "github.com/dshills/cmdkit/pkg/errors"
)

// Command is one invocable, identifiable unit of work.
type Command interface {
	// ID is globally unique and stable across versions.
	ID() string
	// Creator is informational ownership metadata.
	Creator() string
	// IsUndoable governs whether an executor keeps the instance in undo history.
	IsUndoable() bool
	// IsEnabled reports whether the command may currently run.
	IsEnabled() bool
	// Parameters declares the accepted keywords and their defaults.
	Parameters() []Parameter
	// Initialize is called once right after construction.
	Initialize() error
	// ResolveArguments validates or transforms the merged argument set.
	// Returning a *errors.Cancelled aborts the invocation without effect.
	ResolveArguments(args Arguments) (Arguments, error)
	// DoIt performs the effect.
	DoIt(ctx context.Context, args Arguments) (any, error)
	// UndoIt reverses the effect of the last DoIt.
	UndoIt(ctx context.Context) error
	// UIData is presentation metadata only.
	UIData() UIData
}

// Disposer is implemented by commands that hold resources to release when
// their instance is evicted from history. Dispose never reverses an effect.
type Disposer interface {
	Dispose()
}

// UIData is the presentation metadata a menu or button renders.
type UIData struct {
	Icon            string `json:"icon,omitempty" yaml:"icon,omitempty"`
	Tooltip         string `json:"tooltip,omitempty" yaml:"tooltip,omitempty"`
	Label           string `json:"label,omitempty" yaml:"label,omitempty"`
	Color           string `json:"color,omitempty" yaml:"color,omitempty"`
	BackgroundColor string `json:"background_color,omitempty" yaml:"background_color,omitempty"`
}

// Base provides the default hooks of the contract. Concrete commands embed it
// and override what they need; ID, Creator and DoIt are always their own.
type Base struct{}

// IsUndoable defaults to false.
func (Base) IsUndoable() bool { return false }

// IsEnabled defaults to true.
func (Base) IsEnabled() bool { return true }

// Parameters defaults to no parameters.
func (Base) Parameters() []Parameter { return nil }

// Initialize is a no-op.
func (Base) Initialize() error { return nil }

// ResolveArguments returns args unchanged.
func (Base) ResolveArguments(args Arguments) (Arguments, error) { return args, nil }

// UndoIt is a no-op. Undoable commands must override it.
func (Base) UndoIt(context.Context) error { return nil }

// UIData returns empty presentation metadata.
func (Base) UIData() UIData { return UIData{} }

// Cancel returns the cancellation signal for use inside ResolveArguments.
func (Base) Cancel(message string) error { return Cancel(message) }

// Cancel returns the distinguished signal that aborts an invocation during
// argument resolution. Invoking layers catch it with errors.IsCancelled.
func Cancel(message string) error {
	return &cmderrors.Cancelled{Message: message}
}
