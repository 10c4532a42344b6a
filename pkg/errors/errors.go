// Package errors defines the cmdkit error taxonomy.
//
// Every failure surfaced by the registry or an executor is a *CommandError
// carrying a Kind. Callers test for a kind with the standard library:
//
//	if errors.Is(err, cmderrors.ErrNotFound) {
//	    // unknown command id
//	}
//
// Cancellation is not an error kind: a command that aborts during argument
// resolution returns a *Cancelled, detected with IsCancelled.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Kind categorizes a CommandError.
type Kind string

const (
	// KindConfiguration is a missing or malformed discovery setting.
	KindConfiguration Kind = "configuration"
	// KindNotFound is an unknown command id.
	KindNotFound Kind = "not_found"
	// KindUnacceptedArguments is a supplied keyword outside the parameter schema.
	KindUnacceptedArguments Kind = "unaccepted_arguments"
	// KindSchema is a parameter declaration that cannot yield a complete default set.
	KindSchema Kind = "schema"
	// KindDisabled is an attempt to run a command whose IsEnabled is false.
	KindDisabled Kind = "disabled"
	// KindExecution is a failure raised inside DoIt.
	KindExecution Kind = "execution"
	// KindUndo is a failure raised inside UndoIt.
	KindUndo Kind = "undo"
	// KindRedo is a failure while replaying an undone command.
	KindRedo Kind = "redo"
)

// Sentinels usable with errors.Is against any *CommandError of that kind.
var (
	ErrConfiguration       = errors.New("configuration error")
	ErrNotFound            = errors.New("command not found")
	ErrUnacceptedArguments = errors.New("unaccepted arguments")
	ErrSchema              = errors.New("invalid parameter schema")
	ErrDisabled            = errors.New("command disabled")
	ErrExecution           = errors.New("execution failed")
	ErrUndo                = errors.New("undo failed")
	ErrRedo                = errors.New("redo failed")
)

var sentinels = map[Kind]error{
	KindConfiguration:       ErrConfiguration,
	KindNotFound:            ErrNotFound,
	KindUnacceptedArguments: ErrUnacceptedArguments,
	KindSchema:              ErrSchema,
	KindDisabled:            ErrDisabled,
	KindExecution:           ErrExecution,
	KindUndo:                ErrUndo,
	KindRedo:                ErrRedo,
}

// CommandError wraps a failure with the command it concerns.
type CommandError struct {
	Kind       Kind           // What went wrong
	CommandID  string         // Which command (empty for configuration errors)
	Keys       []string       // Offending argument keys (unaccepted arguments only)
	Operation  string         // What was being performed, e.g. "execute"
	Timestamp  time.Time      // When the error occurred
	Attributes map[string]any // Additional context (optional)
	Cause      error          // Underlying error (optional)
}

// New creates a CommandError of the given kind.
func New(kind Kind, operation, commandID string, cause error) *CommandError {
	return &CommandError{
		Kind:      kind,
		CommandID: commandID,
		Operation: operation,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// NewConfigurationError reports a missing or malformed environment variable.
func NewConfigurationError(variable string, cause error) *CommandError {
	e := New(KindConfiguration, "discover", "", cause)
	e.Attributes = map[string]any{"variable": variable}
	return e
}

// NewNotFoundError reports an unknown command id.
func NewNotFoundError(commandID string) *CommandError {
	return New(KindNotFound, "execute", commandID, nil)
}

// NewUnacceptedArgumentsError reports keywords the command does not declare.
func NewUnacceptedArgumentsError(commandID string, keys []string) *CommandError {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	e := New(KindUnacceptedArguments, "resolve arguments", commandID, nil)
	e.Keys = sorted
	return e
}

// NewSchemaError reports a parameter schema that cannot be derived.
func NewSchemaError(commandID, reason string) *CommandError {
	return New(KindSchema, "derive schema", commandID, errors.New(reason))
}

// NewDisabledError reports an attempt to run a disabled command.
func NewDisabledError(commandID string) *CommandError {
	return New(KindDisabled, "execute", commandID, nil)
}

// NewExecutionError wraps a failure that did not come back as an error value,
// such as a recovered panic.
func NewExecutionError(commandID string, cause error) *CommandError {
	return New(KindExecution, "execute", commandID, cause)
}

// NewUndoError wraps an error returned by UndoIt.
func NewUndoError(commandID string, cause error) *CommandError {
	return New(KindUndo, "undo", commandID, cause)
}

// NewRedoError wraps an error returned while replaying a command.
func NewRedoError(commandID string, cause error) *CommandError {
	return New(KindRedo, "redo", commandID, cause)
}

// Error implements the error interface.
//
// Format: "{kind sentinel}: command={id} [keys=[...]]: {cause}"
func (e *CommandError) Error() string {
	if e == nil {
		return "<nil CommandError>"
	}

	var b strings.Builder
	if s, ok := sentinels[e.Kind]; ok {
		b.WriteString(s.Error())
	} else {
		b.WriteString(string(e.Kind))
	}
	if e.CommandID != "" {
		fmt.Fprintf(&b, ": command=%s", e.CommandID)
	}
	if v, ok := e.Attributes["variable"]; ok {
		fmt.Fprintf(&b, ": variable=%v", v)
	}
	if len(e.Keys) > 0 {
		fmt.Fprintf(&b, " keys=[%s]", strings.Join(e.Keys, ", "))
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CommandError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is reports whether target is the sentinel for this error's kind.
func (e *CommandError) Is(target error) bool {
	if e == nil {
		return false
	}
	return sentinels[e.Kind] == target
}

// KindOf returns the kind of the first *CommandError in err's chain.
func KindOf(err error) (Kind, bool) {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}

// Cancelled is the signal a command returns from ResolveArguments to abort
// before any effect has run. It is not a failure.
type Cancelled struct {
	Message string
}

// Error implements the error interface.
func (c *Cancelled) Error() string {
	if c.Message == "" {
		return "command cancelled"
	}
	return "command cancelled: " + c.Message
}

// IsCancelled reports whether err carries a cancellation signal.
func IsCancelled(err error) bool {
	var c *Cancelled
	return errors.As(err, &c)
}
