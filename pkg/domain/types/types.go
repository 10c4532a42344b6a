// Package types defines core domain identifiers for cmdkit.
package types

import "github.com/google/uuid"

// CommandID is the globally unique, stable identifier of a command.
type CommandID string

// ExecutionID identifies one Execute call and its telemetry record.
type ExecutionID string

// UndoToken is the opaque handle given to a host undo manager for one
// executed undoable instance.
type UndoToken string

// NewExecutionID generates a new unique execution ID.
func NewExecutionID() ExecutionID {
	return ExecutionID(uuid.NewString())
}

// String returns the string representation of an ExecutionID.
func (id ExecutionID) String() string {
	return string(id)
}

// IsZero returns true if the ExecutionID is the zero value.
func (id ExecutionID) IsZero() bool {
	return id == ""
}

// NewUndoToken generates a new unique undo token.
func NewUndoToken() UndoToken {
	return UndoToken(uuid.NewString())
}

// String returns the string representation of an UndoToken.
func (t UndoToken) String() string {
	return string(t)
}

// IsZero returns true if the token was never assigned.
func (t UndoToken) IsZero() bool {
	return t == ""
}
