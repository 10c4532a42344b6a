// Package host declares what cmdkit needs from the application it is
// embedded in: a transaction boundary, a native undo manager, and the scene
// that script commands read and write.
//
// The host's own API is out of scope; an embedding supplies adapters that
// satisfy these interfaces. memhost is an in-memory reference host.
package host

import (
	"context"
	"errors"

	"github.com/dshills/cmdkit/pkg/domain/types"
)

// ErrTokenMismatch is returned by a Handler asked to act on a token that is
// not at the top of its history.
var ErrTokenMismatch = errors.New("undo token does not match history")

// ErrNothingToUndo is returned by an UndoManager with an empty undo queue.
var ErrNothingToUndo = errors.New("nothing to undo")

// ErrNothingToRedo is returned by an UndoManager with an empty redo queue.
var ErrNothingToRedo = errors.New("nothing to redo")

// Transactor opens and closes the host's transaction boundary. Every Begin is
// matched by exactly one End, even when the work in between fails.
type Transactor interface {
	Begin(ctx context.Context, label string) error
	End(ctx context.Context) error
}

// Handler receives native undo and redo requests for tokens it registered.
type Handler interface {
	HandleUndo(ctx context.Context, token types.UndoToken) error
	HandleRedo(ctx context.Context, token types.UndoToken) error
}

// UndoManager is the host-owned undo system.
type UndoManager interface {
	// Register records token as the newest native undo step, dispatched to h.
	Register(ctx context.Context, token types.UndoToken, h Handler) error
	// Undo undoes the newest native step.
	Undo(ctx context.Context) error
	// Redo redoes the most recently undone native step.
	Redo(ctx context.Context) error
}

// Scene is the attribute store script commands mutate.
type Scene interface {
	Attr(path string) (any, bool)
	SetAttr(path string, value any)
	DeleteAttr(path string)
}
