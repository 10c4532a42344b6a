package executor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/dshills/cmdkit/pkg/domain/types"
	cmderrors "github.com/dshills/cmdkit/pkg/errors"
	"github.com/dshills/cmdkit/pkg/host"
	"github.com/dshills/cmdkit/pkg/registry"
)

// HostExecutor is an Executor embedded in a host application with its own
// transaction boundary and undo system.
//
// Every DoIt runs inside a host transaction. After a successful undoable
// Execute the instance gets a fresh undo token, which is registered with the
// host undo manager together with the executor as handler. Host-native undo
// and redo then reach the executor through HandleUndo and HandleRedo, and
// UndoLast and RedoLast go through the host rather than around it, so both
// histories stay in step.
type HostExecutor struct {
	*Executor
	transactor  host.Transactor
	undoManager host.UndoManager
}

// NewHostExecutor creates a host-integrated executor.
func NewHostExecutor(reg *registry.Registry, transactor host.Transactor, undo host.UndoManager, opts ...Option) *HostExecutor {
	h := &HostExecutor{
		Executor:    New(reg, opts...),
		transactor:  transactor,
		undoManager: undo,
	}
	h.logger = h.logger.Named("host")
	h.invoke = h.invokeInTransaction
	h.executed = h.registerToken
	return h
}

// invokeInTransaction brackets DoIt in a host transaction. End runs whatever
// DoIt does, including panicking.
func (h *HostExecutor) invokeInTransaction(ctx context.Context, inst *Instance) (result any, err error) {
	if err := h.transactor.Begin(ctx, inst.ID()); err != nil {
		return nil, fmt.Errorf("failed to begin host transaction: %w", err)
	}
	defer func() {
		if endErr := h.transactor.End(ctx); endErr != nil {
			h.logger.Error("failed to end host transaction",
				zap.String("command", inst.ID()),
				zap.Error(endErr),
			)
			if err == nil {
				err = fmt.Errorf("failed to end host transaction: %w", endErr)
			}
		}
	}()
	return callDoIt(ctx, inst)
}

// registerToken hands a successful undoable instance to the host undo
// manager. An instance the host refuses cannot be undone through the host, so
// it is taken off undo history again. A registered step invalidates the host's
// redo queue, so redo history is dropped and its instances disposed.
func (h *HostExecutor) registerToken(ctx context.Context, inst *Instance) error {
	inst.Token = types.NewUndoToken()
	if err := h.undoManager.Register(ctx, inst.Token, h); err != nil {
		h.undo.Remove(inst)
		inst.Token = ""
		return fmt.Errorf("failed to register undo token for %s: %w", inst.ID(), err)
	}
	h.logger.Debug("registered undo token",
		zap.String("command", inst.ID()),
		zap.String("token", inst.Token.String()),
	)

	stale := h.redo.Clear()
	for _, old := range stale {
		dispose(old)
	}
	if len(stale) > 0 {
		h.logger.Debug("dropped redo history", zap.Int("removed", len(stale)))
	}
	return nil
}

// UndoLast asks the host undo manager to undo, which calls back HandleUndo.
// It returns false without calling the host when nothing undoable is on top
// of undo history. An instance that never got a token (its DoIt failed) was
// never seen by the host and is undone in process.
func (h *HostExecutor) UndoLast(ctx context.Context) (bool, error) {
	inst, ok := h.undo.Peek()
	if !ok || !inst.Command.IsUndoable() {
		return false, nil
	}
	if inst.Token.IsZero() {
		return h.Executor.UndoLast(ctx)
	}

	if err := h.undoManager.Undo(ctx); err != nil {
		if errors.Is(err, cmderrors.ErrUndo) {
			return false, err
		}
		return false, cmderrors.NewUndoError(inst.ID(), err)
	}
	return true, nil
}

// RedoLast asks the host undo manager to redo, which calls back HandleRedo.
// It returns false without calling the host when redo history is empty.
func (h *HostExecutor) RedoLast(ctx context.Context) (bool, error) {
	inst, ok := h.redo.Peek()
	if !ok {
		return false, nil
	}
	if inst.Token.IsZero() {
		return h.Executor.RedoLast(ctx)
	}

	if err := h.undoManager.Redo(ctx); err != nil {
		if errors.Is(err, cmderrors.ErrRedo) {
			return false, err
		}
		return false, cmderrors.NewRedoError(inst.ID(), err)
	}
	return true, nil
}

// HandleUndo implements host.Handler. Only the token of the current top of
// undo history is accepted.
func (h *HostExecutor) HandleUndo(ctx context.Context, token types.UndoToken) error {
	inst, ok := h.undo.Peek()
	if !ok || inst.Token != token {
		h.logger.Warn("rejecting native undo", zap.String("token", token.String()))
		return fmt.Errorf("undo %s: %w", token, host.ErrTokenMismatch)
	}
	return h.undoTop(ctx, inst)
}

// HandleRedo implements host.Handler. Only the token of the current top of
// redo history is accepted.
func (h *HostExecutor) HandleRedo(ctx context.Context, token types.UndoToken) error {
	inst, ok := h.redo.Peek()
	if !ok || inst.Token != token {
		h.logger.Warn("rejecting native redo", zap.String("token", token.String()))
		return fmt.Errorf("redo %s: %w", token, host.ErrTokenMismatch)
	}
	return h.redoTop(ctx, inst)
}

var (
	_ Runner       = (*HostExecutor)(nil)
	_ host.Handler = (*HostExecutor)(nil)
)
