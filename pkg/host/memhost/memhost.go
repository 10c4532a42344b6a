// Package memhost is an in-memory host used by tests and the cmdkit CLI.
package memhost

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/dshills/cmdkit/pkg/domain/types"
	"github.com/dshills/cmdkit/pkg/host"
)

// Transaction is a closed transaction in the journal.
type Transaction struct {
	Label string
	Depth int // nesting depth at Begin, 1 for outermost
}

type step struct {
	token   types.UndoToken
	handler host.Handler
}

// Host implements host.Transactor, host.UndoManager and host.Scene.
type Host struct {
	mu      sync.Mutex
	name    string
	attrs   map[string]any
	open    []string // labels of open transactions, innermost last
	journal []Transaction
	undo    []step
	redo    []step
	depth   int // native undo queue limit, 0 for unbounded
	logger  *zap.Logger
}

// Option configures a Host.
type Option func(*Host)

// WithUndoDepth bounds the native undo queue; the oldest step is dropped.
func WithUndoDepth(n int) Option {
	return func(h *Host) { h.depth = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *Host) { h.logger = l }
}

// New creates an empty host called name.
func New(name string, opts ...Option) *Host {
	h := &Host{
		name:   name,
		attrs:  make(map[string]any),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.Named("memhost")
	return h
}

// Name returns the host application name.
func (h *Host) Name() string { return h.name }

// Begin opens a (possibly nested) transaction.
func (h *Host) Begin(_ context.Context, label string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.open = append(h.open, label)
	h.logger.Debug("begin transaction", zap.String("label", label), zap.Int("depth", len(h.open)))
	return nil
}

// End closes the innermost open transaction.
func (h *Host) End(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.open) == 0 {
		return errors.New("end without matching begin")
	}
	depth := len(h.open)
	label := h.open[depth-1]
	h.open = h.open[:depth-1]
	h.journal = append(h.journal, Transaction{Label: label, Depth: depth})
	h.logger.Debug("end transaction", zap.String("label", label))
	return nil
}

// OpenTransactions returns the number of transactions not yet ended.
func (h *Host) OpenTransactions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.open)
}

// Journal returns the closed transactions in closing order.
func (h *Host) Journal() []Transaction {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Transaction(nil), h.journal...)
}

// Register records a native undo step. It invalidates the native redo queue.
func (h *Host) Register(_ context.Context, token types.UndoToken, handler host.Handler) error {
	if token.IsZero() {
		return errors.New("cannot register empty undo token")
	}
	if handler == nil {
		return errors.New("cannot register nil undo handler")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.undo = append(h.undo, step{token: token, handler: handler})
	if h.depth > 0 && len(h.undo) > h.depth {
		h.undo = h.undo[len(h.undo)-h.depth:]
	}
	h.redo = nil
	return nil
}

// Undo dispatches the newest native step to its handler. The step moves to
// the redo queue only when the handler succeeds.
func (h *Host) Undo(ctx context.Context) error {
	h.mu.Lock()
	if len(h.undo) == 0 {
		h.mu.Unlock()
		return host.ErrNothingToUndo
	}
	s := h.undo[len(h.undo)-1]
	h.mu.Unlock()

	// the handler runs unlocked so it may call back into the host
	if err := s.handler.HandleUndo(ctx, s.token); err != nil {
		return fmt.Errorf("native undo %s: %w", s.token, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.undo = h.undo[:len(h.undo)-1]
	h.redo = append(h.redo, s)
	return nil
}

// Redo dispatches the most recently undone step to its handler.
func (h *Host) Redo(ctx context.Context) error {
	h.mu.Lock()
	if len(h.redo) == 0 {
		h.mu.Unlock()
		return host.ErrNothingToRedo
	}
	s := h.redo[len(h.redo)-1]
	h.mu.Unlock()

	if err := s.handler.HandleRedo(ctx, s.token); err != nil {
		return fmt.Errorf("native redo %s: %w", s.token, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.redo = h.redo[:len(h.redo)-1]
	h.undo = append(h.undo, s)
	return nil
}

// UndoTokens returns the native undo queue, oldest first.
func (h *Host) UndoTokens() []types.UndoToken {
	h.mu.Lock()
	defer h.mu.Unlock()
	return tokens(h.undo)
}

// RedoTokens returns the native redo queue, oldest first.
func (h *Host) RedoTokens() []types.UndoToken {
	h.mu.Lock()
	defer h.mu.Unlock()
	return tokens(h.redo)
}

func tokens(steps []step) []types.UndoToken {
	out := make([]types.UndoToken, len(steps))
	for i, s := range steps {
		out[i] = s.token
	}
	return out
}

// Attr returns the value at path.
func (h *Host) Attr(path string) (any, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.attrs[path]
	return v, ok
}

// SetAttr writes value at path.
func (h *Host) SetAttr(path string, value any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attrs[path] = value
}

// DeleteAttr removes path.
func (h *Host) DeleteAttr(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.attrs, path)
}

// Attrs returns a snapshot of the scene.
func (h *Host) Attrs() map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]any, len(h.attrs))
	for k, v := range h.attrs {
		out[k] = v
	}
	return out
}

// AttrPaths returns the attribute paths, sorted.
func (h *Host) AttrPaths() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	paths := make([]string, 0, len(h.attrs))
	for p := range h.attrs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

var (
	_ host.Transactor  = (*Host)(nil)
	_ host.UndoManager = (*Host)(nil)
	_ host.Scene       = (*Host)(nil)
)
