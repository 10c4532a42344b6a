// Package executor runs commands and keeps their undo and redo history.
//
// An Executor is single-flow: it is not safe for concurrent use, and calling
// Execute from inside a running DoIt is forbidden. The behavior of such a
// reentrant call is undefined and not guarded against.
package executor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dshills/cmdkit/pkg/command"
	"github.com/dshills/cmdkit/pkg/domain/telemetry"
	"github.com/dshills/cmdkit/pkg/domain/types"
	cmderrors "github.com/dshills/cmdkit/pkg/errors"
	"github.com/dshills/cmdkit/pkg/history"
	"github.com/dshills/cmdkit/pkg/registry"
	observe "github.com/dshills/cmdkit/pkg/telemetry"
)

// DefaultHostName is reported in telemetry when no host name is configured.
const DefaultHostName = "standalone"

// Runner is the executor contract the invoking layer depends on. Both
// Executor and HostExecutor satisfy it.
type Runner interface {
	RegisterEnv(name string) (bool, error)
	Register(defs ...command.Definition) bool
	FindCommand(id string) (command.Definition, bool)
	Commands() []command.Definition
	Execute(ctx context.Context, id string, args command.Arguments) (any, error)
	UndoLast(ctx context.Context) (bool, error)
	RedoLast(ctx context.Context) (bool, error)
	Flush()
	UndoHistory() []*Instance
	RedoHistory() []*Instance
}

// Recorder receives every finalized telemetry record.
type Recorder interface {
	Record(rec *telemetry.Telemetry)
}

// Instance is one executed command: a fresh command value together with the
// arguments it ran with and the telemetry of its latest run.
type Instance struct {
	Command    command.Command
	Definition command.Definition
	Arguments  command.Arguments
	Telemetry  *telemetry.Telemetry
	Token      types.UndoToken // set by a HostExecutor after a successful run
}

// ID returns the command id.
func (i *Instance) ID() string {
	return i.Definition.ID
}

// Executor looks up commands, validates their arguments, runs them and keeps
// the undo and redo histories.
type Executor struct {
	registry *registry.Registry
	commands map[string]command.Definition // private cache of this executor
	undo     *history.Stack[*Instance]
	redo     *history.Stack[*Instance]

	logger   *zap.Logger
	recorder Recorder
	tracer   trace.Tracer
	hostName string
	depth    int

	// invoke runs DoIt; HostExecutor brackets it in a host transaction.
	invoke func(ctx context.Context, inst *Instance) (any, error)
	// executed runs after a successful undoable Execute.
	executed func(ctx context.Context, inst *Instance) error
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithRecorder sets where finalized telemetry goes. The default recorder only
// logs.
func WithRecorder(r Recorder) Option {
	return func(e *Executor) { e.recorder = r }
}

// WithTracer sets the tracer spans are started on.
func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) { e.tracer = t }
}

// WithHostName sets the host application name reported in telemetry.
func WithHostName(name string) Option {
	return func(e *Executor) { e.hostName = name }
}

// WithHistoryDepth bounds undo history. Pushing past the depth evicts and
// disposes the oldest entry. Zero means unbounded.
func WithHistoryDepth(n int) Option {
	return func(e *Executor) { e.depth = n }
}

// New creates an executor that discovers commands through reg.
func New(reg *registry.Registry, opts ...Option) *Executor {
	e := &Executor{
		registry: reg,
		commands: make(map[string]command.Definition),
		logger:   zap.NewNop(),
		hostName: DefaultHostName,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = registry.New(e.logger)
	}
	e.logger = e.logger.Named("executor")
	if e.recorder == nil {
		e.recorder = observe.NewRecorder(nil, e.logger)
	}
	if e.tracer == nil {
		e.tracer = observe.Tracer()
	}
	e.undo = history.NewStack[*Instance](e.depth)
	e.redo = history.NewStack[*Instance](0)
	e.invoke = callDoIt
	return e
}

// RegisterEnv discovers commands from the path-list environment variable name
// and adds those whose id this executor does not know yet. It reports whether
// anything was added.
func (e *Executor) RegisterEnv(name string) (bool, error) {
	defs, err := e.registry.RegisterByEnv(name)
	if err != nil {
		return false, err
	}
	return e.merge(defs), nil
}

// Register adds definitions explicitly. Each is registered with the shared
// registry and then cached by this executor. It reports whether anything was
// added.
func (e *Executor) Register(defs ...command.Definition) bool {
	accepted := make([]command.Definition, 0, len(defs))
	for _, def := range defs {
		if got, ok := e.registry.RegisterCommand(def); ok {
			accepted = append(accepted, got)
		}
	}
	return e.merge(accepted)
}

func (e *Executor) merge(defs []command.Definition) bool {
	added := false
	for _, def := range defs {
		if _, known := e.commands[def.ID]; known {
			continue
		}
		e.commands[def.ID] = def
		added = true
	}
	return added
}

// FindCommand returns the definition this executor knows under id.
func (e *Executor) FindCommand(id string) (command.Definition, bool) {
	def, ok := e.commands[id]
	return def, ok
}

// Commands returns the known definitions sorted by id.
func (e *Executor) Commands() []command.Definition {
	defs := make([]command.Definition, 0, len(e.commands))
	for _, def := range e.commands {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	return defs
}

// Execute runs the command id with args and returns what DoIt returned.
//
// Unknown ids, disabled commands, schema errors and unaccepted argument keys
// fail before anything runs. A cancellation from ResolveArguments is returned
// as is, without touching history or telemetry. Otherwise an undoable
// instance is pushed onto undo history before DoIt runs and stays there even
// if DoIt fails; DoIt's error is returned unchanged and a panic is returned as
// an execution error. Telemetry is finalized and recorded whatever happens.
func (e *Executor) Execute(ctx context.Context, id string, args command.Arguments) (any, error) {
	inst, err := e.prepare(id, args)
	if err != nil {
		if cmderrors.IsCancelled(err) {
			e.logger.Debug("command cancelled", zap.String("command", id), zap.Error(err))
		}
		return nil, err
	}

	if inst.Command.IsUndoable() {
		e.pushUndo(inst)
	}

	result, err := e.perform(ctx, inst, "cmdkit.execute")
	if err != nil {
		return nil, err
	}

	if inst.Command.IsUndoable() && e.executed != nil {
		if err := e.executed(ctx, inst); err != nil {
			return result, err
		}
	}
	return result, nil
}

// prepare instantiates the command and resolves its arguments.
func (e *Executor) prepare(id string, args command.Arguments) (*Instance, error) {
	def, ok := e.FindCommand(id)
	if !ok {
		return nil, cmderrors.NewNotFoundError(id)
	}

	cmd := def.New()
	if cmd == nil {
		return nil, cmderrors.NewExecutionError(id, fmt.Errorf("factory returned nil command"))
	}
	if err := cmd.Initialize(); err != nil {
		ce := cmderrors.NewExecutionError(id, err)
		ce.Operation = "initialize"
		return nil, ce
	}
	if !cmd.IsEnabled() {
		return nil, cmderrors.NewDisabledError(id)
	}

	schema, err := command.DeriveSchema(cmd)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(args); err != nil {
		return nil, err
	}

	resolved, err := cmd.ResolveArguments(schema.Merge(args))
	if err != nil {
		return nil, err
	}
	if resolved == nil {
		resolved = command.Arguments{}
	}

	return &Instance{
		Command:    cmd,
		Definition: def,
		Arguments:  resolved,
	}, nil
}

// perform runs DoIt for inst with fresh telemetry, finalized and recorded on
// every path.
func (e *Executor) perform(ctx context.Context, inst *Instance, spanName string) (result any, err error) {
	rec := telemetry.Start(inst.Definition, e.hostName, inst.Arguments)
	inst.Telemetry = rec

	ctx, span := e.tracer.Start(ctx, spanName, trace.WithAttributes(e.spanAttributes(inst)...))

	var stack string
	defer func() {
		if ferr := rec.Finalize(err, stack); ferr != nil {
			e.logger.Error("failed to finalize telemetry", zap.String("command", inst.ID()), zap.Error(ferr))
		}
		e.recorder.Record(rec)
		observe.EndSpan(span, rec, err)
	}()

	result, stack, err = e.guard(ctx, inst)
	return result, err
}

// guard calls invoke and turns a panic into an execution error carrying the
// panicking goroutine's stack.
func (e *Executor) guard(ctx context.Context, inst *Instance) (result any, stack string, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack = fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
			err = cmderrors.NewExecutionError(inst.ID(), fmt.Errorf("panic: %v", r))
		}
	}()
	result, err = e.invoke(ctx, inst)
	return result, "", err
}

func callDoIt(ctx context.Context, inst *Instance) (any, error) {
	return inst.Command.DoIt(ctx, inst.Arguments)
}

// UndoLast undoes the newest entry of undo history and moves it to redo
// history. It returns false, without an error and without changing state,
// when undo history is empty or its top is not undoable. When UndoIt fails
// the entry stays on undo history and an undo error is returned.
func (e *Executor) UndoLast(ctx context.Context) (bool, error) {
	inst, ok := e.undo.Peek()
	if !ok || !inst.Command.IsUndoable() {
		return false, nil
	}
	if err := e.undoTop(ctx, inst); err != nil {
		return false, err
	}
	return true, nil
}

// undoTop calls UndoIt on inst, which must be the top of undo history, and
// moves it to redo history on success.
func (e *Executor) undoTop(ctx context.Context, inst *Instance) (err error) {
	ctx, span := e.tracer.Start(ctx, "cmdkit.undo", trace.WithAttributes(e.spanAttributes(inst)...))
	defer func() { observe.EndSpan(span, inst.Telemetry, err) }()

	if err := callUndoIt(ctx, inst); err != nil {
		e.logger.Warn("undo failed", zap.String("command", inst.ID()), zap.Error(err))
		return cmderrors.NewUndoError(inst.ID(), err)
	}

	e.undo.Pop()
	e.redo.Push(inst)
	e.logger.Debug("undone", zap.String("command", inst.ID()),
		zap.Int("undo", e.undo.Len()), zap.Int("redo", e.redo.Len()))
	return nil
}

func callUndoIt(ctx context.Context, inst *Instance) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return inst.Command.UndoIt(ctx)
}

// RedoLast re-runs DoIt for the newest entry of redo history with the
// arguments it originally resolved, then moves it back to undo history. It
// returns false when redo history is empty. When DoIt fails the entry stays
// on redo history and a redo error is returned.
func (e *Executor) RedoLast(ctx context.Context) (bool, error) {
	inst, ok := e.redo.Peek()
	if !ok {
		return false, nil
	}
	if err := e.redoTop(ctx, inst); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Executor) redoTop(ctx context.Context, inst *Instance) error {
	if _, err := e.perform(ctx, inst, "cmdkit.redo"); err != nil {
		e.logger.Warn("redo failed", zap.String("command", inst.ID()), zap.Error(err))
		return cmderrors.NewRedoError(inst.ID(), err)
	}

	e.redo.Pop()
	e.pushUndo(inst)
	e.logger.Debug("redone", zap.String("command", inst.ID()),
		zap.Int("undo", e.undo.Len()), zap.Int("redo", e.redo.Len()))
	return nil
}

// Flush empties undo history without calling UndoIt. Removed instances that
// implement command.Disposer are disposed. Redo history is kept.
func (e *Executor) Flush() {
	cleared := e.undo.Clear()
	for _, inst := range cleared {
		dispose(inst)
	}
	e.logger.Debug("flushed undo history", zap.Int("removed", len(cleared)))
}

// UndoHistory returns undo history, oldest first.
func (e *Executor) UndoHistory() []*Instance {
	return e.undo.Items()
}

// RedoHistory returns redo history, oldest first.
func (e *Executor) RedoHistory() []*Instance {
	return e.redo.Items()
}

func (e *Executor) pushUndo(inst *Instance) {
	for _, old := range e.undo.Push(inst) {
		e.logger.Debug("history depth exceeded, evicting", zap.String("command", old.ID()))
		dispose(old)
	}
}

func dispose(inst *Instance) {
	if d, ok := inst.Command.(command.Disposer); ok {
		d.Dispose()
	}
}

func (e *Executor) spanAttributes(inst *Instance) []attribute.KeyValue {
	return []attribute.KeyValue{
		observe.AttrCommandID.String(inst.Definition.ID),
		observe.AttrCreator.String(inst.Definition.Creator),
		observe.AttrModule.String(inst.Definition.Module),
		observe.AttrHost.String(e.hostName),
		observe.AttrUndoable.Bool(inst.Command.IsUndoable()),
	}
}

var _ Runner = (*Executor)(nil)
