package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"

	"github.com/dshills/cmdkit/pkg/command"
	"github.com/dshills/cmdkit/pkg/domain/telemetry"
	cmderrors "github.com/dshills/cmdkit/pkg/errors"
	"github.com/dshills/cmdkit/pkg/registry"
)

func newExecutor(t *testing.T, st *state, opts ...Option) (*Executor, *captureRecorder) {
	t.Helper()
	rec := &captureRecorder{}
	opts = append([]Option{WithLogger(zaptest.NewLogger(t)), WithRecorder(rec)}, opts...)
	e := New(newRegistry(), opts...)
	e.Register(standardDefs(st)...)
	return e, rec
}

func TestExecute_ReturnsDoItResult(t *testing.T) {
	e, _ := newExecutor(t, &state{})
	ctx := context.Background()

	got, err := e.Execute(ctx, "test.echo", command.Arguments{"value": "world"})
	require.NoError(t, err)
	assert.Equal(t, "world", got)

	got, err = e.Execute(ctx, "test.echo", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", got, "missing arguments fall back to declared defaults")
}

func TestExecute_SchemaWithoutDefaultFails(t *testing.T) {
	e, rec := newExecutor(t, &state{})

	_, err := e.Execute(context.Background(), "test.failArgs", nil)

	require.ErrorIs(t, err, cmderrors.ErrSchema)
	assert.Contains(t, err.Error(), "test.failArgs")
	assert.Empty(t, e.UndoHistory())
	assert.Empty(t, rec.records)
}

func TestExecute_UndoMovesInstanceToRedo(t *testing.T) {
	st := &state{}
	e, _ := newExecutor(t, st)
	ctx := context.Background()

	_, err := e.Execute(ctx, "test.counter", command.Arguments{"label": "x"})
	require.NoError(t, err)
	assert.Equal(t, "x", st.field)
	require.Len(t, e.UndoHistory(), 1)

	ok, err := e.UndoLast(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Nil(t, st.field)
	assert.Len(t, e.UndoHistory(), 0)
	assert.Len(t, e.RedoHistory(), 1)
}

func TestRegister_Idempotent(t *testing.T) {
	reg := newRegistry()
	e := New(reg)
	def := command.Define(func() command.Command { return echo{} })

	assert.True(t, e.Register(def))
	assert.False(t, e.Register(def))
	assert.False(t, e.Register(command.Define(func() command.Command { return echo{} })))

	assert.Len(t, e.Commands(), 1)
	assert.Equal(t, 1, reg.Len())
	_, ok := e.FindCommand("test.echo")
	assert.True(t, ok)
	_, ok = e.FindCommand("test.nope")
	assert.False(t, ok)
}

func TestExecute_UnacceptedArguments(t *testing.T) {
	st := &state{}
	e, rec := newExecutor(t, st)
	ctx := context.Background()
	_, err := e.Execute(ctx, "test.counter", nil)
	require.NoError(t, err)
	before := e.UndoHistory()

	_, err = e.Execute(ctx, "test.counter", command.Arguments{"label": "y", "extra": "x"})

	require.ErrorIs(t, err, cmderrors.ErrUnacceptedArguments)
	assert.Contains(t, err.Error(), "extra")
	assert.Contains(t, err.Error(), "test.counter")
	assert.Equal(t, before, e.UndoHistory())
	assert.Equal(t, []string{"do:n"}, st.log, "DoIt must not run")
	assert.Len(t, rec.records, 1)
}

func TestUndoRedo_LIFO(t *testing.T) {
	const n = 5
	e, _ := newExecutor(t, &state{})
	ctx := context.Background()

	for i := 0; i < n; i++ {
		_, err := e.Execute(ctx, "test.counter", command.Arguments{"label": fmt.Sprint(i)})
		require.NoError(t, err)
	}
	executed := e.UndoHistory()
	require.Len(t, executed, n)

	for i := 0; i < n; i++ {
		ok, err := e.UndoLast(ctx)
		require.NoError(t, err)
		require.True(t, ok)
	}

	assert.Empty(t, e.UndoHistory())
	redo := e.RedoHistory()
	require.Len(t, redo, n)
	for i := range redo {
		assert.Same(t, executed[n-1-i], redo[i], "redo history holds instances in reverse execution order")
	}

	ok, err := e.UndoLast(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExecute_NonUndoableSkipsHistory(t *testing.T) {
	st := &state{}
	e, _ := newExecutor(t, st)
	ctx := context.Background()

	_, err := e.Execute(ctx, "test.echo", nil)
	require.NoError(t, err)
	assert.Empty(t, e.UndoHistory())

	ok, err := e.UndoLast(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, e.RedoHistory())
}

func TestUndoLast_TopNotUndoable(t *testing.T) {
	e, _ := newExecutor(t, &state{})
	ctx := context.Background()
	_, err := e.Execute(ctx, "test.counter", nil)
	require.NoError(t, err)

	// an entry that stopped reporting undoable stays where it is
	top := e.UndoHistory()[0]
	top.Command = echo{}

	ok, err := e.UndoLast(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, e.UndoHistory(), 1)
	assert.Empty(t, e.RedoHistory())
}

func TestFlush(t *testing.T) {
	st := &state{}
	e, _ := newExecutor(t, st)
	ctx := context.Background()

	for _, label := range []string{"a", "b", "c"} {
		_, err := e.Execute(ctx, "test.counter", command.Arguments{"label": label})
		require.NoError(t, err)
	}
	_, err := e.UndoLast(ctx)
	require.NoError(t, err)

	e.Flush()

	assert.Empty(t, e.UndoHistory())
	assert.Len(t, e.RedoHistory(), 1, "flush keeps redo history")
	assert.Equal(t, 1, st.undos, "flush never calls UndoIt")
	assert.ElementsMatch(t, []string{"a", "b"}, st.disposed)

	e.Flush()
	assert.Empty(t, e.UndoHistory())
}

func TestTelemetry_AlwaysFinalized(t *testing.T) {
	e, rec := newExecutor(t, &state{})
	ctx := context.Background()

	_, err := e.Execute(ctx, "test.echo", nil)
	require.NoError(t, err)
	ok := rec.last()
	require.NotNil(t, ok)
	assert.Equal(t, telemetry.StatusSucceeded, ok.Status)
	assert.Greater(t, int64(ok.ExecutionTime), int64(0))
	assert.Empty(t, ok.Trace)
	assert.Equal(t, DefaultHostName, ok.Host)

	_, err = e.Execute(ctx, "test.flaky", nil)
	require.Error(t, err)
	bad := rec.last()
	require.NotNil(t, bad)
	assert.Equal(t, telemetry.StatusFailed, bad.Status)
	assert.Greater(t, int64(bad.ExecutionTime), int64(0))
	assert.NotEmpty(t, bad.Trace)
	assert.Contains(t, bad.Trace, "scene locked")
}

func TestExecute_FailureReturnedUnchangedAndInstanceKept(t *testing.T) {
	boom := errors.New("scene locked")
	e := New(newRegistry())
	e.Register(flakyDef(boom))

	_, err := e.Execute(context.Background(), "test.flaky", nil)

	assert.Same(t, boom, err)
	history := e.UndoHistory()
	require.Len(t, history, 1, "a failed instance stays on undo history")
	assert.True(t, history[0].Telemetry.Failed())
}

func TestExecute_NotFound(t *testing.T) {
	e, _ := newExecutor(t, &state{})

	_, err := e.Execute(context.Background(), "test.missing", nil)

	require.ErrorIs(t, err, cmderrors.ErrNotFound)
	assert.Contains(t, err.Error(), "test.missing")
}

func TestExecute_Disabled(t *testing.T) {
	ran := false
	e := New(newRegistry())
	e.Register(command.Define(func() command.Command { return disabled{ran: &ran} }))

	_, err := e.Execute(context.Background(), "test.disabled", nil)

	require.ErrorIs(t, err, cmderrors.ErrDisabled)
	assert.False(t, ran)
}

func TestExecute_Cancelled(t *testing.T) {
	e, rec := newExecutor(t, &state{})
	ctx := context.Background()

	_, err := e.Execute(ctx, "test.picker", command.Arguments{"cancel": true})

	require.True(t, cmderrors.IsCancelled(err))
	_, isKind := cmderrors.KindOf(err)
	assert.False(t, isKind, "cancellation is not an error kind")
	assert.Empty(t, e.UndoHistory())
	assert.Empty(t, rec.records)

	got, err := e.Execute(ctx, "test.picker", nil)
	require.NoError(t, err)
	assert.Equal(t, "picked", got)
	assert.Len(t, e.UndoHistory(), 1)
}

func TestExecute_PanicRecovered(t *testing.T) {
	e, rec := newExecutor(t, &state{})

	var err error
	require.NotPanics(t, func() {
		_, err = e.Execute(context.Background(), "test.panic", nil)
	})

	require.ErrorIs(t, err, cmderrors.ErrExecution)
	assert.Contains(t, err.Error(), "scene graph corrupted")
	failed := rec.last()
	require.NotNil(t, failed)
	assert.Equal(t, telemetry.StatusFailed, failed.Status)
	assert.Contains(t, failed.Trace, "panic: scene graph corrupted")
	assert.Contains(t, failed.Trace, "goroutine")
}

func TestUndoLast_Failure(t *testing.T) {
	st := &state{}
	e, _ := newExecutor(t, st)
	ctx := context.Background()
	_, err := e.Execute(ctx, "test.counter", nil)
	require.NoError(t, err)

	st.undoErr = errors.New("node deleted")
	ok, err := e.UndoLast(ctx)

	require.ErrorIs(t, err, cmderrors.ErrUndo)
	assert.ErrorIs(t, err, st.undoErr)
	assert.False(t, ok)
	assert.Len(t, e.UndoHistory(), 1, "a failed undo leaves the instance on undo history")
	assert.Empty(t, e.RedoHistory())

	st.undoErr = nil
	ok, err = e.UndoLast(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedoLast(t *testing.T) {
	st := &state{}
	e, rec := newExecutor(t, st)
	ctx := context.Background()

	ok, err := e.RedoLast(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = e.Execute(ctx, "test.counter", command.Arguments{"label": "x"})
	require.NoError(t, err)
	_, err = e.UndoLast(ctx)
	require.NoError(t, err)
	first := e.RedoHistory()[0].Telemetry

	ok, err = e.RedoLast(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "x", st.field)
	assert.Equal(t, []string{"do:x", "undo:x", "do:x"}, st.log)
	require.Len(t, e.UndoHistory(), 1)
	assert.Empty(t, e.RedoHistory())
	assert.NotEqual(t, first.ID, e.UndoHistory()[0].Telemetry.ID, "a replay gets its own telemetry")
	assert.Len(t, rec.records, 2)
}

func TestRedoLast_Failure(t *testing.T) {
	st := &state{}
	e, _ := newExecutor(t, st)
	ctx := context.Background()
	_, err := e.Execute(ctx, "test.counter", nil)
	require.NoError(t, err)
	_, err = e.UndoLast(ctx)
	require.NoError(t, err)

	st.doErr = errors.New("locked")
	ok, err := e.RedoLast(ctx)

	require.ErrorIs(t, err, cmderrors.ErrRedo)
	assert.False(t, ok)
	assert.Len(t, e.RedoHistory(), 1)
	assert.Empty(t, e.UndoHistory())
}

func TestHistoryDepth(t *testing.T) {
	st := &state{}
	e, _ := newExecutor(t, st, WithHistoryDepth(2))
	ctx := context.Background()

	for _, label := range []string{"a", "b", "c"} {
		_, err := e.Execute(ctx, "test.counter", command.Arguments{"label": label})
		require.NoError(t, err)
	}

	history := e.UndoHistory()
	require.Len(t, history, 2)
	assert.Equal(t, "b", history[0].Arguments["label"])
	assert.Equal(t, "c", history[1].Arguments["label"])
	assert.Equal(t, []string{"a"}, st.disposed)
	assert.Equal(t, 0, st.undos)
}

func TestRegisterEnv(t *testing.T) {
	modules := registry.NewModuleTable()
	modules.Provide("studio.tests",
		command.Define(func() command.Command { return echo{} }),
		counterDef(&state{}),
	)
	reg := registry.New(nil, registry.WithModules(modules))
	e := New(reg)

	t.Setenv("CMDKIT_TEST_COMMANDS", "studio.tests")
	added, err := e.RegisterEnv("CMDKIT_TEST_COMMANDS")
	require.NoError(t, err)
	assert.True(t, added)
	assert.Len(t, e.Commands(), 2)

	added, err = e.RegisterEnv("CMDKIT_TEST_COMMANDS")
	require.NoError(t, err)
	assert.False(t, added, "nothing new on the second pass")

	// a second executor over the same registry still gets the entries
	other := New(reg)
	added, err = other.RegisterEnv("CMDKIT_TEST_COMMANDS")
	require.NoError(t, err)
	assert.True(t, added)

	_, err = e.RegisterEnv("CMDKIT_TEST_UNSET_VARIABLE")
	require.ErrorIs(t, err, cmderrors.ErrConfiguration)
	assert.Contains(t, err.Error(), "CMDKIT_TEST_UNSET_VARIABLE")
}

func TestExecute_Spans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	e, _ := newExecutor(t, &state{}, WithTracer(tp.Tracer("test")), WithHostName("memhost"))
	ctx := context.Background()

	_, err := e.Execute(ctx, "test.counter", nil)
	require.NoError(t, err)
	_, err = e.UndoLast(ctx)
	require.NoError(t, err)
	_, err = e.RedoLast(ctx)
	require.NoError(t, err)
	_, err = e.Execute(ctx, "test.flaky", nil)
	require.Error(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 4)
	names := []string{spans[0].Name(), spans[1].Name(), spans[2].Name(), spans[3].Name()}
	assert.Equal(t, []string{"cmdkit.execute", "cmdkit.undo", "cmdkit.redo", "cmdkit.execute"}, names)
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[3].Status().Code)

	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "test.counter", attrs["cmdkit.command.id"])
	assert.Equal(t, "memhost", attrs["cmdkit.host"])
	assert.Equal(t, "true", attrs["cmdkit.command.undoable"])
}

func TestInitializeFailure(t *testing.T) {
	e := New(newRegistry())
	e.Register(command.Define(func() command.Command { return &initFails{} }))

	_, err := e.Execute(context.Background(), "test.initFails", nil)

	require.ErrorIs(t, err, cmderrors.ErrExecution)
	assert.Contains(t, err.Error(), "no active scene")
	assert.Empty(t, e.UndoHistory())
}

type initFails struct {
	command.Base
}

func (*initFails) ID() string                                           { return "test.initFails" }
func (*initFails) Creator() string                                      { return "tests" }
func (*initFails) IsUndoable() bool                                     { return true }
func (*initFails) Initialize() error                                    { return errors.New("no active scene") }
func (*initFails) DoIt(context.Context, command.Arguments) (any, error) { return nil, nil }
