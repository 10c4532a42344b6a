package plugin

import (
	"context"
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.uber.org/zap"

	"github.com/dshills/cmdkit/pkg/command"
	"github.com/dshills/cmdkit/pkg/validation"
)

// Signatures a Go source command declares.
type (
	doItFunc   = func(map[string]interface{}) (interface{}, error)
	undoItFunc = func() error
)

// blockedImports lists the packages a Go source command may not import.
var blockedImports = map[string]bool{
	"os/exec":  true,
	"syscall":  true,
	"unsafe":   true,
	"net":      true,
	"net/http": true,
	"plugin":   true,
	"runtime":  true,
}

// SourceLoader interprets Go source files as commands with yaegi. A file
// declares, at package level:
//
//	var ID = "text.upper"
//	var Creator = "pipeline"
//	var Undoable = true                                     // optional
//	var Parameters = map[string]interface{}{"text": "hi"}   // optional
//	var Required = []string{"target"}                       // optional
//	func DoIt(args map[string]interface{}) (interface{}, error)
//	func UndoIt() error                                     // required when Undoable
//
// Only standard library imports are available. Each command instance runs in
// its own interpreter, so package-level variables hold per-instance state.
type SourceLoader struct {
	logger *zap.Logger
}

// NewSourceLoader creates a loader for .go command files.
func NewSourceLoader(logger *zap.Logger) *SourceLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SourceLoader{logger: logger.Named("gosource")}
}

// Extensions implements registry.Loader.
func (l *SourceLoader) Extensions() []string {
	return []string{".go"}
}

// Load implements registry.Loader. The file is interpreted once to read its
// identity; the definition's factory interprets it again per instance.
// Registering the definition does not interpret it again.
func (l *SourceLoader) Load(path string) ([]command.Definition, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source: %w", err)
	}
	pkg, err := checkSource(path, src)
	if err != nil {
		return nil, err
	}

	probe, err := interpret(pkg, src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := validation.ValidateCommandID(probe.id); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrInvalidSource, err)
	}
	if _, err := command.DeriveSchema(probe); err != nil {
		l.logger.Warn("command declares an incomplete schema",
			zap.String("path", path),
			zap.String("command", probe.id),
			zap.Error(err),
		)
	}

	def := command.FromInstance(probe, func() command.Command {
		cmd, err := interpret(pkg, src)
		if err != nil {
			l.logger.Error("failed to interpret command source",
				zap.String("path", path),
				zap.Error(err),
			)
			return nil
		}
		return cmd
	})
	def.Module = pkg
	def.Source = path
	l.logger.Debug("loaded go source", zap.String("path", path), zap.String("command", def.ID))
	return []command.Definition{def}, nil
}

// checkSource reads the package name and rejects blocked imports.
func checkSource(path string, src []byte) (string, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, path, src, parser.ImportsOnly)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	for _, imp := range f.Imports {
		name, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidSource, err)
		}
		if blockedImports[name] {
			return "", fmt.Errorf("%w: %s imports %q", ErrInvalidSource, path, name)
		}
		if strings.Contains(strings.SplitN(name, "/", 2)[0], ".") {
			return "", fmt.Errorf("%w: %s imports non-standard package %q", ErrInvalidSource, path, name)
		}
	}
	return f.Name.Name, nil
}

// SourceCommand is a command backed by an interpreted Go source file.
type SourceCommand struct {
	command.Base
	id       string
	creator  string
	undoable bool
	params   []command.Parameter
	doIt     doItFunc
	undoIt   undoItFunc
}

// interpret evaluates src in a fresh interpreter and binds its declarations.
func interpret(pkg string, src []byte) (*SourceCommand, error) {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("failed to load stdlib: %w", err)
	}
	if _, err := i.Eval(string(src)); err != nil {
		return nil, fmt.Errorf("%w: evaluation failed: %v", ErrInvalidSource, err)
	}

	cmd := &SourceCommand{}
	var ok bool

	if cmd.id, ok = lookup[string](i, pkg, "ID"); !ok {
		return nil, fmt.Errorf("%w: ID must be a string", ErrInvalidSource)
	}
	if cmd.creator, ok = lookup[string](i, pkg, "Creator"); !ok {
		return nil, fmt.Errorf("%w: Creator must be a string", ErrInvalidSource)
	}
	if cmd.doIt, ok = lookup[doItFunc](i, pkg, "DoIt"); !ok {
		return nil, fmt.Errorf("%w: DoIt must be func(map[string]interface{}) (interface{}, error)", ErrInvalidSource)
	}
	cmd.undoable, _ = lookup[bool](i, pkg, "Undoable")
	cmd.undoIt, _ = lookup[undoItFunc](i, pkg, "UndoIt")
	if cmd.undoable && cmd.undoIt == nil {
		return nil, fmt.Errorf("%w: undoable command %q declares no UndoIt", ErrInvalidSource, cmd.id)
	}

	defaults, _ := lookup[map[string]interface{}](i, pkg, "Parameters")
	required, _ := lookup[[]string](i, pkg, "Required")
	cmd.params = sourceParameters(defaults, required)
	return cmd, nil
}

// lookup evaluates pkg.name and asserts its type. A missing symbol or a
// mismatched type reports false.
func lookup[T any](i *interp.Interpreter, pkg, name string) (T, bool) {
	var zero T
	v, err := i.Eval(pkg + "." + name)
	if err != nil || !v.IsValid() || !v.CanInterface() {
		return zero, false
	}
	if v.Kind() == reflect.Func && v.IsNil() {
		return zero, false
	}
	t, ok := v.Interface().(T)
	return t, ok
}

// sourceParameters orders parameters by name since a map has no order.
// Required names are appended without a default.
func sourceParameters(defaults map[string]interface{}, required []string) []command.Parameter {
	names := make([]string, 0, len(defaults))
	for name := range defaults {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]command.Parameter, 0, len(names)+len(required))
	for _, name := range names {
		params = append(params, command.Param(name, defaults[name]))
	}
	for _, name := range required {
		if _, ok := defaults[name]; ok {
			continue
		}
		params = append(params, command.RequiredParam(name))
	}
	return params
}

func (c *SourceCommand) ID() string                      { return c.id }
func (c *SourceCommand) Creator() string                 { return c.creator }
func (c *SourceCommand) IsUndoable() bool                { return c.undoable }
func (c *SourceCommand) Parameters() []command.Parameter { return c.params }

// DoIt calls the interpreted DoIt with a copy of args.
func (c *SourceCommand) DoIt(ctx context.Context, args command.Arguments) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.doIt(map[string]interface{}(args.Clone()))
}

// UndoIt calls the interpreted UndoIt, if any.
func (c *SourceCommand) UndoIt(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.undoIt == nil {
		return nil
	}
	return c.undoIt()
}
