package plugin

import (
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/dshills/cmdkit/pkg/host"
	"github.com/dshills/cmdkit/pkg/validation"
)

// Evaluator evaluates the expressions of script commands with
// github.com/expr-lang/expr. Supported:
//   - Comparison operators: >, <, >=, <=, ==, !=
//   - Logical operators: &&, ||, !
//   - Arithmetic operators: +, -, *, /, %
//   - String concatenation with +
//   - Argument references by name, or through the args map
//   - attr(path) and hasAttr(path) to read the host scene
//
// Compiled programs are cached per expression text. An Evaluator is safe for
// concurrent use.
type Evaluator struct {
	mu       sync.Mutex
	programs map[string]*vm.Program
}

// NewEvaluator creates an evaluator with an empty program cache.
func NewEvaluator() *Evaluator {
	return &Evaluator{programs: make(map[string]*vm.Program)}
}

// compileEnv declares the scene functions so calls to them are type checked.
// Argument names are unknown at compile time and resolved at run time.
var compileEnv = map[string]any{
	"args":    map[string]any{},
	"attr":    func(string) any { return nil },
	"hasAttr": func(string) bool { return false },
}

// Env builds the evaluation environment: every argument by name, the full
// argument map as args, and the scene functions. Scene functions shadow
// arguments of the same name.
func Env(args map[string]any, scene host.Scene) map[string]any {
	env := make(map[string]any, len(args)+3)
	for k, v := range args {
		env[k] = v
	}
	env["args"] = args
	env["attr"] = func(path string) any {
		if scene == nil {
			return nil
		}
		v, _ := scene.Attr(path)
		return v
	}
	env["hasAttr"] = func(path string) bool {
		if scene == nil {
			return false
		}
		_, ok := scene.Attr(path)
		return ok
	}
	return env
}

// Check compiles expression without running it.
func (e *Evaluator) Check(expression string) error {
	if err := validateExpression(expression); err != nil {
		return err
	}
	_, err := e.program(expression)
	return err
}

// Evaluate runs expression against env.
func (e *Evaluator) Evaluate(expression string, env map[string]any) (any, error) {
	if err := validateExpression(expression); err != nil {
		return nil, err
	}
	program, err := e.program(expression)
	if err != nil {
		return nil, err
	}

	result, err := vm.Run(program, env)
	if err != nil {
		if strings.Contains(err.Error(), "undefined") || strings.Contains(err.Error(), "unknown name") {
			return nil, fmt.Errorf("%w: %v", ErrUndefinedVariable, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	return result, nil
}

// EvaluateBool runs expression and requires a boolean result.
func (e *Evaluator) EvaluateBool(expression string, env map[string]any) (bool, error) {
	result, err := e.Evaluate(expression, env)
	if err != nil {
		return false, err
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %q evaluated to %T, want bool", ErrInvalidExpression, expression, result)
	}
	return b, nil
}

// Len returns the number of cached programs.
func (e *Evaluator) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.programs)
}

func (e *Evaluator) program(expression string) (*vm.Program, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if program, ok := e.programs[expression]; ok {
		return program, nil
	}

	program, err := expr.Compile(expression,
		expr.Env(compileEnv),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "undefined") {
			return nil, fmt.Errorf("%w: %v", ErrUndefinedVariable, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}

	e.programs[expression] = program
	return program, nil
}

var unsafePatterns = []string{
	"os.",
	"exec.",
	"syscall.",
	"unsafe.",
	"__proto__",
	"readfile",
	"writefile",
}

// validateExpression rejects expressions that reference host-process APIs.
func validateExpression(expression string) error {
	if strings.TrimSpace(expression) == "" {
		return fmt.Errorf("%w: empty expression", ErrInvalidExpression)
	}
	lower := strings.ToLower(expression)
	for _, pattern := range unsafePatterns {
		if containsWord(lower, pattern) {
			return fmt.Errorf("%w: %q", ErrUnsafeOperation, pattern)
		}
	}
	return nil
}

// containsWord reports whether pattern occurs in s not preceded by an
// identifier character, so "pos.x" does not match "os.".
func containsWord(s, pattern string) bool {
	for offset := 0; ; {
		i := strings.Index(s[offset:], pattern)
		if i < 0 {
			return false
		}
		i += offset
		if i == 0 || !validation.IsValidIdentifierChar(rune(s[i-1])) {
			return true
		}
		offset = i + 1
	}
}
