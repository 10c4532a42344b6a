package plugin

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/dshills/cmdkit/pkg/command"
	cmderrors "github.com/dshills/cmdkit/pkg/errors"
	"github.com/dshills/cmdkit/pkg/host"
)

// ScriptCommand is a command declared in a manifest. DoIt writes the
// manifest's set expressions into the host scene and UndoIt puts back what
// was there before.
type ScriptCommand struct {
	command.Base
	spec       *CommandSpec
	argsSchema *gojsonschema.Schema
	scene      host.Scene
	eval       *Evaluator

	changes []change
}

// change is one attribute write and what it replaced.
type change struct {
	path     string
	previous any
	existed  bool
}

func newScriptCommand(spec *CommandSpec, argsSchema *gojsonschema.Schema, scene host.Scene, eval *Evaluator) *ScriptCommand {
	return &ScriptCommand{
		spec:       spec,
		argsSchema: argsSchema,
		scene:      scene,
		eval:       eval,
	}
}

func (c *ScriptCommand) ID() string             { return c.spec.ID }
func (c *ScriptCommand) Creator() string        { return c.spec.Creator }
func (c *ScriptCommand) IsUndoable() bool       { return c.spec.Undoable }
func (c *ScriptCommand) UIData() command.UIData { return c.spec.UI }

// IsEnabled defaults to true when the manifest omits enabled.
func (c *ScriptCommand) IsEnabled() bool {
	return c.spec.Enabled == nil || *c.spec.Enabled
}

// Parameters maps the manifest parameters in declaration order.
func (c *ScriptCommand) Parameters() []command.Parameter {
	params := make([]command.Parameter, 0, len(c.spec.Parameters))
	for _, p := range c.spec.Parameters {
		param := command.Param(p.Name, p.Default)
		if p.Required {
			param = command.RequiredParam(p.Name)
		}
		param.Description = p.Description
		params = append(params, param)
	}
	return params
}

// ResolveArguments validates args against arguments_schema and then evaluates
// cancel_if, cancelling the invocation when it is true.
func (c *ScriptCommand) ResolveArguments(args command.Arguments) (command.Arguments, error) {
	if c.argsSchema != nil {
		result, err := c.argsSchema.Validate(gojsonschema.NewGoLoader(map[string]any(args)))
		if err != nil {
			return nil, cmderrors.New(cmderrors.KindUnacceptedArguments, "resolve arguments", c.ID(), err)
		}
		if !result.Valid() {
			msgs := make([]string, 0, len(result.Errors()))
			for _, desc := range result.Errors() {
				msgs = append(msgs, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
			}
			cause := fmt.Errorf("arguments do not match schema: %s", strings.Join(msgs, "; "))
			return nil, cmderrors.New(cmderrors.KindUnacceptedArguments, "resolve arguments", c.ID(), cause)
		}
	}

	if c.spec.CancelIf != "" {
		cancel, err := c.eval.EvaluateBool(c.spec.CancelIf, Env(args, c.scene))
		if err != nil {
			return nil, fmt.Errorf("cancel_if: %w", err)
		}
		if cancel {
			msg := c.spec.CancelMessage
			if msg == "" {
				msg = fmt.Sprintf("%s cancelled", c.ID())
			}
			return nil, c.Cancel(msg)
		}
	}
	return args, nil
}

// DoIt applies the set entries in key order. Attribute paths may reference
// arguments as ${name}. A failing entry rolls back the ones already applied.
func (c *ScriptCommand) DoIt(ctx context.Context, args command.Arguments) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.scene == nil {
		return nil, fmt.Errorf("%s: no scene to act on", c.ID())
	}

	c.changes = c.changes[:0]
	env := Env(args, c.scene)
	for _, key := range sortedKeys(c.spec.Set) {
		path := expandPath(key, args)
		value, err := c.eval.Evaluate(c.spec.Set[key], env)
		if err != nil {
			c.rollback()
			return nil, fmt.Errorf("set %s: %w", path, err)
		}
		previous, existed := c.scene.Attr(path)
		c.changes = append(c.changes, change{path: path, previous: previous, existed: existed})
		c.scene.SetAttr(path, value)
	}

	if c.spec.Result == "" {
		return nil, nil
	}
	result, err := c.eval.Evaluate(c.spec.Result, env)
	if err != nil {
		c.rollback()
		return nil, fmt.Errorf("result: %w", err)
	}
	return result, nil
}

// UndoIt restores the attributes written by the last DoIt.
func (c *ScriptCommand) UndoIt(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.rollback()
	return nil
}

func (c *ScriptCommand) rollback() {
	for i := len(c.changes) - 1; i >= 0; i-- {
		ch := c.changes[i]
		if ch.existed {
			c.scene.SetAttr(ch.path, ch.previous)
		} else {
			c.scene.DeleteAttr(ch.path)
		}
	}
	c.changes = c.changes[:0]
}

func expandPath(key string, args command.Arguments) string {
	return os.Expand(key, func(name string) string {
		v, ok := args[name]
		if !ok {
			return ""
		}
		return fmt.Sprint(v)
	})
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
