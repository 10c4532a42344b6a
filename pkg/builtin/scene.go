package builtin

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/cmdkit/pkg/command"
	"github.com/dshills/cmdkit/pkg/host"
	"github.com/dshills/cmdkit/pkg/registry"
)

// SceneModule is the dotted reference of the scene commands.
const SceneModule = "cmdkit.scene"

// SceneDefinitions returns the undoable attribute commands acting on scene.
func SceneDefinitions(scene host.Scene) []command.Definition {
	return []command.Definition{
		command.Define(func() command.Command { return &SetAttr{scene: scene} }),
		command.Define(func() command.Command { return &DeleteAttr{scene: scene} }),
		command.Define(func() command.Command { return &GetAttr{scene: scene} }),
	}
}

// ProvideScene adds the scene commands to t under SceneModule.
func ProvideScene(t *registry.ModuleTable, scene host.Scene) {
	t.Provide(SceneModule, SceneDefinitions(scene)...)
}

var errNoPath = errors.New("path is required")

// previous is an attribute value captured before a change.
type previous struct {
	path    string
	value   any
	existed bool
}

func capture(scene host.Scene, path string) previous {
	v, ok := scene.Attr(path)
	return previous{path: path, value: v, existed: ok}
}

func (p previous) restore(scene host.Scene) {
	if p.existed {
		scene.SetAttr(p.path, p.value)
		return
	}
	scene.DeleteAttr(p.path)
}

func requirePath(args command.Arguments) (command.Arguments, error) {
	path, err := args.String("path")
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, errNoPath
	}
	return args, nil
}

// SetAttr writes value at path.
type SetAttr struct {
	command.Base
	scene host.Scene
	prev  *previous
}

func (*SetAttr) ID() string       { return "cmdkit.scene.set" }
func (*SetAttr) Creator() string  { return "cmdkit" }
func (*SetAttr) IsUndoable() bool { return true }
func (*SetAttr) Parameters() []command.Parameter {
	return []command.Parameter{command.Param("path", ""), command.Param("value", nil)}
}
func (*SetAttr) ResolveArguments(args command.Arguments) (command.Arguments, error) {
	return requirePath(args)
}

func (c *SetAttr) DoIt(ctx context.Context, args command.Arguments) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, _ := args.String("path")
	p := capture(c.scene, path)
	c.prev = &p
	c.scene.SetAttr(path, args["value"])
	return args["value"], nil
}

func (c *SetAttr) UndoIt(context.Context) error {
	if c.prev == nil {
		return nil
	}
	c.prev.restore(c.scene)
	c.prev = nil
	return nil
}

// DeleteAttr removes the attribute at path. Deleting a missing attribute is an
// error.
type DeleteAttr struct {
	command.Base
	scene host.Scene
	prev  *previous
}

func (*DeleteAttr) ID() string       { return "cmdkit.scene.delete" }
func (*DeleteAttr) Creator() string  { return "cmdkit" }
func (*DeleteAttr) IsUndoable() bool { return true }
func (*DeleteAttr) Parameters() []command.Parameter {
	return []command.Parameter{command.Param("path", "")}
}
func (*DeleteAttr) ResolveArguments(args command.Arguments) (command.Arguments, error) {
	return requirePath(args)
}

func (c *DeleteAttr) DoIt(ctx context.Context, args command.Arguments) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, _ := args.String("path")
	p := capture(c.scene, path)
	if !p.existed {
		return nil, fmt.Errorf("no attribute at %q", path)
	}
	c.prev = &p
	c.scene.DeleteAttr(path)
	return p.value, nil
}

func (c *DeleteAttr) UndoIt(context.Context) error {
	if c.prev == nil {
		return nil
	}
	c.prev.restore(c.scene)
	c.prev = nil
	return nil
}

// GetAttr returns the attribute at path, or nil.
type GetAttr struct {
	command.Base
	scene host.Scene
}

func (*GetAttr) ID() string      { return "cmdkit.scene.get" }
func (*GetAttr) Creator() string { return "cmdkit" }
func (*GetAttr) Parameters() []command.Parameter {
	return []command.Parameter{command.Param("path", "")}
}
func (*GetAttr) ResolveArguments(args command.Arguments) (command.Arguments, error) {
	return requirePath(args)
}

func (c *GetAttr) DoIt(_ context.Context, args command.Arguments) (any, error) {
	path, _ := args.String("path")
	v, _ := c.scene.Attr(path)
	return v, nil
}
