// Package builtin provides the commands every cmdkit process carries.
//
// The process-independent ones are added to registry.DefaultModules under
// Module from init. Scene commands need the scene they act on and are built
// with SceneDefinitions.
package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/dshills/cmdkit/pkg/command"
	"github.com/dshills/cmdkit/pkg/registry"
)

// Module is the dotted reference of the process-independent commands.
const Module = "cmdkit.builtin"

func init() {
	registry.DefaultModules.Provide(Module, Definitions()...)
}

// Definitions returns the process-independent commands.
func Definitions() []command.Definition {
	return []command.Definition{
		command.Define(func() command.Command { return &Echo{} }),
		command.Define(func() command.Command { return &Wait{} }),
	}
}

// Echo returns its value argument.
type Echo struct {
	command.Base
}

func (*Echo) ID() string      { return "cmdkit.echo" }
func (*Echo) Creator() string { return "cmdkit" }
func (*Echo) Parameters() []command.Parameter {
	return []command.Parameter{
		{Name: "value", Default: "", Description: "value to return"},
	}
}
func (*Echo) UIData() command.UIData {
	return command.UIData{Label: "Echo", Tooltip: "Return the value argument"}
}

func (*Echo) DoIt(_ context.Context, args command.Arguments) (any, error) {
	return args["value"], nil
}

// Wait sleeps for ms milliseconds or until the context is done.
type Wait struct {
	command.Base
}

func (*Wait) ID() string      { return "cmdkit.wait" }
func (*Wait) Creator() string { return "cmdkit" }
func (*Wait) Parameters() []command.Parameter {
	return []command.Parameter{
		{Name: "ms", Default: 0, Description: "milliseconds to wait"},
	}
}

func (*Wait) ResolveArguments(args command.Arguments) (command.Arguments, error) {
	ms, err := args.Int("ms")
	if err != nil {
		return nil, err
	}
	if ms < 0 {
		return nil, fmt.Errorf("ms must be >= 0, got %d", ms)
	}
	args["ms"] = ms
	return args, nil
}

func (*Wait) DoIt(ctx context.Context, args command.Arguments) (any, error) {
	ms, _ := args.Int("ms")
	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return ms, nil
	}
}
