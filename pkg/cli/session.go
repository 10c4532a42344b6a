package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/cmdkit/pkg/command"
	cmderrors "github.com/dshills/cmdkit/pkg/errors"
	"github.com/dshills/cmdkit/pkg/executor"
)

const sessionHelp = `Commands:
  run <id> [key=value ...]   execute a command
  run <id> {json}            execute with a JSON argument object
  undo                       undo the last undoable command
  redo                       redo the last undone command
  flush                      clear undo history
  history                    show undo and redo history
  attrs                      show scene attributes
  help                       show this help
  quit                       leave the session`

func newSessionCommand(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Interactive session with undo and redo",
		Long: `Start a line-oriented session. Commands run against one executor, so undo
and redo history lasts for the whole session.

` + sessionHelp,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := &Session{app: st.app, out: cmd.OutOrStdout(), prompt: "cmdkit> "}
			return s.Run(cmd.Context(), cmd.InOrStdin())
		},
	}
}

// Session reads commands line by line and drives an App's runner.
type Session struct {
	app    *App
	out    io.Writer
	prompt string
}

// Run processes lines from in until quit or end of input. Failing commands
// are reported and the session continues.
func (s *Session) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		_, _ = fmt.Fprint(s.out, s.prompt)
		if !scanner.Scan() {
			_, _ = fmt.Fprintln(s.out)
			return scanner.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if quit := s.handle(ctx, line); quit {
			return nil
		}
	}
}

func (s *Session) handle(ctx context.Context, line string) (quit bool) {
	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch verb {
	case "quit", "exit":
		return true
	case "help", "?":
		_, _ = fmt.Fprintln(s.out, sessionHelp)
	case "run":
		s.run(ctx, rest)
	case "undo":
		ok, err := s.app.Runner.UndoLast(ctx)
		s.report("undo", ok, err)
	case "redo":
		ok, err := s.app.Runner.RedoLast(ctx)
		s.report("redo", ok, err)
	case "flush":
		s.app.Runner.Flush()
		_, _ = fmt.Fprintln(s.out, "undo history cleared")
	case "history":
		s.history()
	case "attrs":
		s.attrs()
	default:
		_, _ = fmt.Fprintf(s.out, "unknown command %q, try help\n", verb)
	}
	return false
}

func (s *Session) run(ctx context.Context, rest string) {
	id, argText, _ := strings.Cut(rest, " ")
	if id == "" {
		_, _ = fmt.Fprintln(s.out, "usage: run <id> [key=value ...]")
		return
	}

	argText = strings.TrimSpace(argText)
	var (
		args command.Arguments
		err  error
	)
	if strings.HasPrefix(argText, "{") {
		args, err = ParseArguments(nil, argText)
	} else {
		args, err = ParseArguments(strings.Fields(argText), "")
	}
	if err != nil {
		_, _ = fmt.Fprintf(s.out, "error: %v\n", err)
		return
	}

	result, err := s.app.Runner.Execute(ctx, id, args)
	switch {
	case cmderrors.IsCancelled(err):
		_, _ = fmt.Fprintln(s.out, err.Error())
	case err != nil:
		_, _ = fmt.Fprintf(s.out, "error: %v\n", err)
	case result != nil:
		_, _ = fmt.Fprintln(s.out, formatValue(result))
	default:
		_, _ = fmt.Fprintln(s.out, "ok")
	}
}

func (s *Session) report(action string, ok bool, err error) {
	switch {
	case err != nil:
		_, _ = fmt.Fprintf(s.out, "error: %v\n", err)
	case !ok:
		_, _ = fmt.Fprintf(s.out, "nothing to %s\n", action)
	default:
		_, _ = fmt.Fprintf(s.out, "%s ok\n", action)
	}
}

func (s *Session) history() {
	undo := s.app.Runner.UndoHistory()
	redo := s.app.Runner.RedoHistory()
	if len(undo) == 0 && len(redo) == 0 {
		_, _ = fmt.Fprintln(s.out, "history is empty")
		return
	}

	var rows [][]string
	// newest first, as they would be undone or redone
	for i := len(undo) - 1; i >= 0; i-- {
		rows = append(rows, historyRow("undo", len(undo)-i, undo[i]))
	}
	for i := len(redo) - 1; i >= 0; i-- {
		rows = append(rows, historyRow("redo", len(redo)-i, redo[i]))
	}
	renderTable(s.out, []string{"Stack", "#", "Command", "Status", "Arguments"}, rows)
}

func historyRow(stack string, pos int, inst *executor.Instance) []string {
	status := "-"
	if inst.Telemetry != nil {
		status = string(inst.Telemetry.Status)
	}
	return []string{
		stack,
		strconv.Itoa(pos),
		inst.ID(),
		status,
		truncateString(formatValue(inst.Arguments), 60),
	}
}

func (s *Session) attrs() {
	paths := s.app.Scene.AttrPaths()
	if len(paths) == 0 {
		_, _ = fmt.Fprintln(s.out, "scene is empty")
		return
	}
	rows := make([][]string, 0, len(paths))
	for _, path := range paths {
		v, _ := s.app.Scene.Attr(path)
		rows = append(rows, []string{path, formatValue(v)})
	}
	renderTable(s.out, []string{"Attribute", "Value"}, rows)
}
