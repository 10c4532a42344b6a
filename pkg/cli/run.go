package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	cmderrors "github.com/dshills/cmdkit/pkg/errors"
)

func newRunCommand(st *state) *cobra.Command {
	var (
		jsonArgs   string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "run <command-id> [key=value ...]",
		Short: "Execute a command once",
		Long: `Execute a command with the given arguments and print its result.

Values are decoded as JSON literals when they are valid JSON, otherwise they
are passed as strings. --args supplies a JSON object; key=value pairs win over
it.

Examples:
  cmdkit run cmdkit.echo value=hello
  cmdkit run cmdkit.scene.set path=cube.tx value=2.5
  cmdkit run scene.rename --args '{"node": "cam", "name": "shot cam"}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdArgs, err := ParseArguments(args[1:], jsonArgs)
			if err != nil {
				return err
			}

			result, err := st.app.Runner.Execute(cmd.Context(), args[0], cmdArgs)
			if cmderrors.IsCancelled(err) {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), err.Error())
				return nil
			}
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			if result != nil {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), formatValue(result))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&jsonArgs, "args", "", "Arguments as a JSON object")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")

	return cmd
}
