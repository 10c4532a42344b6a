package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newListCommand(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List discovered commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defs := st.app.Runner.Commands()
			if len(defs) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No commands found.")
				return nil
			}

			rows := make([][]string, 0, len(defs))
			for _, def := range defs {
				undoable, enabled := "-", "-"
				if probe := def.New(); probe != nil {
					undoable = strconv.FormatBool(probe.IsUndoable())
					enabled = strconv.FormatBool(probe.IsEnabled())
				}
				rows = append(rows, []string{
					def.ID,
					def.VersionString(),
					def.Creator,
					def.Module,
					undoable,
					enabled,
				})
			}
			renderTable(cmd.OutOrStdout(), []string{"ID", "Version", "Creator", "Module", "Undoable", "Enabled"}, rows)
			return nil
		},
	}
}
