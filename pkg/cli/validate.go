package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/cmdkit/pkg/command"
	"github.com/dshills/cmdkit/pkg/plugin"
)

func newValidateCommand(st *state) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a command manifest or Go source command",
		Long: `Validate a command file without registering it.

Manifests (.yaml, .yml, .json) are checked against the manifest schema, and
their ids, versions and expressions are checked. Go source files (.go) are
interpreted and their declarations checked.

Examples:
  cmdkit validate commands/scene.yaml
  cmdkit validate commands/upper.go --verbose`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("file not found: %s", path)
			}

			defs, err := loadForValidation(st, path)
			if err != nil {
				_, _ = fmt.Fprintln(cmd.OutOrStderr(), "✗ Validation failed")
				if verbose {
					_, _ = fmt.Fprintf(cmd.OutOrStderr(), "  Error: %v\n", err)
				}
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is valid (%d command(s))\n", path, len(defs))
			for _, def := range defs {
				line := "  - " + def.ID
				if v := def.VersionString(); v != "" {
					line += " " + v
				}
				if verbose {
					if probe := def.New(); probe != nil {
						schema, err := command.DeriveSchema(probe)
						if err != nil {
							line += fmt.Sprintf(" (schema: %v)", err)
						} else if names := schema.Names(); len(names) > 0 {
							line += " [" + strings.Join(names, ", ") + "]"
						}
					}
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed output")

	return cmd
}

func loadForValidation(st *state, path string) ([]command.Definition, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return plugin.NewSourceLoader(st.app.Logger).Load(path)
	case ".yaml", ".yml", ".json":
		return plugin.NewManifestLoader(st.app.Scene, st.app.Logger).Load(path)
	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
}
