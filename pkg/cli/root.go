package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/cmdkit/pkg/config"
	"github.com/dshills/cmdkit/pkg/logging"
)

const (
	// Version is the current version of cmdkit
	Version = "0.1.0"
)

// state is shared by the root command and its subcommands. PersistentPreRunE
// fills it before any subcommand runs.
type state struct {
	configDir string
	debug     bool
	app       *App
}

// NewRootCommand creates the root cobra command for cmdkit
func NewRootCommand() *cobra.Command {
	st := &state{}

	cmd := &cobra.Command{
		Use:   "cmdkit",
		Short: "cmdkit - command execution with undo and redo",
		Long: `cmdkit discovers commands from Go packages, manifests and Go source files,
executes them with validated arguments, records telemetry for every run and
keeps undo and redo history.

Commands are discovered from the path list in $CMDKIT_COMMAND_PATH (the
variable name is configurable). Each element is a directory, a manifest or
Go source file, or a dotted module name such as cmdkit.scene.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(st.configDir)
			if err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}
			if st.debug {
				cfg.Debug = true
			}

			logger, err := logging.New(cfg.LogLevel, cfg.Debug)
			if err != nil {
				return err
			}

			app, err := NewApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			st.app = app
			return app.Discover()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if st.app == nil {
				return nil
			}
			return st.app.Close(cmd.Context())
		},
	}

	// Persistent flags (available to all subcommands)
	cmd.PersistentFlags().BoolVar(&st.debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&st.configDir, "config-dir", "", "Configuration directory (default: ~/.cmdkit)")

	cmd.AddCommand(newListCommand(st))
	cmd.AddCommand(newRunCommand(st))
	cmd.AddCommand(newSessionCommand(st))
	cmd.AddCommand(newTelemetryCommand(st))
	cmd.AddCommand(newValidateCommand(st))

	return cmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCommand().Execute()
}
