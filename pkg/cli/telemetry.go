package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/cmdkit/pkg/domain/telemetry"
	"github.com/dshills/cmdkit/pkg/domain/types"
)

// TelemetryFlags holds the flags for the telemetry command
type TelemetryFlags struct {
	Command string
	Status  string
	Limit   int
	Offset  int
	JSON    bool
}

func newTelemetryCommand(st *state) *cobra.Command {
	flags := &TelemetryFlags{}

	cmd := &cobra.Command{
		Use:   "telemetry",
		Short: "List recorded executions",
		Long: `List execution telemetry, most recent first.

Telemetry is persisted to the database configured as database_path; with an
empty path it is kept in memory and only visible within one session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := telemetry.ListOptions{
				CommandID: types.CommandID(flags.Command),
				Limit:     flags.Limit,
				Offset:    flags.Offset,
			}
			if flags.Status != "" {
				status := telemetry.Status(flags.Status)
				if !status.Valid() {
					return fmt.Errorf("invalid status: %s (valid: running, succeeded, failed)", flags.Status)
				}
				opts.Status = status
			}

			records, err := st.app.Telemetry.List(opts)
			if err != nil {
				return fmt.Errorf("failed to list telemetry: %w", err)
			}

			if flags.JSON {
				if records == nil {
					records = []*telemetry.Telemetry{}
				}
				return writeJSON(cmd.OutOrStdout(), records)
			}
			if len(records) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No executions found.")
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				rows = append(rows, []string{
					truncateString(rec.ID.String(), 8),
					string(rec.CommandID),
					string(rec.Status),
					formatDuration(rec.ExecutionTime),
					rec.StartedAt.Format("2006-01-02 15:04:05"),
					truncateString(rec.Error, 40),
				})
			}
			renderTable(cmd.OutOrStdout(), []string{"ID", "Command", "Status", "Duration", "Started", "Error"}, rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.Command, "command", "", "Filter by command id")
	cmd.Flags().StringVar(&flags.Status, "status", "", "Filter by status (running, succeeded, failed)")
	cmd.Flags().IntVar(&flags.Limit, "limit", 20, "Maximum number of executions to display")
	cmd.Flags().IntVar(&flags.Offset, "offset", 0, "Number of executions to skip")
	cmd.Flags().BoolVar(&flags.JSON, "json", false, "Output as JSON")

	return cmd
}
