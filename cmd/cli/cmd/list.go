package cmd

import (
	"fmt"
	"text/tabwriter"

	"runplane/pkg/api"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs known to the daemon",
	Long:  `List the runs held in the daemon's memory. Use --scope, --session and --active to narrow the result.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, _ := cmd.Flags().GetString("scope")
		session, _ := cmd.Flags().GetString("session")
		active, _ := cmd.Flags().GetBool("active")

		runs, err := newClient().ListRuns(scope, session, active)
		if err != nil {
			return err
		}

		printRuns(cmd, runs)
		return nil
	},
}

// printRuns renders runs as an aligned table.
func printRuns(cmd *cobra.Command, runs []api.RunResponse) {
	if len(runs) == 0 {
		cmd.Println("No runs found.")
		return
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tSCOPE\tSTATUS\tEXIT\tPID\tAGE")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			run.RunID,
			orDash(run.ScopeKey),
			runStatus(run),
			exitColumn(run),
			pidColumn(run.PID),
			relativeTime(run.CreatedAt),
		)
	}
	w.Flush()
}

func exitColumn(run api.RunResponse) string {
	switch {
	case run.ExitCode != nil:
		return fmt.Sprintf("%d", *run.ExitCode)
	case run.ExitSignal != "":
		return run.ExitSignal
	}
	return "-"
}

func pidColumn(pid int) string {
	if pid <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d", pid)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List finished runs from the daemon's run history",
	Long:  `Page through the finished runs persisted by the daemon (requires HISTORY_DRIVER to be postgres or sqlite).`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, _ := cmd.Flags().GetString("scope")
		reason, _ := cmd.Flags().GetString("reason")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		runs, err := newClient().ListHistory(scope, reason, limit, offset)
		if err != nil {
			return err
		}

		printRuns(cmd, runs)
		if len(runs) == limit {
			cmd.Printf("\nShowing %d runs. Use --offset %d to see more.\n", limit, offset+limit)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().String("scope", "", "Only runs in this scope")
	listCmd.Flags().String("session", "", "Only runs in this session")
	listCmd.Flags().Bool("active", false, "Only runs that have not finished")
	rootCmd.AddCommand(listCmd)

	historyCmd.Flags().String("scope", "", "Only runs in this scope")
	historyCmd.Flags().String("reason", "", "Only runs with this termination reason")
	historyCmd.Flags().Int("limit", 20, "Maximum number of runs to show")
	historyCmd.Flags().Int("offset", 0, "Number of runs to skip")
	rootCmd.AddCommand(historyCmd)
}

