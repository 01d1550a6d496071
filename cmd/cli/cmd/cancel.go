package cmd

import (
	"errors"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel [run_id]",
	Short: "Cancel a run or every run in a scope",
	Long: `Cancel one run by ID, or every active run sharing a scope key with --scope.

The run is killed and settles with the given reason (default manual-cancel).
Cancelling a run that already finished reports its final state and changes nothing.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, _ := cmd.Flags().GetString("scope")
		reason, _ := cmd.Flags().GetString("reason")

		if (scope == "") == (len(args) == 0) {
			return errors.New("provide either a run ID or --scope")
		}

		client := newClient()
		if scope != "" {
			resp, err := client.CancelScope(scope, reason)
			if err != nil {
				return err
			}
			cmd.Printf("Cancelled %d run(s) in scope %s\n", resp.Cancelled, resp.ScopeKey)
			return nil
		}

		run, err := client.CancelRun(args[0], reason)
		if err != nil {
			return err
		}
		if run.TerminationReason != "" {
			cmd.Printf("Run %s already finished: %s\n", run.RunID, colorizeStatus(runStatus(*run)))
			return nil
		}
		cmd.Printf("Cancel requested for run %s\n", run.RunID)
		return nil
	},
}

func init() {
	cancelCmd.Flags().String("scope", "", "Cancel every active run in this scope")
	cancelCmd.Flags().String("reason", "", "Termination reason: manual-cancel, overall-timeout or no-output-timeout")
	rootCmd.AddCommand(cancelCmd)
}
