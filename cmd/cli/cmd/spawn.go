package cmd

import (
	"time"

	"runplane/pkg/api"

	"github.com/spf13/cobra"
)

var spawnCmd = &cobra.Command{
	Use:   "spawn [flags] -- command [args...]",
	Short: "Start a run on the daemon",
	Long: `Start a supervised run on the runplane daemon.

Without --wait the run is accepted and its ID printed; use "runctl status" to follow it.
With --wait the command blocks until the run settles and prints the exit report.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := runRequest(cmd, args)
		if err != nil {
			return err
		}

		client := newClient()
		if wait, _ := cmd.Flags().GetBool("wait"); wait {
			exit, err := client.SpawnRunAndWait(req)
			if err != nil {
				return err
			}
			printExit(cmd, *exit)
			return nil
		}

		resp, err := client.SpawnRun(req)
		if err != nil {
			return err
		}

		cmd.Printf("Run started successfully\n")
		cmd.Printf("Run ID: %s\n", resp.RunID)
		cmd.Printf("PID: %d\n", resp.PID)
		return nil
	},
}

// printExit writes an exit report: captured output first, then a summary.
func printExit(cmd *cobra.Command, exit api.RunExitResponse) {
	if exit.Stdout != "" {
		cmd.Print(exit.Stdout)
	}
	if exit.Stderr != "" {
		cmd.PrintErr(exit.Stderr)
	}

	cmd.Println(exitLine(exit))
	if exit.Error != "" {
		cmd.Printf("%sError:%s %s\n", colorDim, colorReset, exit.Error)
	}
}

func init() {
	addRunFlags(spawnCmd)
	spawnCmd.Flags().Bool("wait", false, "Block until the run settles and print its exit report")
	rootCmd.AddCommand(spawnCmd)
}

func msDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
