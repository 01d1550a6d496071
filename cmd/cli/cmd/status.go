package cmd

import (
	"fmt"
	"time"

	"runplane/pkg/api"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [run_id]",
	Short: "Get status of a run",
	Long:  `Retrieve detailed status information for a run, including its lifecycle state (starting, running, exiting, exited), termination reason, exit code or signal, and timestamps.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		run, err := newClient().GetRun(args[0])
		if err != nil {
			return err
		}

		printStatus(cmd, *run)
		return nil
	},
}

func printStatus(cmd *cobra.Command, run api.RunResponse) {
	status := runStatus(run)

	cmd.Printf("%s %sRun Details%s\n", statusIcon(status), colorBold, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sID:%s          %s\n", colorDim, colorReset, run.RunID)
	if run.ScopeKey != "" {
		cmd.Printf("%sScope:%s       %s\n", colorDim, colorReset, run.ScopeKey)
	}
	if run.SessionID != "" {
		cmd.Printf("%sSession:%s     %s\n", colorDim, colorReset, run.SessionID)
	}
	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(status))

	if run.PID > 0 {
		cmd.Printf("%sPID:%s         %d\n", colorDim, colorReset, run.PID)
	}

	switch {
	case run.ExitCode != nil && *run.ExitCode == 0:
		cmd.Printf("%sExit Code:%s   %s%d%s\n", colorDim, colorReset, colorGreen, *run.ExitCode, colorReset)
	case run.ExitCode != nil:
		cmd.Printf("%sExit Code:%s   %s%d%s\n", colorDim, colorReset, colorRed, *run.ExitCode, colorReset)
	case run.ExitSignal != "":
		cmd.Printf("%sSignal:%s      %s%s%s\n", colorDim, colorReset, colorRed, run.ExitSignal, colorReset)
	default:
		cmd.Printf("%sExit Code:%s   -\n", colorDim, colorReset)
	}

	cmd.Printf("%sStarted:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(run.StartedAt))
	if run.LastOutputAt != nil {
		cmd.Printf("%sLast Output:%s %s\n", colorDim, colorReset, formatTimeWithRelative(run.LastOutputAt))
	}

	if run.TerminationReason != "" {
		finished := run.UpdatedAt
		if run.StartedAt != nil {
			cmd.Printf("%sFinished:%s    %s %s(%s)%s\n", colorDim, colorReset,
				formatTimeWithRelative(&finished),
				colorCyan, formatDuration(finished.Sub(*run.StartedAt)), colorReset)
		} else {
			cmd.Printf("%sFinished:%s    %s\n", colorDim, colorReset, formatTimeWithRelative(&finished))
		}
	} else {
		cmd.Printf("%sFinished:%s    -\n", colorDim, colorReset)
	}
}

// runStatus collapses state and termination reason into one display word.
// Finished runs show their reason, live runs their state.
func runStatus(run api.RunResponse) string {
	if run.TerminationReason == "" {
		return run.State
	}
	if run.TerminationReason == "exit" && run.ExitCode != nil && *run.ExitCode != 0 {
		return "failed"
	}
	return run.TerminationReason
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusColor(status string) string {
	switch status {
	case "exit":
		return colorGreen
	case "failed", "signal", "spawn-error", "overall-timeout", "no-output-timeout":
		return colorRed
	case "running", "exiting", "manual-cancel":
		return colorYellow
	case "starting":
		return colorCyan
	default:
		return ""
	}
}

func statusIcon(status string) string {
	switch status {
	case "exit":
		return colorGreen + "✓" + colorReset
	case "failed", "signal", "spawn-error":
		return colorRed + "✗" + colorReset
	case "overall-timeout", "no-output-timeout":
		return colorRed + "⌛" + colorReset
	case "manual-cancel":
		return colorYellow + "⊘" + colorReset
	case "running", "exiting":
		return colorYellow + "⏳" + colorReset
	case "starting":
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(status string) string {
	color := statusColor(status)
	if color == "" {
		return status
	}
	return statusIcon(status) + " " + color + status + colorReset
}

func formatTimeWithRelative(t *time.Time) string {
	if t == nil {
		return "-"
	}
	relative := relativeTime(*t)
	return fmt.Sprintf("%s %s(%s ago)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relative, colorReset)
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)

	switch {
	case duration < time.Minute:
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	case duration < time.Hour:
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	case duration < 24*time.Hour:
		return fmt.Sprintf("%dh", int(duration.Hours()))
	}

	days := int(duration.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
