package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"runplane/internal/logger"
	"runplane/internal/registry"
	"runplane/internal/supervisor"
	"runplane/internal/transport"
	"runplane/pkg/api"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// ExitError carries the exit status runctl should terminate with.
type ExitError struct {
	Code   int
	Reason string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("run ended (%s) with status %d", e.Reason, e.Code)
}

var execCmd = &cobra.Command{
	Use:   "exec [flags] -- command [args...]",
	Short: "Run a command locally under supervision",
	Long: `Run a command in-process under the same supervisor the daemon uses, without
contacting a daemon. Output streams to the terminal as it is produced; timeouts and
Ctrl-C end the run with the matching termination reason.

runctl exits with the child's exit code, 128+N for a signal exit, and 124 for a timeout.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := runRequest(cmd, args)
		if err != nil {
			return err
		}

		level := "error"
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			level = "debug"
		}

		sup := supervisor.New(registry.New(), transport.Defaults(transport.DefaultShell()), supervisor.Config{
			Logger: logger.NewWithWriter(cmd.ErrOrStderr(), level),
		})
		defer sup.Shutdown(context.Background())

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if req.RunID == "" {
			req.RunID = uuid.New().String()
		}

		exit, err := execLocal(ctx, cmd, sup, req)
		if exit.Reason == "" {
			return err
		}

		summary := api.RunExitResponse{
			RunID:      exit.RunID,
			Reason:     string(exit.Reason),
			ExitCode:   exit.ExitCode,
			ExitSignal: exit.ExitSignal,
			DurationMs: exit.Duration.Milliseconds(),
		}
		if err != nil {
			summary.Error = err.Error()
		}
		if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
			printSummary(cmd, summary)
		}

		if code := exitStatus(exit); code != 0 {
			return &ExitError{Code: code, Reason: string(exit.Reason)}
		}
		return nil
	},
}

// execLocal spawns the run with output streamed to the command's writers.
// Cancelling ctx cancels the run and waits for it to settle.
func execLocal(ctx context.Context, cmd *cobra.Command, sup *supervisor.Supervisor, req api.SpawnRunRequest) (supervisor.RunExit, error) {
	stdout := cmd.OutOrStdout()
	stderr := cmd.ErrOrStderr()

	run, err := sup.Spawn(ctx, supervisor.SpawnInput{
		RunID:           req.RunID,
		SessionID:       req.SessionID,
		BackendID:       req.BackendID,
		ScopeKey:        req.ScopeKey,
		Mode:            transport.Mode(req.Mode),
		Argv:            req.Command,
		Dir:             req.Dir,
		Env:             req.Env,
		Timeout:         msDuration(req.TimeoutMs),
		NoOutputTimeout: msDuration(req.NoOutputTimeoutMs),
		Input:           req.Input,
		KeepStdinOpen:   req.KeepStdinOpen,
		OnStdout:        func(chunk []byte) { stdout.Write(chunk) },
		OnStderr:        func(chunk []byte) { stderr.Write(chunk) },
	})
	switch {
	case errors.Is(err, transport.ErrEmptyArgv), errors.Is(err, transport.ErrUnsupportedMode):
		return supervisor.RunExit{}, err
	case errors.Is(err, supervisor.ErrSpawn):
		// The process never started; the run is already recorded as failed.
		return supervisor.RunExit{RunID: req.RunID, Reason: registry.ReasonSpawnError}, err
	case err != nil:
		return supervisor.RunExit{}, err
	}

	exit, err := run.Wait(ctx)
	if ctx.Err() == nil {
		return exit, err
	}

	run.Cancel(registry.ReasonManualCancel)
	return run.Wait(context.Background())
}

// exitStatus maps a run outcome to a shell exit status.
func exitStatus(exit supervisor.RunExit) int {
	switch exit.Reason {
	case registry.ReasonExit:
		if exit.ExitCode != nil {
			return *exit.ExitCode
		}
		return 0
	case registry.ReasonOverallTimeout, registry.ReasonNoOutputTimeout:
		return 124
	case registry.ReasonManualCancel:
		return 130
	case registry.ReasonSignal:
		if n, ok := signalNumber(exit.ExitSignal); ok {
			return 128 + n
		}
	}
	return 1
}

// printSummary writes the outcome of a local run to stderr.
func printSummary(cmd *cobra.Command, exit api.RunExitResponse) {
	cmd.PrintErrln(exitLine(exit))
	if exit.Error != "" {
		cmd.PrintErrf("%sError:%s %s\n", colorDim, colorReset, exit.Error)
	}
}

// exitLine renders an exit report as a single status line.
func exitLine(exit api.RunExitResponse) string {
	status := exit.Reason
	if status == "exit" && exit.ExitCode != nil && *exit.ExitCode != 0 {
		status = "failed"
	}

	line := fmt.Sprintf("%s %s", statusIcon(status), exit.RunID)
	switch {
	case exit.ExitCode != nil:
		line += fmt.Sprintf(" exited with code %d", *exit.ExitCode)
	case exit.ExitSignal != "":
		line += fmt.Sprintf(" killed by %s", exit.ExitSignal)
	}
	return line + fmt.Sprintf(" (%s, %s)", colorizeStatus(status), formatDuration(msDuration(exit.DurationMs)))
}

func init() {
	addRunFlags(execCmd)
	execCmd.Flags().Bool("verbose", false, "Log supervisor events to stderr")
	execCmd.Flags().BoolP("quiet", "q", false, "Do not print the run summary")
	rootCmd.AddCommand(execCmd)
}
