package cmd

import (
	"fmt"
	"strings"

	"runplane/pkg/api"

	"github.com/spf13/cobra"
)

// addRunFlags registers the flags shared by spawn and exec.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("id", "", "Run ID (generated when empty)")
	cmd.Flags().String("session", "", "Session ID the run belongs to")
	cmd.Flags().String("backend", "", "Backend ID that requested the run")
	cmd.Flags().String("scope", "", "Scope key grouping related runs")
	cmd.Flags().String("mode", "child", "Transport mode: child or pty")
	cmd.Flags().String("dir", "", "Working directory")
	cmd.Flags().StringArrayP("env", "e", nil, "Environment override KEY=VALUE (repeatable)")
	cmd.Flags().Duration("timeout", 0, "Overall timeout (0 = daemon default, negative disables)")
	cmd.Flags().Duration("idle-timeout", 0, "No-output timeout (0 = daemon default, negative disables)")
	cmd.Flags().String("input", "", "Text written to stdin after start")
	cmd.Flags().Bool("keep-stdin", false, "Leave stdin open after writing input")
	cmd.Flags().Bool("replace", false, "Cancel active runs in the same scope first")

	// Everything after the first positional argument belongs to the command.
	cmd.Flags().SetInterspersed(false)
}

// runRequest builds a spawn request from the flags and the command arguments.
func runRequest(cmd *cobra.Command, args []string) (api.SpawnRunRequest, error) {
	f := cmd.Flags()

	req := api.SpawnRunRequest{Command: args}
	req.RunID, _ = f.GetString("id")
	req.SessionID, _ = f.GetString("session")
	req.BackendID, _ = f.GetString("backend")
	req.ScopeKey, _ = f.GetString("scope")
	req.Mode, _ = f.GetString("mode")
	req.Dir, _ = f.GetString("dir")
	req.Input, _ = f.GetString("input")
	req.KeepStdinOpen, _ = f.GetBool("keep-stdin")
	req.ReplaceExistingScope, _ = f.GetBool("replace")

	timeout, _ := f.GetDuration("timeout")
	idle, _ := f.GetDuration("idle-timeout")
	req.TimeoutMs = timeout.Milliseconds()
	req.NoOutputTimeoutMs = idle.Milliseconds()

	pairs, _ := f.GetStringArray("env")
	env, err := parseEnv(pairs)
	if err != nil {
		return api.SpawnRunRequest{}, err
	}
	req.Env = env

	return req, nil
}

func parseEnv(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --env %q: expected KEY=VALUE", pair)
		}
		env[key] = value
	}
	return env, nil
}
