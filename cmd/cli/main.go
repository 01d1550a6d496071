// Package main is the entry point for runctl.
// runctl talks to the runplane daemon and can also supervise a command locally.
package main

import (
	"errors"
	"os"

	"runplane/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		var exitErr *cmd.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
