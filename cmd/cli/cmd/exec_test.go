//go:build !windows

package cmd

import (
	"errors"
	"strings"
	"testing"

	"runplane/internal/registry"
	"runplane/internal/supervisor"

	"golang.org/x/sys/unix"
)

func TestExecCommand_StreamsOutput(t *testing.T) {
	output, err := execute(t, "http://unused", "exec", "--id", "local-1", "--", "sh", "-c", "echo hello; echo problem >&2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{"hello\n", "problem\n", "local-1 exited with code 0"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestExecCommand_PropagatesExitCode(t *testing.T) {
	_, err := execute(t, "http://unused", "exec", "-q", "--", "sh", "-c", "exit 3")

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *ExitError, got %T: %v", err, err)
	}
	if exitErr.Code != 3 || exitErr.Reason != "exit" {
		t.Errorf("unexpected exit error: %+v", exitErr)
	}
}

func TestExecCommand_Timeout(t *testing.T) {
	output, err := execute(t, "http://unused", "exec", "--timeout", "100ms", "--", "sleep", "5")

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *ExitError, got %T: %v", err, err)
	}
	if exitErr.Code != 124 || exitErr.Reason != "overall-timeout" {
		t.Errorf("unexpected exit error: %+v", exitErr)
	}
	if !strings.Contains(output, "overall-timeout") {
		t.Errorf("expected timeout in summary, got: %s", output)
	}
}

func TestExecCommand_Input(t *testing.T) {
	output, err := execute(t, "http://unused", "exec", "-q", "--input", "piped text", "--", "cat")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output != "piped text" {
		t.Errorf("expected echoed input, got %q", output)
	}
}

func TestExecCommand_MissingBinary(t *testing.T) {
	output, err := execute(t, "http://unused", "exec", "--", "/nonexistent/runctl-test-binary")

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *ExitError, got %T: %v", err, err)
	}
	if exitErr.Reason != "spawn-error" || exitErr.Code != 1 {
		t.Errorf("unexpected exit error: %+v", exitErr)
	}
	if !strings.Contains(output, "spawn-error") {
		t.Errorf("expected spawn-error in summary, got: %s", output)
	}
}

func TestExitStatus(t *testing.T) {
	zero, two := 0, 2

	tests := []struct {
		name string
		exit supervisor.RunExit
		want int
	}{
		{"clean exit", supervisor.RunExit{Reason: registry.ReasonExit, ExitCode: &zero}, 0},
		{"exit code", supervisor.RunExit{Reason: registry.ReasonExit, ExitCode: &two}, 2},
		{"sigterm", supervisor.RunExit{Reason: registry.ReasonSignal, ExitSignal: "SIGTERM"}, 143},
		{"sigabrt", supervisor.RunExit{Reason: registry.ReasonSignal, ExitSignal: "SIGABRT"}, 128 + int(unix.SIGABRT)},
		{"sigusr1", supervisor.RunExit{Reason: registry.ReasonSignal, ExitSignal: "SIGUSR1"}, 128 + int(unix.SIGUSR1)},
		{"unknown signal", supervisor.RunExit{Reason: registry.ReasonSignal, ExitSignal: "SIGNOTREAL"}, 1},
		{"idle timeout", supervisor.RunExit{Reason: registry.ReasonNoOutputTimeout}, 124},
		{"cancel", supervisor.RunExit{Reason: registry.ReasonManualCancel}, 130},
		{"spawn error", supervisor.RunExit{Reason: registry.ReasonSpawnError}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitStatus(tt.exit); got != tt.want {
				t.Errorf("exitStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}
