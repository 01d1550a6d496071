// Package transport provides the process backends a supervised run executes through.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// Mode selects the transport a run is spawned with.
type Mode string

const (
	ModeChild Mode = "child"
	ModePTY   Mode = "pty"
)

var (
	// ErrEmptyArgv is returned when a run is started without a command.
	ErrEmptyArgv = errors.New("command is required")

	// ErrUnsupportedMode is returned when no runtime is registered for a mode.
	ErrUnsupportedMode = errors.New("unsupported transport mode")
)

// Runtime defines the interface for starting processes.
// Implementations include plain child processes and pseudo-terminal sessions.
type Runtime interface {
	// Start spawns the process and returns a handle once it has a pid.
	Start(ctx context.Context, opts StartOptions) (Handle, error)
}

// OutputFunc receives a chunk of process output. The slice is only valid
// for the duration of the call.
type OutputFunc func(chunk []byte)

// StartOptions contains the parameters for starting a process.
type StartOptions struct {
	Argv []string
	Dir  string
	Env  map[string]string

	// OnStdout and OnStderr fire in arrival order for their stream.
	// A pty transport merges both streams onto OnStdout.
	OnStdout OutputFunc
	OnStderr OutputFunc
}

// ExitResult describes how a process terminated.
// Code is nil when the process was terminated by a signal.
type ExitResult struct {
	Code   *int
	Signal string
}

// Handle represents a started process.
type Handle interface {
	// PID returns the OS process id.
	PID() int

	// Stdin returns the writable input stream of the process.
	Stdin() io.WriteCloser

	// Wait blocks until the process has exited and all output callbacks
	// have fired. It may be called any number of times.
	Wait(ctx context.Context) (ExitResult, error)

	// Kill sends sig to the process. Killing an exited process is a no-op.
	Kill(sig os.Signal) error

	// Dispose releases descriptors and other OS resources. Idempotent.
	Dispose() error
}

// Runtimes maps each mode to the runtime serving it.
type Runtimes map[Mode]Runtime

// Lookup returns the runtime registered for mode.
func (r Runtimes) Lookup(mode Mode) (Runtime, error) {
	if mode == "" {
		mode = ModeChild
	}
	rt, ok := r[mode]
	if !ok || rt == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMode, mode)
	}
	return rt, nil
}

// Defaults returns the child and pty runtimes backed by the host OS.
func Defaults(shell ShellResolver) Runtimes {
	return Runtimes{
		ModeChild: NewChildRuntime(),
		ModePTY:   NewPTYRuntime(shell),
	}
}
