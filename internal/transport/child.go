package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// DefaultWaitDelay bounds how long output pipes are drained after the
// process exits when a grandchild still holds them open.
const DefaultWaitDelay = 2 * time.Second

// ChildRuntime implements the Runtime interface using raw OS processes.
type ChildRuntime struct {
	WaitDelay time.Duration
}

// NewChildRuntime creates a new process-based runtime.
func NewChildRuntime() *ChildRuntime {
	return &ChildRuntime{WaitDelay: DefaultWaitDelay}
}

// Start runs argv[0] with the remaining elements as arguments in its own
// process group.
func (c *ChildRuntime) Start(ctx context.Context, opts StartOptions) (Handle, error) {
	if len(opts.Argv) == 0 || opts.Argv[0] == "" {
		return nil, ErrEmptyArgv
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(opts.Argv[0], opts.Argv[1:]...)
	cmd.Dir = opts.Dir
	cmd.Env = buildEnv(opts.Env)
	cmd.Stdout = outputWriter(opts.OnStdout)
	cmd.Stderr = outputWriter(opts.OnStderr)
	cmd.WaitDelay = c.WaitDelay
	setProcGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", opts.Argv[0], err)
	}

	h := &childHandle{
		cmd:   cmd,
		stdin: stdin,
		done:  make(chan struct{}),
	}
	go h.reap()
	return h, nil
}

type childHandle struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	done    chan struct{}
	result  ExitResult
	waitErr error

	disposeOnce sync.Once
}

func (h *childHandle) reap() {
	err := h.cmd.Wait()
	h.result, h.waitErr = exitResult(h.cmd.ProcessState, err)
	close(h.done)
}

func (h *childHandle) PID() int { return h.cmd.Process.Pid }

func (h *childHandle) Stdin() io.WriteCloser { return h.stdin }

func (h *childHandle) Wait(ctx context.Context) (ExitResult, error) {
	select {
	case <-h.done:
		return h.result, h.waitErr
	case <-ctx.Done():
		return ExitResult{}, ctx.Err()
	}
}

func (h *childHandle) Kill(sig os.Signal) error {
	select {
	case <-h.done:
		return nil
	default:
	}
	return signalGroup(h.cmd.Process, sig)
}

func (h *childHandle) Dispose() error {
	h.disposeOnce.Do(func() {
		_ = h.stdin.Close() // Best-effort: the pipe may already be closed.
		select {
		case <-h.done:
		default:
			_ = signalGroup(h.cmd.Process, os.Kill)
		}
	})
	return nil
}

// outputWriter adapts an OutputFunc to the io.Writer os/exec copies into.
type outputWriter OutputFunc

func (w outputWriter) Write(p []byte) (int, error) {
	if w != nil {
		w(p)
	}
	return len(p), nil
}

// exitResult converts the outcome of exec.Cmd.Wait into an ExitResult.
// A non-zero exit or a signal is a normal result, not an error.
func exitResult(state *os.ProcessState, err error) (ExitResult, error) {
	if state == nil {
		if err == nil {
			err = errors.New("process state unavailable")
		}
		return ExitResult{}, err
	}

	var ee *exec.ExitError
	if err != nil && !errors.As(err, &ee) && !errors.Is(err, exec.ErrWaitDelay) {
		return ExitResult{}, err
	}

	if status, ok := state.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return ExitResult{Signal: signalName(status.Signal())}, nil
	}
	code := state.ExitCode()
	return ExitResult{Code: &code}, nil
}
