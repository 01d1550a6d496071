//go:build !windows

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"
)

// PTYRuntime runs commands inside an interactive shell attached to a
// pseudo-terminal, so shell built-ins and pipelines behave as typed.
type PTYRuntime struct {
	Shell ShellResolver
	Rows  uint16
	Cols  uint16

	// DrainDelay bounds how long terminal output is read after the shell
	// exits while something else keeps the terminal open.
	DrainDelay time.Duration
}

// NewPTYRuntime creates a pty runtime. A nil resolver uses DefaultShell.
func NewPTYRuntime(shell ShellResolver) *PTYRuntime {
	if shell == nil {
		shell = DefaultShell()
	}
	return &PTYRuntime{
		Shell:      shell,
		Rows:       24,
		Cols:       80,
		DrainDelay: DefaultWaitDelay,
	}
}

// Start resolves the shell and runs the joined argv as one command line.
func (p *PTYRuntime) Start(ctx context.Context, opts StartOptions) (Handle, error) {
	if len(opts.Argv) == 0 {
		return nil, ErrEmptyArgv
	}

	sh, err := p.Shell.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve shell: %w", err)
	}
	if sh.Shell == "" {
		return nil, errors.New("failed to resolve shell: empty shell path")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	args := append(append([]string{}, sh.Args...), strings.Join(opts.Argv, " "))
	cmd := exec.Command(sh.Shell, args...)
	cmd.Dir = opts.Dir
	env := opts.Env
	if _, ok := env["TERM"]; !ok && os.Getenv("TERM") == "" {
		env = withTerm(env)
	}
	cmd.Env = buildEnv(env)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: p.Rows, Cols: p.Cols})
	if err != nil {
		return nil, fmt.Errorf("failed to start %s on pty: %w", sh.Shell, err)
	}

	h := &ptyHandle{
		cmd:        cmd,
		ptmx:       ptmx,
		onOutput:   opts.OnStdout,
		drainDelay: p.DrainDelay,
		readDone:   make(chan struct{}),
		done:       make(chan struct{}),
	}
	go h.readLoop()
	go h.reap()
	return h, nil
}

func withTerm(env map[string]string) map[string]string {
	out := make(map[string]string, len(env)+1)
	for k, v := range env {
		out[k] = v
	}
	out["TERM"] = "xterm-256color"
	return out
}

type ptyHandle struct {
	cmd        *exec.Cmd
	ptmx       *os.File
	drainDelay time.Duration

	// mu serializes output delivery against closing the stream, so no
	// callback fires once Wait has resolved.
	mu       sync.Mutex
	onOutput OutputFunc
	closed   bool

	readDone chan struct{}
	done     chan struct{}
	result   ExitResult
	waitErr  error

	closeOnce sync.Once
}

func (h *ptyHandle) readLoop() {
	defer close(h.readDone)
	buf := make([]byte, 4096)
	for {
		n, err := h.ptmx.Read(buf)
		if n > 0 {
			h.deliver(buf[:n])
		}
		if err != nil {
			// EIO once the last slave descriptor closes.
			return
		}
	}
}

func (h *ptyHandle) deliver(chunk []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.onOutput == nil {
		return
	}
	h.onOutput(chunk)
}

func (h *ptyHandle) reap() {
	err := h.cmd.Wait()

	select {
	case <-h.readDone:
	case <-time.After(h.drainDelay):
		h.closePTY()
	}

	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	h.result, h.waitErr = exitResult(h.cmd.ProcessState, err)
	close(h.done)
}

func (h *ptyHandle) closePTY() {
	h.closeOnce.Do(func() {
		_ = h.ptmx.Close()
	})
}

func (h *ptyHandle) PID() int { return h.cmd.Process.Pid }

func (h *ptyHandle) Stdin() io.WriteCloser { return ptyInput{h} }

func (h *ptyHandle) Wait(ctx context.Context) (ExitResult, error) {
	select {
	case <-h.done:
		return h.result, h.waitErr
	case <-ctx.Done():
		return ExitResult{}, ctx.Err()
	}
}

func (h *ptyHandle) Kill(sig os.Signal) error {
	select {
	case <-h.done:
		return nil
	default:
	}
	return signalGroup(h.cmd.Process, sig)
}

func (h *ptyHandle) Dispose() error {
	select {
	case <-h.done:
	default:
		_ = signalGroup(h.cmd.Process, os.Kill)
	}
	h.closePTY()
	return nil
}

// ptyInput writes to the terminal. Close sends end-of-transmission instead
// of closing the terminal, which stays open until Dispose.
type ptyInput struct {
	h *ptyHandle
}

func (in ptyInput) Write(p []byte) (int, error) {
	return in.h.ptmx.Write(p)
}

func (in ptyInput) Close() error {
	_, err := in.h.ptmx.Write([]byte{0x04})
	return err
}
