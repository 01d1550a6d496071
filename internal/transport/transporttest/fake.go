// Package transporttest provides an in-memory transport for exercising the
// supervisor without real OS processes.
package transporttest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"runplane/internal/transport"
)

// Runtime implements transport.Runtime with scripted handles.
type Runtime struct {
	// StartFunc, when set, replaces the default behavior of returning a new Handle.
	StartFunc func(ctx context.Context, opts transport.StartOptions) (transport.Handle, error)

	// ExitOnKill makes handles resolve Wait with the kill signal as soon as
	// Kill is called, like a process that dies immediately.
	ExitOnKill bool

	mu      sync.Mutex
	nextPID int
	handles []*Handle
	started chan *Handle
}

// NewRuntime creates a fake runtime whose handles exit when killed.
func NewRuntime() *Runtime {
	return &Runtime{ExitOnKill: true, nextPID: 1000, started: make(chan *Handle, 64)}
}

func (r *Runtime) Start(ctx context.Context, opts transport.StartOptions) (transport.Handle, error) {
	if r.StartFunc != nil {
		return r.StartFunc(ctx, opts)
	}
	if len(opts.Argv) == 0 {
		return nil, transport.ErrEmptyArgv
	}

	r.mu.Lock()
	r.nextPID++
	h := &Handle{
		pid:        r.nextPID,
		opts:       opts,
		exitOnKill: r.ExitOnKill,
		done:       make(chan struct{}),
	}
	r.handles = append(r.handles, h)
	r.mu.Unlock()

	select {
	case r.started <- h:
	default:
	}
	return h, nil
}

// Started returns a channel receiving each handle as it is started.
func (r *Runtime) Started() <-chan *Handle {
	return r.started
}

// Handles returns every handle started so far.
func (r *Runtime) Handles() []*Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Handle(nil), r.handles...)
}

// Handle is a scripted process.
type Handle struct {
	pid        int
	opts       transport.StartOptions
	exitOnKill bool

	mu       sync.Mutex
	stdin    bytes.Buffer
	kills    []os.Signal
	disposed int
	exited   bool
	result   transport.ExitResult
	waitErr  error
	done     chan struct{}
}

func (h *Handle) PID() int { return h.pid }

// Argv returns the argv the handle was started with.
func (h *Handle) Argv() []string { return h.opts.Argv }

func (h *Handle) Stdin() io.WriteCloser { return fakeStdin{h} }

func (h *Handle) Wait(ctx context.Context) (transport.ExitResult, error) {
	select {
	case <-h.done:
		return h.result, h.waitErr
	case <-ctx.Done():
		return transport.ExitResult{}, ctx.Err()
	}
}

func (h *Handle) Kill(sig os.Signal) error {
	h.mu.Lock()
	h.kills = append(h.kills, sig)
	exit := h.exitOnKill
	h.mu.Unlock()

	if exit {
		name := "SIGKILL"
		if sig != os.Kill {
			name = sig.String()
		}
		h.finish(transport.ExitResult{Signal: name}, nil)
	}
	return nil
}

func (h *Handle) Dispose() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disposed++
	return nil
}

// Stdout emits a chunk on the stdout callback.
func (h *Handle) Stdout(s string) {
	if h.opts.OnStdout != nil {
		h.opts.OnStdout([]byte(s))
	}
}

// Stderr emits a chunk on the stderr callback.
func (h *Handle) Stderr(s string) {
	if h.opts.OnStderr != nil {
		h.opts.OnStderr([]byte(s))
	}
}

// Exit resolves Wait with an exit code.
func (h *Handle) Exit(code int) {
	h.finish(transport.ExitResult{Code: &code}, nil)
}

// ExitSignal resolves Wait with a signal.
func (h *Handle) ExitSignal(sig string) {
	h.finish(transport.ExitResult{Signal: sig}, nil)
}

// Fail resolves Wait with an error.
func (h *Handle) Fail(err error) {
	if err == nil {
		err = errors.New("wait failed")
	}
	h.finish(transport.ExitResult{}, err)
}

func (h *Handle) finish(res transport.ExitResult, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.exited {
		return
	}
	h.exited = true
	h.result = res
	h.waitErr = err
	close(h.done)
}

// Kills returns the signals sent to the handle.
func (h *Handle) Kills() []os.Signal {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]os.Signal(nil), h.kills...)
}

// Disposed returns how many times Dispose was called.
func (h *Handle) Disposed() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.disposed
}

// Input returns everything written to stdin.
func (h *Handle) Input() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stdin.String()
}

type fakeStdin struct{ h *Handle }

func (s fakeStdin) Write(p []byte) (int, error) {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()
	return s.h.stdin.Write(p)
}

func (s fakeStdin) Close() error { return nil }
