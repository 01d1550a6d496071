//go:build windows

package transport

import (
	"context"
	"errors"
	"time"
)

// PTYRuntime is unavailable on Windows; Start always fails.
type PTYRuntime struct {
	Shell      ShellResolver
	Rows       uint16
	Cols       uint16
	DrainDelay time.Duration
}

// NewPTYRuntime creates a pty runtime. A nil resolver uses DefaultShell.
func NewPTYRuntime(shell ShellResolver) *PTYRuntime {
	if shell == nil {
		shell = DefaultShell()
	}
	return &PTYRuntime{Shell: shell, Rows: 24, Cols: 80, DrainDelay: DefaultWaitDelay}
}

func (p *PTYRuntime) Start(ctx context.Context, opts StartOptions) (Handle, error) {
	if len(opts.Argv) == 0 {
		return nil, ErrEmptyArgv
	}
	return nil, errors.New("pty transport is not supported on windows")
}
