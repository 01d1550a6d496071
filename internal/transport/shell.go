package transport

import (
	"context"
	"os"
	"os/exec"
	goruntime "runtime"
)

// ShellConfig is the interactive shell a pty run is executed through.
type ShellConfig struct {
	Shell string
	Args  []string
}

// ShellResolver looks up the shell for the current platform.
type ShellResolver interface {
	Resolve(ctx context.Context) (ShellConfig, error)
}

// ShellResolverFunc adapts a function to the ShellResolver interface.
type ShellResolverFunc func(ctx context.Context) (ShellConfig, error)

func (f ShellResolverFunc) Resolve(ctx context.Context) (ShellConfig, error) {
	return f(ctx)
}

// StaticShell always resolves to the given shell.
func StaticShell(shell string, args ...string) ShellResolver {
	return ShellResolverFunc(func(context.Context) (ShellConfig, error) {
		return ShellConfig{Shell: shell, Args: args}, nil
	})
}

// DefaultShell resolves $SHELL, falling back to /bin/sh, invoked with -c.
// On Windows it resolves cmd.exe with /C.
func DefaultShell() ShellResolver {
	return ShellResolverFunc(func(context.Context) (ShellConfig, error) {
		if goruntime.GOOS == "windows" {
			shell := os.Getenv("COMSPEC")
			if shell == "" {
				shell = "cmd.exe"
			}
			return ShellConfig{Shell: shell, Args: []string{"/C"}}, nil
		}

		shell := os.Getenv("SHELL")
		if shell == "" {
			shell = "/bin/sh"
		}
		if _, err := exec.LookPath(shell); err != nil {
			shell = "/bin/sh"
		}
		return ShellConfig{Shell: shell, Args: []string{"-c"}}, nil
	})
}
