//go:build windows

package transport

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

func setProcGroup(cmd *exec.Cmd) {}

func signalGroup(proc *os.Process, sig os.Signal) error {
	if proc == nil {
		return nil
	}
	err := proc.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func signalName(sig syscall.Signal) string {
	return sig.String()
}
