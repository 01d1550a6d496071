//go:build !windows

package transport

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcGroup puts the child process in its own process group so the whole
// tree is signalled together.
func setProcGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// signalGroup sends sig to the process group led by proc, falling back to the
// process itself when the group is gone.
func signalGroup(proc *os.Process, sig os.Signal) error {
	if proc == nil {
		return nil
	}
	if s, ok := sig.(syscall.Signal); ok {
		err := unix.Kill(-proc.Pid, s)
		if err == nil {
			return nil
		}
		if !errors.Is(err, unix.ESRCH) && !errors.Is(err, unix.EPERM) {
			return err
		}
	}
	err := proc.Signal(sig)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func signalName(sig syscall.Signal) string {
	if name := unix.SignalName(sig); name != "" {
		return name
	}
	return sig.String()
}
