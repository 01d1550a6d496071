//go:build !windows

package cmd

import "golang.org/x/sys/unix"

// signalNumber resolves a SIGKILL-style name to its platform number.
func signalNumber(name string) (int, bool) {
	sig := unix.SignalNum(name)
	if sig == 0 {
		return 0, false
	}
	return int(sig), true
}
