package cmd

import "syscall"

// signalNumber resolves the few signal names the Windows transport reports.
func signalNumber(name string) (int, bool) {
	switch name {
	case "SIGINT":
		return int(syscall.SIGINT), true
	case "SIGKILL":
		return int(syscall.SIGKILL), true
	case "SIGTERM":
		return int(syscall.SIGTERM), true
	}
	return 0, false
}
