//go:build unix

package tools

import "syscall"

// isProcessRunning reports whether pid is alive. Signal 0 probes without delivering.
func isProcessRunning(pid int) bool {
	err := syscall.Kill(pid, syscall.Signal(0))
	switch err {
	case nil:
		return true
	case syscall.EPERM:
		// Exists, owned by someone else
		return true
	default:
		// ESRCH and anything unexpected
		return false
	}
}
