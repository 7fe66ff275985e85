//go:build !windows

package coordinator

import (
	"errors"
	"syscall"
)

// terminateProcess asks a Unix process to exit gracefully. The prior
// instance is a peer, not a child, so the signal goes to the single pid and
// never to a process group.
func terminateProcess(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}

// killProcessHard forcibly kills a Unix process.
func killProcessHard(pid int) error {
	return syscall.Kill(pid, syscall.SIGKILL)
}

// processAlive reports whether pid exists. EPERM means the process exists
// but belongs to another user.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}

// errProcessGone reports whether a signal failed because the target had
// already exited.
func errProcessGone(err error) bool {
	return errors.Is(err, syscall.ESRCH)
}
