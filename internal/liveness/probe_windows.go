//go:build windows

package liveness

import (
	"errors"
	"syscall"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// pidAlive returns true if a process with given pid exists on Windows.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	h, err := syscall.OpenProcess(syscall.PROCESS_QUERY_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer func() { _ = syscall.CloseHandle(h) }()
	return true
}

// procExePath resolves the executable path of a live process via gopsutil.
func procExePath(pid int) (string, error) {
	if pid <= 0 {
		return "", errors.New("invalid pid")
	}
	gp, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return "", err
	}
	return gp.Exe()
}
