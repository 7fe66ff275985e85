//go:build !windows

package liveness

import (
	"errors"
	"os"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// pidAlive returns true if a process with given pid exists (or EPERM).
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// procExePath resolves the executable path of a live process. On Linux it
// reads /proc/<pid>/exe; elsewhere it asks gopsutil.
func procExePath(pid int) (string, error) {
	if pid <= 0 {
		return "", errors.New("invalid pid")
	}
	if runtime.GOOS == "linux" {
		p, err := os.Readlink("/proc/" + strconv.Itoa(pid) + "/exe")
		if err != nil {
			return "", err
		}
		// A replaced-on-disk binary keeps its original path.
		return strings.TrimSuffix(p, " (deleted)"), nil
	}
	gp, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return "", err
	}
	return gp.Exe()
}
