//go:build windows

package confirm

import (
	"context"
	"os/exec"
	"strings"
)

// buildShellAwareCommand constructs an *exec.Cmd for a confirm command on
// Windows. Everything goes through cmd /c; there is no exec-without-shell
// fast path worth keeping here.
func buildShellAwareCommand(ctx context.Context, cmdStr string) *exec.Cmd {
	cmdStr = strings.TrimSpace(cmdStr)
	if cmdStr == "" {
		// #nosec G204
		return exec.CommandContext(ctx, "cmd", "/c", "rem")
	}
	// #nosec G204
	return exec.CommandContext(ctx, "cmd", "/c", cmdStr)
}
