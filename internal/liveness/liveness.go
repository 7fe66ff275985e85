// Package liveness decides whether the process named by a persisted identity
// record is still running. Signal-zero existence is cross-checked against the
// recorded process start time and executable path to catch pid reuse; only
// positive evidence of reuse overturns an alive verdict.
package liveness

import (
	"path/filepath"

	"github.com/graydot/potter/internal/identity"
)

// Result is a probe verdict. Verified is true when the verdict rests on
// identity evidence (start time or executable match), not just signal zero.
type Result struct {
	Alive    bool   `json:"alive"`
	Verified bool   `json:"verified"`
	Reason   string `json:"reason"`
}

// Probe checks pid liveness. The zero value is not usable; construct with
// NewProbe. Hooks are swappable so tests can simulate processes that do not
// exist on the test host.
type Probe struct {
	alive     func(pid int) bool
	exePath   func(pid int) (string, error)
	startUnix func(pid int) int64
}

func NewProbe() *Probe {
	return &Probe{
		alive:     pidAlive,
		exePath:   procExePath,
		startUnix: ProcStartUnix,
	}
}

// Check probes the recorded process. The build record, when present,
// contributes the executable path expectation.
func (p *Probe) Check(rec identity.ProcessRecord, build *identity.BuildRecord) Result {
	if rec.PID <= 0 {
		return Result{Alive: false, Verified: true, Reason: "invalid pid"}
	}
	if !p.alive(rec.PID) {
		return Result{Alive: false, Verified: true, Reason: "no such process"}
	}

	verified := false

	// Start-time check. An exact recorded start time must match the live
	// process; without one, a process that began strictly after the record
	// was written cannot be the recorded one.
	if cur := p.startUnix(rec.PID); cur > 0 {
		if rec.StartUnix > 0 {
			if cur != rec.StartUnix {
				return Result{Alive: false, Verified: true, Reason: "pid reused: start time mismatch"}
			}
			verified = true
		} else if !rec.RecordedAt.IsZero() && cur > rec.RecordedAt.Unix() {
			return Result{Alive: false, Verified: true, Reason: "pid reused: process started after record"}
		}
	}

	// Executable check. Unreadable or empty paths leave the verdict alone.
	if build != nil && build.ExecutablePath != "" {
		if cur, err := p.exePath(rec.PID); err == nil && cur != "" {
			if !samePath(cur, build.ExecutablePath) {
				return Result{Alive: false, Verified: true, Reason: "pid reused: executable mismatch"}
			}
			verified = true
		}
	}

	return Result{Alive: true, Verified: verified, Reason: "process alive"}
}

// samePath compares executable paths after symlink resolution. Resolution
// failures fall back to a cleaned literal comparison.
func samePath(a, b string) bool {
	ra := resolvePath(a)
	rb := resolvePath(b)
	return ra == rb
}

func resolvePath(p string) string {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return filepath.Clean(resolved)
	}
	return filepath.Clean(p)
}
