package identity

import (
	"os"
	"path/filepath"
	"time"

	"github.com/graydot/potter/internal/buildinfo"
)

// ProcessRecord identifies the OS process that claimed instance ownership.
// RecordedAt is taken from the pid file's mtime on load and is not part of
// the serialized payload. StartUnix is the owner's own process start time
// captured at claim; it lets a later probe detect pid reuse exactly.
type ProcessRecord struct {
	PID        int       `json:"-"`
	LaunchID   string    `json:"launch_id"`
	StartUnix  int64     `json:"start_unix,omitempty"`
	RecordedAt time.Time `json:"-"`
}

// BuildRecord identifies the binary behind a claimed instance.
type BuildRecord struct {
	BuildID        string    `json:"build_id"`
	Version        string    `json:"version"`
	ExecutablePath string    `json:"executable_path"`
	LaunchID       string    `json:"launch_id"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// Identity is a snapshot of both persisted records. Either pointer may be
// nil when the corresponding file is absent. Corrupt carries a diagnostic
// when a record file exists but cannot be parsed; such state is reclaimable,
// never fatal.
type Identity struct {
	Process *ProcessRecord
	Build   *BuildRecord
	Corrupt string
}

// Empty reports whether no record files were found at all.
func (id Identity) Empty() bool {
	return id.Process == nil && id.Build == nil && id.Corrupt == ""
}

// Self builds the identity of the current process under the given launch ID.
// The executable path is resolved through symlinks so it matches what a later
// probe reads back from the OS. StartUnix is left for the caller to fill; it
// needs the platform probe.
func Self(launchID string) (Identity, error) {
	exe, err := os.Executable()
	if err != nil {
		return Identity{}, err
	}
	if resolved, rerr := filepath.EvalSymlinks(exe); rerr == nil {
		exe = resolved
	}
	info := buildinfo.Get()
	now := time.Now().UTC()
	return Identity{
		Process: &ProcessRecord{
			PID:        os.Getpid(),
			LaunchID:   launchID,
			RecordedAt: now,
		},
		Build: &BuildRecord{
			BuildID:        info.ID(),
			Version:        info.Version,
			ExecutablePath: exe,
			LaunchID:       launchID,
			RecordedAt:     now,
		},
	}, nil
}
