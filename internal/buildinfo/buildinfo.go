package buildinfo

import "runtime"

// Build identity injected at link time, e.g.:
//
//	go build -ldflags "-X .../internal/buildinfo.Version=1.4.0 \
//	  -X .../internal/buildinfo.Commit=4f9c1aa \
//	  -X .../internal/buildinfo.BuildTime=2026-08-24T10:00:00Z"
var (
	Version   = "0.0.0-dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info is a snapshot of the identity of this binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// Get returns the injected build identity plus the Go runtime version.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

// ID returns the build identity string persisted in instance records.
// Two binaries with the same ID are interchangeable for single-instance
// purposes even when their paths differ.
func (i Info) ID() string { return i.Version + "+" + i.Commit }
