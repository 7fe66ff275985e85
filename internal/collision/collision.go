// Package collision classifies persisted instance state against a liveness
// probe so the resolution policy can decide what a fresh launch should do.
package collision

import (
	"github.com/graydot/potter/internal/buildinfo"
	"github.com/graydot/potter/internal/identity"
	"github.com/graydot/potter/internal/liveness"
)

// Kind enumerates what a fresh launch found.
type Kind string

const (
	// NoPriorInstance: no records at all; first launch or clean shutdown.
	NoPriorInstance Kind = "no_prior_instance"
	// StaleRecord: records exist but their process is gone, unreadable, or
	// provably not the recorded one. Reclaimable without interaction.
	StaleRecord Kind = "stale_record"
	// LiveSameBuild: the recorded process is alive and runs the same build.
	LiveSameBuild Kind = "live_same_build"
	// LiveDifferentBuild: the recorded process is alive under another build.
	LiveDifferentBuild Kind = "live_different_build"
)

// Classification carries the verdict plus everything resolution and logging
// need about how it was reached.
type Classification struct {
	Kind      Kind              `json:"kind"`
	Prior     identity.Identity `json:"-"`
	Live      liveness.Result   `json:"live"`
	SameBuild bool              `json:"same_build"`
	Detail    string            `json:"detail,omitempty"`
}

// Live reports whether the classification describes a running prior instance.
func (c Classification) IsLive() bool {
	return c.Kind == LiveSameBuild || c.Kind == LiveDifferentBuild
}

// Prober abstracts the liveness probe; *liveness.Probe satisfies it.
type Prober interface {
	Check(rec identity.ProcessRecord, build *identity.BuildRecord) liveness.Result
}

// Classify inspects the prior identity snapshot with the probe and decides
// what kind of collision, if any, this launch faces.
func Classify(prior, self identity.Identity, probe Prober) Classification {
	c := Classification{Prior: prior}

	if prior.Process == nil {
		switch {
		case prior.Corrupt != "":
			c.Kind = StaleRecord
			c.Detail = "unreadable records: " + prior.Corrupt
		case prior.Build != nil:
			c.Kind = StaleRecord
			c.Detail = "orphaned build record without pid record"
		default:
			c.Kind = NoPriorInstance
		}
		return c
	}

	if self.Process != nil && prior.Process.PID == self.Process.PID {
		// Records naming our own pid cannot describe another instance; a
		// previous run in this pid slot left them behind.
		c.Kind = StaleRecord
		c.Detail = "records point at this process"
		return c
	}

	c.Live = probe.Check(*prior.Process, prior.Build)
	if !c.Live.Alive {
		c.Kind = StaleRecord
		c.Detail = c.Live.Reason
		return c
	}

	if prior.Build != nil && self.Build != nil && prior.Build.BuildID == self.Build.BuildID {
		c.Kind = LiveSameBuild
		c.SameBuild = true
		c.Detail = "another instance of build " + prior.Build.BuildID + " is running"
		return c
	}

	c.Kind = LiveDifferentBuild
	switch {
	case prior.Build == nil:
		c.Detail = "running instance has no build record"
	case self.Build == nil:
		c.Detail = "running instance recorded build " + prior.Build.BuildID
	default:
		c.Detail = buildinfo.DescribeBuilds(self.Build.BuildID, prior.Build.BuildID)
	}
	return c
}
