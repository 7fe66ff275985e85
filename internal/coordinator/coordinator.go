// Package coordinator drives a launch through the single-instance protocol:
// inspect the persisted records, classify what they describe, resolve the
// collision under policy, terminate and replace when sanctioned, and claim
// ownership under the record lock. Persistence failures degrade the launch
// instead of blocking it.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/graydot/potter/internal/collision"
	"github.com/graydot/potter/internal/history"
	"github.com/graydot/potter/internal/identity"
	"github.com/graydot/potter/internal/liveness"
	"github.com/graydot/potter/internal/metrics"
	"github.com/graydot/potter/internal/resolution"
)

// Outcome says whether the launch continues into the application proper.
type Outcome string

const (
	// Proceed: this launch runs, either owning the records or degraded
	// without them.
	Proceed Outcome = "proceed"
	// Exit: another instance keeps running, or the launch was aborted; the
	// caller should stop with a normal exit.
	Exit Outcome = "exit"
)

// Result is everything Run decided, for logging and exit-code mapping.
type Result struct {
	Outcome        Outcome                  `json:"outcome"`
	LaunchID       string                   `json:"launch_id"`
	Classification collision.Classification `json:"classification"`
	Decision       resolution.Decision      `json:"decision"`

	// Claimed is true when our records are on disk and Shutdown must
	// release them.
	Claimed bool `json:"claimed"`
	// Unreliable is true when persistence failed and the launch proceeds
	// without the single-instance guarantee.
	Unreliable bool     `json:"unreliable"`
	Warnings   []string `json:"warnings,omitempty"`
}

// Options configures a Coordinator. Store is required; everything else has a
// working default.
type Options struct {
	Store      *identity.Store
	Probe      collision.Prober
	Policy     resolution.Policy
	Terminator *Terminator
	Sinks      []history.Sink
	Logger     *slog.Logger
	LaunchID   string
}

// Coordinator runs the launch protocol and later releases ownership. A
// Coordinator belongs to exactly one launch; Run is called once.
type Coordinator struct {
	store      *identity.Store
	probe      collision.Prober
	policy     resolution.Policy
	terminator *Terminator
	sinks      []history.Sink
	logger     *slog.Logger
	launchID   string

	mu       sync.Mutex
	self     identity.Identity
	claimed  bool
	released bool
}

func New(opts Options) (*Coordinator, error) {
	if opts.Store == nil {
		return nil, errors.New("coordinator: identity store is required")
	}
	c := &Coordinator{
		store:      opts.Store,
		probe:      opts.Probe,
		policy:     opts.Policy,
		terminator: opts.Terminator,
		sinks:      opts.Sinks,
		logger:     opts.Logger,
		launchID:   opts.LaunchID,
	}
	if c.probe == nil {
		c.probe = liveness.NewProbe()
	}
	if c.terminator == nil {
		c.terminator = NewTerminator()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.launchID == "" {
		c.launchID = uuid.NewString()
	}
	return c, nil
}

// LaunchID returns the identifier this launch records and logs under.
func (c *Coordinator) LaunchID() string { return c.launchID }

// Self returns the identity this launch presents, valid after Run started.
func (c *Coordinator) Self() identity.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self
}

// Claimed reports whether this launch currently holds the instance records.
func (c *Coordinator) Claimed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.claimed && !c.released
}

// Run executes the protocol once. The returned Result is meaningful even
// when err is non-nil; err is reserved for failures to establish our own
// identity and for context cancellation.
//
// A claim race is retried exactly once against the fresh records; a second
// race yields to the other launch. Record load or write failures never stop
// the launch: it proceeds with Unreliable set.
func (c *Coordinator) Run(ctx context.Context) (Result, error) {
	res := Result{LaunchID: c.launchID}

	self, err := identity.Self(c.launchID)
	if err != nil {
		res.Outcome = Exit
		return res, fmt.Errorf("resolve own identity: %w", err)
	}
	if start := liveness.ProcStartUnix(self.Process.PID); start > 0 {
		self.Process.StartUnix = start
	}
	c.mu.Lock()
	c.self = self
	c.mu.Unlock()

	c.logger.Info("launch starting",
		"launch_id", c.launchID, "pid", self.Process.PID, "build_id", self.Build.BuildID)
	c.emit(history.EventLaunchStarted, "")

	for attempt := 0; attempt < 2; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return c.exit(&res, "launch canceled"), cerr
		}

		prior, lerr := c.store.Load()
		if lerr != nil {
			return c.degrade(&res, fmt.Sprintf("load prior records: %v", lerr)), nil
		}

		cls := collision.Classify(prior, self, c.probe)
		res.Classification = cls
		metrics.IncCollision(string(cls.Kind))
		if cls.IsLive() {
			c.emit(history.EventCollisionDetected, string(cls.Kind)+": "+cls.Detail)
			c.logger.Warn("live instance detected",
				"kind", cls.Kind, "prior_pid", priorPID(cls), "detail", cls.Detail)
		} else if cls.Kind == collision.StaleRecord {
			c.logger.Info("stale records found", "detail", cls.Detail)
		}

		dec, derr := c.policy.Resolve(ctx, cls)
		res.Decision = dec
		metrics.IncResolution(string(dec.Action))
		if derr != nil {
			res.Warnings = append(res.Warnings, "confirmation degraded: "+derr.Error())
			c.logger.Warn("confirmation degraded", "err", derr)
		}
		c.logger.Info("resolution decided", "action", dec.Action, "reason", dec.Reason)

		switch dec.Action {
		case resolution.KeepExisting, resolution.AbortLaunch:
			return c.exit(&res, dec.Reason), nil
		case resolution.ReplaceExisting:
			pid := priorPID(cls)
			outcome, terr := c.terminator.Terminate(ctx, pid)
			metrics.IncTermination(string(outcome))
			c.emit(history.EventInstanceTerminated, fmt.Sprintf("pid %d: %s", pid, outcome))
			if outcome != TermConfirmed && outcome != TermKilled {
				reason := fmt.Sprintf("could not terminate pid %d (%s)", pid, outcome)
				if terr != nil {
					reason += ": " + terr.Error()
				}
				// The process may still be running; claiming over it
				// would break the single-instance guarantee.
				res.Warnings = append(res.Warnings, reason)
				return c.exit(&res, reason), nil
			}
			c.logger.Info("prior instance terminated", "pid", pid, "result", outcome)
		}

		begin := time.Now()
		cerr := c.store.Claim(ctx, self, prior)
		metrics.ObserveClaimDuration(time.Since(begin).Seconds())
		if cerr == nil {
			c.mu.Lock()
			c.claimed = true
			c.mu.Unlock()
			res.Outcome = Proceed
			res.Claimed = true
			metrics.SetInstanceUp(true)
			metrics.IncLaunch(string(Proceed))
			c.emit(history.EventOwnershipClaimed, "")
			c.logger.Info("instance ownership claimed", "pid", self.Process.PID)
			return res, nil
		}
		if errors.Is(cerr, identity.ErrRaceDetected) {
			metrics.IncRace()
			c.emit(history.EventRaceDetected, "records changed between inspection and claim")
			if attempt == 0 {
				res.Warnings = append(res.Warnings, "claim race detected, re-validating")
				c.logger.Warn("claim race detected, re-validating against fresh records")
				continue
			}
			return c.exit(&res, "lost the claim race twice, yielding to the other launch"), nil
		}
		return c.degrade(&res, fmt.Sprintf("write records: %v", cerr)), nil
	}

	// The loop always returns; keep the compiler honest.
	res.Outcome = Exit
	return res, nil
}

// Shutdown releases ownership if this launch holds it. It is idempotent and
// a no-op when the launch never claimed. Records that meanwhile belong to a
// replacing launch are left alone.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	claimed, released := c.claimed, c.released
	self := c.self
	c.mu.Unlock()

	metrics.SetInstanceUp(false)
	if !claimed || released {
		return nil
	}

	err := c.store.Clear(ctx, self)
	switch {
	case err == nil:
	case errors.Is(err, identity.ErrNotOwner):
		c.logger.Warn("instance records now belong to another launch, leaving them in place")
	default:
		// Releasing failed for an I/O reason; stay unreleased so a retry
		// can still clean up.
		return fmt.Errorf("release instance records: %w", err)
	}

	c.mu.Lock()
	c.released = true
	c.mu.Unlock()
	if err == nil {
		c.emit(history.EventOwnershipReleased, "")
		c.logger.Info("instance ownership released")
	}
	return nil
}

// exit finalizes a Result for a launch that stops here.
func (c *Coordinator) exit(res *Result, reason string) Result {
	res.Outcome = Exit
	metrics.IncLaunch(string(Exit))
	c.emit(history.EventLaunchExited, reason)
	c.logger.Info("launch exiting", "reason", reason)
	return *res
}

// degrade finalizes a Result for a launch whose records are unavailable.
// The launch proceeds; refusing to start over a persistence fault would turn
// a bookkeeping problem into an outage.
func (c *Coordinator) degrade(res *Result, detail string) Result {
	res.Outcome = Proceed
	res.Unreliable = true
	res.Warnings = append(res.Warnings, detail)
	metrics.IncLaunch(string(Proceed))
	c.emit(history.EventPersistenceDegraded, detail)
	c.logger.Error("instance records unavailable, proceeding without single-instance guarantee",
		"detail", detail)
	return *res
}

// emit fans an event out to the configured sinks. Sinks get a background
// context so history still lands while the launch context is collapsing.
func (c *Coordinator) emit(t history.EventType, detail string) {
	if len(c.sinks) == 0 {
		return
	}
	c.mu.Lock()
	self := c.self
	c.mu.Unlock()

	rec := history.Record{LaunchID: c.launchID, Detail: detail}
	if self.Process != nil {
		rec.PID = self.Process.PID
	}
	if self.Build != nil {
		rec.BuildID = self.Build.BuildID
		rec.Version = self.Build.Version
	}
	ev := history.Event{Type: t, OccurredAt: time.Now().UTC(), Record: rec}
	for _, s := range c.sinks {
		if err := s.Send(context.Background(), ev); err != nil {
			c.logger.Debug("history sink send failed", "type", t, "err", err)
		}
	}
}

func priorPID(c collision.Classification) int {
	if c.Prior.Process == nil {
		return 0
	}
	return c.Prior.Process.PID
}
