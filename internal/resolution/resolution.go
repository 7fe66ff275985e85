// Package resolution maps a collision classification to the action a fresh
// launch takes. Stale state is reclaimed silently; live instances are only
// ever replaced with an explicit confirmation or an operator-configured
// replace rule.
package resolution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/graydot/potter/internal/collision"
	"github.com/graydot/potter/internal/confirm"
)

// Action is what the launch does next.
type Action string

const (
	// ClaimOwnership: write our records and proceed; nothing live stands in
	// the way.
	ClaimOwnership Action = "claim_ownership"
	// ReplaceExisting: terminate the live instance, then claim.
	ReplaceExisting Action = "replace_existing"
	// KeepExisting: the running instance stays; this launch exits normally.
	KeepExisting Action = "keep_existing"
	// AbortLaunch: exit without touching records or the running instance.
	AbortLaunch Action = "abort_launch"
)

// Rule configures how a live collision is handled.
type Rule string

const (
	RuleAsk     Rule = "ask"
	RuleReplace Rule = "replace"
	RuleKeep    Rule = "keep"
)

// Decision is the resolved action. Confirmed is true when a live replace was
// sanctioned by a user choice or an explicit replace rule.
type Decision struct {
	Action    Action `json:"action"`
	Reason    string `json:"reason"`
	Confirmed bool   `json:"confirmed"`
}

// Policy holds the per-kind rules and the confirmation surface.
// Zero-value rules default to asking; without a Confirmer, asking degrades
// to keeping the running instance.
type Policy struct {
	OnSameBuild      Rule
	OnDifferentBuild Rule
	Confirmer        confirm.Confirmer
	ConfirmTimeout   time.Duration
}

// DefaultConfirmTimeout bounds how long a launch waits for an answer before
// falling back to keeping the running instance.
const DefaultConfirmTimeout = 30 * time.Second

// Resolve decides the action for a classification. The returned Decision is
// always safe to act on; a non-nil error only reports that confirmation
// degraded (timed out, failed) and should be logged by the caller.
func (p Policy) Resolve(ctx context.Context, c collision.Classification) (Decision, error) {
	switch c.Kind {
	case collision.NoPriorInstance:
		return Decision{Action: ClaimOwnership, Reason: "no prior instance"}, nil
	case collision.StaleRecord:
		return Decision{Action: ClaimOwnership, Reason: "reclaiming stale records: " + c.Detail}, nil
	}

	rule := p.OnDifferentBuild
	if c.Kind == collision.LiveSameBuild {
		rule = p.OnSameBuild
	}
	if rule == "" {
		// Live instances are never replaced or kept silently by default;
		// both collision kinds go through confirmation.
		rule = RuleAsk
	}

	switch rule {
	case RuleKeep:
		return Decision{Action: KeepExisting, Reason: "policy keeps the running instance"}, nil
	case RuleReplace:
		// Operator opted into unattended replacement; that is the
		// confirmation.
		return Decision{Action: ReplaceExisting, Reason: "policy replaces the running instance", Confirmed: true}, nil
	case RuleAsk:
		return p.ask(ctx, c)
	default:
		return Decision{Action: KeepExisting, Reason: fmt.Sprintf("unknown rule %q, keeping the running instance", rule)},
			fmt.Errorf("unknown resolution rule %q", rule)
	}
}

func (p Policy) ask(ctx context.Context, c collision.Classification) (Decision, error) {
	if p.Confirmer == nil {
		// Nothing to ask with. Never replace silently.
		return Decision{Action: KeepExisting, Reason: "no confirmer configured, keeping the running instance"}, nil
	}

	timeout := p.ConfirmTimeout
	if timeout <= 0 {
		timeout = DefaultConfirmTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	choice, err := p.Confirmer.Confirm(cctx, c)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled) && ctx.Err() != nil:
			// The launch itself is shutting down, not just the prompt.
			return Decision{Action: AbortLaunch, Reason: "launch canceled during confirmation"}, nil
		case errors.Is(err, context.DeadlineExceeded):
			return Decision{Action: KeepExisting, Reason: "confirmation timed out, keeping the running instance"}, err
		default:
			return Decision{Action: KeepExisting, Reason: "confirmation failed, keeping the running instance"}, err
		}
	}

	switch choice {
	case confirm.Replace:
		return Decision{Action: ReplaceExisting, Reason: "user chose to replace the running instance", Confirmed: true}, nil
	case confirm.Keep:
		return Decision{Action: KeepExisting, Reason: "user kept the running instance"}, nil
	case confirm.Abort:
		return Decision{Action: AbortLaunch, Reason: "user aborted the launch"}, nil
	default:
		return Decision{Action: KeepExisting, Reason: "unexpected confirmation answer, keeping the running instance"},
			fmt.Errorf("unexpected confirmation choice %q", choice)
	}
}
