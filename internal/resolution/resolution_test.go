package resolution

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/graydot/potter/internal/collision"
	"github.com/graydot/potter/internal/confirm"
)

func classified(kind collision.Kind) collision.Classification {
	return collision.Classification{Kind: kind, Detail: "test detail"}
}

func TestResolveNoPriorClaims(t *testing.T) {
	d, err := Policy{}.Resolve(context.Background(), classified(collision.NoPriorInstance))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if d.Action != ClaimOwnership {
		t.Fatalf("action = %v", d.Action)
	}
}

func TestResolveStaleClaims(t *testing.T) {
	d, err := Policy{}.Resolve(context.Background(), classified(collision.StaleRecord))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if d.Action != ClaimOwnership {
		t.Fatalf("action = %v", d.Action)
	}
	if !strings.Contains(d.Reason, "stale") {
		t.Fatalf("reason = %q", d.Reason)
	}
}

func TestResolveDefaultsSameBuildKeeps(t *testing.T) {
	// Zero policy, no confirmer: asking degrades to keeping, so a second
	// launch of the same build defers to the running instance.
	d, err := Policy{}.Resolve(context.Background(), classified(collision.LiveSameBuild))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if d.Action != KeepExisting {
		t.Fatalf("action = %v", d.Action)
	}
}

func TestResolveDefaultsSameBuildConsultsConfirmer(t *testing.T) {
	// With a confirmer wired in, the zero-value rule for a same-build
	// collision asks rather than keeping unconditionally.
	asked := false
	f := confirm.Func(func(_ context.Context, c collision.Classification) (confirm.Choice, error) {
		asked = true
		if c.Kind != collision.LiveSameBuild {
			t.Fatalf("kind = %v", c.Kind)
		}
		return confirm.Replace, nil
	})
	d, err := Policy{Confirmer: f}.Resolve(context.Background(), classified(collision.LiveSameBuild))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !asked {
		t.Fatal("confirmer was never consulted")
	}
	if d.Action != ReplaceExisting || !d.Confirmed {
		t.Fatalf("decision = %+v", d)
	}
}

func TestResolveDefaultsDifferentBuildAsksThenKeeps(t *testing.T) {
	// Default rule is ask; with no confirmer that degrades to keep, never to
	// a silent replace.
	d, err := Policy{}.Resolve(context.Background(), classified(collision.LiveDifferentBuild))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if d.Action != KeepExisting {
		t.Fatalf("action = %v", d.Action)
	}
}

func TestResolveReplaceRuleIsConfirmed(t *testing.T) {
	p := Policy{OnDifferentBuild: RuleReplace}
	d, err := p.Resolve(context.Background(), classified(collision.LiveDifferentBuild))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if d.Action != ReplaceExisting || !d.Confirmed {
		t.Fatalf("decision = %+v", d)
	}
}

func TestResolveAskHonorsUserChoice(t *testing.T) {
	for choice, want := range map[confirm.Choice]Action{
		confirm.Replace: ReplaceExisting,
		confirm.Keep:    KeepExisting,
		confirm.Abort:   AbortLaunch,
	} {
		p := Policy{OnSameBuild: RuleAsk, Confirmer: confirm.Auto{Choice: choice}}
		d, err := p.Resolve(context.Background(), classified(collision.LiveSameBuild))
		if err != nil {
			t.Fatalf("Resolve(%v): %v", choice, err)
		}
		if d.Action != want {
			t.Fatalf("choice %v resolved to %v, want %v", choice, d.Action, want)
		}
		if choice == confirm.Replace && !d.Confirmed {
			t.Fatalf("replace must be marked confirmed")
		}
	}
}

func TestResolveConfirmTimeoutKeeps(t *testing.T) {
	slow := confirm.Func(func(ctx context.Context, _ collision.Classification) (confirm.Choice, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	p := Policy{OnDifferentBuild: RuleAsk, Confirmer: slow, ConfirmTimeout: 30 * time.Millisecond}
	d, err := p.Resolve(context.Background(), classified(collision.LiveDifferentBuild))
	if d.Action != KeepExisting {
		t.Fatalf("action = %v", d.Action)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded to surface, got %v", err)
	}
}

func TestResolveShutdownAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	slow := confirm.Func(func(cctx context.Context, _ collision.Classification) (confirm.Choice, error) {
		cancel() // the app starts shutting down mid-prompt
		<-cctx.Done()
		return "", cctx.Err()
	})
	p := Policy{OnDifferentBuild: RuleAsk, Confirmer: slow}
	d, err := p.Resolve(ctx, classified(collision.LiveDifferentBuild))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if d.Action != AbortLaunch {
		t.Fatalf("action = %v", d.Action)
	}
}

func TestResolveConfirmerErrorKeeps(t *testing.T) {
	failing := confirm.Func(func(context.Context, collision.Classification) (confirm.Choice, error) {
		return "", errors.New("dialog crashed")
	})
	p := Policy{OnSameBuild: RuleAsk, Confirmer: failing}
	d, err := p.Resolve(context.Background(), classified(collision.LiveSameBuild))
	if d.Action != KeepExisting {
		t.Fatalf("action = %v", d.Action)
	}
	if err == nil {
		t.Fatalf("degradation should surface as error")
	}
}
