// Package potter guards a desktop application against running twice. A Guard
// inspects the identity records left by a previous launch, probes whether
// that process is still alive, resolves the collision under a configurable
// policy (asking the user when automatic resolution is unsafe), and claims
// single-instance ownership atomically.
package potter

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/graydot/potter/internal/buildinfo"
	"github.com/graydot/potter/internal/collision"
	"github.com/graydot/potter/internal/confirm"
	"github.com/graydot/potter/internal/coordinator"
	"github.com/graydot/potter/internal/history"
	"github.com/graydot/potter/internal/history/factory"
	"github.com/graydot/potter/internal/identity"
	"github.com/graydot/potter/internal/metrics"
	"github.com/graydot/potter/internal/resolution"
	iapi "github.com/graydot/potter/internal/server"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Result = coordinator.Result

type Outcome = coordinator.Outcome

const (
	Proceed = coordinator.Proceed
	Exit    = coordinator.Exit
)

type Classification = collision.Classification

type ClassificationKind = collision.Kind

const (
	NoPriorInstance    = collision.NoPriorInstance
	StaleRecord        = collision.StaleRecord
	LiveSameBuild      = collision.LiveSameBuild
	LiveDifferentBuild = collision.LiveDifferentBuild
)

type Action = resolution.Action

const (
	ClaimOwnership  = resolution.ClaimOwnership
	ReplaceExisting = resolution.ReplaceExisting
	KeepExisting    = resolution.KeepExisting
	AbortLaunch     = resolution.AbortLaunch
)

type Rule = resolution.Rule

const (
	RuleAsk     = resolution.RuleAsk
	RuleReplace = resolution.RuleReplace
	RuleKeep    = resolution.RuleKeep
)

type Choice = confirm.Choice

const (
	ChoiceReplace = confirm.Replace
	ChoiceKeep    = confirm.Keep
	ChoiceAbort   = confirm.Abort
)

type Confirmer = confirm.Confirmer

// ConfirmFunc adapts a plain function into a Confirmer, for applications
// that surface the prompt through their own UI toolkit.
type ConfirmFunc = confirm.Func

type BuildInfo = buildinfo.Info

type HistoryEvent = history.Event

type HistorySink = history.Sink

type HistoryQuerier = history.Querier

// Options configures a Guard. StateDir is required; zero values elsewhere
// fall back to the keep-safe defaults (same build kept, different build
// asked about, 30s confirmation timeout).
type Options struct {
	// StateDir is where the instance records live, typically a per-user
	// application state directory.
	StateDir string

	// OnSameBuild and OnDifferentBuild select the live-collision handling.
	OnSameBuild      Rule
	OnDifferentBuild Rule

	// Confirmer answers "ask" rules. Without one, live collisions are
	// resolved by keeping the running instance.
	Confirmer      Confirmer
	ConfirmTimeout time.Duration

	// TerminationGrace and TerminationForce bound the replace escalation.
	TerminationGrace time.Duration
	TerminationForce time.Duration

	// Sinks receive the guard's audit events.
	Sinks []HistorySink
}

// Guard is the embeddable single-instance guard.
type Guard struct {
	inner *coordinator.Coordinator
}

// New builds a Guard from Options.
func New(opts Options) (*Guard, error) {
	term := coordinator.NewTerminator()
	if opts.TerminationGrace > 0 {
		term.Grace = opts.TerminationGrace
	}
	if opts.TerminationForce > 0 {
		term.Force = opts.TerminationForce
	}
	inner, err := coordinator.New(coordinator.Options{
		Store: identity.NewStore(opts.StateDir),
		Policy: resolution.Policy{
			OnSameBuild:      opts.OnSameBuild,
			OnDifferentBuild: opts.OnDifferentBuild,
			Confirmer:        opts.Confirmer,
			ConfirmTimeout:   opts.ConfirmTimeout,
		},
		Terminator: term,
		Sinks:      opts.Sinks,
	})
	if err != nil {
		return nil, err
	}
	return &Guard{inner: inner}, nil
}

// Run executes the launch protocol once. On Proceed the application should
// continue starting up and call Release on shutdown; on Exit it should stop
// with a normal exit, leaving the other instance running.
func (g *Guard) Run(ctx context.Context) (Result, error) { return g.inner.Run(ctx) }

// Release gives up instance ownership on graceful shutdown. It is idempotent
// and a no-op when Run never claimed.
func (g *Guard) Release(ctx context.Context) error { return g.inner.Shutdown(ctx) }

// Claimed reports whether this process currently holds the instance records.
func (g *Guard) Claimed() bool { return g.inner.Claimed() }

// LaunchID returns the identifier this launch logs and records under.
func (g *Guard) LaunchID() string { return g.inner.LaunchID() }

// AcquireOrExit is the one-line embedding: it runs the protocol and, when
// another instance keeps running, exits the process with status 0.
func AcquireOrExit(ctx context.Context, opts Options) *Guard {
	g, err := New(opts)
	if err != nil {
		panic(err)
	}
	res, err := g.Run(ctx)
	if err != nil || res.Outcome == Exit {
		os.Exit(0)
	}
	return g
}

// Build returns the identity of this binary as recorded on claim.
func Build() BuildInfo { return buildinfo.Get() }

// NewHistorySink builds an audit sink from a DSN
// (sqlite:// | postgres:// | clickhouse:// | opensearch://).
func NewHistorySink(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

// ControlHandler returns the guard's HTTP control surface (status, history,
// healthz, optional metrics) for mounting into an existing server.
func (g *Guard) ControlHandler(basePath string, querier HistoryQuerier, withMetrics bool) http.Handler {
	r := iapi.NewRouter(iapi.RouterOptions{
		Coordinator: g.inner,
		History:     querier,
		BasePath:    basePath,
		Metrics:     withMetrics,
	})
	return r.Handler()
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
