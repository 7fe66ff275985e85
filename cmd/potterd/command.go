package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/graydot/potter/internal/config"
	"github.com/graydot/potter/internal/coordinator"
	"github.com/graydot/potter/internal/history"
	"github.com/graydot/potter/internal/history/factory"
	"github.com/graydot/potter/internal/identity"
	"github.com/graydot/potter/internal/liveness"
	"github.com/graydot/potter/internal/metrics"
	"github.com/graydot/potter/internal/resolution"
	"github.com/graydot/potter/internal/server"
)

const shutdownTimeout = 10 * time.Second

// command binds the subcommand handlers to the persistent flags.
type command struct {
	flags *GlobalFlags
}

// loadConfig loads the configured (or default) config and applies the
// persistent flag overrides.
func (c command) loadConfig() (config.Config, error) {
	cfg, err := config.Load(c.flags.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	if c.flags.StateDir != "" {
		cfg.StateDir = c.flags.StateDir
	}
	return cfg, nil
}

// openSink builds the history sink named by the config. A disabled history
// section yields a nil sink.
func openSink(cfg config.Config) (history.Sink, error) {
	if !cfg.History.Enabled {
		return nil, nil
	}
	return factory.NewSinkFromDSN(cfg.History.DSN)
}

func closeSink(s history.Sink) {
	if closer, ok := s.(io.Closer); ok {
		_ = closer.Close()
	}
}

// Run executes the launch protocol and, on Proceed, holds the instance slot
// until a termination signal releases it.
func (c command) Run(f RunFlags) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if f.Replace {
		cfg.Policy.OnDifferentBuild = string(resolution.RuleReplace)
	}
	if f.Listen != "" {
		cfg.Server.Enabled = true
		cfg.Server.Listen = f.Listen
	}
	if f.NoServer {
		cfg.Server.Enabled = false
	}

	lg := cfg.LoggerConfig().NewSlogger()
	slog.SetDefault(lg)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		lg.Warn("metrics registration failed", "err", err)
	}

	sink, err := openSink(cfg)
	if err != nil {
		return fmt.Errorf("open history sink: %w", err)
	}
	defer closeSink(sink)

	var sinks []history.Sink
	if sink != nil {
		sinks = append(sinks, sink)
	}

	coord, err := coordinator.New(coordinator.Options{
		Store:      identity.NewStore(cfg.StateDir),
		Policy:     cfg.ResolutionPolicy(),
		Terminator: cfg.Terminator(),
		Sinks:      sinks,
		Logger:     lg,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := coord.Run(ctx)
	for _, w := range res.Warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}
	if err != nil {
		return err
	}
	if res.Outcome == coordinator.Exit {
		if res.Decision.Action == resolution.KeepExisting {
			// Another instance keeps running; for a desktop launch that is
			// success, not failure.
			fmt.Println("already running:", res.Decision.Reason)
			return nil
		}
		return fmt.Errorf("launch aborted: %s", res.Decision.Reason)
	}

	if res.Unreliable {
		fmt.Fprintln(os.Stderr, "warning: instance records unavailable; single-instance enforcement is unreliable this run")
	}

	sampler := metrics.NewSampler(cfg.Sampler)
	if sampler.IsEnabled() {
		if err := sampler.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
			lg.Warn("sampler metrics registration failed", "err", err)
		}
		sampler.Start(ctx, os.Getpid())
		defer sampler.Stop()
	}

	var srv *http.Server
	if cfg.Server.Enabled {
		querier, _ := sink.(history.Querier)
		srv = server.NewServer(cfg.Server.Listen, server.RouterOptions{
			Coordinator: coord,
			History:     querier,
			Sampler:     sampler,
			BasePath:    cfg.Server.BasePath,
			Metrics:     cfg.Server.Metrics,
		})
		lg.Info("control server listening", "addr", cfg.Server.Listen)
	}

	fmt.Println("instance claimed, pid", os.Getpid())
	<-ctx.Done()
	stop()

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if srv != nil {
		_ = srv.Shutdown(sctx)
	}
	if err := coord.Shutdown(sctx); err != nil {
		return err
	}
	return nil
}

// Status prints the recorded instance and whether its process is alive.
func (c command) Status(f StatusFlags) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	store := identity.NewStore(cfg.StateDir)
	id, err := store.Load()
	if err != nil {
		return err
	}

	type statusOut struct {
		StateDir string `json:"state_dir"`
		Recorded bool   `json:"recorded"`
		Corrupt  string `json:"corrupt,omitempty"`
		PID      int    `json:"pid,omitempty"`
		LaunchID string `json:"launch_id,omitempty"`
		BuildID  string `json:"build_id,omitempty"`
		Version  string `json:"version,omitempty"`
		Alive    bool   `json:"alive"`
		Verified bool   `json:"verified"`
		Reason   string `json:"reason,omitempty"`
	}
	out := statusOut{StateDir: cfg.StateDir, Recorded: !id.Empty(), Corrupt: id.Corrupt}
	if id.Process != nil {
		out.PID = id.Process.PID
		out.LaunchID = id.Process.LaunchID
		live := liveness.NewProbe().Check(*id.Process, id.Build)
		out.Alive = live.Alive
		out.Verified = live.Verified
		out.Reason = live.Reason
	}
	if id.Build != nil {
		out.BuildID = id.Build.BuildID
		out.Version = id.Build.Version
	}

	if f.JSON {
		printJSON(out)
		return nil
	}
	if !out.Recorded {
		fmt.Println("no recorded instance in", cfg.StateDir)
		return nil
	}
	if out.Corrupt != "" {
		fmt.Println("records unreadable:", out.Corrupt)
	}
	if id.Process != nil {
		state := "not running"
		if out.Alive {
			state = "running"
		}
		fmt.Printf("pid %d (%s): %s\n", out.PID, state, out.Reason)
	}
	if id.Build != nil {
		fmt.Printf("build %s version %s\n", out.BuildID, out.Version)
	}
	return nil
}

// Stop terminates the recorded instance and removes its records once the
// process is confirmed gone.
func (c command) Stop(f StopFlags) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	store := identity.NewStore(cfg.StateDir)
	id, err := store.Load()
	if err != nil {
		return err
	}
	if id.Process == nil {
		fmt.Println("no recorded instance to stop")
		return nil
	}

	live := liveness.NewProbe().Check(*id.Process, id.Build)
	if !live.Alive {
		fmt.Printf("pid %d already gone (%s), clearing records\n", id.Process.PID, live.Reason)
		return store.Clear(context.Background(), id)
	}

	term := cfg.Terminator()
	if f.Grace > 0 {
		term.Grace = f.Grace
	}
	if f.Force > 0 {
		term.Force = f.Force
	}

	outcome, err := term.Terminate(context.Background(), id.Process.PID)
	switch outcome {
	case coordinator.TermConfirmed, coordinator.TermKilled:
		fmt.Printf("pid %d stopped (%s)\n", id.Process.PID, outcome)
		return store.Clear(context.Background(), id)
	default:
		if err != nil {
			return fmt.Errorf("stop pid %d: %w", id.Process.PID, err)
		}
		return fmt.Errorf("pid %d did not stop (%s)", id.Process.PID, outcome)
	}
}

// Clear removes the records without signaling anything. It refuses when the
// recorded process is alive unless forced.
func (c command) Clear(f ClearFlags) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	store := identity.NewStore(cfg.StateDir)
	id, err := store.Load()
	if err != nil {
		return err
	}
	if id.Empty() {
		fmt.Println("no records to clear")
		return nil
	}
	if id.Process != nil && !f.Force {
		if live := liveness.NewProbe().Check(*id.Process, id.Build); live.Alive {
			return fmt.Errorf("recorded pid %d is alive; use --force to clear anyway", id.Process.PID)
		}
	}
	if err := store.ForceClear(context.Background()); err != nil {
		return err
	}
	fmt.Println("records cleared")
	return nil
}

// History prints recent guard events from the configured sink.
func (c command) History(f HistoryFlags) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if !cfg.History.Enabled {
		return errors.New("history is not enabled in the configuration")
	}
	sink, err := factory.NewSinkFromDSN(cfg.History.DSN)
	if err != nil {
		return fmt.Errorf("open history sink: %w", err)
	}
	defer closeSink(sink)

	querier, ok := sink.(history.Querier)
	if !ok {
		return fmt.Errorf("history sink %q does not support querying", cfg.History.DSN)
	}
	events, err := querier.Recent(context.Background(), f.Limit)
	if err != nil {
		return err
	}

	if f.JSON {
		printJSON(events)
		return nil
	}
	if len(events) == 0 {
		fmt.Println("no events")
		return nil
	}
	for _, e := range events {
		line := fmt.Sprintf("%s  %-22s pid=%d build=%s",
			e.OccurredAt.Local().Format(time.RFC3339), e.Type, e.Record.PID, e.Record.BuildID)
		if e.Record.Detail != "" {
			line += "  " + e.Record.Detail
		}
		fmt.Println(line)
	}
	return nil
}
