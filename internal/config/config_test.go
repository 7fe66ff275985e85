package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/graydot/potter/internal/confirm"
	"github.com/graydot/potter/internal/logger"
	"github.com/graydot/potter/internal/resolution"
)

func writeTOML(t *testing.T, data string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "potter.toml")
	if err := os.WriteFile(file, []byte(data), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}
	return file
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StateDir == "" {
		t.Fatal("empty default state dir")
	}
	if cfg.Policy.OnSameBuild != string(resolution.RuleAsk) {
		t.Fatalf("on_same_build = %q, want ask", cfg.Policy.OnSameBuild)
	}
	if cfg.Policy.OnDifferentBuild != string(resolution.RuleAsk) {
		t.Fatalf("on_different_build = %q, want ask", cfg.Policy.OnDifferentBuild)
	}
	if cfg.Policy.ConfirmTimeout != resolution.DefaultConfirmTimeout {
		t.Fatalf("confirm_timeout = %v", cfg.Policy.ConfirmTimeout)
	}
	if cfg.Log.Level != string(logger.LevelInfo) || cfg.Log.Format != string(logger.FormatText) {
		t.Fatalf("log defaults = %+v", cfg.Log)
	}
	if cfg.Server.Listen == "" || cfg.Server.BasePath == "" {
		t.Fatalf("server defaults = %+v", cfg.Server)
	}
}

func TestLoadFullTOML(t *testing.T) {
	file := writeTOML(t, `
state_dir = "/var/lib/potterd"

[policy]
on_same_build = "ask"
on_different_build = "replace"
confirm_command = "potter-ask"
confirm_timeout = "5s"

[termination]
grace = "2s"
force = "1s"

[log]
level = "debug"
format = "json"
color = true
timestamps = false
source = true
dir = "/var/log/potterd"
max_size_mb = 64
max_backups = 9
max_age_days = 30
compress = true

[history]
enabled = true
dsn = "sqlite:///var/lib/potterd/history.db"

[server]
enabled = true
listen = "127.0.0.1:9999"
base_path = "/guard"
metrics = false

[sampler]
enabled = true
interval = "2s"
max_history = 50
`)
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StateDir != "/var/lib/potterd" {
		t.Fatalf("state_dir = %q", cfg.StateDir)
	}
	if cfg.Policy.OnSameBuild != "ask" || cfg.Policy.OnDifferentBuild != "replace" {
		t.Fatalf("policy = %+v", cfg.Policy)
	}
	if cfg.Policy.ConfirmCommand != "potter-ask" || cfg.Policy.ConfirmTimeout != 5*time.Second {
		t.Fatalf("confirm = %+v", cfg.Policy)
	}
	if cfg.Termination.Grace != 2*time.Second || cfg.Termination.Force != time.Second {
		t.Fatalf("termination = %+v", cfg.Termination)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" || !cfg.Log.Color || !cfg.Log.Source {
		t.Fatalf("log = %+v", cfg.Log)
	}
	if cfg.Log.Timestamps == nil || *cfg.Log.Timestamps {
		t.Fatalf("timestamps = %v, want explicit false", cfg.Log.Timestamps)
	}
	if cfg.Log.MaxSizeMB != 64 || cfg.Log.MaxBackups != 9 || cfg.Log.MaxAgeDays != 30 || !cfg.Log.Compress {
		t.Fatalf("log rotation = %+v", cfg.Log)
	}
	if !cfg.History.Enabled || cfg.History.DSN != "sqlite:///var/lib/potterd/history.db" {
		t.Fatalf("history = %+v", cfg.History)
	}
	if !cfg.Server.Enabled || cfg.Server.Listen != "127.0.0.1:9999" || cfg.Server.BasePath != "/guard" || cfg.Server.Metrics {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if !cfg.Sampler.Enabled || cfg.Sampler.Interval != 2*time.Second || cfg.Sampler.MaxHistory != 50 {
		t.Fatalf("sampler = %+v", cfg.Sampler)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	vars := map[string]string{
		"POTTER_STATE_DIR":     "/env/state",
		"POTTER_ON_SAME_BUILD": "replace",
		"POTTER_HISTORY_DSN":   "sqlite::memory:",
		"POTTER_LOG_LEVEL":     "warn",
	}
	for k, v := range vars {
		orig := os.Getenv(k)
		_ = os.Setenv(k, v)
		defer func(k, orig string) { _ = os.Setenv(k, orig) }(k, orig)
	}

	file := writeTOML(t, `
state_dir = "/file/state"

[policy]
on_same_build = "keep"
`)
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StateDir != "/env/state" {
		t.Fatalf("state_dir = %q, want env override", cfg.StateDir)
	}
	if cfg.Policy.OnSameBuild != "replace" {
		t.Fatalf("on_same_build = %q, want env override", cfg.Policy.OnSameBuild)
	}
	if !cfg.History.Enabled || cfg.History.DSN != "sqlite::memory:" {
		t.Fatalf("history = %+v, want env-enabled sink", cfg.History)
	}
	if cfg.Log.Level != "warn" {
		t.Fatalf("log.level = %q, want env override", cfg.Log.Level)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		toml string
		want string
	}{
		{"bad rule", "[policy]\non_same_build = \"maybe\"\n", "on_same_build"},
		{"bad level", "[log]\nlevel = \"loud\"\n", "log.level"},
		{"bad format", "[log]\nformat = \"xml\"\n", "log.format"},
		{"negative grace", "[termination]\ngrace = \"-1s\"\n", "termination"},
		{"server without listen", "state_dir = \"/s\"\n[server]\nenabled = true\nlisten = \"\"\n", "server.listen"},
		{"history without dsn", "[history]\nenabled = true\n", "history.dsn"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			file := writeTOML(t, tc.toml)
			_, err := Load(file)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %s", err, tc.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoggerConfigConversion(t *testing.T) {
	cfg := Default()
	cfg.Log = LogConfig{Level: "debug", Format: "json", Color: true, Source: true, Dir: "/logs", MaxSizeMB: 5}
	lc := cfg.LoggerConfig()
	if lc.Slog.Level != logger.LevelDebug || lc.Slog.Format != logger.FormatJSON {
		t.Fatalf("slog = %+v", lc.Slog)
	}
	if !lc.Slog.TimeStamps {
		t.Fatal("timestamps should default to true when unset")
	}
	if lc.File.Dir != "/logs" || lc.File.MaxSizeMB != 5 {
		t.Fatalf("file = %+v", lc.File)
	}

	off := false
	cfg.Log.Timestamps = &off
	if cfg.LoggerConfig().Slog.TimeStamps {
		t.Fatal("explicit false not honored")
	}
}

func TestResolutionPolicyConversion(t *testing.T) {
	cfg := Default()
	pol := cfg.ResolutionPolicy()
	if pol.OnSameBuild != resolution.RuleAsk || pol.OnDifferentBuild != resolution.RuleAsk {
		t.Fatalf("policy = %+v", pol)
	}
	if pol.Confirmer != nil {
		t.Fatal("confirmer set without a command")
	}

	cfg.Policy.ConfirmCommand = "echo keep"
	pol = cfg.ResolutionPolicy()
	cmd, ok := pol.Confirmer.(confirm.Command)
	if !ok || cmd.Command != "echo keep" {
		t.Fatalf("confirmer = %#v", pol.Confirmer)
	}
}

func TestTerminatorConversion(t *testing.T) {
	cfg := Default()
	cfg.Termination.Grace = 3 * time.Second
	cfg.Termination.Force = 500 * time.Millisecond
	tr := cfg.Terminator()
	if tr.Grace != 3*time.Second || tr.Force != 500*time.Millisecond {
		t.Fatalf("terminator = %+v", tr)
	}

	cfg.Termination = TerminationConfig{}
	tr = cfg.Terminator()
	if tr.Grace == 0 || tr.Force == 0 {
		t.Fatalf("zero windows not defaulted: %+v", tr)
	}
}
