// Package config loads the potterd TOML configuration and converts it into
// the option types the guard packages consume. Environment variables with
// the POTTER_ prefix override file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/graydot/potter/internal/confirm"
	"github.com/graydot/potter/internal/coordinator"
	"github.com/graydot/potter/internal/logger"
	"github.com/graydot/potter/internal/metrics"
	"github.com/graydot/potter/internal/resolution"
)

// Config is the top-level TOML structure.
type Config struct {
	StateDir    string                `toml:"state_dir" mapstructure:"state_dir"`
	Policy      PolicyConfig          `toml:"policy" mapstructure:"policy"`
	Termination TerminationConfig     `toml:"termination" mapstructure:"termination"`
	Log         LogConfig             `toml:"log" mapstructure:"log"`
	History     HistoryConfig         `toml:"history" mapstructure:"history"`
	Server      ServerConfig          `toml:"server" mapstructure:"server"`
	Sampler     metrics.SamplerConfig `toml:"sampler" mapstructure:"sampler"`
}

// PolicyConfig selects how live collisions are handled.
type PolicyConfig struct {
	OnSameBuild      string        `toml:"on_same_build" mapstructure:"on_same_build"`
	OnDifferentBuild string        `toml:"on_different_build" mapstructure:"on_different_build"`
	ConfirmCommand   string        `toml:"confirm_command" mapstructure:"confirm_command"`
	ConfirmTimeout   time.Duration `toml:"confirm_timeout" mapstructure:"confirm_timeout"`
}

// TerminationConfig bounds the replace escalation.
type TerminationConfig struct {
	Grace time.Duration `toml:"grace" mapstructure:"grace"`
	Force time.Duration `toml:"force" mapstructure:"force"`
}

// LogConfig is the flat TOML view of logger.Config. Timestamps is a pointer
// so an absent key keeps the default instead of reading as false.
type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	Format     string `toml:"format" mapstructure:"format"`
	Color      bool   `toml:"color" mapstructure:"color"`
	Timestamps *bool  `toml:"timestamps" mapstructure:"timestamps"`
	Source     bool   `toml:"source" mapstructure:"source"`
	Dir        string `toml:"dir" mapstructure:"dir"`
	File       string `toml:"file" mapstructure:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

// HistoryConfig names the event sink. An empty DSN disables the audit trail.
type HistoryConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	DSN     string `toml:"dsn" mapstructure:"dsn"`
}

// ServerConfig configures the local control API.
type ServerConfig struct {
	Enabled  bool   `toml:"enabled" mapstructure:"enabled"`
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
	Metrics  bool   `toml:"metrics" mapstructure:"metrics"`
}

// DefaultStateDir places records under the user config dir, the natural home
// for per-user desktop state.
func DefaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "potter")
	}
	return filepath.Join(os.TempDir(), "potter")
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		StateDir: DefaultStateDir(),
		Policy: PolicyConfig{
			OnSameBuild:      string(resolution.RuleAsk),
			OnDifferentBuild: string(resolution.RuleAsk),
			ConfirmTimeout:   resolution.DefaultConfirmTimeout,
		},
		Termination: TerminationConfig{
			Grace: coordinator.DefaultGrace,
			Force: coordinator.DefaultForce,
		},
		Log: LogConfig{
			Level:  string(logger.LevelInfo),
			Format: string(logger.FormatText),
		},
		Server: ServerConfig{
			Listen:   "127.0.0.1:8921",
			BasePath: "/potter",
			Metrics:  true,
		},
	}
}

// Load reads a TOML file over the defaults, then applies POTTER_ environment
// overrides and validates. An empty path skips the file and still applies
// env and validation.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		v := viper.New()
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
		if err := v.Unmarshal(&cfg); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv layers environment overrides on top of file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("POTTER_STATE_DIR"); v != "" {
		c.StateDir = v
	}
	if v := os.Getenv("POTTER_ON_SAME_BUILD"); v != "" {
		c.Policy.OnSameBuild = v
	}
	if v := os.Getenv("POTTER_ON_DIFFERENT_BUILD"); v != "" {
		c.Policy.OnDifferentBuild = v
	}
	if v := os.Getenv("POTTER_CONFIRM_COMMAND"); v != "" {
		c.Policy.ConfirmCommand = v
	}
	if v := os.Getenv("POTTER_HISTORY_DSN"); v != "" {
		c.History.Enabled = true
		c.History.DSN = v
	}
	if v := os.Getenv("POTTER_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("POTTER_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("POTTER_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
}

func validRule(s string) bool {
	switch resolution.Rule(s) {
	case "", resolution.RuleAsk, resolution.RuleReplace, resolution.RuleKeep:
		return true
	}
	return false
}

// Validate rejects values the guard packages would otherwise coerce quietly.
func (c Config) Validate() error {
	if c.StateDir == "" {
		return fmt.Errorf("state_dir must not be empty")
	}
	if !validRule(c.Policy.OnSameBuild) {
		return fmt.Errorf("policy.on_same_build: unknown rule %q", c.Policy.OnSameBuild)
	}
	if !validRule(c.Policy.OnDifferentBuild) {
		return fmt.Errorf("policy.on_different_build: unknown rule %q", c.Policy.OnDifferentBuild)
	}
	if c.Policy.ConfirmTimeout < 0 {
		return fmt.Errorf("policy.confirm_timeout must not be negative")
	}
	if c.Termination.Grace < 0 || c.Termination.Force < 0 {
		return fmt.Errorf("termination windows must not be negative")
	}
	switch logger.Level(c.Log.Level) {
	case "", logger.LevelDebug, logger.LevelInfo, logger.LevelWarn, logger.LevelError:
	default:
		return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}
	switch logger.Format(c.Log.Format) {
	case "", logger.FormatText, logger.FormatJSON:
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	if c.Server.Enabled && c.Server.Listen == "" {
		return fmt.Errorf("server.listen required when server.enabled")
	}
	if c.History.Enabled && c.History.DSN == "" {
		return fmt.Errorf("history.dsn required when history.enabled")
	}
	if c.Sampler.Enabled && c.Sampler.Interval < 0 {
		return fmt.Errorf("sampler.interval must not be negative")
	}
	return nil
}

// LoggerConfig converts the flat TOML view into the logger's option shape.
func (c Config) LoggerConfig() logger.Config {
	ts := true
	if c.Log.Timestamps != nil {
		ts = *c.Log.Timestamps
	}
	return logger.Config{
		Slog: logger.SlogConfig{
			Level:      logger.Level(c.Log.Level),
			Format:     logger.Format(c.Log.Format),
			Color:      c.Log.Color,
			TimeStamps: ts,
			Source:     c.Log.Source,
		},
		File: logger.FileConfig{
			Dir:        c.Log.Dir,
			Path:       c.Log.File,
			MaxSizeMB:  c.Log.MaxSizeMB,
			MaxBackups: c.Log.MaxBackups,
			MaxAgeDays: c.Log.MaxAgeDays,
			Compress:   c.Log.Compress,
		},
	}
}

// ResolutionPolicy converts the policy section, wiring the external confirm
// command when one is configured.
func (c Config) ResolutionPolicy() resolution.Policy {
	p := resolution.Policy{
		OnSameBuild:      resolution.Rule(c.Policy.OnSameBuild),
		OnDifferentBuild: resolution.Rule(c.Policy.OnDifferentBuild),
		ConfirmTimeout:   c.Policy.ConfirmTimeout,
	}
	if c.Policy.ConfirmCommand != "" {
		p.Confirmer = confirm.Command{Command: c.Policy.ConfirmCommand}
	}
	return p
}

// Terminator converts the termination section.
func (c Config) Terminator() *coordinator.Terminator {
	t := coordinator.NewTerminator()
	if c.Termination.Grace > 0 {
		t.Grace = c.Termination.Grace
	}
	if c.Termination.Force > 0 {
		t.Force = c.Termination.Force
	}
	return t
}
