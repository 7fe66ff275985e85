package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters, lumberjack semantics.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// DefaultFileName is used when only File.Dir is configured.
const DefaultFileName = "potterd.log"

// Level names accepted in configuration.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format selects the slog handler flavor.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// SlogConfig describes the structured logger: level, output format and
// terminal affordances.
type SlogConfig struct {
	Level      Level
	Format     Format
	Color      bool
	TimeStamps bool
	Source     bool
}

// FileConfig describes rotating file output. If Path is empty and Dir is
// set, the file is Dir/potterd.log. Rotation parameters follow lumberjack
// semantics.
type FileConfig struct {
	Dir        string // base directory for logs
	Path       string // explicit path overrides Dir
	MaxSizeMB  int    // megabytes before rotation (default 10)
	MaxBackups int    // number of backups to keep (default 3)
	MaxAgeDays int    // days to keep (default 7)
	Compress   bool   // gzip rotated files
}

// Config is the unified logging configuration: structured logging on one
// side, rotating file output on the other.
type Config struct {
	Slog SlogConfig
	File FileConfig
}

// Default returns the configuration used when the caller provides none:
// info-level text logging with timestamps, no file output.
func Default() Config {
	return Config{Slog: SlogConfig{Level: LevelInfo, Format: FormatText, TimeStamps: true}}
}

// SlogLevel maps the configured level string to slog. Unknown values fall
// back to info.
func (c SlogConfig) SlogLevel() slog.Level {
	switch c.Level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewSlogger builds the application logger. Output goes to stderr and, when
// a file destination is configured, is teed into a rotating log file.
func (c Config) NewSlogger() *slog.Logger {
	var w io.Writer = os.Stderr
	if fw := c.fileWriter(); fw != nil {
		w = io.MultiWriter(os.Stderr, fw)
	}
	return slog.New(c.handler(w))
}

// NewFileSlogger builds a logger that writes only to the rotating file.
// Returns nil when no file destination is configured.
func (c Config) NewFileSlogger() *slog.Logger {
	fw := c.fileWriter()
	if fw == nil {
		return nil
	}
	return slog.New(c.handler(fw))
}

func (c Config) handler(w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     c.Slog.SlogLevel(),
		AddSource: c.Slog.Source,
	}
	if !c.Slog.TimeStamps {
		opts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		}
	}
	if c.Slog.Format == FormatJSON {
		return slog.NewJSONHandler(w, opts)
	}
	if c.Slog.Color {
		return NewColorTextHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// fileWriter returns the rotating writer, or nil when neither File.Path nor
// File.Dir is set.
func (c Config) fileWriter() io.WriteCloser {
	path := c.File.Path
	if path == "" && c.File.Dir != "" {
		path = filepath.Join(c.File.Dir, DefaultFileName)
	}
	if path == "" {
		return nil
	}
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.File.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.File.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.File.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.File.Compress,
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
