// Package logging configures the process-wide zerolog logger, following the
// shape of cuemby-warren/pkg/log: a package-level Logger, a typed Level, and
// small With* helpers that derive component-scoped child loggers.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Level mirrors zerolog's levels with a stable, config-friendly string set.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Config controls how Init builds the root logger.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Logger is the process-wide root logger. Subsystems derive child loggers
// from it via With().
var Logger zerolog.Logger

// Init configures the package-level Logger. Call once at process startup.
func Init(cfg Config) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if !cfg.JSONOutput {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(string(cfg.Level)))
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	Logger = zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// Component returns a child logger tagged with the given component name.
func Component(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// WithDomain tags a logger with the aggregate domain it is acting on.
func WithDomain(l zerolog.Logger, domain string) zerolog.Logger {
	return l.With().Str("domain", domain).Logger()
}

// WithCorrelation tags a logger with a correlation id.
func WithCorrelation(l zerolog.Logger, correlationID string) zerolog.Logger {
	return l.With().Str("correlation_id", correlationID).Logger()
}

func init() {
	Init(Config{Level: LevelInfo, JSONOutput: true})
}
