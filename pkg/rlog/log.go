// Package rlog configures the process-wide structured logger and hands
// out component-scoped child loggers.
package rlog

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger. Init replaces it; until Init is
// called it defaults to a console writer at info level so early startup
// output (flag parsing, config load) is never silently dropped.
var Logger zerolog.Logger

func init() {
	Logger = zerolog.New(consoleWriter(os.Stderr)).Level(zerolog.InfoLevel).With().Timestamp().Logger()
}

// Config controls level and output shape.
type Config struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "console" or "json"
}

// Init applies cfg to the package logger. Call once at process startup,
// after flags are parsed.
func Init(cfg Config) error {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return err
	}
	var w io.Writer = os.Stderr
	if cfg.Format != "json" {
		w = consoleWriter(os.Stderr)
	}
	Logger = zerolog.New(w).Level(level).With().Timestamp().Logger()
	return nil
}

func consoleWriter(w io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
}

// WithComponent returns a child logger tagged with the owning actor's
// name (manager, parser, fetch, status).
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithTAL tags a logger with the trust anchor it is currently processing.
func WithTAL(l zerolog.Logger, tal string) zerolog.Logger {
	return l.With().Str("tal", tal).Logger()
}

// WithRepo tags a logger with a repository base URI.
func WithRepo(l zerolog.Logger, repo string) zerolog.Logger {
	return l.With().Str("repo", repo).Logger()
}

// WithEntity tags a logger with an entity's local cache path.
func WithEntity(l zerolog.Logger, path string) zerolog.Logger {
	return l.With().Str("entity", path).Logger()
}
