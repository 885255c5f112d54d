// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

// Package logging provides centralized zerolog-based logging for Menuvault.
//
// A single global logger is configured once at startup and shared by every
// component. JSON output is the default; console output is available for
// local development.
//
// # Quick Start
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//
//	logging.Info().Str("backup_id", id).Msg("Backup recorded")
//	logging.Ctx(ctx).Warn().Err(err).Msg("Upload failed, trying next strategy")
//
// Components can run at their own level, e.g. debug for the outbox while
// everything else stays at info:
//
//	logging.Init(logging.Config{Level: "info", Components: map[string]string{"outbox": "debug"}})
//	logging.Component(ctx, "outbox").Debug().Msg("Flush pass started")
//
// Always terminate log chains with .Msg() or .Send(); an unterminated event
// is never written.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ServiceName is attached to every log line unless Config.Service
// overrides it.
const ServiceName = "menuvault"

// Config holds logging configuration.
type Config struct {
	// Level is the minimum log level: trace, debug, info, warn, error, fatal, panic, disabled.
	Level string

	// Format is the output format: json or console.
	Format string

	// Caller includes caller file and line number in logs.
	Caller bool

	// Timestamp enables timestamps in log output.
	Timestamp bool

	// Output is the writer for log output. Default: os.Stderr
	Output io.Writer

	// Service, Version and Environment are stamped on every line so logs
	// from several deployments can share a sink.
	Service     string
	Version     string
	Environment string

	// Components overrides Level for loggers obtained through
	// WithComponent or Component, e.g. {"outbox": "debug"} to trace
	// flush passes without raising the level of HTTP access logs.
	Components map[string]string
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Format:    "json",
		Timestamp: true,
		Output:    os.Stderr,
		Service:   ServiceName,
	}
}

var (
	log        zerolog.Logger
	baseLevel  zerolog.Level
	components map[string]zerolog.Level

	// mu guards the three values above.
	mu sync.RWMutex
)

//nolint:gochecknoinits // init ensures logging works before explicit Init() call
func init() {
	initLogger(DefaultConfig())
}

// Init configures the global logger. Calling it again reconfigures it.
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	initLogger(cfg)
}

// initLogger must be called with mu held.
func initLogger(cfg Config) {
	if cfg.Format == "" {
		cfg.Format = "json"
	}
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.Service == "" {
		cfg.Service = ServiceName
	}

	baseLevel = parseLevel(cfg.Level)
	components = make(map[string]zerolog.Level, len(cfg.Components))
	for name, lvl := range cfg.Components {
		components[name] = parseLevel(lvl)
	}
	applyGlobalLevel()
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "time"
	zerolog.MessageFieldName = "message"
	zerolog.ErrorFieldName = "error"

	output := cfg.Output
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        cfg.Output,
			TimeFormat: "15:04:05.000",
		}
	}

	lc := zerolog.New(output).Level(baseLevel).With().Str("service", cfg.Service)
	if cfg.Version != "" {
		lc = lc.Str("version", cfg.Version)
	}
	if cfg.Environment != "" {
		lc = lc.Str("env", cfg.Environment)
	}
	if cfg.Timestamp {
		lc = lc.Timestamp()
	}
	if cfg.Caller {
		lc = lc.Caller()
	}
	log = lc.Logger()
}

// parseLevel maps a level name to zerolog.Level. "warning" is accepted as
// an alias; empty or unknown names select info.
func parseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	if level == "" {
		return zerolog.InfoLevel
	}
	l, err := zerolog.ParseLevel(level)
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

// applyGlobalLevel sets zerolog's global level to the most verbose of the
// base and component levels; the root and component loggers then filter
// on their own level. Must be called with mu held.
func applyGlobalLevel() {
	floor := baseLevel
	for _, l := range components {
		if l < floor {
			floor = l
		}
	}
	zerolog.SetGlobalLevel(floor)
}

// componentLevel returns the override for name. Must be called with mu held.
func componentLevel(name string) (zerolog.Level, bool) {
	l, ok := components[name]
	return l, ok
}

// root returns a snapshot of the global logger. Events started from it
// are unaffected by a concurrent Init.
func root() *zerolog.Logger {
	mu.RLock()
	l := log
	mu.RUnlock()
	return &l
}

// Logger returns the global logger.
func Logger() zerolog.Logger { return *root() }

// SetLogger replaces the global logger. Component overrides still apply to
// loggers derived from it.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func SetLogger(l zerolog.Logger) {
	mu.Lock()
	log = l
	mu.Unlock()
}

// With starts a child logger context from the global logger.
func With() zerolog.Context { return root().With() }

// Debug, Info, Warn and Error start events on the global logger.
func Debug() *zerolog.Event { return root().Debug() }
func Info() *zerolog.Event  { return root().Info() }
func Warn() *zerolog.Event  { return root().Warn() }
func Error() *zerolog.Event { return root().Error() }

// Fatal logs and then calls os.Exit(1).
func Fatal() *zerolog.Event { return root().Fatal() }

// Err starts an error-level event carrying err, or an info-level one when
// err is nil.
func Err(err error) *zerolog.Event { return root().Err(err) }

// SetLevelString updates the base log level. Component overrides are kept.
func SetLevelString(level string) {
	mu.Lock()
	defer mu.Unlock()
	baseLevel = parseLevel(level)
	log = log.Level(baseLevel)
	applyGlobalLevel()
}

// NewTestLogger creates a logger that writes to the provided writer.
//
//	var buf bytes.Buffer
//	logging.SetLogger(logging.NewTestLogger(&buf))
func NewTestLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}
