/*
Package mlog provides structured logging for the MikuDB engine using zerolog.

A single global Logger is initialized once via Init and handed out to
component-scoped children via With*. JSON output is used in production;
console output is meant for local development.
*/
package mlog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger. Init must run before any component
// acquires a child logger.
var Logger zerolog.Logger

// Level is a logging verbosity threshold.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config controls Init.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init installs the global Logger per cfg. Safe to call once at startup;
// concurrent logging before Init uses zerolog's zero-value no-op logger.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithComponent returns a child logger tagged with the owning subsystem
// (e.g. "storage", "wal", "planner").
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithCollection tags a child logger with the collection it operates on.
func WithCollection(name string) zerolog.Logger {
	return Logger.With().Str("collection", name).Logger()
}

// WithSession tags a child logger with a session id.
func WithSession(id string) zerolog.Logger {
	return Logger.With().Str("session_id", id).Logger()
}

// WithTx tags a child logger with a transaction id.
func WithTx(id uint64) zerolog.Logger {
	return Logger.With().Uint64("tx_id", id).Logger()
}

func Info(msg string)  { Logger.Info().Msg(msg) }
func Debug(msg string) { Logger.Debug().Msg(msg) }
func Warn(msg string)  { Logger.Warn().Msg(msg) }
func Error(msg string) { Logger.Error().Msg(msg) }

func Errorf(format string, err error) {
	Logger.Error().Err(err).Msg(format)
}
