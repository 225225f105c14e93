// Package log provides structured logging for the randomness beacon engine.
// It wraps rs/zerolog with protocol-specific conveniences such as per-module
// and per-round child loggers.
package log

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger with beacon-specific context.
type Logger struct {
	inner zerolog.Logger
}

// defaultLogger is the process-wide logger used by the package-level
// convenience functions.
var defaultLogger *Logger

func init() {
	defaultLogger = New(zerolog.InfoLevel)
}

// New creates a Logger that writes JSON to stderr at the given level.
func New(level zerolog.Level) *Logger {
	inner := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	return &Logger{inner: inner}
}

// NewWithWriter creates a Logger backed by an arbitrary io.Writer. This is
// useful for testing or for writing to a custom destination.
func NewWithWriter(w io.Writer, level zerolog.Level) *Logger {
	inner := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return &Logger{inner: inner}
}

// SetDefault replaces the package-level default logger.
func SetDefault(l *Logger) {
	if l != nil {
		defaultLogger = l
	}
}

// Default returns the current package-level default logger.
func Default() *Logger {
	return defaultLogger
}

// Module returns a child logger with an additional "module" attribute. This
// is the primary way subsystems (round, vdf, artifact, range) obtain their
// own contextual logger.
func (l *Logger) Module(name string) *Logger {
	return &Logger{inner: l.inner.With().Str("module", name).Logger()}
}

// Round returns a child logger scoped to a specific round id.
func (l *Logger) Round(roundID string) *Logger {
	return &Logger{inner: l.inner.With().Str("round_id", roundID).Logger()}
}

// With returns a child logger with one additional string key-value pair.
// Chain calls to attach several fields.
func (l *Logger) With(key, value string) *Logger {
	return &Logger{inner: l.inner.With().Str(key, value).Logger()}
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string) { l.inner.Debug().Msg(msg) }

// Info logs at info level.
func (l *Logger) Info(msg string) { l.inner.Info().Msg(msg) }

// Warn logs at warn level.
func (l *Logger) Warn(msg string) { l.inner.Warn().Msg(msg) }

// Error logs at error level, attaching err when non-nil.
func (l *Logger) Error(msg string, err error) {
	ev := l.inner.Error()
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg(msg)
}

// ---------------------------------------------------------------------------
// Package-level convenience functions -- delegate to defaultLogger.
// ---------------------------------------------------------------------------

// Debug logs at debug level using the default logger.
func Debug(msg string) { defaultLogger.Debug(msg) }

// Info logs at info level using the default logger.
func Info(msg string) { defaultLogger.Info(msg) }

// Warn logs at warn level using the default logger.
func Warn(msg string) { defaultLogger.Warn(msg) }

// Error logs at error level using the default logger.
func Error(msg string, err error) { defaultLogger.Error(msg, err) }
