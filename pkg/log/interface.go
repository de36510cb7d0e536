// Package log provides a structured logging interface for the inference
// engine and its collaborators.
//
// The package defines a minimal, slog-compatible logging interface backed by
// zerolog, so components can emit structured events (iteration counters, ELBO
// values, back-off diagnostics) without binding to a concrete logging
// library.
//
// Example usage:
//
//	provider := log.NewZerologProvider(log.LevelInfo)
//	logger := provider.GetLoggerWithName("Engine")
//	logger.Info("training started",
//	    log.SamplesKey, 1000,
//	    log.LatentsKey, 3,
//	)
package log

import (
	"context"
)

// Logger defines a structured logging interface compatible with Go's
// log/slog. With returns a contextual logger with pre-populated fields;
// Enabled allows callers to skip expensive field construction.
type Logger interface {
	// Debug logs a debug-level message with optional structured fields.
	Debug(msg string, fields ...any)

	// Info logs an info-level message with optional structured fields.
	Info(msg string, fields ...any)

	// Warn logs a warning-level message with optional structured fields.
	Warn(msg string, fields ...any)

	// Error logs an error-level message with optional structured fields.
	// If the first field is an error it is attached as the event error.
	Error(msg string, fields ...any)

	// With returns a new Logger with the given fields pre-populated.
	With(fields ...any) Logger

	// Enabled reports whether the logger emits records at the given level.
	Enabled(ctx context.Context, level Level) bool
}

// Level represents a logging level, value-compatible with slog.Level.
type Level int

// Standard logging levels.
const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LoggerProvider creates and configures loggers. It exists for dependency
// injection: components receive a provider rather than constructing a
// concrete backend themselves.
type LoggerProvider interface {
	// GetLogger returns the default logger instance.
	GetLogger() Logger

	// GetLoggerWithName returns a logger with a component identifier.
	GetLoggerWithName(name string) Logger

	// SetLevel sets the minimum log level for loggers from this provider.
	SetLevel(level Level)
}

// Standard attribute keys used across the library. Using shared keys keeps
// log analysis and filtering consistent.
const (
	// ComponentKey identifies the component emitting the event.
	ComponentKey = "component"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "update", "elbo", "sample".
	OperationKey = "operation"

	// IterationKey is the training iteration counter.
	IterationKey = "iteration"

	// SamplesKey is the number of data rows being processed.
	SamplesKey = "data.samples"

	// FeaturesKey is the number of input columns.
	FeaturesKey = "data.features"

	// LatentsKey is the number of latent GP functions.
	LatentsKey = "model.latents"

	// InducingKey is the number of inducing points.
	InducingKey = "model.inducing"

	// ELBOKey carries the current value of the variational bound.
	ELBOKey = "elbo"

	// DurationMsKey is an elapsed wall time in milliseconds.
	DurationMsKey = "duration_ms"
)
