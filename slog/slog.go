// Package slog defines the log-level vocabulary used across the data
// plane and a small Logger that gates stdlib *log.Logger output by
// level. The teacher streams the same level-tagged messages to a
// coordinator over its MLogMsg RPC (cluster/s_execution.go); with the
// gRPC control plane gone, a worker has no coordinator to stream to, so
// Logger writes locally instead — but the vocabulary and the
// level-on-every-message discipline survive unchanged.
package slog

import (
	"fmt"
	"log"
)

const (
	// TraceLevel indicates a log message's level of criticality.
	TraceLevel = iota
	// DebugLevel indicates a log message's level of criticality.
	DebugLevel
	// InfoLevel indicates a log message's level of criticality.
	InfoLevel
	// WarnLevel indicates a log message's level of criticality.
	WarnLevel
	// ErrorLevel indicates a log message's level of criticality.
	ErrorLevel
	// FatalLevel indicates a log message's level of criticality.
	FatalLevel
)

// LevelToString translates a log level enum to a string representation.
func LevelToString(level int) string {
	switch level {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "TRACE"
	}
}

// Logger wraps a stdlib *log.Logger with a minimum level: Logf below
// that level is a no-op, and every emitted line carries its level
// prefix, so a worker running at InfoLevel doesn't see
// TraceLevel/DebugLevel diagnostics.
type Logger struct {
	out *log.Logger
	min int
}

// New builds a Logger that writes through out, discarding any Logf call
// below min.
func New(out *log.Logger, min int) *Logger {
	return &Logger{out: out, min: min}
}

// Logf emits a leveled message if level is at or above the Logger's
// minimum. FatalLevel still does not exit the process — spec §7 reserves
// process termination for the stage-scoped serr.Error path, not logging.
func (l *Logger) Logf(level int, format string, args ...interface{}) {
	if level < l.min {
		return
	}
	l.out.Printf("[%s] %s", LevelToString(level), fmt.Sprintf(format, args...))
}
