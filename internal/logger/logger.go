// Package logger provides the leveled, component-scoped logger used across the pipeline.
package logger

import "strings"

// Level represents the severity of a log message.
type Level int

const (
	// LevelDebug is for per-frame and per-worker detail.
	LevelDebug Level = iota
	// LevelInfo is for pipeline phase progress.
	LevelInfo
	// LevelWarn is for recoverable problems that degrade output.
	LevelWarn
	// LevelError is for problems that stop the pipeline.
	LevelError
	// LevelQuiet suppresses all output.
	LevelQuiet
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelQuiet:
		return "quiet"
	default:
		return "unknown"
	}
}

// ParseLevel parses a level name. Unknown names fall back to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "quiet":
		return LevelQuiet
	default:
		return LevelInfo
	}
}

// Logger is the logging port. Messages are printf-style.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	// WithComponent returns a logger that prefixes messages with the component name.
	WithComponent(component string) Logger
}
