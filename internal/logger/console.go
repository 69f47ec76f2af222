// Package logger provides the leveled console logger used across
// sentinel. Output is timestamped, thread-safe, and colorized when the
// destination is a terminal.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Logger is the narrow logging interface the supervision packages take.
type Logger interface {
	Tracef(format string, args ...any)
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Log level constants for filtering
const (
	levelTrace int = 0
	levelDebug int = 1
	levelInfo  int = 2
	levelWarn  int = 3
	levelError int = 4
)

// ConsoleLogger writes leveled, [HH:MM:SS]-prefixed messages to a writer.
// It is safe for concurrent use.
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
}

// NewConsoleLogger creates a ConsoleLogger writing to the given writer.
// If writer is nil, messages are silently discarded. Valid levels: trace,
// debug, info, warn, error (case-insensitive); empty or invalid levels
// default to "info". Color is enabled only for TTY stdout/stderr.
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		colorOutput: isTerminal(writer),
	}
}

// isTerminal reports whether the writer is a TTY that supports color.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || (f != os.Stdout && f != os.Stderr) {
		return false
	}
	if color.NoColor {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// normalizeLogLevel lowercases and validates a level string, defaulting
// to "info" for empty or unknown values.
func normalizeLogLevel(level string) string {
	normalized := strings.ToLower(strings.TrimSpace(level))
	switch normalized {
	case "trace", "debug", "info", "warn", "error":
		return normalized
	default:
		return "info"
	}
}

// logLevelToInt maps a level string to its numeric rank.
func logLevelToInt(level string) int {
	switch level {
	case "trace":
		return levelTrace
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// shouldLog reports whether a message at messageLevel passes the filter.
func (cl *ConsoleLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(cl.logLevel)
}

var levelColors = map[string]*color.Color{
	"trace": color.New(color.FgHiBlack),
	"debug": color.New(color.FgCyan),
	"warn":  color.New(color.FgYellow),
	"error": color.New(color.FgRed),
}

func (cl *ConsoleLogger) logf(level, format string, args ...any) {
	if cl.writer == nil || !cl.shouldLog(level) {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	timestamp := time.Now().Format("15:04:05")
	message := fmt.Sprintf(format, args...)
	tag := strings.ToUpper(level)
	if cl.colorOutput {
		if c, ok := levelColors[level]; ok {
			tag = c.Sprint(tag)
		}
	}
	fmt.Fprintf(cl.writer, "[%s] %s %s\n", timestamp, tag, message)
}

// Tracef logs a trace-level message (most verbose).
func (cl *ConsoleLogger) Tracef(format string, args ...any) {
	cl.logf("trace", format, args...)
}

// Debugf logs a debug-level message.
func (cl *ConsoleLogger) Debugf(format string, args ...any) {
	cl.logf("debug", format, args...)
}

// Infof logs an info-level message.
func (cl *ConsoleLogger) Infof(format string, args ...any) {
	cl.logf("info", format, args...)
}

// Warnf logs a warning.
func (cl *ConsoleLogger) Warnf(format string, args ...any) {
	cl.logf("warn", format, args...)
}

// Errorf logs an error.
func (cl *ConsoleLogger) Errorf(format string, args ...any) {
	cl.logf("error", format, args...)
}

// Nop returns a logger that discards everything. Useful as a default when
// a component is constructed without a logger.
func Nop() Logger {
	return &ConsoleLogger{writer: nil, logLevel: "info"}
}

var _ Logger = (*ConsoleLogger)(nil)
