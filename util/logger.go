// Package util provides low-level helpers shared by all other packages.
package util

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// LogLevel controls output verbosity.
type LogLevel int

const (
	LogQuiet   LogLevel = 0 // errors only
	LogNormal  LogLevel = 1 // lifecycle: listening, warnings, shutdown
	LogVerbose LogLevel = 2 // one line per session
	LogDebug   LogLevel = 3 // handshake and dial detail
)

// sink is the destination every logger derived by With writes to, so
// SetOutput and SetTimestamps reach the whole family.
type sink struct {
	mu         sync.Mutex
	w          io.Writer
	timestamps bool
}

// Logger writes "[LVL] [tag] message" lines.  Session loggers are
// derived with With and tag every line with the session id.
type Logger struct {
	level LogLevel
	out   *sink
	tags  string
}

// NewLogger returns a stderr logger at the given verbosity.  Debug
// verbosity turns timestamps on.
func NewLogger(verbosity int) *Logger {
	return &Logger{
		level: LogLevel(verbosity),
		out:   &sink{w: os.Stderr, timestamps: verbosity >= int(LogDebug)},
	}
}

// With returns a logger that adds "[tag] " after the level marker.
func (l *Logger) With(tag string) *Logger {
	return &Logger{level: l.level, out: l.out, tags: l.tags + "[" + tag + "] "}
}

func (l *Logger) SetTimestamps(on bool) {
	l.out.mu.Lock()
	l.out.timestamps = on
	l.out.mu.Unlock()
}

func (l *Logger) SetOutput(w io.Writer) {
	l.out.mu.Lock()
	l.out.w = w
	l.out.mu.Unlock()
}

func (l *Logger) Level() LogLevel { return l.level }

// Error is printed at every verbosity, quiet included.
func (l *Logger) Error(format string, args ...interface{}) {
	l.logf(LogQuiet, "ERR", format, args)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.logf(LogNormal, "WRN", format, args)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.logf(LogNormal, "INF", format, args)
}

func (l *Logger) Verbose(format string, args ...interface{}) {
	l.logf(LogVerbose, "VRB", format, args)
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.logf(LogDebug, "DBG", format, args)
}

func (l *Logger) logf(min LogLevel, marker, format string, args []interface{}) {
	if l.level < min {
		return
	}
	line := "[" + marker + "] " + l.tags + fmt.Sprintf(format, args...) + "\n"

	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	if l.out.timestamps {
		line = time.Now().Format("15:04:05.000") + " " + line
	}
	io.WriteString(l.out.w, line) //nolint:errcheck
}
