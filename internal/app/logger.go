package app

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Logger is the logging interface handed to every component at
// construction. No component logs through ambient global state.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

type level int

const (
	levelDebug level = iota
	levelInfo
	levelWarn
	levelError
)

// stderrLogger writes leveled lines to a single writer
type stderrLogger struct {
	output io.Writer
	min    level
}

// NewLogger creates a logger filtering below the named level.
// Unknown level names fall back to "warn".
func NewLogger(output io.Writer, levelName string) Logger {
	if output == nil {
		output = os.Stderr
	}
	return &stderrLogger{output: output, min: parseLevel(levelName)}
}

func parseLevel(name string) level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "error":
		return levelError
	default:
		return levelWarn
	}
}

func (l *stderrLogger) log(lv level, prefix, format string, args ...interface{}) {
	if lv < l.min {
		return
	}
	fmt.Fprintf(l.output, prefix+format+"\n", args...)
}

func (l *stderrLogger) Debug(format string, args ...interface{}) {
	l.log(levelDebug, "DEBUG: ", format, args...)
}

func (l *stderrLogger) Info(format string, args ...interface{}) {
	l.log(levelInfo, "INFO: ", format, args...)
}

func (l *stderrLogger) Warn(format string, args ...interface{}) {
	l.log(levelWarn, "WARN: ", format, args...)
}

func (l *stderrLogger) Error(format string, args ...interface{}) {
	l.log(levelError, "ERROR: ", format, args...)
}

// NopLogger discards all output. Useful in tests.
func NopLogger() Logger {
	return &stderrLogger{output: io.Discard, min: levelError + 1}
}
