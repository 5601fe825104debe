// Package logger provides component-scoped structured logging for relaygate.
// Every log line carries a "component" tag (api, mcp, dispatch, protocol name)
// so a single process log can be filtered per subsystem.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu   sync.RWMutex
	root zerolog.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
)

// Init configures the process logger. Level is one of debug/info/warn/error;
// format is "console" or "json". Safe to call more than once.
func Init(level, format string) {
	mu.Lock()
	defer mu.Unlock()

	lvl := zerolog.InfoLevel
	switch strings.ToLower(level) {
	case "debug":
		lvl = zerolog.DebugLevel
	case "info":
		lvl = zerolog.InfoLevel
	case "warn", "warning":
		lvl = zerolog.WarnLevel
	case "error":
		lvl = zerolog.ErrorLevel
	}

	if strings.ToLower(format) == "json" {
		root = zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
	} else {
		root = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger()
	}
}

// SetOutput redirects log output, used by tests to capture or silence logs.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	root = zerolog.New(w).With().Timestamp().Logger()
}

func logEvent(e *zerolog.Event, component, msg string, fields map[string]interface{}) {
	e = e.Str("component", component)
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}

// get copies the root logger so callers have an addressable value for the
// pointer-receiver level methods, and so a concurrent Init/SetOutput cannot
// swap the logger out from under an in-progress event.
func get() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// DebugC logs a debug message for a component.
func DebugC(component, msg string) {
	l := get()
	logEvent(l.Debug(), component, msg, nil)
}

// DebugCF logs a debug message with structured fields.
func DebugCF(component, msg string, fields map[string]interface{}) {
	l := get()
	logEvent(l.Debug(), component, msg, fields)
}

// InfoC logs an info message for a component.
func InfoC(component, msg string) {
	l := get()
	logEvent(l.Info(), component, msg, nil)
}

// InfoCF logs an info message with structured fields.
func InfoCF(component, msg string, fields map[string]interface{}) {
	l := get()
	logEvent(l.Info(), component, msg, fields)
}

// WarnC logs a warning for a component.
func WarnC(component, msg string) {
	l := get()
	logEvent(l.Warn(), component, msg, nil)
}

// WarnCF logs a warning with structured fields.
func WarnCF(component, msg string, fields map[string]interface{}) {
	l := get()
	logEvent(l.Warn(), component, msg, fields)
}

// ErrorC logs an error for a component.
func ErrorC(component, msg string) {
	l := get()
	logEvent(l.Error(), component, msg, nil)
}

// ErrorCF logs an error with structured fields.
func ErrorCF(component, msg string, fields map[string]interface{}) {
	l := get()
	logEvent(l.Error(), component, msg, fields)
}
