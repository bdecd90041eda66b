// Package logging provides the shared structured logger for keel.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// Logger is the global logger instance. Components log through the
// package-level helpers; tests may swap in a silenced logger.
var Logger *log.Logger

func init() {
	Logger = log.New(os.Stderr)
	Logger.SetTimeFormat("")
	Logger.SetLevel(log.WarnLevel)
}

// Configure sets the log level and optional log file. An explicit level
// argument wins over the KEEL_LOG_LEVEL environment variable.
func Configure(level, file string) error {
	if level == "" {
		level = strings.ToLower(os.Getenv("KEEL_LOG_LEVEL"))
	}
	if level == "" {
		level = "warn"
	}

	var output io.Writer = os.Stderr
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return err
		}
		output = f
	}

	Logger = log.New(output)
	Logger.SetTimeFormat("")
	Logger.SetLevel(parseLevel(level))
	return nil
}

// Silence redirects all log output to io.Discard. Intended for tests.
func Silence() {
	Logger = log.New(io.Discard)
}

func parseLevel(level string) log.Level {
	switch strings.ToLower(level) {
	case "debug":
		return log.DebugLevel
	case "info":
		return log.InfoLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "fatal":
		return log.FatalLevel
	default:
		return log.WarnLevel
	}
}

// Debug logs a debug message with optional key-value pairs.
func Debug(msg interface{}, keyvals ...interface{}) {
	Logger.Debug(msg, keyvals...)
}

// Info logs an info message with optional key-value pairs.
func Info(msg interface{}, keyvals ...interface{}) {
	Logger.Info(msg, keyvals...)
}

// Warn logs a warning message with optional key-value pairs.
func Warn(msg interface{}, keyvals ...interface{}) {
	Logger.Warn(msg, keyvals...)
}

// Error logs an error message with optional key-value pairs.
func Error(msg interface{}, keyvals ...interface{}) {
	Logger.Error(msg, keyvals...)
}
