package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// Logger provides leveled stderr logging with redaction support. All kvenv
// diagnostics go to stderr; stdout is reserved for command output (the
// cache file path, the child process's own stdout). Values registered with
// Protect are scrubbed from every message before it is written.
type Logger struct {
	debug   bool
	noColor bool

	mu        sync.RWMutex
	protected []string
}

// New creates a new logger instance.
func New(debug, noColor bool) *Logger {
	return &Logger{
		debug:   debug,
		noColor: noColor,
	}
}

// Protect registers secret values to be redacted from all subsequent log
// output, whatever path they arrive on (format string, argument, wrapped
// error text).
func (l *Logger) Protect(values ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.protected = append(l.protected, values...)
}

func (l *Logger) redact(msg string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Redact(msg, l.protected)
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	msg := l.redact(fmt.Sprintf(format, args...))
	if !l.noColor {
		fmt.Fprintf(os.Stderr, "\033[32m✓\033[0m %s\n", msg)
	} else {
		fmt.Fprintf(os.Stderr, "✓ %s\n", msg)
	}
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	msg := l.redact(fmt.Sprintf(format, args...))
	if !l.noColor {
		fmt.Fprintf(os.Stderr, "\033[33m⚠\033[0m %s\n", msg)
	} else {
		fmt.Fprintf(os.Stderr, "⚠ %s\n", msg)
	}
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) {
	msg := l.redact(fmt.Sprintf(format, args...))
	if !l.noColor {
		fmt.Fprintf(os.Stderr, "\033[31m✗\033[0m %s\n", msg)
	} else {
		fmt.Fprintf(os.Stderr, "✗ %s\n", msg)
	}
}

// Debug logs a debug message if debug mode is enabled.
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	msg := l.redact(fmt.Sprintf(format, args...))
	if !l.noColor {
		fmt.Fprintf(os.Stderr, "\033[36m[DEBUG]\033[0m %s\n", msg)
	} else {
		fmt.Fprintf(os.Stderr, "[DEBUG] %s\n", msg)
	}
}

// Secret represents a value that should be redacted in logs. Secret names
// and values are only ever logged through this wrapper.
type Secret string

// String implements the Stringer interface, always returning a redacted value.
func (s Secret) String() string {
	return "[REDACTED]"
}

// GoString implements the GoStringer interface for %#v formatting.
func (s Secret) GoString() string {
	return "[REDACTED]"
}

// Redact replaces sensitive values in a string with [REDACTED].
func Redact(s string, secrets []string) string {
	result := s
	for _, secret := range secrets {
		if secret != "" && len(secret) > 3 { // Only redact non-trivial secrets
			result = strings.ReplaceAll(result, secret, "[REDACTED]")
		}
	}
	return result
}
