package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/systmms/kvenv/pkg/backend"
)

// Exit codes per error class. CI callers rely on these staying distinct so
// that "secret fetch failed" can be told apart from "the command itself
// failed" (a child that starts and exits nonzero propagates its own code).
const (
	ExitGeneric = 1
	ExitConfig  = 2
	ExitBackend = 3
	ExitDecode  = 4
	ExitCache   = 5
	ExitLaunch  = 6
)

// UserError represents an error that should be shown to the user with
// helpful context.
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context.
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// BackendError wraps a failure talking to a secret store with the backend
// identity and the secret name or prefix that was being resolved. The typed
// not-found/auth errors from pkg/backend pass through Unwrap so callers can
// still match on them.
type BackendError struct {
	Backend    string
	Secret     string
	Op         string // "fetch", "list", "auth"
	Suggestion string
	Err        error
}

func (e BackendError) Error() string {
	msg := fmt.Sprintf("backend '%s' failed to %s '%s'", e.Backend, e.Op, e.Secret)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}
	return msg
}

func (e BackendError) Unwrap() error {
	return e.Err
}

// DecodeError represents an invalid secret payload: malformed JSON, a value
// shape that cannot become an environment variable, an invalid variable
// name, or a duplicate key. Decoding always fails the whole fragment; a
// partially-populated environment is worse than none.
type DecodeError struct {
	Secret  string // secret name the payload came from, if known
	Key     string // offending key, if the error is key-specific
	Message string
	Err     error
}

func (e DecodeError) Error() string {
	msg := "cannot decode secret"
	if e.Secret != "" {
		msg += " '" + e.Secret + "'"
	}
	if e.Key != "" {
		msg += fmt.Sprintf(" (key %q)", e.Key)
	}
	msg += ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e DecodeError) Unwrap() error {
	return e.Err
}

// CacheError represents a failure reading or writing the environment cache
// file.
type CacheError struct {
	Path    string
	Op      string // "read", "write", "remove"
	Message string
	Err     error
}

func (e CacheError) Error() string {
	msg := fmt.Sprintf("cannot %s env file '%s'", e.Op, e.Path)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e CacheError) Unwrap() error {
	return e.Err
}

// LaunchError indicates the target command could not be started at all
// (not found, not executable). It is deliberately distinct from a child
// that ran and exited nonzero, which is not an error of kvenv.
type LaunchError struct {
	Command    string
	Suggestion string
	Err        error
}

func (e LaunchError) Error() string {
	msg := fmt.Sprintf("cannot run command '%s'", e.Command)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}
	return msg
}

func (e LaunchError) Unwrap() error {
	return e.Err
}

// ChildExitError carries a child process's own nonzero exit status through
// the command layer so main can propagate it verbatim. It is never printed.
type ChildExitError struct {
	Code int
}

func (e ChildExitError) Error() string {
	return fmt.Sprintf("command exited with status %d", e.Code)
}

// ExitCode maps an error to the process exit code kvenv should terminate
// with.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var child ChildExitError
	if errors.As(err, &child) {
		return child.Code
	}

	var launch LaunchError
	if errors.As(err, &launch) {
		return ExitLaunch
	}

	var cache CacheError
	if errors.As(err, &cache) {
		return ExitCache
	}

	var decode DecodeError
	if errors.As(err, &decode) {
		return ExitDecode
	}

	var be BackendError
	var notFound backend.NotFoundError
	var auth backend.AuthError
	if errors.As(err, &be) || errors.As(err, &notFound) || errors.As(err, &auth) {
		return ExitBackend
	}

	var cfg ConfigError
	if errors.As(err, &cfg) {
		return ExitConfig
	}

	return ExitGeneric
}

// Silent reports whether the error should be propagated without printing.
// A child's own exit status has already produced whatever output the child
// wanted; repeating it on stderr would only add noise.
func Silent(err error) bool {
	var child ChildExitError
	return errors.As(err, &child)
}

// WrapCommandNotFound wraps command lookup failures with an actionable
// suggestion.
func WrapCommandNotFound(command string, err error) error {
	return LaunchError{
		Command:    command,
		Suggestion: fmt.Sprintf("Make sure '%s' is installed and in your PATH", command),
		Err:        err,
	}
}

// Presentable prepares an error for the user. Classless errors get
// wrapped in a UserError with a debugging hint; the typed classes already
// carry their own suggestions and pass through unchanged.
func Presentable(err error) error {
	if err == nil {
		return nil
	}
	if ExitCode(err) != ExitGeneric {
		return err
	}
	return UserError{
		Err:        err,
		Suggestion: "rerun with --debug for more detail",
	}
}
