// Package execenv launches a child process under a fully replaced
// environment. Secret values travel in SecureBuffers and only become
// plain strings at the moment the environment slice is assembled.
package execenv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"

	kverrors "github.com/systmms/kvenv/internal/errors"
	"github.com/systmms/kvenv/internal/logging"
	"github.com/systmms/kvenv/internal/secure"
)

// Executor runs commands with a constructed environment.
type Executor struct {
	logger *logging.Logger
}

func New(logger *logging.Logger) *Executor {
	return &Executor{logger: logger}
}

// Options describes one launch. Environment is the complete environment
// of the child; nothing from the kvenv process leaks in beside it.
type Options struct {
	Command     []string
	Environment map[string]*secure.SecureBuffer
	// PrintEnv lists the variable names (values masked) before launch.
	PrintEnv bool
}

// Run starts the command, waits for it, and returns the child's exit
// code. A nonzero child exit is not an error here; failures to launch
// are.
func (e *Executor) Run(ctx context.Context, opts Options) (int, error) {
	if len(opts.Command) == 0 {
		return 0, kverrors.LaunchError{
			Command:    "",
			Suggestion: "Provide a command to run after --",
			Err:        errors.New("no command given"),
		}
	}

	path, err := exec.LookPath(opts.Command[0])
	if err != nil {
		return 0, kverrors.WrapCommandNotFound(opts.Command[0], err)
	}

	environ, err := buildEnviron(opts.Environment)
	if err != nil {
		return 0, err
	}
	if opts.PrintEnv {
		e.printEnvironment(opts.Environment)
	}

	e.logger.Debug("Launching %s with %d environment variable(s)", path, len(environ))

	cmd := exec.CommandContext(ctx, path, opts.Command[1:]...)
	cmd.Env = environ
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code := exitErr.ExitCode()
			if code < 0 {
				// Terminated by a signal.
				code = 1
			}
			return code, nil
		}
		return 0, kverrors.LaunchError{
			Command:    opts.Command[0],
			Suggestion: "Check that the command is executable",
			Err:        err,
		}
	}
	return 0, nil
}

// buildEnviron materializes the KEY=value slice in sorted key order.
func buildEnviron(environment map[string]*secure.SecureBuffer) ([]string, error) {
	keys := make([]string, 0, len(environment))
	for k := range environment {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	environ := make([]string, 0, len(keys))
	for _, k := range keys {
		value, err := environment[k].Bytes()
		if err != nil {
			return nil, kverrors.LaunchError{
				Command: "",
				Err:     fmt.Errorf("cannot access value for %s: %w", k, err),
			}
		}
		environ = append(environ, k+"="+string(value))
	}
	return environ, nil
}

func (e *Executor) printEnvironment(environment map[string]*secure.SecureBuffer) {
	keys := make([]string, 0, len(environment))
	for k := range environment {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		// Values never reach the log, only the names.
		e.logger.Info("%s=%s", k, logging.Secret(""))
	}
}

// WrapEnvironment converts a composed plain map into SecureBuffers.
func WrapEnvironment(environment map[string]string) map[string]*secure.SecureBuffer {
	wrapped := make(map[string]*secure.SecureBuffer, len(environment))
	for k, v := range environment {
		wrapped[k] = secure.NewSecureBufferFromString(v)
	}
	return wrapped
}

// DestroyEnvironment destroys every buffer of a wrapped environment.
func DestroyEnvironment(environment map[string]*secure.SecureBuffer) {
	for _, buf := range environment {
		buf.Destroy()
	}
}
