// Package cliexec runs the MoltBot CLI and turns its mixed stdout into JSON.
package cliexec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/thinmintdev/moltbot-dashboard-sub002/log"
)

const (
	// DefaultTimeout applies when Options.Timeout is zero
	DefaultTimeout = 30 * time.Second

	// JSONFlag is appended to every invocation
	JSONFlag = "--json"

	// waitDelay bounds how long Wait blocks on pipes held open by grandchildren
	waitDelay = 2 * time.Second
)

// Runner executes a CLI subcommand and returns its JSON payload
type Runner interface {
	Run(ctx context.Context, args ...string) (json.RawMessage, error)
}

// Options configures a CLIRunner
type Options struct {
	CLIPath string
	Dir     string
	Env     map[string]string
	Timeout time.Duration
}

// CLIRunner implements Runner with one child process per call
type CLIRunner struct {
	cliPath string
	dir     string
	env     []string
	timeout time.Duration
}

// NewCLIRunner creates a runner for the given binary
func NewCLIRunner(opts Options) *CLIRunner {
	cliPath := opts.CLIPath
	if cliPath == "" {
		cliPath = "moltbot"
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	env := os.Environ()
	for key, value := range opts.Env {
		env = append(env, key+"="+value)
	}

	return &CLIRunner{
		cliPath: cliPath,
		dir:     opts.Dir,
		env:     env,
		timeout: timeout,
	}
}

// WithTimeout returns a copy of the runner using a different timeout
func (r *CLIRunner) WithTimeout(timeout time.Duration) *CLIRunner {
	cp := *r
	if timeout > 0 {
		cp.timeout = timeout
	}
	return &cp
}

// CLIPath returns the binary this runner invokes
func (r *CLIRunner) CLIPath() string {
	return r.cliPath
}

// Run invokes `<cli> args... --json`. The call is bounded by the runner
// timeout and by ctx; either one kills the child process.
func (r *CLIRunner) Run(ctx context.Context, args ...string) (json.RawMessage, error) {
	args = withJSONFlag(args)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.cliPath, args...)
	cmd.Dir = r.dir
	cmd.Env = r.env
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debug().
		Str("cli", r.cliPath).
		Str("command", commandName(args)).
		Int("argc", len(args)).
		Msg("running CLI")

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	data, err := classify(commandName(args), ctx.Err(), runErr, stdout.Bytes(), stderr.String())
	if err != nil {
		log.Warn().
			Err(err).
			Str("command", commandName(args)).
			Dur("duration", elapsed).
			Msg("CLI call failed")
		return nil, err
	}

	log.Debug().
		Str("command", commandName(args)).
		Dur("duration", elapsed).
		Int("bytes", len(data)).
		Msg("CLI call succeeded")
	return data, nil
}

// classify maps the outcome of one invocation onto a JSON payload or an *Error
func classify(command string, ctxErr, runErr error, stdout []byte, stderr string) (json.RawMessage, error) {
	newErr := func(kind Kind, cause error) *Error {
		return &Error{
			Kind:     kind,
			Command:  command,
			ExitCode: exitCode(runErr),
			Stderr:   truncate(stderr, MaxStderrBytes),
			Cause:    cause,
		}
	}

	if runErr != nil {
		switch {
		case errors.Is(ctxErr, context.DeadlineExceeded):
			return nil, newErr(KindTimeout, ctxErr)
		case errors.Is(ctxErr, context.Canceled):
			return nil, newErr(KindCanceled, ctxErr)
		}
	}

	if runErr != nil && (errors.Is(runErr, exec.ErrNotFound) || errors.Is(runErr, fs.ErrNotExist)) {
		return nil, newErr(KindNotInstalled, runErr)
	}

	if len(bytes.TrimSpace(stdout)) == 0 {
		if strings.Contains(strings.ToLower(stderr), "not found") {
			return nil, newErr(KindNotInstalled, runErr)
		}
		if runErr != nil {
			return nil, newErr(KindFailed, runErr)
		}
		return nil, newErr(KindNoOutput, nil)
	}

	if runErr != nil || strings.Contains(strings.ToLower(stderr), "error") {
		return nil, newErr(KindFailed, runErr)
	}

	data, err := ExtractJSON(stdout)
	if err != nil {
		return nil, newErr(KindParse, err)
	}
	return data, nil
}

func withJSONFlag(args []string) []string {
	out := make([]string, 0, len(args)+1)
	out = append(out, args...)
	return append(out, JSONFlag)
}

// commandName is the subcommand path without flags, e.g. "models list"
func commandName(args []string) string {
	var parts []string
	for _, a := range args {
		if strings.HasPrefix(a, "-") {
			break
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 0
}
