package cliexec

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies why a CLI invocation did not produce JSON
type Kind string

const (
	KindNotInstalled Kind = "not_installed"
	KindNoOutput     Kind = "no_output"
	KindFailed       Kind = "failed"
	KindParse        Kind = "parse"
	KindTimeout      Kind = "timeout"
	KindCanceled     Kind = "canceled"
)

// MaxStderrBytes bounds the stderr excerpt carried by an Error
const MaxStderrBytes = 500

// ErrNoJSON is returned when stdout holds no decodable JSON object
var ErrNoJSON = errors.New("no JSON object found in output")

// Error describes a failed CLI invocation
type Error struct {
	Kind     Kind
	Command  string
	ExitCode int
	Stderr   string
	Cause    error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Command, e.Kind)
	if e.ExitCode > 0 {
		fmt.Fprintf(&b, " (exit %d)", e.ExitCode)
	}
	if e.Stderr != "" {
		fmt.Fprintf(&b, ": %s", e.Stderr)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// KindOf returns the Kind of err, or "" when err is not an *Error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "") + "..."
}
