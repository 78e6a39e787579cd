// Package extcmd runs external tools (yt-dlp, ffmpeg) and classifies their
// failures. It has no retry logic of its own; retrying a failed invocation
// is the calling stage's decision.
package extcmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// FailureKind classifies why an invocation did not succeed.
type FailureKind int

const (
	// FailureStart means the process never ran (binary missing, permissions).
	FailureStart FailureKind = iota
	// FailureExit means the process exited with a non-zero code.
	FailureExit
	// FailureSignal means the process was terminated by a signal, including
	// a context-deadline kill.
	FailureSignal
)

func (k FailureKind) String() string {
	switch k {
	case FailureStart:
		return "failed to start"
	case FailureExit:
		return "non-zero exit"
	case FailureSignal:
		return "terminated by signal"
	default:
		return "unknown failure"
	}
}

// tailBytes bounds how much captured output an Error carries.
const tailBytes = 4096

// Spec describes one invocation.
type Spec struct {
	Prog string
	Args []string
	Dir  string
	// Timeout bounds the invocation when positive. A hung binary is killed
	// and reported as signal-terminated.
	Timeout time.Duration
}

// Result holds the captured output of a successful invocation.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
}

// Error is the classified failure of an invocation, carrying output tails
// for operator diagnosis.
type Error struct {
	Kind     FailureKind
	Prog     string
	Args     []string
	ExitCode int
	Signal   string
	Stdout   string
	Stderr   string
	Cause    error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %s", e.Prog, strings.Join(e.Args, " "), e.Kind)
	switch e.Kind {
	case FailureExit:
		fmt.Fprintf(&b, " (code %d)", e.ExitCode)
	case FailureSignal:
		fmt.Fprintf(&b, " (%s)", e.Signal)
	case FailureStart:
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	if e.Stderr != "" {
		fmt.Fprintf(&b, "\nstderr: %s", e.Stderr)
	}
	if e.Stdout != "" {
		fmt.Fprintf(&b, "\nstdout: %s", e.Stdout)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Runner executes external commands. The interface exists so stages can be
// tested against a stub without the real binaries installed.
type Runner interface {
	Run(ctx context.Context, spec Spec) (Result, error)
}

// ExecRunner is the os/exec-backed Runner used in production.
type ExecRunner struct{}

// Run spawns the process, captures stdout/stderr fully, and waits for it
// to finish.
func (ExecRunner) Run(ctx context.Context, spec Spec) (Result, error) {
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, spec.Prog, spec.Args...)
	cmd.Dir = spec.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)
	if err == nil {
		return Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), Duration: elapsed}, nil
	}

	cerr := &Error{
		Prog:   spec.Prog,
		Args:   spec.Args,
		Stdout: tail(stdout.Bytes()),
		Stderr: tail(stderr.Bytes()),
		Cause:  err,
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		// Run failed before the process started.
		cerr.Kind = FailureStart
		return Result{}, cerr
	}

	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		cerr.Kind = FailureSignal
		cerr.Signal = status.Signal().String()
		return Result{}, cerr
	}
	cerr.Kind = FailureExit
	cerr.ExitCode = exitErr.ExitCode()
	return Result{}, cerr
}

func tail(b []byte) string {
	if len(b) > tailBytes {
		b = b[len(b)-tailBytes:]
	}
	return strings.TrimSpace(string(b))
}
