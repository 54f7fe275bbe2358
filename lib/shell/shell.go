// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

// Package shell runs audited shell commands for pipeline steps and
// agent tools. Every invocation lands in the run's audit trail with
// its exit code, duration, and (truncated) output.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/lackey-foundation/lackey/lib/audit"
	"github.com/lackey-foundation/lackey/lib/clock"
)

// DefaultTimeout bounds an invocation that does not set its own.
const DefaultTimeout = 120 * time.Second

// MaxAuditOutput is the per-invocation output cap for the audit
// trail. The full output is still returned to the caller; only the
// recorded copy is truncated.
const MaxAuditOutput = 50_000

// Runner executes shell commands in a fixed working directory,
// recording each invocation in the audit log. The zero value is not
// usable; construct with the fields set.
type Runner struct {
	// WorkDir is the default working directory for commands.
	WorkDir string

	// Audit receives one entry per invocation. May be nil.
	Audit *audit.Log

	// Clock stamps invocation start times and durations. Nil means
	// the real clock.
	Clock clock.Clock

	// Logger for command lifecycle events. May be nil.
	Logger *slog.Logger
}

// Invocation describes one command to run.
type Invocation struct {
	// Command is passed to sh -c.
	Command string

	// Dir overrides the runner's working directory when non-empty.
	Dir string

	// Actor and Step identify the invocation in the audit trail.
	Actor string
	Step  int

	// Timeout bounds the command. Zero means DefaultTimeout.
	Timeout time.Duration

	// Env adds variables on top of the process environment.
	Env map[string]string
}

// Run executes the invocation and returns its exit code and combined
// stdout+stderr output. Run never returns an error: failure modes
// that produce no exit code (timeout, missing shell, cancellation)
// are reported as exit code -1 with a descriptive message in the
// output, so step handlers treat every outcome uniformly through
// their success-code check.
func (runner *Runner) Run(ctx context.Context, invocation Invocation) (int, string) {
	timeout := invocation.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	dir := invocation.Dir
	if dir == "" {
		dir = runner.WorkDir
	}

	commandContext, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	clk := runner.Clock
	if clk == nil {
		clk = clock.Real()
	}
	start := clk.Now()
	exitCode, output := runShell(commandContext, invocation.Command, dir, invocation.Env, timeout)
	duration := clk.Since(start)

	if runner.Logger != nil {
		runner.Logger.Debug("command finished",
			"actor", invocation.Actor,
			"command", invocation.Command,
			"exit_code", exitCode,
			"duration", duration)
	}
	runner.Audit.Command(invocation.Actor, invocation.Step, invocation.Command, dir,
		exitCode, audit.Truncate(output, MaxAuditOutput), start, duration)

	return exitCode, output
}

// runShell executes command via sh -c with combined output capture.
//
// The shell is resolved via PATH, not hardcoded to /bin/sh: inside
// container sandboxes /bin may not exist even though a shell is on
// PATH.
//
// The command runs in its own process group so that a timeout kills
// the shell and all its children. Without Setpgid only the shell
// receives the signal; children survive and hold the inherited output
// pipe open, blocking the capture read until they finish.
func runShell(ctx context.Context, command, dir string, env map[string]string, timeout time.Duration) (int, string) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir

	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// SIGKILL the whole process group (negative PID) on timeout.
	// Step commands are ephemeral; no graceful SIGTERM phase.
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	if len(env) > 0 {
		cmd.Env = os.Environ()
		for name, value := range env {
			cmd.Env = append(cmd.Env, name+"="+value)
		}
	}

	err := cmd.Run()
	output := combined.String()
	if err == nil {
		return 0, output
	}

	var exitError *exec.ExitError
	if errors.As(err, &exitError) {
		return exitError.ExitCode(), output
	}

	if ctx.Err() != nil {
		return -1, output + fmt.Sprintf("command timed out after %s", timeout)
	}
	return -1, output + fmt.Sprintf("command failed to start: %v", err)
}
