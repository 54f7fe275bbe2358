// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

// Package git provides typed access to the git CLI for the pipeline's
// repository operations. Commands run through the audited shell
// runner so every git invocation lands in the run's command trail
// with its step index, exit code, and output.
package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/lackey-foundation/lackey/lib/shell"
)

// Repository represents the git working tree the run operates on.
// All commands execute in the runner's working directory.
type Repository struct {
	runner *shell.Runner
}

// New returns a Repository over the given runner.
func New(runner *shell.Runner) *Repository {
	return &Repository{runner: runner}
}

// run executes a git command attributed to the given step. Returns
// the trimmed output; a non-zero exit becomes an error that carries
// the output, so callers can surface it as the step detail.
func (repo *Repository) run(ctx context.Context, step int, args ...string) (string, error) {
	quoted := make([]string, 0, len(args)+1)
	quoted = append(quoted, "git")
	for _, arg := range args {
		quoted = append(quoted, quote(arg))
	}
	command := strings.Join(quoted, " ")

	exitCode, output := repo.runner.Run(ctx, shell.Invocation{
		Command: command,
		Actor:   "engine",
		Step:    step,
	})
	output = strings.TrimSpace(output)
	if exitCode != 0 {
		return output, fmt.Errorf("git %s: exit code %d: %s", strings.Join(args, " "), exitCode, output)
	}
	return output, nil
}

// quote wraps arg in single quotes for sh -c, escaping embedded
// quotes. Plain identifier-like arguments pass through bare to keep
// the audit trail readable.
func quote(arg string) string {
	if arg != "" && !strings.ContainsAny(arg, " \t\n'\"\\$`<>|&;()*?[]#~") {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}

// Head returns the commit hash of HEAD.
func (repo *Repository) Head(ctx context.Context, step int) (string, error) {
	return repo.run(ctx, step, "rev-parse", "HEAD")
}

// CurrentBranch returns the checked-out branch name.
func (repo *Repository) CurrentBranch(ctx context.Context, step int) (string, error) {
	return repo.run(ctx, step, "rev-parse", "--abbrev-ref", "HEAD")
}

// CheckoutNew creates branch and switches to it.
func (repo *Repository) CheckoutNew(ctx context.Context, step int, branch string) (string, error) {
	return repo.run(ctx, step, "checkout", "-b", branch)
}

// Checkout switches to an existing branch.
func (repo *Repository) Checkout(ctx context.Context, step int, branch string) (string, error) {
	return repo.run(ctx, step, "checkout", branch)
}

// StatusPorcelain returns the machine-readable working tree status.
func (repo *Repository) StatusPorcelain(ctx context.Context, step int) (string, error) {
	return repo.run(ctx, step, "status", "--porcelain")
}

// Restore discards working tree changes to path.
func (repo *Repository) Restore(ctx context.Context, step int, path string) (string, error) {
	return repo.run(ctx, step, "restore", path)
}

// StageAll stages all changes, including deletions and new files.
func (repo *Repository) StageAll(ctx context.Context, step int) (string, error) {
	return repo.run(ctx, step, "add", "-A")
}

// Commit records the staged changes with the given message.
func (repo *Repository) Commit(ctx context.Context, step int, message string) (string, error) {
	return repo.run(ctx, step, "commit", "-m", message)
}

// Diff returns the patch for the given revision range.
func (repo *Repository) Diff(ctx context.Context, step int, revisionRange string) (string, error) {
	return repo.run(ctx, step, "diff", revisionRange)
}

// DiffStat returns the per-file change summary for the range.
func (repo *Repository) DiffStat(ctx context.Context, step int, revisionRange string) (string, error) {
	return repo.run(ctx, step, "diff", "--stat", revisionRange)
}

// Push pushes the current branch to origin.
func (repo *Repository) Push(ctx context.Context, step int) (string, error) {
	return repo.run(ctx, step, "push", "origin", "HEAD")
}

// StatusPaths extracts the working tree paths from porcelain status
// output. Renames report the destination path. Lines are trimmed
// before parsing because run() trims the command output, which strips
// the leading status column from the first line.
func StatusPaths(porcelain string) []string {
	var paths []string
	for _, line := range strings.Split(porcelain, "\n") {
		line = strings.TrimSpace(line)
		_, path, found := strings.Cut(line, " ")
		if !found {
			continue
		}
		if _, destination, renamed := strings.Cut(path, " -> "); renamed {
			path = destination
		}
		path = strings.TrimSpace(path)
		if path != "" {
			paths = append(paths, path)
		}
	}
	return paths
}
