// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for lackey packages.
//
// [GitRepo] initializes a throwaway git repository with one commit,
// configured with a local identity so commits work in bare CI
// environments. [WriteFile] and [ReadFile] wrap the os calls with
// t.Fatal error handling, since test setup failures are not
// recoverable.
//
// All helpers call t.Fatal on failure rather than returning errors.
// This package has no lackey-internal dependencies.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// GitRepo creates a temporary git repository containing an initial
// commit with a README.md, and returns its path. The repository uses
// branch "main" and a local committer identity.
func GitRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	Git(t, dir, "init", "--initial-branch=main")
	Git(t, dir, "config", "user.email", "test@example.com")
	Git(t, dir, "config", "user.name", "Test")
	WriteFile(t, dir, "README.md", "# fixture\n")
	Git(t, dir, "add", "-A")
	Git(t, dir, "commit", "-m", "initial commit")

	return dir
}

// Git runs a git command in dir and returns its trimmed output,
// failing the test on a non-zero exit.
func Git(t *testing.T, dir string, args ...string) string {
	t.Helper()
	command := exec.Command("git", append([]string{"-C", dir}, args...)...)
	output, err := command.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, output)
	}
	return strings.TrimSpace(string(output))
}

// WriteFile writes content to path relative to dir, creating parent
// directories as needed.
func WriteFile(t *testing.T, dir, path, content string) {
	t.Helper()
	full := filepath.Join(dir, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("creating %s: %v", filepath.Dir(full), err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", full, err)
	}
}

// ReadFile returns the content of path relative to dir.
func ReadFile(t *testing.T, dir, path string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, path))
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(data)
}
