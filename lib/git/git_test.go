// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

package git

import (
	"context"
	"strings"
	"testing"

	"github.com/lackey-foundation/lackey/lib/audit"
	"github.com/lackey-foundation/lackey/lib/shell"
	"github.com/lackey-foundation/lackey/lib/testutil"
)

func newRepo(t *testing.T) (*Repository, string, *audit.Log) {
	t.Helper()
	dir := testutil.GitRepo(t)
	log := audit.New(nil, nil)
	runner := &shell.Runner{WorkDir: dir, Audit: log}
	return New(runner), dir, log
}

func TestHeadAndCurrentBranch(t *testing.T) {
	t.Parallel()
	repo, _, _ := newRepo(t)
	ctx := context.Background()

	head, err := repo.Head(ctx, 1)
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if len(head) != 40 {
		t.Errorf("Head = %q, want 40-char hash", head)
	}

	branch, err := repo.CurrentBranch(ctx, 1)
	if err != nil {
		t.Fatalf("CurrentBranch: %v", err)
	}
	if branch != "main" {
		t.Errorf("CurrentBranch = %q, want %q", branch, "main")
	}
}

func TestCheckoutNewAndCheckout(t *testing.T) {
	t.Parallel()
	repo, _, _ := newRepo(t)
	ctx := context.Background()

	if _, err := repo.CheckoutNew(ctx, 1, "lackey/run-1/fix-bug"); err != nil {
		t.Fatalf("CheckoutNew: %v", err)
	}
	branch, err := repo.CurrentBranch(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if branch != "lackey/run-1/fix-bug" {
		t.Errorf("CurrentBranch = %q, want new branch", branch)
	}

	if _, err := repo.Checkout(ctx, 2, "main"); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if _, err := repo.Checkout(ctx, 2, "no-such-branch"); err == nil {
		t.Error("Checkout of missing branch succeeded")
	}
}

func TestCommitFlow(t *testing.T) {
	t.Parallel()
	repo, dir, _ := newRepo(t)
	ctx := context.Background()

	testutil.WriteFile(t, dir, "src/feature.go", "package src\n")
	status, err := repo.StatusPorcelain(ctx, 3)
	if err != nil {
		t.Fatalf("StatusPorcelain: %v", err)
	}
	if !strings.Contains(status, "src/") {
		t.Errorf("status = %q, want new file listed", status)
	}

	if _, err := repo.StageAll(ctx, 3); err != nil {
		t.Fatalf("StageAll: %v", err)
	}
	message := `add feature with 'quotes' and $vars`
	if _, err := repo.Commit(ctx, 3, message); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	diff, err := repo.Diff(ctx, 3, "HEAD~1..HEAD")
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if !strings.Contains(diff, "package src") {
		t.Errorf("diff = %q, want file content", diff)
	}

	stat, err := repo.DiffStat(ctx, 3, "HEAD~1..HEAD")
	if err != nil {
		t.Fatalf("DiffStat: %v", err)
	}
	if !strings.Contains(stat, "feature.go") {
		t.Errorf("diff stat = %q, want file named", stat)
	}

	if got := testutil.Git(t, dir, "log", "-1", "--format=%s"); got != message {
		t.Errorf("commit subject = %q, want %q", got, message)
	}
}

func TestRestoreDiscardsChanges(t *testing.T) {
	t.Parallel()
	repo, dir, _ := newRepo(t)
	ctx := context.Background()

	testutil.WriteFile(t, dir, "README.md", "# modified\n")
	if _, err := repo.Restore(ctx, 5, "README.md"); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got := testutil.ReadFile(t, dir, "README.md"); got != "# fixture\n" {
		t.Errorf("content after restore = %q, want original", got)
	}
}

func TestCommandsAreAudited(t *testing.T) {
	t.Parallel()
	repo, _, log := newRepo(t)

	if _, err := repo.Head(context.Background(), 7); err != nil {
		t.Fatal(err)
	}
	entries := log.Entries()
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if entries[0].Command != "git rev-parse HEAD" {
		t.Errorf("Command = %q, want %q", entries[0].Command, "git rev-parse HEAD")
	}
	if entries[0].Step != 7 {
		t.Errorf("Step = %d, want 7", entries[0].Step)
	}
}

func TestStatusPaths(t *testing.T) {
	t.Parallel()
	// The first line's status column arrives trimmed because command
	// output is trimmed as a whole.
	porcelain := "M src/api/handler.go\n?? notes.txt\nR  old.go -> new.go\n"
	got := StatusPaths(porcelain)
	want := []string{"src/api/handler.go", "notes.txt", "new.go"}
	if len(got) != len(want) {
		t.Fatalf("StatusPaths = %v, want %v", got, want)
	}
	for index := range want {
		if got[index] != want[index] {
			t.Errorf("StatusPaths[%d] = %q, want %q", index, got[index], want[index])
		}
	}
}
