// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

package shell

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lackey-foundation/lackey/lib/audit"
	"github.com/lackey-foundation/lackey/lib/clock"
)

func TestRunCapturesCombinedOutput(t *testing.T) {
	t.Parallel()
	runner := &Runner{WorkDir: t.TempDir()}

	exitCode, output := runner.Run(context.Background(), Invocation{
		Command: "echo out; echo err >&2",
	})
	if exitCode != 0 {
		t.Fatalf("exitCode = %d, want 0: %s", exitCode, output)
	}
	if !strings.Contains(output, "out") || !strings.Contains(output, "err") {
		t.Errorf("output = %q, want both streams", output)
	}
}

func TestRunReportsExitCode(t *testing.T) {
	t.Parallel()
	runner := &Runner{WorkDir: t.TempDir()}

	exitCode, _ := runner.Run(context.Background(), Invocation{Command: "exit 3"})
	if exitCode != 3 {
		t.Errorf("exitCode = %d, want 3", exitCode)
	}
}

func TestRunUsesWorkingDirectory(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "marker"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	runner := &Runner{WorkDir: dir}

	exitCode, output := runner.Run(context.Background(), Invocation{Command: "ls"})
	if exitCode != 0 {
		t.Fatalf("exitCode = %d, want 0", exitCode)
	}
	if !strings.Contains(output, "marker") {
		t.Errorf("output = %q, want listing containing marker", output)
	}
}

func TestRunTimeout(t *testing.T) {
	t.Parallel()
	runner := &Runner{WorkDir: t.TempDir()}

	start := time.Now()
	exitCode, output := runner.Run(context.Background(), Invocation{
		Command: "sleep 30",
		Timeout: 200 * time.Millisecond,
	})
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("timeout did not kill the command (took %s)", elapsed)
	}
	if exitCode != -1 {
		t.Errorf("exitCode = %d, want -1", exitCode)
	}
	if !strings.Contains(output, "timed out") {
		t.Errorf("output = %q, want timeout message", output)
	}
}

func TestRunEnvOverlay(t *testing.T) {
	t.Parallel()
	runner := &Runner{WorkDir: t.TempDir()}

	exitCode, output := runner.Run(context.Background(), Invocation{
		Command: "echo $LACKEY_TEST_VALUE",
		Env:     map[string]string{"LACKEY_TEST_VALUE": "present"},
	})
	if exitCode != 0 {
		t.Fatalf("exitCode = %d, want 0", exitCode)
	}
	if !strings.Contains(output, "present") {
		t.Errorf("output = %q, want injected variable", output)
	}
}

func TestRunRecordsAuditEntry(t *testing.T) {
	t.Parallel()
	log := audit.New(nil, nil)
	runner := &Runner{WorkDir: t.TempDir(), Audit: log}

	runner.Run(context.Background(), Invocation{
		Command: "echo audited",
		Actor:   "engine",
		Step:    4,
	})

	entries := log.Entries()
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Kind != "command" {
		t.Errorf("Kind = %q, want %q", entry.Kind, "command")
	}
	if entry.Step != 4 {
		t.Errorf("Step = %d, want 4", entry.Step)
	}
	if entry.Command != "echo audited" {
		t.Errorf("Command = %q, want %q", entry.Command, "echo audited")
	}
	if !strings.Contains(entry.Output, "audited") {
		t.Errorf("Output = %q, want command output", entry.Output)
	}
}

func TestRunTruncatesAuditOutput(t *testing.T) {
	t.Parallel()
	log := audit.New(nil, nil)
	runner := &Runner{WorkDir: t.TempDir(), Audit: log}

	// Produce more output than the audit cap; the caller still gets
	// everything, the trail gets the truncated copy.
	exitCode, output := runner.Run(context.Background(), Invocation{
		Command: "head -c 60000 /dev/zero | tr '\\0' 'x'",
	})
	if exitCode != 0 {
		t.Fatalf("exitCode = %d, want 0", exitCode)
	}
	if len(output) < 60000 {
		t.Errorf("len(output) = %d, want full 60000 bytes", len(output))
	}
	recorded := log.Entries()[0].Output
	if len(recorded) > MaxAuditOutput+100 {
		t.Errorf("len(recorded) = %d, want at most ~%d", len(recorded), MaxAuditOutput)
	}
	if !strings.Contains(recorded, "truncated") {
		t.Error("recorded output missing truncation marker")
	}
}

func TestRunStampsAuditWithInjectedClock(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	fake := clock.Fake(base)
	log := audit.New(fake, nil)
	runner := &Runner{WorkDir: t.TempDir(), Audit: log, Clock: fake}

	runner.Run(context.Background(), Invocation{Command: "true", Actor: "engine"})

	entry := log.Entries()[0]
	if want := base.Format(time.RFC3339); entry.Time != want {
		t.Errorf("Time = %q, want the fake clock's %q", entry.Time, want)
	}
	if entry.DurationMS != 0 {
		t.Errorf("DurationMS = %d, want 0 (fake clock never advanced)", entry.DurationMS)
	}
}

func TestRunNilAuditIsSafe(t *testing.T) {
	t.Parallel()
	runner := &Runner{WorkDir: t.TempDir()}
	if exitCode, _ := runner.Run(context.Background(), Invocation{Command: "true"}); exitCode != 0 {
		t.Errorf("exitCode = %d, want 0", exitCode)
	}
}
