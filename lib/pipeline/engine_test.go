// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/lackey-foundation/lackey/lib/agent"
	"github.com/lackey-foundation/lackey/lib/artifact"
	"github.com/lackey-foundation/lackey/lib/audit"
	"github.com/lackey-foundation/lackey/lib/clock"
	"github.com/lackey-foundation/lackey/lib/git"
	"github.com/lackey-foundation/lackey/lib/schema"
	"github.com/lackey-foundation/lackey/lib/shell"
	"github.com/lackey-foundation/lackey/lib/template"
	"github.com/lackey-foundation/lackey/lib/testutil"
	"github.com/lackey-foundation/lackey/sandbox"
)

// fixture wires a full engine over a real temporary git repository.
type fixture struct {
	workDir   string
	outputDir string
	config    Config
}

func newFixture(t *testing.T, blueprint *schema.Blueprint) *fixture {
	t.Helper()
	workDir := testutil.GitRepo(t)
	outputDir := t.TempDir()

	store, err := artifact.NewStore(outputDir, nil)
	if err != nil {
		t.Fatalf("artifact.NewStore: %v", err)
	}
	root, err := sandbox.New(workDir, nil)
	if err != nil {
		t.Fatalf("sandbox.New: %v", err)
	}
	log := audit.New(clock.Real(), nil)
	runner := &shell.Runner{WorkDir: workDir, Audit: log}

	return &fixture{
		workDir:   workDir,
		outputDir: outputDir,
		config: Config{
			Run: schema.RunConfig{
				Task:      "add a verbose flag",
				RunID:     "run-1",
				WorkDir:   workDir,
				OutputDir: outputDir,
			},
			Blueprint:  blueprint,
			Agents:     agent.StubRegistry(),
			Runner:     runner,
			Repository: git.New(runner),
			Sandbox:    root,
			Artifacts:  store,
			Audit:      log,
			Environ:    func(string) string { return "" },
		},
	}
}

func (fix *fixture) run(t *testing.T) *schema.RunSummary {
	t.Helper()
	engine, err := New(fix.config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return engine.Run(context.Background())
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()
	fix := newFixture(t, &schema.Blueprint{Name: "bp", Steps: []schema.StepSpec{
		{Name: "noop", Kind: schema.StepCommand},
	}})

	for name, mutate := range map[string]func(*Config){
		"blueprint":  func(config *Config) { config.Blueprint = nil },
		"runner":     func(config *Config) { config.Runner = nil },
		"repository": func(config *Config) { config.Repository = nil },
		"sandbox":    func(config *Config) { config.Sandbox = nil },
		"artifacts":  func(config *Config) { config.Artifacts = nil },
		"audit":      func(config *Config) { config.Audit = nil },
		"agents":     func(config *Config) { config.Agents.Executor = nil },
	} {
		config := fix.config
		mutate(&config)
		if _, err := New(config); err == nil {
			t.Errorf("New accepted missing %s", name)
		}
	}
}

func TestRunFullBlueprint(t *testing.T) {
	t.Parallel()
	fix := newFixture(t, &schema.Blueprint{
		Name: "scope-execute-test",
		Steps: []schema.StepSpec{
			{Name: "branch", Kind: schema.StepGitBranch},
			{Name: "scope", Kind: schema.StepAgent, Agent: schema.AgentScoper},
			{Name: "implement", Kind: schema.StepAgent, Agent: schema.AgentExecutor},
			{Name: "change", Kind: schema.StepCommand, Commands: []string{
				"printf 'package main\\n' > main.go",
			}},
			{Name: "test", Kind: schema.StepCommand, Commands: []string{"true"},
				OnFailure: "outcome:test_failure"},
			{Name: "commit", Kind: schema.StepGitCommit},
		},
	})

	summary := fix.run(t)

	if summary.Outcome != schema.OutcomeSuccess {
		t.Fatalf("Outcome = %q, want success: %+v", summary.Outcome, summary.Steps)
	}
	if summary.Branch != "lackey/run-1/add-a-verbose-flag" {
		t.Errorf("Branch = %q", summary.Branch)
	}
	if summary.BaseCommit == "" || summary.HeadCommit == "" {
		t.Errorf("commits not recorded: base %q head %q", summary.BaseCommit, summary.HeadCommit)
	}
	if summary.BaseCommit == summary.HeadCommit {
		t.Error("head commit equals base commit after a change")
	}
	if len(summary.Steps) != 6 {
		t.Fatalf("len(Steps) = %d, want 6", len(summary.Steps))
	}
	for _, step := range summary.Steps {
		if !step.Success {
			t.Errorf("step %s failed: %s", step.Name, step.Detail)
		}
	}

	if got := testutil.Git(t, fix.workDir, "rev-parse", "--abbrev-ref", "HEAD"); got != summary.Branch {
		t.Errorf("checked-out branch = %q, want %q", got, summary.Branch)
	}

	for _, name := range []string{"scope.json", "diff.patch", "diff_stats.txt", "commands.log", "run_summary.json", artifact.ManifestName} {
		if _, err := fix.config.Artifacts.Read(name); err != nil {
			t.Errorf("artifact %s missing: %v", name, err)
		}
	}

	// The written summary matches the returned one.
	content, err := fix.config.Artifacts.Read("run_summary.json")
	if err != nil {
		t.Fatal(err)
	}
	var written schema.RunSummary
	if err := json.Unmarshal([]byte(content), &written); err != nil {
		t.Fatalf("decoding run_summary.json: %v", err)
	}
	if written.Outcome != summary.Outcome || written.Branch != summary.Branch {
		t.Errorf("written summary diverges: %+v", written)
	}

	// commands.log is NDJSON, one valid entry per line.
	log, err := fix.config.Artifacts.Read("commands.log")
	if err != nil {
		t.Fatal(err)
	}
	for _, line := range strings.Split(strings.TrimSpace(log), "\n") {
		var entry audit.Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("commands.log line %q: %v", line, err)
		}
	}
}

func TestWhenConditionSkipsStep(t *testing.T) {
	t.Parallel()
	fix := newFixture(t, &schema.Blueprint{
		Name: "conditional",
		Steps: []schema.StepSpec{
			{Name: "test", Kind: schema.StepCommand, Commands: []string{"true"}},
			{Name: "fix", Kind: schema.StepAgent, Agent: schema.AgentFixer, When: "test.failed"},
			{Name: "push", Kind: schema.StepGitPush, When: "env.LACKEY_PUSH"},
		},
	})

	summary := fix.run(t)
	if summary.Outcome != schema.OutcomeSuccess {
		t.Fatalf("Outcome = %q: %+v", summary.Outcome, summary.Steps)
	}
	if len(summary.Steps) != 1 {
		t.Fatalf("len(Steps) = %d, want 1 (fix and push skipped): %+v", len(summary.Steps), summary.Steps)
	}
	if summary.Steps[0].Name != "test" {
		t.Errorf("recorded step = %q, want test", summary.Steps[0].Name)
	}
}

func TestOnFailureMapsOutcome(t *testing.T) {
	t.Parallel()
	fix := newFixture(t, &schema.Blueprint{
		Name: "failing-test",
		Steps: []schema.StepSpec{
			{Name: "test", Kind: schema.StepCommand, Commands: []string{"exit 1"},
				OnFailure: "outcome:test_failure"},
			{Name: "after", Kind: schema.StepCommand, Commands: []string{"true"}},
		},
	})

	summary := fix.run(t)
	if summary.Outcome != schema.OutcomeTestFailure {
		t.Fatalf("Outcome = %q, want test_failure", summary.Outcome)
	}
	// test_failure is not terminal: subsequent steps still run.
	if len(summary.Steps) != 2 {
		t.Fatalf("len(Steps) = %d, want 2: %+v", len(summary.Steps), summary.Steps)
	}
	if summary.Steps[0].Success {
		t.Error("failing test step recorded as success")
	}
}

func TestFatalFailureOverridesSoftOutcome(t *testing.T) {
	t.Parallel()
	fix := newFixture(t, &schema.Blueprint{
		Name: "soft-then-fatal",
		Steps: []schema.StepSpec{
			{Name: "test", Kind: schema.StepCommand, Commands: []string{"exit 1"},
				OnFailure: "outcome:test_failure"},
			{Name: "switch", Kind: schema.StepGitCheckout, Branch: "does-not-exist"},
			{Name: "after", Kind: schema.StepCommand, Commands: []string{"true"}},
		},
	})

	summary := fix.run(t)
	// A failed checkout is fatal even after a soft on_failure mapping
	// has already moved the outcome off success.
	if summary.Outcome != schema.OutcomeError {
		t.Fatalf("Outcome = %q, want error", summary.Outcome)
	}
	if len(summary.Steps) != 2 {
		t.Fatalf("len(Steps) = %d, want 2 (run must halt at the checkout): %+v",
			len(summary.Steps), summary.Steps)
	}
}

func TestEscalateSoftThenTerminal(t *testing.T) {
	t.Parallel()
	state := NewState(schema.RunConfig{RunID: "run-1", Task: "task"})

	state.Escalate(schema.OutcomeTestFailure)
	if got := state.Outcome(); got != schema.OutcomeTestFailure {
		t.Fatalf("Outcome = %q, want test_failure", got)
	}

	// A second soft classification does not replace the first.
	state.Escalate(schema.OutcomeTimeout)
	if got := state.Outcome(); got != schema.OutcomeTestFailure {
		t.Errorf("Outcome = %q, want test_failure (first soft wins)", got)
	}

	// A terminal outcome overrides a soft one.
	state.Escalate(schema.OutcomeError)
	if got := state.Outcome(); got != schema.OutcomeError {
		t.Errorf("Outcome = %q, want error", got)
	}

	// But never the other way around, and terminals do not replace
	// each other.
	state.Escalate(schema.OutcomeScopeDisagreement)
	if got := state.Outcome(); got != schema.OutcomeError {
		t.Errorf("Outcome = %q, want error (first terminal wins)", got)
	}
}

func TestUnknownOnFailureOutcomeDoesNotEscalate(t *testing.T) {
	t.Parallel()
	fix := newFixture(t, &schema.Blueprint{
		Name: "typo",
		Steps: []schema.StepSpec{
			{Name: "test", Kind: schema.StepCommand, Commands: []string{"exit 1"},
				OnFailure: "outcome:explosion"},
		},
	})

	summary := fix.run(t)
	if summary.Outcome != schema.OutcomeSuccess {
		t.Errorf("Outcome = %q, want success (unknown outcome ignored)", summary.Outcome)
	}
}

func TestSuccessCodesAccepted(t *testing.T) {
	t.Parallel()
	fix := newFixture(t, &schema.Blueprint{
		Name: "grep-no-match",
		Steps: []schema.StepSpec{
			{Name: "check", Kind: schema.StepCommand, Commands: []string{"exit 1"},
				SuccessCodes: []int{0, 1}},
		},
	})

	summary := fix.run(t)
	if summary.Outcome != schema.OutcomeSuccess || !summary.Steps[0].Success {
		t.Errorf("exit 1 with success_codes [0,1] failed: %+v", summary.Steps)
	}
}

func TestCheckCommandDecidesSuccess(t *testing.T) {
	t.Parallel()
	fix := newFixture(t, &schema.Blueprint{
		Name: "checked",
		Steps: []schema.StepSpec{
			{Name: "lint", Kind: schema.StepCommand,
				Commands: []string{"exit 1"},
				Check:    &schema.CheckSpec{Command: "echo clean", Artifact: "lint_report.txt"}},
		},
	})

	summary := fix.run(t)
	if !summary.Steps[0].Success {
		t.Errorf("check success did not override failing command: %+v", summary.Steps[0])
	}
	report, err := fix.config.Artifacts.Read("lint_report.txt")
	if err != nil {
		t.Fatalf("check artifact missing: %v", err)
	}
	if !strings.Contains(report, "clean") {
		t.Errorf("check artifact = %q", report)
	}
}

// disagreeingExecutor reports a scope disagreement instead of working.
type disagreeingExecutor struct{}

func (disagreeingExecutor) Execute(ctx context.Context, task string, scope *schema.Scope) (*schema.Disagreement, error) {
	return &schema.Disagreement{
		Reasoning:          "the config loader also needs changes",
		SuggestedAdditions: []string{"internal/config/loader.go"},
	}, nil
}

func TestScopeDisagreementHaltsRun(t *testing.T) {
	t.Parallel()
	fix := newFixture(t, &schema.Blueprint{
		Name: "disagree",
		Steps: []schema.StepSpec{
			{Name: "scope", Kind: schema.StepAgent, Agent: schema.AgentScoper},
			{Name: "implement", Kind: schema.StepAgent, Agent: schema.AgentExecutor},
			{Name: "commit", Kind: schema.StepGitCommit},
		},
	})
	fix.config.Agents.Executor = disagreeingExecutor{}

	summary := fix.run(t)
	if summary.Outcome != schema.OutcomeScopeDisagreement {
		t.Fatalf("Outcome = %q, want scope_disagreement", summary.Outcome)
	}
	if len(summary.Steps) != 2 {
		t.Fatalf("len(Steps) = %d, want 2 (commit never ran): %+v", len(summary.Steps), summary.Steps)
	}
	last := summary.Steps[1]
	if last.Success || !strings.Contains(last.Detail, "config loader") {
		t.Errorf("implement step = %+v", last)
	}
	// The disagreement is already durable before finalization.
	if _, err := fix.config.Artifacts.Read("run_summary.json"); err != nil {
		t.Errorf("run_summary.json missing: %v", err)
	}
}

// panickingScoper simulates an unexpected handler fault.
type panickingScoper struct{}

func (panickingScoper) Scope(ctx context.Context, task string) (*schema.Scope, error) {
	panic("scoper exploded")
}

func TestHandlerPanicRecordsErrorOutcome(t *testing.T) {
	t.Parallel()
	fix := newFixture(t, &schema.Blueprint{
		Name: "fault",
		Steps: []schema.StepSpec{
			{Name: "scope", Kind: schema.StepAgent, Agent: schema.AgentScoper},
			{Name: "after", Kind: schema.StepCommand, Commands: []string{"true"}},
		},
	})
	fix.config.Agents.Scoper = panickingScoper{}

	summary := fix.run(t)
	if summary.Outcome != schema.OutcomeError {
		t.Fatalf("Outcome = %q, want error", summary.Outcome)
	}
	last := summary.Steps[len(summary.Steps)-1]
	if last.Name != "error" || last.Success {
		t.Errorf("synthetic step = %+v", last)
	}
	if !strings.Contains(last.Detail, "scoper exploded") {
		t.Errorf("Detail = %q", last.Detail)
	}
	// The finalizer still ran.
	if _, err := fix.config.Artifacts.Read("run_summary.json"); err != nil {
		t.Errorf("run_summary.json missing after panic: %v", err)
	}
}

func TestBranchFailureIsFatal(t *testing.T) {
	t.Parallel()
	fix := newFixture(t, &schema.Blueprint{
		Name: "bad-branch",
		Steps: []schema.StepSpec{
			{Name: "branch", Kind: schema.StepGitBranch, Branch: "main"},
			{Name: "after", Kind: schema.StepCommand, Commands: []string{"true"}},
		},
	})

	summary := fix.run(t)
	if summary.Outcome != schema.OutcomeError {
		t.Fatalf("Outcome = %q, want error", summary.Outcome)
	}
	if len(summary.Steps) != 1 {
		t.Errorf("len(Steps) = %d, want 1 (run aborted)", len(summary.Steps))
	}
}

func TestUnknownAgentRoleFails(t *testing.T) {
	t.Parallel()
	fix := newFixture(t, &schema.Blueprint{
		Name: "bad-agent",
		Steps: []schema.StepSpec{
			{Name: "review", Kind: schema.StepAgent, Agent: "reviewer"},
		},
	})

	summary := fix.run(t)
	step := summary.Steps[0]
	if step.Success || !strings.Contains(step.Detail, "reviewer") {
		t.Errorf("step = %+v", step)
	}
	if summary.Outcome != schema.OutcomeSuccess {
		t.Errorf("Outcome = %q, want success (unknown agent is a step failure, not fatal)", summary.Outcome)
	}
}

func TestRunTimeoutMapsToTimeoutOutcome(t *testing.T) {
	t.Parallel()
	fix := newFixture(t, &schema.Blueprint{
		Name: "slow",
		Steps: []schema.StepSpec{
			{Name: "sleep", Kind: schema.StepCommand, Commands: []string{"sleep 5"}},
		},
	})
	fix.config.Run.Timeout = 100 * time.Millisecond

	summary := fix.run(t)
	if summary.Outcome != schema.OutcomeTimeout {
		t.Fatalf("Outcome = %q, want timeout", summary.Outcome)
	}
	if _, err := fix.config.Artifacts.Read("run_summary.json"); err != nil {
		t.Errorf("run_summary.json missing after timeout: %v", err)
	}
}

func TestCommitRestoresOutOfScopeChanges(t *testing.T) {
	t.Parallel()
	fix := newFixture(t, &schema.Blueprint{
		Name: "scoped-commit",
		Steps: []schema.StepSpec{
			{Name: "branch", Kind: schema.StepGitBranch},
			{Name: "commit", Kind: schema.StepGitCommit, Message: "scoped change"},
		},
	})

	// Seed a tracked file that will be modified out of scope.
	testutil.WriteFile(t, fix.workDir, "docs/guide.md", "original\n")
	testutil.Git(t, fix.workDir, "add", "-A")
	testutil.Git(t, fix.workDir, "commit", "-m", "add guide")

	// Changes: one in scope, one out.
	testutil.WriteFile(t, fix.workDir, "src/feature.go", "package feature\n")
	testutil.WriteFile(t, fix.workDir, "docs/guide.md", "tampered\n")

	scope := &schema.Scope{AllowedDirs: []string{"src"}}
	fix.config.Sandbox.SetScope(scope)

	engine, err := New(fix.config)
	if err != nil {
		t.Fatal(err)
	}
	engine.state.scope = scope

	summary := engine.Run(context.Background())
	if summary.Outcome != schema.OutcomeSuccess {
		t.Fatalf("Outcome = %q: %+v", summary.Outcome, summary.Steps)
	}

	if got := testutil.ReadFile(t, fix.workDir, "docs/guide.md"); got != "original\n" {
		t.Errorf("out-of-scope file = %q, want restored original", got)
	}
	if got := testutil.Git(t, fix.workDir, "log", "--format=%s", "-1"); got != "scoped change" {
		t.Errorf("last commit = %q, want %q", got, "scoped change")
	}
	show := testutil.Git(t, fix.workDir, "show", "--stat", "--format=", "HEAD")
	if !strings.Contains(show, "src/feature.go") {
		t.Errorf("commit does not include in-scope file:\n%s", show)
	}
	if strings.Contains(show, "docs/guide.md") {
		t.Errorf("commit includes out-of-scope file:\n%s", show)
	}
}

func TestCommitNothingToCommit(t *testing.T) {
	t.Parallel()
	fix := newFixture(t, &schema.Blueprint{
		Name: "empty-commit",
		Steps: []schema.StepSpec{
			{Name: "commit", Kind: schema.StepGitCommit},
		},
	})

	summary := fix.run(t)
	step := summary.Steps[0]
	if !step.Success || step.Detail != "nothing to commit" {
		t.Errorf("step = %+v, want successful nothing-to-commit", step)
	}
}

func TestFixerReceivesFailureOutput(t *testing.T) {
	t.Parallel()
	var received string
	fix := newFixture(t, &schema.Blueprint{
		Name: "fix-cycle",
		Steps: []schema.StepSpec{
			{Name: "test", Kind: schema.StepCommand, Commands: []string{"echo assertion failed; exit 1"}},
			{Name: "fix", Kind: schema.StepAgent, Agent: schema.AgentFixer,
				InputFrom: "test", When: "test.failed"},
		},
	})
	fix.config.Agents.Fixer = fixerFunc(func(ctx context.Context, failure string, scope *schema.Scope) error {
		received = failure
		return nil
	})

	summary := fix.run(t)
	if len(summary.Steps) != 2 || !summary.Steps[1].Success {
		t.Fatalf("Steps = %+v", summary.Steps)
	}
	if !strings.Contains(received, "assertion failed") {
		t.Errorf("fixer input = %q, want the test step's output", received)
	}
}

// fixerFunc adapts a function to the agent.Fixer interface.
type fixerFunc func(ctx context.Context, failureOutput string, scope *schema.Scope) error

func (f fixerFunc) Fix(ctx context.Context, failureOutput string, scope *schema.Scope) error {
	return f(ctx, failureOutput, scope)
}

func TestPullRequestWithoutClientFailsSoftly(t *testing.T) {
	t.Parallel()
	fix := newFixture(t, &schema.Blueprint{
		Name: "pr-unconfigured",
		Steps: []schema.StepSpec{
			{Name: "pr", Kind: schema.StepGitPR},
		},
	})

	summary := fix.run(t)
	step := summary.Steps[0]
	if step.Success {
		t.Error("pull request step succeeded without a client")
	}
	if summary.Outcome != schema.OutcomeSuccess {
		t.Errorf("Outcome = %q, want success (pr failure never escalates)", summary.Outcome)
	}
}

func TestBuildPullRequestBody(t *testing.T) {
	t.Parallel()
	state := NewState(schema.RunConfig{Task: "add flag", RunID: "run-9"})
	state.Record(schema.StepResult{Step: 1, Name: "lint", Success: true})
	state.Record(schema.StepResult{Step: 2, Name: "test", Success: true,
		Detail: "collected 4 items\n==== 4 passed in 0.12s ===="})
	state.Record(schema.StepResult{Step: 3, Name: "commit", Success: false, Detail: "boom"})

	body := buildPullRequestBody(state, " main.go | 2 +-\n 1 file changed", "s3://lackey-runs/runs/run-9/")

	for _, want := range []string{
		"**Outcome:** success | **Run ID:** `run-9`",
		"- [x] lint — clean",
		"- [x] test — 4 passed in 0.12s",
		"- [ ] commit",
		"### Diff",
		"1 file changed",
		"`s3://lackey-runs/runs/run-9/`",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

func TestStepDetailTruncated(t *testing.T) {
	t.Parallel()
	fix := newFixture(t, &schema.Blueprint{
		Name: "chatty",
		Steps: []schema.StepSpec{
			{Name: "noise", Kind: schema.StepCommand, Commands: []string{
				fmt.Sprintf("printf '%s'", strings.Repeat("x", 5000)),
			}},
		},
	})

	summary := fix.run(t)
	if got := len(summary.Steps[0].Detail); got > maxDetail {
		t.Errorf("detail length = %d, want <= %d", got, maxDetail)
	}
}

var _ template.State = (*State)(nil)
