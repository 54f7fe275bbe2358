// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lackey-foundation/lackey/lib/git"
	"github.com/lackey-foundation/lackey/lib/github"
	"github.com/lackey-foundation/lackey/lib/schema"
	"github.com/lackey-foundation/lackey/lib/shell"
	"github.com/lackey-foundation/lackey/lib/template"
)

// DefaultBranchTemplate names run branches when a git_branch step does
// not set its own template.
const DefaultBranchTemplate = "lackey/{run_id}/{task_slug}"

// defaultMessageTemplate is shared by commit messages and pull request
// titles.
const defaultMessageTemplate = "lackey: {task}"

// maxDetail caps the step detail stored in results; the full output is
// in the audit trail.
const maxDetail = 2000

// handleBranch creates a new branch (create true) or checks out an
// existing one. The base commit is recorded first so diffs and the
// summary can reference it. Failure is fatal: without the right branch
// every subsequent step would operate on the wrong tree.
func (engine *Engine) handleBranch(ctx context.Context, spec schema.StepSpec, stepIndex int, create bool) schema.StepResult {
	branchTemplate := spec.Branch
	if create && branchTemplate == "" {
		branchTemplate = DefaultBranchTemplate
	}
	branch := template.Expand(branchTemplate, engine.state, engine.environ)

	base, err := engine.config.Repository.Head(ctx, stepIndex)
	if err == nil {
		engine.state.baseCommit = base
	}

	var output string
	if create {
		output, err = engine.config.Repository.CheckoutNew(ctx, stepIndex, branch)
	} else {
		output, err = engine.config.Repository.Checkout(ctx, stepIndex, branch)
	}
	if err != nil {
		engine.state.Escalate(schema.OutcomeError)
		return failed(stepIndex, spec.Name, err.Error())
	}
	engine.state.branch = branch
	return succeeded(stepIndex, spec.Name, output)
}

// handleAgent dispatches to the agent named by the step.
func (engine *Engine) handleAgent(ctx context.Context, spec schema.StepSpec, stepIndex int) schema.StepResult {
	agents := engine.config.Agents

	switch spec.Agent {
	case schema.AgentScoper:
		scope, err := agents.Scoper.Scope(ctx, engine.state.Task())
		if err != nil {
			engine.state.Escalate(schema.OutcomeError)
			return failed(stepIndex, spec.Name, fmt.Sprintf("scoper: %v", err))
		}
		engine.state.scope = scope
		engine.config.Sandbox.SetScope(scope)
		if err := engine.config.Artifacts.WriteJSON("scope.json", scope); err != nil {
			engine.logger.Warn("writing scope.json failed", "error", err)
		}
		return succeeded(stepIndex, spec.Name, scope.Summary)

	case schema.AgentExecutor:
		disagreement, err := agents.Executor.Execute(ctx, engine.state.Task(), engine.state.scope)
		if err != nil {
			engine.state.Escalate(schema.OutcomeError)
			return failed(stepIndex, spec.Name, fmt.Sprintf("executor: %v", err))
		}
		if disagreement != nil {
			engine.state.Escalate(schema.OutcomeScopeDisagreement)
			// An immediate artifact so the disagreement survives even
			// if finalization is interrupted; the finalizer rewrites
			// the file with the full summary.
			record := map[string]any{
				"outcome":             schema.OutcomeScopeDisagreement,
				"executor_reasoning":  disagreement.Reasoning,
				"suggested_additions": disagreement.SuggestedAdditions,
			}
			if err := engine.config.Artifacts.WriteJSON("run_summary.json", record); err != nil {
				engine.logger.Warn("writing disagreement summary failed", "error", err)
			}
			return failed(stepIndex, spec.Name, disagreement.Reasoning)
		}
		return succeeded(stepIndex, spec.Name, "")

	case schema.AgentFixer:
		failure := ""
		if spec.InputFrom != "" {
			if previous, ok := engine.state.Result(spec.InputFrom); ok {
				failure = previous.Detail
			}
		}
		if err := agents.Fixer.Fix(ctx, failure, engine.state.scope); err != nil {
			// The fixer is advisory: the retest step decides whether
			// the fix worked, so its own failure is not fatal.
			engine.logger.Warn("fixer failed", "error", err)
			return succeeded(stepIndex, spec.Name, fmt.Sprintf("fixer: %v", err))
		}
		return succeeded(stepIndex, spec.Name, "")
	}

	return failed(stepIndex, spec.Name, fmt.Sprintf("unknown agent role %q", spec.Agent))
}

// handleCommand runs the step's commands in order, then the optional
// check command whose exit code decides success. Without a check the
// last command's exit code decides.
func (engine *Engine) handleCommand(ctx context.Context, spec schema.StepSpec, stepIndex int) schema.StepResult {
	timeout := time.Duration(spec.Timeout()) * time.Second
	var combined strings.Builder
	lastExit := 0

	for _, command := range spec.Commands {
		exitCode, output := engine.config.Runner.Run(ctx, shell.Invocation{
			Command: command,
			Actor:   "engine",
			Step:    stepIndex,
			Timeout: timeout,
		})
		combined.WriteString(output)
		combined.WriteString("\n")
		lastExit = exitCode
	}

	var success bool
	switch {
	case spec.Check != nil:
		exitCode, output := engine.config.Runner.Run(ctx, shell.Invocation{
			Command: spec.Check.Command,
			Actor:   "engine",
			Step:    stepIndex,
			Timeout: timeout,
		})
		if err := engine.config.Artifacts.WriteText(spec.Check.Artifact, output); err != nil {
			engine.logger.Warn("writing check artifact failed", "error", err)
		}
		combined.WriteString(output)
		combined.WriteString("\n")
		success = spec.AcceptsExitCode(exitCode)
	case len(spec.Commands) > 0:
		success = spec.AcceptsExitCode(lastExit)
	default:
		success = true
	}

	if spec.Artifact != "" && spec.Check == nil {
		if err := engine.config.Artifacts.WriteText(spec.Artifact, combined.String()); err != nil {
			engine.logger.Warn("writing step artifact failed", "error", err)
		}
	}

	if !success && spec.OnFailure != "" {
		if name, ok := strings.CutPrefix(spec.OnFailure, "outcome:"); ok {
			outcome, err := schema.ParseOutcome(name)
			if err != nil {
				engine.logger.Warn("unknown outcome in on_failure", "on_failure", spec.OnFailure)
			} else {
				engine.state.Escalate(outcome)
			}
		}
	}

	detail := strings.TrimSpace(combined.String())
	if len(detail) > maxDetail {
		detail = detail[len(detail)-maxDetail:]
	}
	return schema.StepResult{Step: stepIndex, Name: spec.Name, Success: success, Detail: detail}
}

// handleCommit restores out-of-scope changes, stages everything, and
// commits. An empty status after restore is a successful no-op. The
// diff artifacts cover the new commit only.
func (engine *Engine) handleCommit(ctx context.Context, spec schema.StepSpec, stepIndex int) schema.StepResult {
	repo := engine.config.Repository

	if engine.state.scope != nil {
		status, err := repo.StatusPorcelain(ctx, stepIndex)
		if err == nil && status != "" {
			for _, path := range git.StatusPaths(status) {
				if engine.state.scope.Contains(path) {
					continue
				}
				engine.logger.Info("restoring out-of-scope change", "path", path)
				if _, err := repo.Restore(ctx, stepIndex, path); err != nil {
					engine.logger.Warn("restore failed", "path", path, "error", err)
				}
			}
		}
	}

	if _, err := repo.StageAll(ctx, stepIndex); err != nil {
		return failed(stepIndex, spec.Name, err.Error())
	}

	status, err := repo.StatusPorcelain(ctx, stepIndex)
	if err != nil {
		return failed(stepIndex, spec.Name, err.Error())
	}
	if status == "" {
		return succeeded(stepIndex, spec.Name, "nothing to commit")
	}

	messageTemplate := spec.Message
	if messageTemplate == "" {
		messageTemplate = defaultMessageTemplate
	}
	message := template.Expand(messageTemplate, engine.state, engine.environ)

	output, commitErr := repo.Commit(ctx, stepIndex, message)

	if head, err := repo.Head(ctx, stepIndex); err == nil {
		engine.state.headCommit = head
	}

	if patch, err := repo.Diff(ctx, stepIndex, "HEAD~1..HEAD"); err == nil {
		if err := engine.config.Artifacts.WriteText("diff.patch", patch+"\n"); err != nil {
			engine.logger.Warn("writing diff.patch failed", "error", err)
		}
	}
	if stats, err := repo.DiffStat(ctx, stepIndex, "HEAD~1..HEAD"); err == nil {
		if err := engine.config.Artifacts.WriteText("diff_stats.txt", stats+"\n"); err != nil {
			engine.logger.Warn("writing diff_stats.txt failed", "error", err)
		}
	}

	if commitErr != nil {
		return failed(stepIndex, spec.Name, commitErr.Error())
	}
	return succeeded(stepIndex, spec.Name, output)
}

// handlePush pushes the branch to origin. Never escalates: a failed
// push leaves the commit in the container's clone, and the artifacts
// still carry the patch.
func (engine *Engine) handlePush(ctx context.Context, spec schema.StepSpec, stepIndex int) schema.StepResult {
	output, err := engine.config.Repository.Push(ctx, stepIndex)
	if err != nil {
		engine.logger.Warn("git push failed", "error", err)
		return failed(stepIndex, spec.Name, err.Error())
	}
	return succeeded(stepIndex, spec.Name, output)
}

// handlePullRequest opens a pull request summarizing the run. Requires
// a configured GitHub client and repository; their absence, like any
// API failure, records a failed step without escalating.
func (engine *Engine) handlePullRequest(ctx context.Context, spec schema.StepSpec, stepIndex int) schema.StepResult {
	if engine.config.GitHub == nil || engine.config.GitHubRepo == "" {
		return failed(stepIndex, spec.Name, "GitHub client or repository not configured, skipping pull request")
	}

	repo, err := github.ParseRepo(engine.config.GitHubRepo)
	if err != nil {
		return failed(stepIndex, spec.Name, err.Error())
	}

	titleTemplate := spec.Title
	if titleTemplate == "" {
		titleTemplate = defaultMessageTemplate
	}
	title := template.Expand(titleTemplate, engine.state, engine.environ)

	diffStats, err := engine.config.Artifacts.Read("diff_stats.txt")
	if err != nil {
		diffStats = ""
	}
	body := buildPullRequestBody(engine.state, diffStats, engine.config.ArtifactPrefix)

	base, err := engine.config.GitHub.DefaultBranch(ctx, repo)
	if err != nil {
		engine.logger.Warn("resolving default branch failed", "error", err)
		return failed(stepIndex, spec.Name, err.Error())
	}

	pull, err := engine.config.GitHub.CreatePullRequest(ctx, repo, github.NewPullRequest{
		Title: title,
		Head:  engine.state.branch,
		Base:  base,
		Body:  body,
	})
	if err != nil {
		engine.logger.Warn("pull request creation failed", "error", err)
		return failed(stepIndex, spec.Name, err.Error())
	}

	engine.state.prURL = pull.HTMLURL
	return succeeded(stepIndex, spec.Name, pull.HTMLURL)
}

// buildPullRequestBody renders the run as markdown: outcome header,
// step checklist with short snippets for the interesting steps, diff
// stats, and the remote artifact location when uploads are configured.
func buildPullRequestBody(state *State, diffStats, artifactPrefix string) string {
	var body strings.Builder
	fmt.Fprintf(&body, "**Outcome:** %s | **Run ID:** `%s`\n\n", state.Outcome(), state.RunID())

	if len(state.steps) > 0 {
		body.WriteString("### Steps\n")
		for _, step := range state.steps {
			check := " "
			if step.Success {
				check = "x"
			}
			fmt.Fprintf(&body, "- [%s] %s%s\n", check, step.Name, stepSnippet(step))
		}
		body.WriteString("\n")
	}

	if strings.TrimSpace(diffStats) != "" {
		fmt.Fprintf(&body, "### Diff\n```\n%s\n```\n\n", strings.TrimSpace(diffStats))
	}

	if artifactPrefix != "" {
		fmt.Fprintf(&body, "### Artifacts\n`%s`\n\n", artifactPrefix)
	}

	body.WriteString("---\n*Created automatically by lackey*")
	return body.String()
}

// stepSnippet picks a one-line annotation for checklist entries: the
// pass-count line from test output, or "clean" for a passing lint.
func stepSnippet(step schema.StepResult) string {
	if step.Name == "test" && strings.Contains(step.Detail, "passed") {
		for _, line := range strings.Split(step.Detail, "\n") {
			if strings.Contains(line, "passed") && strings.Contains(line, "=") {
				return " — " + strings.TrimSpace(strings.Trim(strings.TrimSpace(line), "="))
			}
		}
	}
	if step.Name == "lint" && step.Success {
		return " — clean"
	}
	return ""
}

func succeeded(stepIndex int, name, detail string) schema.StepResult {
	return schema.StepResult{Step: stepIndex, Name: name, Success: true, Detail: detail}
}

func failed(stepIndex int, name, detail string) schema.StepResult {
	return schema.StepResult{Step: stepIndex, Name: name, Success: false, Detail: detail}
}
