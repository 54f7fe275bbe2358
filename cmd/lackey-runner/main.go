// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

// lackey-runner is the container-side entry point. It reads its
// configuration from environment variables injected by the backend,
// discovers the repository's blueprint, wires the agents, and executes
// the run. Exit code zero means the run's outcome was success.
//
// Environment variables:
//
//	TASK              task description (required)
//	RUN_ID            unique run identifier (default "local")
//	WORK_DIR          working copy of the repository (default /work)
//	OUTPUT_DIR        artifact directory (default /output)
//	TIMEOUT           run timeout in seconds (default none)
//	LACKEY_BLUEPRINT  explicit blueprint path or name (optional)
//	LACKEY_MODEL      model identifier for LLM agents (optional)
//	LACKEY_STUBS      use stub agents instead of LLM agents
//	ANTHROPIC_API_KEY LLM credential (required unless LACKEY_STUBS)
//	GITHUB_TOKEN/REPO pull request credentials (optional)
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/lackey-foundation/lackey/lib/agent"
	"github.com/lackey-foundation/lackey/lib/artifact"
	"github.com/lackey-foundation/lackey/lib/audit"
	"github.com/lackey-foundation/lackey/lib/blueprint"
	"github.com/lackey-foundation/lackey/lib/clock"
	"github.com/lackey-foundation/lackey/lib/config"
	"github.com/lackey-foundation/lackey/lib/git"
	"github.com/lackey-foundation/lackey/lib/github"
	"github.com/lackey-foundation/lackey/lib/llm"
	"github.com/lackey-foundation/lackey/lib/pipeline"
	"github.com/lackey-foundation/lackey/lib/schema"
	"github.com/lackey-foundation/lackey/lib/shell"
	"github.com/lackey-foundation/lackey/lib/version"
	"github.com/lackey-foundation/lackey/sandbox"
)

// mirrorSource is where the backend bind-mounts the host repository,
// read-only. The runner clones it into the writable work directory.
const mirrorSource = "/repo"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Println(version.Info())
		return
	}
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	level := slog.LevelInfo
	if os.Getenv("LACKEY_DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	runner, err := config.FromEnvironment(os.Getenv)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := prepareWorkDir(ctx, runner.Run.WorkDir); err != nil {
		return err
	}

	blueprintPath, err := blueprint.Discover(runner.Run.WorkDir, runner.Blueprint, logger)
	if err != nil {
		return err
	}
	logger.Info("loading blueprint", "path", blueprintPath)
	loaded, err := blueprint.ReadFile(blueprintPath)
	if err != nil {
		return err
	}
	if issues := blueprint.Validate(loaded); len(issues) > 0 {
		return fmt.Errorf("blueprint %q has validation errors:\n  %s",
			loaded.Name, strings.Join(issues, "\n  "))
	}

	log, err := audit.NewFile(filepath.Join(runner.Run.OutputDir, "tool_calls.log"), clock.Real(), logger)
	if err != nil {
		return err
	}
	defer log.Close()

	store, err := artifact.NewStore(runner.Run.OutputDir, logger)
	if err != nil {
		return err
	}
	root, err := sandbox.New(runner.Run.WorkDir, nil)
	if err != nil {
		return err
	}
	shellRunner := &shell.Runner{WorkDir: runner.Run.WorkDir, Audit: log, Clock: clock.Real(), Logger: logger}

	agents, err := buildAgents(runner, root, shellRunner, log, logger)
	if err != nil {
		return err
	}

	engineConfig := pipeline.Config{
		Run:            runner.Run,
		Blueprint:      loaded,
		Agents:         agents,
		Runner:         shellRunner,
		Repository:     git.New(shellRunner),
		Sandbox:        root,
		Artifacts:      store,
		Audit:          log,
		ArtifactPrefix: runner.ArtifactPrefix,
		Logger:         logger,
	}
	if runner.GitHubToken != "" && runner.Repository != "" {
		client, err := github.NewClient(github.Config{Token: runner.GitHubToken})
		if err != nil {
			return err
		}
		engineConfig.GitHub = client
		engineConfig.GitHubRepo = runner.Repository
	}

	engine, err := pipeline.New(engineConfig)
	if err != nil {
		return err
	}
	summary := engine.Run(ctx)

	fmt.Printf("Run %s finished: %s\n", summary.RunID, summary.Outcome)
	if summary.Outcome != schema.OutcomeSuccess {
		os.Exit(1)
	}
	return nil
}

// buildAgents wires the agent registry: stubs when requested, LLM
// agents otherwise. Each agent gets its own toolbox so audit entries
// carry the right actor; only the executor and fixer get mutating
// tools.
func buildAgents(runner *config.Runner, root *sandbox.Root, shellRunner *shell.Runner, log *audit.Log, logger *slog.Logger) (agent.Registry, error) {
	if runner.UseStubs {
		logger.Info("using stub agents")
		return agent.StubRegistry(), nil
	}

	provider := llm.NewAnthropic(runner.AnthropicAPIKey, "", nil)
	box := func(actor string) *agent.Toolbox {
		return &agent.Toolbox{
			Actor:   actor,
			Sandbox: root,
			Runner:  shellRunner,
			Audit:   log,
			Logger:  logger,
		}
	}
	return agent.Registry{
		Scoper:   &agent.LLMScoper{Provider: provider, Model: runner.Model, Box: box("scoper"), Logger: logger},
		Executor: &agent.LLMExecutor{Provider: provider, Model: runner.Model, Box: box("executor"), Logger: logger},
		Fixer:    &agent.LLMFixer{Provider: provider, Model: runner.Model, Box: box("fixer"), Logger: logger},
	}, nil
}

// prepareWorkDir clones the read-only repository mirror into the work
// directory when the work directory is not already a git checkout.
// Outside a container (local development, tests) the work directory is
// the checkout itself and no mirror exists.
func prepareWorkDir(ctx context.Context, workDir string) error {
	if _, err := os.Stat(filepath.Join(workDir, ".git")); err == nil {
		return nil
	}
	if _, err := os.Stat(mirrorSource); err != nil {
		return fmt.Errorf("work directory %s is not a git checkout and no %s mirror is mounted", workDir, mirrorSource)
	}

	command := exec.CommandContext(ctx, "git", "clone", mirrorSource, workDir)
	output, err := command.CombinedOutput()
	if err != nil {
		return fmt.Errorf("cloning %s into %s: %v\n%s", mirrorSource, workDir, err, output)
	}
	return nil
}
