// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/lackey-foundation/lackey/lib/agent"
	"github.com/lackey-foundation/lackey/lib/artifact"
	"github.com/lackey-foundation/lackey/lib/audit"
	"github.com/lackey-foundation/lackey/lib/clock"
	"github.com/lackey-foundation/lackey/lib/git"
	"github.com/lackey-foundation/lackey/lib/github"
	"github.com/lackey-foundation/lackey/lib/objectstore"
	"github.com/lackey-foundation/lackey/lib/schema"
	"github.com/lackey-foundation/lackey/lib/shell"
	"github.com/lackey-foundation/lackey/lib/template"
	"github.com/lackey-foundation/lackey/sandbox"
)

// Config assembles the collaborators for one run. Run, Blueprint,
// Agents, Runner, Repository, Sandbox, Artifacts, and Audit are
// required; the rest are optional capabilities.
type Config struct {
	Run       schema.RunConfig
	Blueprint *schema.Blueprint
	Agents    agent.Registry

	Runner     *shell.Runner
	Repository *git.Repository
	Sandbox    *sandbox.Root
	Artifacts  *artifact.Store
	Audit      *audit.Log

	// GitHub and GitHubRepo enable the pull request step. Either
	// being zero makes git_pr a recorded no-op failure.
	GitHub     *github.Client
	GitHubRepo string

	// ArtifactPrefix is the remote artifact location advertised in
	// the pull request body, e.g. "s3://lackey-runs/runs/<id>/".
	ArtifactPrefix string

	// Uploader syncs the output directory to object storage at
	// finalize. nil disables the sync.
	Uploader *objectstore.Uploader

	Clock   clock.Clock
	Logger  *slog.Logger
	Environ template.Environ
}

// Engine executes one blueprint run.
type Engine struct {
	config    Config
	blueprint *schema.Blueprint
	state     *State
	logger    *slog.Logger
	environ   template.Environ
}

// New validates the configuration and builds an engine. The engine is
// single-use: Run may be called once.
func New(config Config) (*Engine, error) {
	switch {
	case config.Blueprint == nil:
		return nil, fmt.Errorf("pipeline: blueprint is required")
	case config.Runner == nil:
		return nil, fmt.Errorf("pipeline: shell runner is required")
	case config.Repository == nil:
		return nil, fmt.Errorf("pipeline: git repository is required")
	case config.Sandbox == nil:
		return nil, fmt.Errorf("pipeline: sandbox is required")
	case config.Artifacts == nil:
		return nil, fmt.Errorf("pipeline: artifact store is required")
	case config.Audit == nil:
		return nil, fmt.Errorf("pipeline: audit log is required")
	case config.Agents.Scoper == nil || config.Agents.Executor == nil || config.Agents.Fixer == nil:
		return nil, fmt.Errorf("pipeline: agent registry is incomplete")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Environ == nil {
		config.Environ = os.Getenv
	}
	return &Engine{
		config:    config,
		blueprint: config.Blueprint,
		state:     NewState(config.Run),
		logger:    config.Logger,
		environ:   config.Environ,
	}, nil
}

// Run executes the blueprint and returns the run summary. Run always
// returns a summary: faults inside steps are converted into the error
// outcome, a run-level deadline into the timeout outcome, and the
// finalizer writes the audit log and summary artifacts in all cases.
func (engine *Engine) Run(ctx context.Context) *schema.RunSummary {
	if engine.config.Run.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, engine.config.Run.Timeout)
		defer cancel()
	}

	engine.runSteps(ctx)

	if ctx.Err() != nil {
		// A handler interrupted by the deadline reports a generic
		// failure; the run-level classification is timeout.
		engine.state.outcome = schema.OutcomeTimeout
	}

	return engine.finalize(ctx)
}

// runSteps walks the blueprint. A panic in a handler is converted to
// the error outcome with a synthetic failed step, so the finalizer
// still runs and the summary names the fault.
func (engine *Engine) runSteps(ctx context.Context) {
	defer func() {
		if recovered := recover(); recovered != nil {
			engine.logger.Error("step handler fault", "panic", recovered)
			engine.state.Escalate(schema.OutcomeError)
			engine.state.Record(schema.StepResult{
				Name:    "error",
				Success: false,
				Detail:  fmt.Sprint(recovered),
			})
		}
	}()

	for index, spec := range engine.blueprint.Steps {
		stepIndex := index + 1

		if ctx.Err() != nil {
			return
		}

		if spec.When != "" {
			met, recognized := template.EvaluateChecked(spec.When, engine.state, engine.environ)
			if !recognized {
				engine.logger.Warn("unrecognized condition form",
					"step", spec.Name, "when", spec.When)
			}
			if !met {
				engine.logger.Info("skipping step", "step", spec.Name, "when", spec.When)
				continue
			}
		}

		engine.logger.Info("running step",
			"index", stepIndex, "step", spec.Name, "kind", spec.Kind)

		result := engine.dispatch(ctx, spec, stepIndex)
		engine.state.Record(result)

		if engine.state.Outcome().Terminal() {
			engine.logger.Info("aborting run", "outcome", engine.state.Outcome())
			return
		}
	}
}

// dispatch routes a step to its handler. The kind set is closed:
// parsing accepts only these values, so the default arm is a blueprint
// that bypassed validation, recorded as a failed step rather than a
// fault.
func (engine *Engine) dispatch(ctx context.Context, spec schema.StepSpec, stepIndex int) schema.StepResult {
	switch spec.Kind {
	case schema.StepGitBranch:
		return engine.handleBranch(ctx, spec, stepIndex, true)
	case schema.StepGitCheckout:
		return engine.handleBranch(ctx, spec, stepIndex, false)
	case schema.StepAgent:
		return engine.handleAgent(ctx, spec, stepIndex)
	case schema.StepCommand:
		return engine.handleCommand(ctx, spec, stepIndex)
	case schema.StepGitCommit:
		return engine.handleCommit(ctx, spec, stepIndex)
	case schema.StepGitPush:
		return engine.handlePush(ctx, spec, stepIndex)
	case schema.StepGitPR:
		return engine.handlePullRequest(ctx, spec, stepIndex)
	}
	return schema.StepResult{
		Step:    stepIndex,
		Name:    spec.Name,
		Success: false,
		Detail:  fmt.Sprintf("unknown step kind %q", spec.Kind),
	}
}

// finalize writes the closing artifacts and optionally syncs them to
// object storage. It runs for every outcome, including faults.
func (engine *Engine) finalize(ctx context.Context) *schema.RunSummary {
	store := engine.config.Artifacts

	var commands strings.Builder
	if _, err := engine.config.Audit.WriteTo(&commands); err != nil {
		engine.logger.Warn("rendering audit log failed", "error", err)
	}
	if err := store.WriteText("commands.log", commands.String()); err != nil {
		engine.logger.Warn("writing commands.log failed", "error", err)
	}

	summary := engine.state.Summary()
	if err := store.WriteJSON("run_summary.json", summary); err != nil {
		engine.logger.Warn("writing run_summary.json failed", "error", err)
	}
	if err := store.WriteManifest(); err != nil {
		engine.logger.Warn("writing artifact manifest failed", "error", err)
	}

	if engine.config.Uploader != nil {
		// The run deadline does not apply to the upload; use a
		// context that survives cancellation but honors signals.
		uploadCtx := context.WithoutCancel(ctx)
		keys, err := engine.config.Uploader.SyncRun(uploadCtx, engine.config.Run.RunID, store.Dir())
		if err != nil {
			engine.logger.Warn("artifact upload failed", "error", err)
		} else {
			engine.logger.Info("artifacts uploaded", "objects", len(keys))
		}
	}

	return summary
}
