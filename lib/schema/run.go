// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"
	"time"
)

// Outcome is the terminal classification of a run. A run starts at
// OutcomeSuccess and can only be escalated to one of the failure
// kinds — never back to success.
type Outcome string

const (
	// OutcomeSuccess means every executed step succeeded (or failed
	// in a way the blueprint declared acceptable).
	OutcomeSuccess Outcome = "success"

	// OutcomeTestFailure means a command step mapped its failure to
	// this outcome via on_failure (typically the final test run).
	OutcomeTestFailure Outcome = "test_failure"

	// OutcomeScopeDisagreement means the executor agent declined to
	// proceed within the scope boundary. This is a deliberate halt,
	// not an error: the run stops before any commit or publish step.
	OutcomeScopeDisagreement Outcome = "scope_disagreement"

	// OutcomeTimeout means the run-level deadline expired.
	OutcomeTimeout Outcome = "timeout"

	// OutcomeError means a fatal step failure (branch/checkout) or an
	// unexpected fault caught by the engine.
	OutcomeError Outcome = "error"
)

// ParseOutcome validates an outcome name from a blueprint on_failure
// directive or a run summary artifact.
func ParseOutcome(name string) (Outcome, error) {
	switch Outcome(name) {
	case OutcomeSuccess, OutcomeTestFailure, OutcomeScopeDisagreement, OutcomeTimeout, OutcomeError:
		return Outcome(name), nil
	}
	return "", fmt.Errorf("unknown outcome %q", name)
}

// Terminal reports whether the outcome halts the run immediately:
// no further steps execute, including commit, push, and publish.
// Timeout and the soft failure kinds are not terminal in this sense —
// they are recorded but the step loop itself decides when to stop.
func (outcome Outcome) Terminal() bool {
	return outcome == OutcomeError || outcome == OutcomeScopeDisagreement
}

// RunConfig is the immutable configuration of a single run. One
// RunConfig produces exactly one run: a fresh engine, a fresh state,
// a fresh output directory.
type RunConfig struct {
	// Task is the free-text task description given to the agents.
	Task string `json:"task"`

	// RunID uniquely identifies the run. It appears in branch names,
	// artifact prefixes, and the run summary.
	RunID string `json:"run_id"`

	// WorkDir is the working copy of the repository being changed.
	WorkDir string `json:"work_dir"`

	// OutputDir receives all run artifacts (audit log, diff patch,
	// run summary, agent reports).
	OutputDir string `json:"output_dir"`

	// Timeout bounds the whole run. Zero means no run-level deadline.
	Timeout time.Duration `json:"-"`
}

// StepResult is the immutable record of one executed step. Skipped
// steps produce no StepResult at all.
type StepResult struct {
	// Step is the 1-based index of the step in the blueprint.
	Step int `json:"step"`

	// Name is the blueprint step name, used for condition lookups
	// (e.g. "lint.failed") and input_from references.
	Name string `json:"name"`

	// Success records whether the step's own success criterion held.
	Success bool `json:"success"`

	// Detail is free text: truncated command output, an agent
	// summary, or an error message.
	Detail string `json:"detail,omitempty"`
}

// RunSummary is the final artifact of a run, written to
// run_summary.json and returned to the caller.
type RunSummary struct {
	RunID          string       `json:"run_id"`
	Task           string       `json:"task"`
	Outcome        Outcome      `json:"outcome"`
	Steps          []StepResult `json:"steps"`
	Branch         string       `json:"branch,omitempty"`
	BaseCommit     string       `json:"base_commit,omitempty"`
	HeadCommit     string       `json:"head_commit,omitempty"`
	PullRequestURL string       `json:"pr_url,omitempty"`
}

// Disagreement is the executor agent's structured refusal to proceed
// within the given scope. It is not an error: the run halts with
// OutcomeScopeDisagreement so a human can widen the scope and retry.
type Disagreement struct {
	// Reasoning explains why the current scope is insufficient.
	Reasoning string `json:"reasoning"`

	// SuggestedAdditions lists files or directories the executor
	// believes the scope needs.
	SuggestedAdditions []string `json:"suggested_additions,omitempty"`
}
