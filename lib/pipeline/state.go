// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline executes a blueprint step by step against a working
// copy, accumulating state (branch, base commit, scope, step results)
// and a terminal outcome. One engine executes exactly one run.
package pipeline

import (
	"github.com/lackey-foundation/lackey/lib/schema"
)

// State is the mutable state of a single run. It is owned by the
// engine and discarded when the run finishes; steps communicate only
// through it.
type State struct {
	config  schema.RunConfig
	outcome schema.Outcome

	branch     string
	baseCommit string
	headCommit string
	prURL      string

	// scope is installed by the scoper step. nil means unrestricted.
	scope *schema.Scope

	steps  []schema.StepResult
	byName map[string]schema.StepResult
}

// NewState starts a run at OutcomeSuccess with no recorded steps.
func NewState(config schema.RunConfig) *State {
	return &State{
		config:  config,
		outcome: schema.OutcomeSuccess,
		byName:  make(map[string]schema.StepResult),
	}
}

// RunID implements template.State.
func (state *State) RunID() string { return state.config.RunID }

// Task implements template.State.
func (state *State) Task() string { return state.config.Task }

// Result implements template.State: the recorded result of the named
// step, if it has executed.
func (state *State) Result(name string) (schema.StepResult, bool) {
	result, ok := state.byName[name]
	return result, ok
}

// Record appends a step result and indexes it by name for condition
// and input_from lookups. A repeated name shadows the earlier result.
func (state *State) Record(result schema.StepResult) {
	state.steps = append(state.steps, result)
	state.byName[result.Name] = result
}

// Outcome returns the run outcome accumulated so far.
func (state *State) Outcome() schema.Outcome { return state.outcome }

// Escalate moves the outcome away from success. Among soft outcomes
// the first classification wins, but a terminal outcome always takes
// over: a fatal failure after an on_failure mapping must still halt
// the run.
func (state *State) Escalate(outcome schema.Outcome) {
	if state.outcome == schema.OutcomeSuccess || (outcome.Terminal() && !state.outcome.Terminal()) {
		state.outcome = outcome
	}
}

// Summary assembles the final run summary from the accumulated state.
func (state *State) Summary() *schema.RunSummary {
	return &schema.RunSummary{
		RunID:          state.config.RunID,
		Task:           state.config.Task,
		Outcome:        state.outcome,
		Steps:          state.steps,
		Branch:         state.branch,
		BaseCommit:     state.baseCommit,
		HeadCommit:     state.headCommit,
		PullRequestURL: state.prURL,
	}
}
