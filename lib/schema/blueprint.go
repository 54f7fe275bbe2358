// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// StepKind identifies the handler for a blueprint step. The set is
// closed: the pipeline engine dispatches on it with an exhaustive
// switch, so adding a kind is a compile-time change there, not a
// runtime lookup miss.
type StepKind string

const (
	// StepGitBranch creates and switches to a new branch, recording
	// the base commit first.
	StepGitBranch StepKind = "git_branch"

	// StepGitCheckout switches to an existing branch.
	StepGitCheckout StepKind = "git_checkout"

	// StepAgent dispatches to one of the pluggable agents (scoper,
	// executor, fixer) named by the step's Agent field.
	StepAgent StepKind = "agent"

	// StepCommand runs shell commands with an optional verification
	// check command.
	StepCommand StepKind = "command"

	// StepGitCommit reverts out-of-scope changes, stages, and commits.
	StepGitCommit StepKind = "git_commit"

	// StepGitPush pushes the current branch to the remote. Best-effort.
	StepGitPush StepKind = "git_push"

	// StepGitPR opens a pull request summarizing the run. Best-effort.
	StepGitPR StepKind = "git_pr"
)

// Agent role names accepted in StepSpec.Agent.
const (
	AgentScoper   = "scoper"
	AgentExecutor = "executor"
	AgentFixer    = "fixer"
)

// DefaultStepTimeoutSeconds applies to command steps that do not set
// their own timeout.
const DefaultStepTimeoutSeconds = 120

// CheckSpec is a verification command attached to a command step. The
// check runs after the step's commands; its exit code (not theirs)
// decides the step's success, and its output is persisted under the
// named artifact.
type CheckSpec struct {
	Command  string `json:"command" yaml:"command"`
	Artifact string `json:"artifact" yaml:"artifact"`
}

// StepSpec is one step in a blueprint. Name and Kind are required;
// the remaining fields apply per kind (see the field comments).
// Unknown names referenced by InputFrom or a When condition resolve
// to "no prior result" rather than an error.
type StepSpec struct {
	// Name is the step's unique identifier within the blueprint, used
	// as the lookup key for conditions and input_from references.
	Name string `json:"name" yaml:"name"`

	// Kind selects the handler.
	Kind StepKind `json:"type" yaml:"type"`

	// Branch is the branch name template for git_branch/git_checkout.
	// git_branch defaults to "lackey/{run_id}/{task_slug}" when empty.
	Branch string `json:"branch,omitempty" yaml:"branch,omitempty"`

	// Agent is the agent role for agent steps: scoper, executor, fixer.
	Agent string `json:"agent,omitempty" yaml:"agent,omitempty"`

	// InputFrom names a prior step whose result detail is passed to
	// the fixer (typically failure output from a lint or test step).
	InputFrom string `json:"input_from,omitempty" yaml:"input_from,omitempty"`

	// Commands are shell commands run in order by command steps.
	Commands []string `json:"commands,omitempty" yaml:"commands,omitempty"`

	// Check is the optional verification command for command steps.
	Check *CheckSpec `json:"check,omitempty" yaml:"check,omitempty"`

	// TimeoutSeconds bounds each command in a command step. Zero means
	// DefaultStepTimeoutSeconds.
	TimeoutSeconds int `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// SuccessCodes are the exit codes counted as success for a command
	// step. Empty means {0}.
	SuccessCodes []int `json:"success_codes,omitempty" yaml:"success_codes,omitempty"`

	// Artifact persists a command step's combined output under this
	// name when no Check is configured.
	Artifact string `json:"artifact,omitempty" yaml:"artifact,omitempty"`

	// Message is the commit message template for git_commit steps.
	// Defaults to "lackey: {task}".
	Message string `json:"message,omitempty" yaml:"message,omitempty"`

	// Title is the pull request title template for git_pr steps.
	// Defaults to "lackey: {task}".
	Title string `json:"title,omitempty" yaml:"title,omitempty"`

	// When is a guard condition. Empty means always run. Supported
	// forms: "env.NAME", "stepname.succeeded", "stepname.failed".
	When string `json:"when,omitempty" yaml:"when,omitempty"`

	// OnFailure maps a failing step onto a run outcome, in the form
	// "outcome:<name>" (e.g. "outcome:test_failure").
	OnFailure string `json:"on_failure,omitempty" yaml:"on_failure,omitempty"`
}

// Timeout returns the step's effective timeout in seconds.
func (step StepSpec) Timeout() int {
	if step.TimeoutSeconds > 0 {
		return step.TimeoutSeconds
	}
	return DefaultStepTimeoutSeconds
}

// AcceptsExitCode reports whether the exit code counts as success for
// this step, applying the {0} default.
func (step StepSpec) AcceptsExitCode(code int) bool {
	if len(step.SuccessCodes) == 0 {
		return code == 0
	}
	for _, accepted := range step.SuccessCodes {
		if code == accepted {
			return true
		}
	}
	return false
}

// Blueprint is the declarative definition of a run: an ordered step
// list with a name and description. Immutable once loaded.
type Blueprint struct {
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Steps       []StepSpec `json:"steps" yaml:"steps"`
}
