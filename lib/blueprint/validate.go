// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

package blueprint

import (
	"fmt"
	"strings"

	"github.com/lackey-foundation/lackey/lib/schema"
)

// Validate checks a Blueprint for structural issues. Returns a list
// of human-readable issue descriptions. An empty list means the
// blueprint is valid.
//
// Structural checks include:
//   - Blueprint name is required
//   - At least one step is required
//   - Each step must have a non-empty, unique Name
//   - Each step's Kind must be a known kind
//   - git_checkout steps must name a branch
//   - agent steps must name a known agent role; input_from (when set)
//     must reference an earlier step
//   - command steps must have at least one command; a check must have
//     both a command and an artifact name
//   - Timeout and success_codes are only meaningful on command steps
//   - on_failure (when set) must be "outcome:<name>" with a known
//     outcome
//   - when conditions must reference an earlier step or an
//     environment variable
func Validate(content *schema.Blueprint) []string {
	var issues []string

	if content.Name == "" {
		issues = append(issues, "blueprint name is required")
	}
	if len(content.Steps) == 0 {
		issues = append(issues, "blueprint has no steps (at least one step is required)")
	}

	seen := make(map[string]bool, len(content.Steps))
	for index, step := range content.Steps {
		prefix := fmt.Sprintf("steps[%d]", index)

		if step.Name == "" {
			issues = append(issues, fmt.Sprintf("%s: name is required", prefix))
		} else {
			prefix = fmt.Sprintf("steps[%d] %q", index, step.Name)
			if seen[step.Name] {
				issues = append(issues, fmt.Sprintf("%s: duplicate step name", prefix))
			}
		}

		switch step.Kind {
		case schema.StepGitBranch:
			// Branch is optional: defaults to lackey/{run_id}/{task_slug}.
		case schema.StepGitCheckout:
			if step.Branch == "" {
				issues = append(issues, fmt.Sprintf("%s: branch is required for git_checkout", prefix))
			}
		case schema.StepAgent:
			switch step.Agent {
			case schema.AgentScoper, schema.AgentExecutor, schema.AgentFixer:
			case "":
				issues = append(issues, fmt.Sprintf("%s: agent is required for agent steps", prefix))
			default:
				issues = append(issues, fmt.Sprintf("%s: unknown agent %q (want scoper, executor, or fixer)", prefix, step.Agent))
			}
			if step.InputFrom != "" && !seen[step.InputFrom] {
				issues = append(issues, fmt.Sprintf("%s: input_from %q does not reference an earlier step", prefix, step.InputFrom))
			}
		case schema.StepCommand:
			if len(step.Commands) == 0 && step.Check == nil {
				issues = append(issues, fmt.Sprintf("%s: command steps need commands or a check", prefix))
			}
			if step.Check != nil {
				if step.Check.Command == "" {
					issues = append(issues, fmt.Sprintf("%s: check.command is required", prefix))
				}
				if step.Check.Artifact == "" {
					issues = append(issues, fmt.Sprintf("%s: check.artifact is required", prefix))
				}
			}
		case schema.StepGitCommit, schema.StepGitPush, schema.StepGitPR:
			// Message and Title are optional templates with defaults.
		case "":
			issues = append(issues, fmt.Sprintf("%s: type is required", prefix))
		default:
			issues = append(issues, fmt.Sprintf("%s: unknown step type %q", prefix, step.Kind))
		}

		if step.Kind != schema.StepCommand {
			if step.TimeoutSeconds != 0 {
				issues = append(issues, fmt.Sprintf("%s: timeout is only valid on command steps", prefix))
			}
			if len(step.SuccessCodes) != 0 {
				issues = append(issues, fmt.Sprintf("%s: success_codes is only valid on command steps", prefix))
			}
		} else if step.TimeoutSeconds < 0 {
			issues = append(issues, fmt.Sprintf("%s: timeout must be positive, got %d", prefix, step.TimeoutSeconds))
		}

		if step.OnFailure != "" {
			name, ok := strings.CutPrefix(step.OnFailure, "outcome:")
			if !ok {
				issues = append(issues, fmt.Sprintf("%s: on_failure must be \"outcome:<name>\", got %q", prefix, step.OnFailure))
			} else if _, err := schema.ParseOutcome(name); err != nil {
				issues = append(issues, fmt.Sprintf("%s: on_failure: %v", prefix, err))
			}
		}

		if issue := checkCondition(step.When, prefix, seen); issue != "" {
			issues = append(issues, issue)
		}

		if step.Name != "" {
			seen[step.Name] = true
		}
	}

	return issues
}

// checkCondition flags when-conditions that can never be true: an
// unknown form, or a step reference that names no earlier step. Such
// conditions evaluate to false at runtime, silently skipping the
// step, so catching them up front saves a confusing run.
func checkCondition(expr, prefix string, seen map[string]bool) string {
	if expr == "" {
		return ""
	}
	if strings.HasPrefix(expr, "env.") {
		if expr == "env." {
			return fmt.Sprintf("%s: when condition %q names no environment variable", prefix, expr)
		}
		return ""
	}
	stepName, predicate, found := strings.Cut(expr, ".")
	if !found || (predicate != "succeeded" && predicate != "failed") {
		return fmt.Sprintf("%s: unsupported when condition %q (want env.NAME, step.succeeded, or step.failed)", prefix, expr)
	}
	if !seen[stepName] {
		return fmt.Sprintf("%s: when condition %q does not reference an earlier step", prefix, expr)
	}
	return ""
}
