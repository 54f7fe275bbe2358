// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

// Package template expands placeholder tokens in blueprint strings and
// evaluates step guard conditions against accumulated run state.
//
// Templates recognize {run_id}, {task}, {task_slug}, and {env.NAME}.
// Unrecognized {...} tokens are left verbatim so that shell syntax
// like ${HOME} or awk programs survive expansion untouched.
//
// Conditions gate step execution: an empty condition is always true,
// "env.NAME" is true when the variable is set and non-empty, and
// "stepname.succeeded" / "stepname.failed" consult the named step's
// recorded result. A condition referencing a step that never ran is
// false.
package template

import (
	"regexp"
	"strings"

	"github.com/lackey-foundation/lackey/lib/schema"
)

// tokenPattern matches {name} references. Only the braced form is
// recognized; the token may not contain braces itself.
var tokenPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// slugPattern matches runs of characters that are not lowercase
// alphanumerics, for collapsing into hyphens.
var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// maxSlugLength caps task slugs so templated branch names stay short.
const maxSlugLength = 50

// State is the run state a template or condition is evaluated against.
// lib/pipeline's run state implements it; tests use small literals.
type State interface {
	// RunID returns the run identifier.
	RunID() string

	// Task returns the task description.
	Task() string

	// Result returns the recorded result of the named step, if the
	// step has executed. Skipped and not-yet-reached steps have no
	// result.
	Result(name string) (schema.StepResult, bool)
}

// Environ looks up an environment variable, returning "" when unset.
// Production callers pass os.Getenv; tests pass a stub.
type Environ func(name string) string

// Expand replaces {run_id}, {task}, {task_slug}, and {env.NAME} tokens
// in the template. Unrecognized tokens are returned verbatim.
func Expand(template string, state State, environ Environ) string {
	return tokenPattern.ReplaceAllStringFunc(template, func(match string) string {
		token := match[1 : len(match)-1]
		switch {
		case token == "run_id":
			return state.RunID()
		case token == "task":
			return state.Task()
		case token == "task_slug":
			return Slugify(state.Task())
		case strings.HasPrefix(token, "env."):
			if environ == nil {
				return ""
			}
			return environ(strings.TrimPrefix(token, "env."))
		}
		return match
	})
}

// Slugify turns a task description into a short branch-name-safe slug:
// lowercased, with runs of non-alphanumerics collapsed to single
// hyphens, trimmed, and capped at 50 characters. A task that slugifies
// to nothing (e.g. all punctuation) yields the literal "task".
func Slugify(task string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(task), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > maxSlugLength {
		slug = slug[:maxSlugLength]
		slug = strings.TrimRight(slug, "-")
	}
	if slug == "" {
		return "task"
	}
	return slug
}

// Evaluate decides a step guard condition. An empty condition is true.
// Any dotted form other than env.NAME, stepname.succeeded, and
// stepname.failed evaluates to false; Recognized reports whether the
// expression matched a known form so the engine can warn about likely
// blueprint typos without changing which steps run.
func Evaluate(expression string, state State, environ Environ) bool {
	ok, _ := EvaluateChecked(expression, state, environ)
	return ok
}

// EvaluateChecked is Evaluate plus a recognized flag. An unrecognized
// expression is reported as (false, false): the step is skipped, and
// the caller can surface the suspect expression.
func EvaluateChecked(expression string, state State, environ Environ) (value bool, recognized bool) {
	if expression == "" {
		return true, true
	}

	if name, ok := strings.CutPrefix(expression, "env."); ok {
		if environ == nil {
			return false, true
		}
		return environ(name) != "", true
	}

	stepName, predicate, found := strings.Cut(expression, ".")
	if !found {
		return false, false
	}

	switch predicate {
	case "succeeded", "failed":
	default:
		return false, false
	}

	result, ran := state.Result(stepName)
	if !ran {
		// No such step has run: the condition is false, but the form
		// itself is valid.
		return false, true
	}
	if predicate == "succeeded" {
		return result.Success, true
	}
	return !result.Success, true
}
