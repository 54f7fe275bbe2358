// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent defines the three pluggable agents a run dispatches
// to — scoper, executor, fixer — and provides both LLM-backed
// implementations and inert stubs.
//
// Each agent is a one-method interface so pipeline tests can
// substitute function fakes. The LLM implementations share a common
// tool loop (see loop.go) over a [Toolbox], which mediates every file
// operation through the sandbox and every shell command through the
// audited runner. Structured agent outputs (the scope, a scope
// disagreement) are returned through dedicated output tools rather
// than parsed out of free text, so a malformed reply is a retryable
// tool error instead of a run failure.
package agent

import (
	"context"

	"github.com/lackey-foundation/lackey/lib/schema"
)

// Scoper explores the codebase and produces the file scope for a
// task.
type Scoper interface {
	Scope(ctx context.Context, task string) (*schema.Scope, error)
}

// Executor implements the task within the scope. A non-nil
// Disagreement means the executor refused: the scope is too narrow to
// complete the task.
type Executor interface {
	Execute(ctx context.Context, task string, scope *schema.Scope) (*schema.Disagreement, error)
}

// Fixer repairs lint errors or test failures reported in
// failureOutput, staying within the scope.
type Fixer interface {
	Fix(ctx context.Context, failureOutput string, scope *schema.Scope) error
}

// Registry bundles the three agents a blueprint can dispatch to.
type Registry struct {
	Scoper   Scoper
	Executor Executor
	Fixer    Fixer
}
