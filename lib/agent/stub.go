// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"

	"github.com/lackey-foundation/lackey/lib/schema"
)

// Stub agents exercise the full pipeline without a model: the scoper
// allows everything, the executor and fixer do nothing. Used for
// blueprint dry runs and in tests.

// StubScoper returns a scope that allows the whole repository.
type StubScoper struct{}

// Scope implements [Scoper].
func (StubScoper) Scope(ctx context.Context, task string) (*schema.Scope, error) {
	return &schema.Scope{
		Summary:     "Stub scope for: " + task,
		AllowedDirs: []string{"."},
		Rationale:   []string{"stub scoper allows all files"},
	}, nil
}

// StubExecutor makes no changes and never disagrees with the scope.
type StubExecutor struct{}

// Execute implements [Executor].
func (StubExecutor) Execute(ctx context.Context, task string, scope *schema.Scope) (*schema.Disagreement, error) {
	return nil, nil
}

// StubFixer makes no changes.
type StubFixer struct{}

// Fix implements [Fixer].
func (StubFixer) Fix(ctx context.Context, failureOutput string, scope *schema.Scope) error {
	return nil
}

// StubRegistry bundles the three stubs.
func StubRegistry() Registry {
	return Registry{
		Scoper:   StubScoper{},
		Executor: StubExecutor{},
		Fixer:    StubFixer{},
	}
}
