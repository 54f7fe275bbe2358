// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"

	"github.com/lackey-foundation/lackey/lib/schema"
)

// The typed errors below are returned to agent tool loops, which feed
// the message back to the model as the tool result. The messages are
// therefore written as instructions: they tell the model what to do
// differently on the next attempt, not just what went wrong.

// TraversalError reports a path that escapes the sandbox root.
type TraversalError struct {
	Path string
}

func (e *TraversalError) Error() string {
	return fmt.Sprintf("path traversal blocked: %s", e.Path)
}

// ScopeViolationError reports a write or edit outside the allowed
// scope. The message includes the full scope so the model can either
// pick an in-scope path or raise a scope disagreement.
type ScopeViolationError struct {
	Path  string
	Scope *schema.Scope
}

func (e *ScopeViolationError) Error() string {
	return fmt.Sprintf(
		"file %q is outside the allowed scope; if you need this file, report a scope disagreement instead (allowed files: %v, allowed dirs: %v, test files: %v)",
		e.Path, e.Scope.AllowedFiles, e.Scope.AllowedDirs, e.Scope.TestFiles)
}

// ReadRequiredError reports a write or edit to an existing file that
// was never read.
type ReadRequiredError struct {
	Path string
}

func (e *ReadRequiredError) Error() string {
	return fmt.Sprintf("you must read_file(%q) before editing or writing to it", e.Path)
}

// StaleReadError reports a write or edit to a file that changed after
// it was last read. The stale ledger entry has already been evicted;
// the next read re-records it.
type StaleReadError struct {
	Path string
}

func (e *StaleReadError) Error() string {
	return fmt.Sprintf("file %q has been modified since you last read it; call read_file(%q) again before editing", e.Path, e.Path)
}

// NotFoundInFileError reports an edit whose old string matched
// nothing.
type NotFoundInFileError struct {
	Path string
}

func (e *NotFoundInFileError) Error() string {
	return fmt.Sprintf("old_string not found in %s; make sure the string matches exactly, including whitespace and indentation", e.Path)
}

// AmbiguousMatchError reports an edit whose old string matched more
// than once.
type AmbiguousMatchError struct {
	Path  string
	Count int
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("old_string appears %d times in %s; provide more surrounding context to make it unique", e.Count, e.Path)
}
