// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "strings"

// Scope is the file boundary produced by the scoper agent: the set of
// paths the executor and fixer agents are permitted to create or
// modify. Paths are relative to the working directory and use forward
// slashes.
//
// A nil *Scope means unrestricted — every path is in scope. This is
// the supported mode for runs without a scoper step, not just a test
// convenience.
type Scope struct {
	// Summary is a brief description of what needs to change and why.
	Summary string `json:"summary"`

	// AllowedDirs are directories whose entire subtree is writable.
	// Entries are prefix-matched with a normalized trailing separator,
	// so "src/api" and "src/api/" are equivalent and neither matches
	// "src/apiserver".
	AllowedDirs []string `json:"allowed_dirs,omitempty"`

	// AllowedFiles are individual writable files.
	AllowedFiles []string `json:"allowed_files,omitempty"`

	// TestFiles are test files relevant to the task. They are writable
	// exactly like AllowedFiles; the separate field exists so blueprint
	// steps and review output can distinguish them.
	TestFiles []string `json:"test_files,omitempty"`

	// Rationale explains why each file or directory is included.
	Rationale []string `json:"rationale,omitempty"`
}

// Contains reports whether the relative path is inside the scope.
// A nil scope contains everything.
func (scope *Scope) Contains(rel string) bool {
	if scope == nil {
		return true
	}
	for _, allowed := range scope.AllowedFiles {
		if rel == allowed {
			return true
		}
	}
	for _, allowed := range scope.TestFiles {
		if rel == allowed {
			return true
		}
	}
	for _, directory := range scope.AllowedDirs {
		trimmed := strings.TrimSuffix(directory, "/")
		// "." means the whole tree; relative paths never carry a
		// leading "./", so it needs its own case.
		if trimmed == "." || trimmed == "" {
			return true
		}
		if strings.HasPrefix(rel, trimmed+"/") {
			return true
		}
	}
	return false
}
