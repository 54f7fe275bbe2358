// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

// Package sandbox confines agent file operations to a working
// directory and, for mutations, to an allowed scope.
//
// A Root wraps the run's working directory and exposes Read, Write,
// and Edit with three layers of enforcement:
//
//   - Traversal: every path is resolved inside the root; ".." escapes
//     and absolute paths outside the root are rejected.
//   - Scope: writes and edits must target a file inside the run's
//     scope (reads are unrestricted so agents can gather context).
//   - Freshness: a file must be read before it is written or edited,
//     and re-read if it changed on disk since, so edits are never
//     based on stale content.
//
// The freshness ledger maps relative paths to the modification time
// observed at the last read. A successful write or edit updates the
// entry; a detected stale read evicts it.
package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lackey-foundation/lackey/lib/schema"
)

// MaxReadChars caps the content returned by Read. Larger files are
// truncated with a marker so the model knows content is missing.
const MaxReadChars = 100_000

// Root is a sandboxed view of a working directory. Safe for
// concurrent use, though a run drives it from one goroutine.
type Root struct {
	dir string

	mu           sync.Mutex
	scope        *schema.Scope
	readModTimes map[string]time.Time
}

// New creates a Root over dir. The directory must exist; its path is
// made absolute and symlink-resolved once so later traversal checks
// compare like with like. A nil scope means mutations are
// unrestricted (the scope typically arrives later via SetScope, after
// the scoper agent has run).
func New(dir string, scope *schema.Scope) (*Root, error) {
	absolute, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving sandbox root %s: %w", dir, err)
	}
	resolved, err := filepath.EvalSymlinks(absolute)
	if err != nil {
		return nil, fmt.Errorf("resolving sandbox root %s: %w", dir, err)
	}
	return &Root{
		dir:          resolved,
		scope:        scope,
		readModTimes: make(map[string]time.Time),
	}, nil
}

// Dir returns the resolved root directory.
func (root *Root) Dir() string {
	return root.dir
}

// SetScope installs the mutation scope for subsequent writes and
// edits.
func (root *Root) SetScope(scope *schema.Scope) {
	root.mu.Lock()
	defer root.mu.Unlock()
	root.scope = scope
}

// Resolve maps a caller-supplied path onto the root, returning the
// absolute path and the cleaned root-relative path. Paths that escape
// the root, lexically or through a symlink, return a *TraversalError.
func (root *Root) Resolve(path string) (absolute, relative string, err error) {
	joined := path
	if !filepath.IsAbs(joined) {
		joined = filepath.Join(root.dir, path)
	}
	joined = filepath.Clean(joined)
	if !root.contains(joined) {
		return "", "", &TraversalError{Path: path}
	}

	// The lexical check is not enough: a symlink inside the root can
	// point anywhere. Resolve the deepest existing ancestor and check
	// where the path actually lands.
	resolved := resolveExisting(joined)
	if !root.contains(resolved) {
		return "", "", &TraversalError{Path: path}
	}

	relative, err = filepath.Rel(root.dir, resolved)
	if err != nil {
		return "", "", &TraversalError{Path: path}
	}
	return resolved, relative, nil
}

// contains reports whether absolute is root.dir or a descendant of it.
func (root *Root) contains(absolute string) bool {
	return absolute == root.dir ||
		strings.HasPrefix(absolute, root.dir+string(filepath.Separator))
}

// resolveExisting resolves symlinks in the deepest existing ancestor
// of path and rejoins the remainder, so targets that do not exist yet
// still have their parent directories resolved. Ancestors that cannot
// be resolved are walked past; the walk terminates because the
// sandbox root itself exists and is already symlink-free.
func resolveExisting(path string) string {
	remainder := ""
	current := path
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			return filepath.Clean(filepath.Join(resolved, remainder))
		}
		parent := filepath.Dir(current)
		if parent == current {
			return path
		}
		remainder = filepath.Join(filepath.Base(current), remainder)
		current = parent
	}
}

// Read returns the file's content, truncated at MaxReadChars, and
// records its modification time in the freshness ledger.
func (root *Root) Read(path string) (string, error) {
	absolute, relative, err := root.Resolve(path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(absolute)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("file not found: %s", path)
	}
	data, err := os.ReadFile(absolute)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}

	root.mu.Lock()
	root.readModTimes[relative] = info.ModTime()
	root.mu.Unlock()

	content := string(data)
	if len(content) > MaxReadChars {
		content = content[:MaxReadChars] + "\n... (truncated at 100K chars)"
	}
	return content, nil
}

// Write replaces the file's content, creating parent directories as
// needed. Existing files must have been read first (see the package
// comment for the freshness rules). Returns a short summary for the
// tool result.
func (root *Root) Write(path, content string) (string, error) {
	absolute, relative, err := root.Resolve(path)
	if err != nil {
		return "", err
	}
	if err := root.checkMutable(absolute, relative); err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(absolute), 0o755); err != nil {
		return "", fmt.Errorf("creating parent directories for %s: %w", path, err)
	}
	if err := os.WriteFile(absolute, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	root.recordModTime(absolute, relative)

	return fmt.Sprintf("wrote %d chars to %s", len(content), relative), nil
}

// Edit replaces exactly one occurrence of oldString with newString.
// Zero matches return a *NotFoundInFileError, multiple matches a
// *AmbiguousMatchError, so the caller can retry with corrected or
// expanded context.
func (root *Root) Edit(path, oldString, newString string) (string, error) {
	absolute, relative, err := root.Resolve(path)
	if err != nil {
		return "", err
	}
	if err := root.checkMutable(absolute, relative); err != nil {
		return "", err
	}

	info, err := os.Stat(absolute)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("file not found: %s", path)
	}
	data, err := os.ReadFile(absolute)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	content := string(data)

	switch count := strings.Count(content, oldString); {
	case count == 0:
		return "", &NotFoundInFileError{Path: relative}
	case count > 1:
		return "", &AmbiguousMatchError{Path: relative, Count: count}
	}

	updated := strings.Replace(content, oldString, newString, 1)
	if err := os.WriteFile(absolute, []byte(updated), 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	root.recordModTime(absolute, relative)

	return fmt.Sprintf("edited %s: replaced %d chars with %d chars", relative, len(oldString), len(newString)), nil
}

// checkMutable enforces the scope and freshness rules for a write or
// edit target.
func (root *Root) checkMutable(absolute, relative string) error {
	root.mu.Lock()
	defer root.mu.Unlock()

	if root.scope != nil && !root.scope.Contains(filepath.ToSlash(relative)) {
		return &ScopeViolationError{Path: relative, Scope: root.scope}
	}

	info, err := os.Stat(absolute)
	if err != nil {
		// New file: nothing to have read first.
		return nil
	}
	recorded, wasRead := root.readModTimes[relative]
	if !wasRead {
		return &ReadRequiredError{Path: relative}
	}
	if !info.ModTime().Equal(recorded) {
		// Evict so the next read refreshes the ledger.
		delete(root.readModTimes, relative)
		return &StaleReadError{Path: relative}
	}
	return nil
}

func (root *Root) recordModTime(absolute, relative string) {
	info, err := os.Stat(absolute)
	if err != nil {
		return
	}
	root.mu.Lock()
	root.readModTimes[relative] = info.ModTime()
	root.mu.Unlock()
}
