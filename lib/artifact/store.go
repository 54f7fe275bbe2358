// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

// Package artifact persists run outputs: the scope, diffs, check
// outputs, logs, and the run summary. Artifacts are plain files in
// the run's output directory, accompanied by a manifest.json with a
// BLAKE3 hash per file, and optionally bundled into a single
// compressed tarball for transfer out of the sandbox.
package artifact

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Store writes artifacts into a single output directory. Safe for
// concurrent use.
type Store struct {
	dir    string
	logger *slog.Logger

	mu      sync.Mutex
	written map[string]bool
}

// NewStore creates the output directory (and parents) if needed and
// returns a Store over it.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory %s: %w", dir, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		dir:     dir,
		logger:  logger,
		written: make(map[string]bool),
	}, nil
}

// Dir returns the output directory.
func (store *Store) Dir() string {
	return store.dir
}

// WriteText persists a text artifact under name.
func (store *Store) WriteText(name, content string) error {
	return store.write(name, []byte(content))
}

// WriteJSON persists value as two-space indented JSON with a trailing
// newline.
func (store *Store) WriteJSON(name string, value any) error {
	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding artifact %s: %w", name, err)
	}
	return store.write(name, append(encoded, '\n'))
}

// Read returns a previously written artifact's content. Used by the
// publisher to embed diff stats into the pull request body.
func (store *Store) Read(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(store.dir, name))
	if err != nil {
		return "", fmt.Errorf("reading artifact %s: %w", name, err)
	}
	return string(data), nil
}

// Names returns the artifacts written through this store, sorted.
func (store *Store) Names() []string {
	store.mu.Lock()
	defer store.mu.Unlock()
	names := make([]string, 0, len(store.written))
	for name := range store.written {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (store *Store) write(name string, data []byte) error {
	if name == "" || name != filepath.Base(name) {
		return fmt.Errorf("invalid artifact name %q", name)
	}
	path := filepath.Join(store.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing artifact %s: %w", name, err)
	}
	store.mu.Lock()
	store.written[name] = true
	store.mu.Unlock()
	store.logger.Debug("artifact written", "name", name, "bytes", len(data))
	return nil
}

// manifestEntry is one file in manifest.json.
type manifestEntry struct {
	Size int64  `json:"size"`
	Hash string `json:"hash"`
}

// WriteManifest hashes every artifact in the output directory and
// writes manifest.json mapping name to size and BLAKE3 hash. The
// manifest itself is excluded from its own listing. Call this last;
// artifacts written afterwards are not covered.
func (store *Store) WriteManifest() error {
	entries, err := os.ReadDir(store.dir)
	if err != nil {
		return fmt.Errorf("listing output directory: %w", err)
	}

	manifest := make(map[string]manifestEntry)
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == ManifestName {
			continue
		}
		data, err := os.ReadFile(filepath.Join(store.dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("hashing artifact %s: %w", entry.Name(), err)
		}
		manifest[entry.Name()] = manifestEntry{
			Size: int64(len(data)),
			Hash: HashFile(data).String(),
		}
	}
	return store.WriteJSON(ManifestName, manifest)
}

// ManifestName is the integrity manifest's filename.
const ManifestName = "manifest.json"
