// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

package blueprint

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// BlueprintsDir is the conventional blueprint location inside a
// target repository, relative to the repository root.
const BlueprintsDir = ".lackey/blueprints"

// Discover locates the blueprint file for a run.
//
// Search order:
//
//  1. override (from configuration or the LACKEY_BLUEPRINT variable):
//     an absolute path, a path relative to workDir, or a bare name
//     like "scope-execute-test" resolved inside .lackey/blueprints/
//     (with ".yaml" appended when the name has no extension).
//  2. Auto-discovery: if .lackey/blueprints/ contains exactly one
//     blueprint file (.yaml, .yml, .json, or .jsonc), use it.
//
// An override that resolves to no existing file is an error rather
// than a silent fall-through: a run executing the wrong blueprint is
// worse than one that refuses to start. Multiple candidates with no
// override is likewise an error naming the candidates.
func Discover(workDir, override string, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if override != "" {
		path, err := resolveOverride(workDir, override)
		if err != nil {
			return "", err
		}
		logger.Debug("blueprint selected by override", "path", path)
		return path, nil
	}

	candidates, err := listBlueprints(filepath.Join(workDir, BlueprintsDir))
	if err != nil {
		return "", err
	}
	switch len(candidates) {
	case 0:
		return "", fmt.Errorf("no blueprint found: %s is empty or missing and no override was given", BlueprintsDir)
	case 1:
		logger.Debug("blueprint auto-discovered", "path", candidates[0])
		return candidates[0], nil
	default:
		names := make([]string, len(candidates))
		for index, candidate := range candidates {
			names[index] = filepath.Base(candidate)
		}
		return "", fmt.Errorf("multiple blueprints found in %s (%v): set an override to pick one", BlueprintsDir, names)
	}
}

func resolveOverride(workDir, override string) (string, error) {
	if filepath.IsAbs(override) {
		if fileExists(override) {
			return override, nil
		}
		return "", fmt.Errorf("blueprint override %s does not exist", override)
	}

	// Bare names resolve inside the conventional directory first, so
	// "scope-execute-test" finds .lackey/blueprints/scope-execute-test.yaml.
	candidate := filepath.Join(workDir, BlueprintsDir, override)
	if filepath.Ext(candidate) == "" {
		candidate += ".yaml"
	}
	if fileExists(candidate) {
		return candidate, nil
	}

	relative := filepath.Join(workDir, override)
	if fileExists(relative) {
		return relative, nil
	}
	return "", fmt.Errorf("blueprint override %q matches neither %s nor %s", override, candidate, relative)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func listBlueprints(dir string) ([]string, error) {
	var candidates []string
	for _, pattern := range []string{"*.yaml", "*.yml", "*.json", "*.jsonc"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", dir, err)
		}
		candidates = append(candidates, matches...)
	}
	sort.Strings(candidates)
	return candidates, nil
}
