// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

// Package blueprint provides parsing, discovery, and validation for
// run blueprints. Blueprints are structured sequences of steps (git
// operations, agent dispatches, shell commands) that the pipeline
// engine executes against a checked-out repository.
//
// Blueprints are authored as YAML files in the target repository
// under .lackey/blueprints/, or as JSONC files (JSON extended with
// comments and trailing commas) for repositories that keep their
// tooling config in JSON. This package handles both formats.
//
// The typical flow:
//
//  1. Discover or an explicit path: locate the blueprint file
//  2. ReadFile: bytes → schema.Blueprint, dispatching on extension
//  3. Validate: structural checks (required fields per step kind)
//  4. pipeline.Engine.Run: execute the steps
package blueprint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/lackey-foundation/lackey/lib/schema"
)

// Parse unmarshals YAML blueprint bytes into a Blueprint.
func Parse(data []byte) (*schema.Blueprint, error) {
	var content schema.Blueprint
	if err := yaml.Unmarshal(data, &content); err != nil {
		return nil, fmt.Errorf("parsing blueprint: %w", err)
	}
	return &content, nil
}

// ParseJSONC strips JSONC comments and trailing commas from data,
// then unmarshals the result into a Blueprint. The input format is
// plain JSON extended with // line comments, /* block comments */,
// and trailing commas.
func ParseJSONC(data []byte) (*schema.Blueprint, error) {
	stripped := jsonc.ToJSON(data)

	var content schema.Blueprint
	if err := json.Unmarshal(stripped, &content); err != nil {
		return nil, fmt.Errorf("parsing blueprint: %w", err)
	}
	return &content, nil
}

// ReadFile reads a blueprint file from disk and parses it, selecting
// the parser by file extension: .json and .jsonc use the JSONC
// parser, everything else is treated as YAML. Returns a descriptive
// error if the file cannot be read or the content is malformed.
func ReadFile(path string) (*schema.Blueprint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var content *schema.Blueprint
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		content, err = ParseJSONC(data)
	default:
		content, err = Parse(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return content, nil
}

// NameFromPath extracts a blueprint name from a file path by
// stripping the directory prefix and the file extension. For example,
// ".lackey/blueprints/scope-execute-test.yaml" returns
// "scope-execute-test".
func NameFromPath(path string) string {
	base := filepath.Base(path)
	extension := filepath.Ext(base)
	return strings.TrimSuffix(base, extension)
}
