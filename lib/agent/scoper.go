// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lackey-foundation/lackey/lib/llm"
	"github.com/lackey-foundation/lackey/lib/schema"
)

const scoperInstructions = `You are a code scoping agent. Your job is to explore a codebase and determine the minimal set of files needed to complete a task.

You are READ-ONLY. You MUST NOT modify any files.

Use the provided tools to explore the codebase:
- bash: Run shell commands (ls, find, grep, rg, etc.) to explore the project structure and search for patterns.
- read_file: Read file contents to understand code.

Start by listing the top-level directory (e.g. ls) to understand the project structure, then explore relevant areas based on the task.

When you have determined the scope, call submit_scope with:
- summary: A brief description of what needs to change and why.
- allowed_dirs: Directories the executor is allowed to modify files in.
- allowed_files: Specific files the executor is allowed to modify.
- test_files: Test files relevant to this task.
- rationale: A list of reasons explaining why each file/directory is included.

Be precise and minimal. Only include files and directories that are directly needed for the task. Prefer listing specific files over broad directories.`

const toolSubmitScope = "submit_scope"

var submitScopeSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"summary": {"type": "string", "description": "What needs to change and why."},
		"allowed_dirs": {"type": "array", "items": {"type": "string"}, "description": "Directories the executor may modify files in."},
		"allowed_files": {"type": "array", "items": {"type": "string"}, "description": "Specific files the executor may modify."},
		"test_files": {"type": "array", "items": {"type": "string"}, "description": "Test files relevant to this task."},
		"rationale": {"type": "array", "items": {"type": "string"}, "description": "Why each file or directory is included."}
	},
	"required": ["summary"]
}`)

// LLMScoper implements [Scoper] with a model-driven exploration loop.
// The scope is returned through the submit_scope output tool.
type LLMScoper struct {
	Provider llm.Provider
	Model    string
	Box      *Toolbox
	Logger   *slog.Logger
}

// Scope explores the repository and returns the file scope for task.
func (scoper *LLMScoper) Scope(ctx context.Context, task string) (*schema.Scope, error) {
	logger := scoper.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("scoper starting", "task", task)
	start := time.Now()

	var submitted *schema.Scope
	_, finished, err := runToolLoop(ctx, loopConfig{
		provider: scoper.Provider,
		model:    scoper.Model,
		system:   scoperInstructions,
		prompt:   "Task: " + task,
		box:      scoper.Box,
		mutating: false,
		extraTools: []llm.Tool{{
			Name:        toolSubmitScope,
			Description: "Submit the final scope for the task. Call this exactly once, when exploration is complete.",
			InputSchema: submitScopeSchema,
		}},
		handle: func(use *llm.ToolUse) (string, bool, bool) {
			if use.Name != toolSubmitScope {
				return "", false, false
			}
			var scope schema.Scope
			if err := json.Unmarshal(use.Input, &scope); err != nil {
				return fmt.Sprintf("invalid scope: %v", err), false, true
			}
			submitted = &scope
			return "scope recorded", true, true
		},
		logger: logger,
	})
	if err != nil {
		return nil, err
	}
	if !finished || submitted == nil {
		return nil, fmt.Errorf("scoper finished without submitting a scope")
	}

	logger.Info("scoper done",
		"elapsed", time.Since(start).Round(time.Second),
		"files", len(submitted.AllowedFiles),
		"dirs", len(submitted.AllowedDirs))
	return submitted, nil
}
