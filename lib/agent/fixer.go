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

const fixerInstructions = `You are a code fixing agent. Your job is to fix lint errors or test failures reported in the failure output.

You MUST stay within the allowed scope. Read the failing files, understand the errors, and make minimal targeted fixes.

Use the provided tools to:
1. Read the failing files to understand the current code.
2. Edit files using edit_file_scoped (find-and-replace) to make targeted fixes. Prefer this over write_file_scoped for existing files.
3. Use bash to verify your fixes (e.g., rerun the linter or the failing tests).

When the fixes are in place, reply with a brief summary of what you changed.

Keep changes minimal and focused on fixing the reported errors. Do not refactor or improve unrelated code.`

// LLMFixer implements [Fixer] with a model-driven repair loop.
type LLMFixer struct {
	Provider llm.Provider
	Model    string
	Box      *Toolbox
	Logger   *slog.Logger
}

// Fix repairs the failures described in failureOutput.
func (fixer *LLMFixer) Fix(ctx context.Context, failureOutput string, scope *schema.Scope) error {
	logger := fixer.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("fixer starting", "failure_chars", len(failureOutput))
	start := time.Now()

	_, _, err := runToolLoop(ctx, loopConfig{
		provider: fixer.Provider,
		model:    fixer.Model,
		system:   fixerInstructions,
		prompt:   fixPrompt(failureOutput, scope),
		box:      fixer.Box,
		mutating: true,
		logger:   logger,
	})
	if err != nil {
		return err
	}

	logger.Info("fixer done", "elapsed", time.Since(start).Round(time.Second))
	return nil
}

func fixPrompt(failureOutput string, scope *schema.Scope) string {
	if scope == nil {
		return fmt.Sprintf("Fix the following failures:\n\n%s\n\nNo scope restrictions — all files are writable.", failureOutput)
	}
	scopeJSON, _ := json.MarshalIndent(scope, "", "  ")
	return fmt.Sprintf("Fix the following failures:\n\n%s\n\nScope:\n%s", failureOutput, scopeJSON)
}
