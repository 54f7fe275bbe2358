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

const executorInstructions = `You are a code implementation agent. Your job is to implement the requested task within the scope boundaries defined by the scoper agent.

You MUST stay within the allowed files, directories, and test files defined in the scope. If you attempt to write a file outside the scope, the tool will reject it.

Use the provided tools to:
1. Read relevant files to understand the existing code.
2. Use bash to search (grep, rg), list files (ls, find), or run commands.
3. Edit existing files using edit_file_scoped (find-and-replace). This is preferred over write_file_scoped for modifications since it only changes the targeted section.
4. Create new files using write_file_scoped.

When you're done implementing successfully, reply with a brief summary describing what you changed.

If you determine that the scope is too narrow and you need files outside it, call report_scope_disagreement with:
- reasoning: Why the current scope is insufficient.
- suggested_additions: List of files or directories to add.

Keep changes minimal and focused on the task. Do not refactor unrelated code.`

const toolReportDisagreement = "report_scope_disagreement"

var reportDisagreementSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"reasoning": {"type": "string", "description": "Why the current scope is insufficient."},
		"suggested_additions": {"type": "array", "items": {"type": "string"}, "description": "Files or directories to add to the scope."}
	},
	"required": ["reasoning"]
}`)

// LLMExecutor implements [Executor] with a model-driven
// implementation loop. A scope disagreement is reported through the
// report_scope_disagreement output tool instead of guessing at
// out-of-scope writes.
type LLMExecutor struct {
	Provider llm.Provider
	Model    string
	Box      *Toolbox
	Logger   *slog.Logger
}

// Execute implements the task. Returns a non-nil Disagreement when
// the model reports the scope cannot accommodate the task.
func (executor *LLMExecutor) Execute(ctx context.Context, task string, scope *schema.Scope) (*schema.Disagreement, error) {
	logger := executor.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("executor starting", "task", task)
	start := time.Now()

	var disagreement *schema.Disagreement
	_, _, err := runToolLoop(ctx, loopConfig{
		provider: executor.Provider,
		model:    executor.Model,
		system:   executorInstructions,
		prompt:   taskPrompt(task, scope),
		box:      executor.Box,
		mutating: true,
		extraTools: []llm.Tool{{
			Name:        toolReportDisagreement,
			Description: "Report that the scope is too narrow for the task. Call this instead of attempting out-of-scope changes.",
			InputSchema: reportDisagreementSchema,
		}},
		handle: func(use *llm.ToolUse) (string, bool, bool) {
			if use.Name != toolReportDisagreement {
				return "", false, false
			}
			var reported schema.Disagreement
			if err := json.Unmarshal(use.Input, &reported); err != nil {
				return fmt.Sprintf("invalid disagreement: %v", err), false, true
			}
			disagreement = &reported
			return "disagreement recorded", true, true
		},
		logger: logger,
	})
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start).Round(time.Second)
	if disagreement != nil {
		logger.Info("executor done", "elapsed", elapsed, "result", "scope disagreement")
		return disagreement, nil
	}
	logger.Info("executor done", "elapsed", elapsed, "result", "success")
	return nil, nil
}

// taskPrompt renders the task and scope into the opening user
// message.
func taskPrompt(task string, scope *schema.Scope) string {
	if scope == nil {
		return fmt.Sprintf("Task: %s\n\nNo scope restrictions — all files are writable.", task)
	}
	scopeJSON, _ := json.MarshalIndent(scope, "", "  ")
	return fmt.Sprintf("Task: %s\n\nScope:\n%s", task, scopeJSON)
}
