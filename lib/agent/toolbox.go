// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lackey-foundation/lackey/lib/audit"
	"github.com/lackey-foundation/lackey/lib/llm"
	"github.com/lackey-foundation/lackey/lib/shell"
	"github.com/lackey-foundation/lackey/sandbox"
)

// Tool names exposed to the model. The scoped names signal to the
// model that mutations are subject to scope enforcement.
const (
	toolReadFile  = "read_file"
	toolBash      = "bash"
	toolEditFile  = "edit_file_scoped"
	toolWriteFile = "write_file_scoped"
)

// Toolbox executes agent tool calls. File operations go through the
// sandbox (traversal, scope, and freshness enforcement); shell
// commands go through the audited runner. Every call is recorded in
// the audit trail under the toolbox's actor name.
type Toolbox struct {
	// Actor is the agent name recorded in audit entries.
	Actor string

	// Sandbox confines file operations.
	Sandbox *sandbox.Root

	// Runner executes bash commands.
	Runner *shell.Runner

	// Audit receives one tool entry per call. May be nil.
	Audit *audit.Log

	// Logger for tool call lifecycle events. May be nil.
	Logger *slog.Logger
}

// Tools returns the tool definitions for the model. Read-only
// toolboxes (the scoper) expose only read_file and bash; mutating
// ones add edit and write.
func (box *Toolbox) Tools(mutating bool) []llm.Tool {
	tools := []llm.Tool{
		{
			Name:        toolReadFile,
			Description: "Read the contents of a file. Path is relative to the working directory.",
			InputSchema: objectSchema(map[string]string{
				"path": "Relative path to the file from the working directory.",
			}, "path"),
		},
		{
			Name:        toolBash,
			Description: "Run a shell command in the working directory. Use this for searching (grep, rg), listing files (ls, find), running tests, or linting.",
			InputSchema: objectSchema(map[string]string{
				"command": "Shell command to execute.",
			}, "command"),
		},
	}
	if !mutating {
		return tools
	}
	return append(tools,
		llm.Tool{
			Name:        toolEditFile,
			Description: "Edit a file by replacing an exact string match. Preferred over write_file_scoped for modifying existing files. The old string must match exactly once.",
			InputSchema: objectSchema(map[string]string{
				"path":       "Relative path to the file from the working directory.",
				"old_string": "The exact text to find in the file (must match uniquely).",
				"new_string": "The replacement text.",
			}, "path", "old_string", "new_string"),
		},
		llm.Tool{
			Name:        toolWriteFile,
			Description: "Write full content to a file. Use this for creating new files; prefer edit_file_scoped for modifying existing ones.",
			InputSchema: objectSchema(map[string]string{
				"path":    "Relative path to the file from the working directory.",
				"content": "Full file content to write.",
			}, "path", "content"),
		},
	)
}

// Invoke runs the named tool. The returned string goes back to the
// model as the tool result; isError marks failures the model should
// correct (bad path, out of scope, stale read) rather than hard run
// errors.
func (box *Toolbox) Invoke(ctx context.Context, name string, input json.RawMessage) (result string, isError bool) {
	start := time.Now()
	var arguments struct {
		Path      string `json:"path"`
		Command   string `json:"command"`
		OldString string `json:"old_string"`
		NewString string `json:"new_string"`
		Content   string `json:"content"`
	}
	if err := json.Unmarshal(input, &arguments); err != nil {
		return fmt.Sprintf("invalid tool arguments: %v", err), true
	}

	var err error
	var auditArgs map[string]string

	switch name {
	case toolReadFile:
		auditArgs = map[string]string{"path": arguments.Path}
		result, err = box.Sandbox.Read(arguments.Path)
		if err == nil {
			box.record(name, auditArgs, fmt.Sprintf("%d chars", len(result)), start)
			return result, false
		}

	case toolEditFile:
		auditArgs = map[string]string{"path": arguments.Path}
		result, err = box.Sandbox.Edit(arguments.Path, arguments.OldString, arguments.NewString)

	case toolWriteFile:
		auditArgs = map[string]string{"path": arguments.Path}
		result, err = box.Sandbox.Write(arguments.Path, arguments.Content)

	case toolBash:
		auditArgs = map[string]string{"command": arguments.Command}
		exitCode, output := box.Runner.Run(ctx, shell.Invocation{
			Command: arguments.Command,
			Actor:   box.Actor,
		})
		result = fmt.Sprintf("Exit code: %d\n%s", exitCode, audit.Truncate(output, shell.MaxAuditOutput))
		box.record(name, auditArgs, fmt.Sprintf("exit_code=%d", exitCode), start)
		return result, false

	default:
		return fmt.Sprintf("unknown tool: %s", name), true
	}

	if err != nil {
		if box.Logger != nil {
			box.Logger.Warn("tool call rejected", "actor", box.Actor, "tool", name, "error", err)
		}
		box.record(name, auditArgs, "error: "+err.Error(), start)
		return err.Error(), true
	}
	box.record(name, auditArgs, result, start)
	return result, false
}

func (box *Toolbox) record(tool string, args map[string]string, summary string, start time.Time) {
	box.Audit.Tool(box.Actor, tool, args, audit.Truncate(summary, 500), start, time.Since(start))
}

// objectSchema builds a JSON Schema for an object with string
// properties.
func objectSchema(properties map[string]string, required ...string) json.RawMessage {
	type property struct {
		Type        string `json:"type"`
		Description string `json:"description"`
	}
	schema := struct {
		Type       string              `json:"type"`
		Properties map[string]property `json:"properties"`
		Required   []string            `json:"required"`
	}{
		Type:       "object",
		Properties: make(map[string]property, len(properties)),
		Required:   required,
	}
	for name, description := range properties {
		schema.Properties[name] = property{Type: "string", Description: description}
	}
	encoded, _ := json.Marshal(schema)
	return encoded
}
