// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import "encoding/json"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentType discriminates the variants of a ContentBlock.
type ContentType string

const (
	ContentText       ContentType = "text"
	ContentToolUse    ContentType = "tool_use"
	ContentToolResult ContentType = "tool_result"
)

// ContentBlock is one block of message content: text, a tool
// invocation requested by the model, or a tool result supplied by the
// caller. Exactly one variant is populated, selected by Type.
type ContentBlock struct {
	Type ContentType

	// Text is set when Type is ContentText.
	Text string

	// ToolUse is set when Type is ContentToolUse.
	ToolUse *ToolUse

	// ToolResult is set when Type is ContentToolResult.
	ToolResult *ToolResult
}

// ToolUse is the model asking the caller to run a tool.
type ToolUse struct {
	// ID correlates the eventual ToolResult with this invocation.
	ID string

	// Name is the tool to run.
	Name string

	// Input is the tool's arguments as raw JSON, matching the tool's
	// input schema.
	Input json.RawMessage
}

// ToolResult is the caller reporting a tool's output back to the
// model.
type ToolResult struct {
	// ToolUseID references the ToolUse this result answers.
	ToolUseID string

	// Content is the tool output as text.
	Content string

	// IsError marks the result as a failure the model should react
	// to (retry with different arguments, try another approach).
	IsError bool
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: ContentText, Text: text}
}

// ToolUseBlock builds a tool-use content block.
func ToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{Type: ContentToolUse, ToolUse: &ToolUse{ID: id, Name: name, Input: input}}
}

// ToolResultBlock builds a tool-result content block.
func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Type: ContentToolResult, ToolResult: &ToolResult{
		ToolUseID: toolUseID,
		Content:   content,
		IsError:   isError,
	}}
}

// Message is one turn in a conversation.
type Message struct {
	Role    Role
	Content []ContentBlock
}

// Tool describes a tool the model may invoke.
type Tool struct {
	// Name is the tool identifier the model uses in ToolUse blocks.
	Name string

	// Description tells the model what the tool does and when to use
	// it.
	Description string

	// InputSchema is the JSON Schema for the tool's arguments.
	InputSchema json.RawMessage
}

// Request is a provider-agnostic completion request.
type Request struct {
	// Model is the provider-specific model identifier.
	Model string

	// System is the system prompt. Optional.
	System string

	// Messages is the conversation so far, oldest first.
	Messages []Message

	// Tools the model may invoke. Optional.
	Tools []Tool

	// MaxTokens caps the response length. Required by Anthropic.
	MaxTokens int

	// Temperature overrides the provider default when non-nil.
	Temperature *float64
}

// StopReason reports why the model stopped generating.
type StopReason string

const (
	StopReasonEndTurn   StopReason = "end_turn"
	StopReasonToolUse   StopReason = "tool_use"
	StopReasonMaxTokens StopReason = "max_tokens"
)

// Usage is the token accounting for one request.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Response is a provider-agnostic completion response.
type Response struct {
	Content    []ContentBlock
	StopReason StopReason
	Model      string
	Usage      Usage
}

// TextContent concatenates the response's text blocks.
func (response *Response) TextContent() string {
	var text string
	for _, block := range response.Content {
		if block.Type == ContentText {
			text += block.Text
		}
	}
	return text
}

// ToolUses returns the response's tool invocation blocks in order.
func (response *Response) ToolUses() []*ToolUse {
	var uses []*ToolUse
	for _, block := range response.Content {
		if block.Type == ContentToolUse && block.ToolUse != nil {
			uses = append(uses, block.ToolUse)
		}
	}
	return uses
}
