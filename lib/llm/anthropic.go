// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// anthropicVersion is the Messages API version header.
const anthropicVersion = "2023-06-01"

// defaultAnthropicBaseURL targets Anthropic's public API.
const defaultAnthropicBaseURL = "https://api.anthropic.com"

// Anthropic implements [Provider] for the Anthropic Messages API.
type Anthropic struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewAnthropic creates an Anthropic provider authenticating with the
// given API key. An empty baseURL targets the public API; httpClient
// defaults to http.DefaultClient.
func NewAnthropic(apiKey, baseURL string, httpClient *http.Client) *Anthropic {
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Anthropic{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// Complete sends a request and returns the full response.
func (provider *Anthropic) Complete(ctx context.Context, request Request) (*Response, error) {
	wireRequest := buildAnthropicRequest(request)

	headers := map[string]string{
		"x-api-key":         provider.apiKey,
		"anthropic-version": anthropicVersion,
	}
	httpResponse, err := doProviderRequest(ctx, provider.httpClient,
		provider.baseURL+"/v1/messages", wireRequest, "llm/anthropic", headers)
	if err != nil {
		return nil, err
	}
	defer httpResponse.Body.Close()

	var wireResponse anthropicResponse
	if err := json.NewDecoder(httpResponse.Body).Decode(&wireResponse); err != nil {
		return nil, fmt.Errorf("llm/anthropic: decoding response: %w", err)
	}
	return wireResponse.toResponse(), nil
}

// --- Anthropic wire types ---
//
// These map directly to the Anthropic Messages API JSON format. They
// are separate from the public types because the wire format uses
// snake_case and represents content blocks as a single-level
// discriminated union.

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type anthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

type anthropicResponse struct {
	ID         string                  `json:"id"`
	Role       string                  `json:"role"`
	Content    []anthropicContentBlock `json:"content"`
	Model      string                  `json:"model"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicUsage          `json:"usage"`
}

type anthropicUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// --- Wire type conversions ---

func buildAnthropicRequest(request Request) anthropicRequest {
	wireRequest := anthropicRequest{
		Model:       request.Model,
		MaxTokens:   request.MaxTokens,
		System:      request.System,
		Temperature: request.Temperature,
	}
	for _, message := range request.Messages {
		wireRequest.Messages = append(wireRequest.Messages, toAnthropicMessage(message))
	}
	for _, tool := range request.Tools {
		wireRequest.Tools = append(wireRequest.Tools, anthropicTool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
	}
	return wireRequest
}

func toAnthropicMessage(message Message) anthropicMessage {
	wire := anthropicMessage{Role: string(message.Role)}
	for _, block := range message.Content {
		wire.Content = append(wire.Content, toAnthropicContentBlock(block))
	}
	return wire
}

func toAnthropicContentBlock(block ContentBlock) anthropicContentBlock {
	switch block.Type {
	case ContentText:
		return anthropicContentBlock{Type: "text", Text: block.Text}
	case ContentToolUse:
		if block.ToolUse != nil {
			return anthropicContentBlock{
				Type:  "tool_use",
				ID:    block.ToolUse.ID,
				Name:  block.ToolUse.Name,
				Input: block.ToolUse.Input,
			}
		}
	case ContentToolResult:
		if block.ToolResult != nil {
			// Content is a string, but the wire format expects
			// json.RawMessage. Marshal the string to a JSON string
			// value so the wire representation is correct.
			contentJSON, _ := json.Marshal(block.ToolResult.Content)
			return anthropicContentBlock{
				Type:      "tool_result",
				ToolUseID: block.ToolResult.ToolUseID,
				Content:   contentJSON,
				IsError:   block.ToolResult.IsError,
			}
		}
	}
	return anthropicContentBlock{Type: string(block.Type)}
}

func (wireResponse *anthropicResponse) toResponse() *Response {
	response := &Response{
		StopReason: mapAnthropicStopReason(wireResponse.StopReason),
		Model:      wireResponse.Model,
		Usage: Usage{
			InputTokens:  wireResponse.Usage.InputTokens,
			OutputTokens: wireResponse.Usage.OutputTokens,
		},
	}
	for _, wireBlock := range wireResponse.Content {
		response.Content = append(response.Content, fromAnthropicContentBlock(wireBlock))
	}
	return response
}

func fromAnthropicContentBlock(wire anthropicContentBlock) ContentBlock {
	switch wire.Type {
	case "text":
		return TextBlock(wire.Text)
	case "tool_use":
		return ToolUseBlock(wire.ID, wire.Name, wire.Input)
	default:
		// Unknown block types are preserved as text with a type
		// prefix.
		return TextBlock(fmt.Sprintf("[%s] %s", wire.Type, wire.Text))
	}
}

func mapAnthropicStopReason(reason string) StopReason {
	switch reason {
	case "end_turn":
		return StopReasonEndTurn
	case "tool_use":
		return StopReasonToolUse
	case "max_tokens":
		return StopReasonMaxTokens
	default:
		return StopReason(reason)
	}
}
