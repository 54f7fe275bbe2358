// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lackey-foundation/lackey/lib/llm"
)

// maxToolTurns caps the request/tool-result cycles in one agent run.
// A model stuck re-running the same search burns the whole budget
// otherwise.
const maxToolTurns = 40

// maxCompleteAttempts bounds retries of a single model request when
// the provider reports a transient failure.
const maxCompleteAttempts = 3

// retryBaseDelay is the wait before the first retry; it doubles per
// attempt. A variable so tests can shorten it.
var retryBaseDelay = 2 * time.Second

// defaultMaxTokens bounds each model response.
const defaultMaxTokens = 8192

// loopConfig parameterizes one agent conversation.
type loopConfig struct {
	provider  llm.Provider
	model     string
	maxTokens int
	system    string
	prompt    string
	box       *Toolbox
	mutating  bool

	// extraTools are structured output tools (submit_scope,
	// report_scope_disagreement) layered on top of the toolbox.
	extraTools []llm.Tool

	// handle intercepts extra tool calls. Returns the tool result,
	// whether the loop should stop after this turn, and whether the
	// call was handled at all (unhandled calls fall through to the
	// toolbox).
	handle func(use *llm.ToolUse) (result string, done bool, handled bool)

	logger *slog.Logger
}

// runToolLoop drives the request → tool call → tool result cycle
// until the model stops asking for tools, an output tool ends the
// conversation, or the turn cap is hit. Returns the final response
// and whether an output tool terminated the loop.
func runToolLoop(ctx context.Context, config loopConfig) (*llm.Response, bool, error) {
	if config.maxTokens <= 0 {
		config.maxTokens = defaultMaxTokens
	}
	logger := config.logger
	if logger == nil {
		logger = slog.Default()
	}

	tools := append(config.box.Tools(config.mutating), config.extraTools...)
	messages := []llm.Message{
		{Role: llm.RoleUser, Content: []llm.ContentBlock{llm.TextBlock(config.prompt)}},
	}

	for turn := 0; turn < maxToolTurns; turn++ {
		response, err := completeWithRetry(ctx, config.provider, llm.Request{
			Model:     config.model,
			System:    config.system,
			Messages:  messages,
			Tools:     tools,
			MaxTokens: config.maxTokens,
		}, logger, config.box.Actor)
		if err != nil {
			return nil, false, fmt.Errorf("agent %s: %w", config.box.Actor, err)
		}

		uses := response.ToolUses()
		if len(uses) == 0 {
			return response, false, nil
		}

		// Answer every tool use in one user message; the API rejects
		// dangling tool_use blocks.
		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: response.Content})
		var results []llm.ContentBlock
		finished := false
		for _, use := range uses {
			var result string
			var isError bool
			if config.handle != nil {
				if handledResult, done, handled := config.handle(use); handled {
					result = handledResult
					finished = finished || done
					results = append(results, llm.ToolResultBlock(use.ID, result, false))
					continue
				}
			}
			result, isError = config.box.Invoke(ctx, use.Name, use.Input)
			results = append(results, llm.ToolResultBlock(use.ID, result, isError))
		}
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: results})

		if finished {
			return response, true, nil
		}
		logger.Debug("agent turn complete",
			"actor", config.box.Actor,
			"turn", turn+1,
			"tool_calls", len(uses))
	}

	return nil, false, fmt.Errorf("agent %s: no conclusion after %d tool turns", config.box.Actor, maxToolTurns)
}

// completeWithRetry sends one model request, retrying rate-limit and
// server errors with doubling delays up to maxCompleteAttempts.
func completeWithRetry(ctx context.Context, provider llm.Provider, request llm.Request, logger *slog.Logger, actor string) (*llm.Response, error) {
	delay := retryBaseDelay
	for attempt := 1; ; attempt++ {
		response, err := provider.Complete(ctx, request)
		if err == nil {
			return response, nil
		}
		if attempt >= maxCompleteAttempts || !retryableProviderError(err) {
			return nil, err
		}
		logger.Warn("retrying model request",
			"actor", actor, "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// retryableProviderError reports whether the failure is transient:
// rate limiting, overload, or any other server-side error.
func retryableProviderError(err error) bool {
	var providerError *llm.ProviderError
	if !errors.As(err, &providerError) {
		return false
	}
	return providerError.IsRateLimited() ||
		providerError.IsOverloaded() ||
		providerError.StatusCode >= 500
}
