// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"encoding/json"

	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/tools"
)

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// StreamEventType discriminates events delivered to a StreamCallback.
type StreamEventType string

const (
	// StreamEventToken is a fragment of the visible answer.
	StreamEventToken StreamEventType = "token"

	// StreamEventThinking is a fragment of reasoning-model deliberation.
	StreamEventThinking StreamEventType = "thinking"

	// StreamEventToolCall announces a tool invocation before it runs.
	StreamEventToolCall StreamEventType = "tool_call"

	// StreamEventToolResult carries the result after a tool finishes.
	StreamEventToolResult StreamEventType = "tool_result"
)

// StreamEvent is a single incremental output from a streaming generation.
type StreamEvent struct {
	Type    StreamEventType
	Content string

	// ToolName and ToolPayload are set for tool_call and tool_result events.
	ToolName    string
	ToolPayload json.RawMessage
}

// StreamCallback receives stream events in generation order. Returning an
// error aborts the generation; the error is propagated out of ChatStream.
type StreamCallback func(ev StreamEvent) error

// ChatRequest describes one streaming generation.
type ChatRequest struct {
	// Messages is the full prompt: system message first, then history,
	// then the user's new message.
	Messages []datatypes.Message

	// Variant selects the model ("chat-model" or "chat-model-reasoning").
	Variant string

	// Tools is the registry advertised to the model. Nil disables
	// function calling entirely (always nil for the reasoning variant).
	Tools *tools.Registry

	// Exec carries per-turn state into tool invocations. Required when
	// Tools is non-nil.
	Exec *tools.ExecContext

	Params GenerationParams
}

// LLMClient defines the standard interface for any LLM backend.
type LLMClient interface {
	// Generate produces a complete response for a single prompt. Used for
	// non-streaming work such as conversation title generation.
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)

	// ChatStream runs one chat turn, invoking tools as the model requests
	// them and delivering all incremental output through callback. Returns
	// once the model produces its final answer or an error occurs.
	ChatStream(ctx context.Context, req ChatRequest, callback StreamCallback) error
}
