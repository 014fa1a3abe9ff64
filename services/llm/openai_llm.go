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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/tools"
)

// MaxToolRounds caps how many tool-invocation rounds a single turn may
// spend before the model is forced to answer with what it has.
const MaxToolRounds = 5

type OpenAIClient struct {
	client         *openai.Client
	model          string
	reasoningModel string
}

func NewOpenAIClient() (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	model := os.Getenv("OPENAI_MODEL") // e.g., "gpt-4o"
	reasoningModel := os.Getenv("OPENAI_REASONING_MODEL")
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err == nil {
			apiKey = strings.TrimSpace(string(apiKeyBytes))
			slog.Info("Read the OpenAI API Key from Podman Secrets")
		} else {
			slog.Error("OPENAI_API_KEY environment variable not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	}
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("OPENAI_MODEL not set, defaulting to gpt-4o-mini")
	}
	if reasoningModel == "" {
		reasoningModel = "o4-mini"
		slog.Warn("OPENAI_REASONING_MODEL not set, defaulting to o4-mini")
	}
	slog.Info("Initializing OpenAI client", "model", model, "reasoning_model", reasoningModel)
	return &OpenAIClient{
		client:         openai.NewClient(apiKey),
		model:          model,
		reasoningModel: reasoningModel,
	}, nil
}

// modelFor maps a request variant to a deployed model name.
func (o *OpenAIClient) modelFor(variant string) string {
	if variant == datatypes.VariantReasoning {
		return o.reasoningModel
	}
	return o.model
}

// Generate implements the LLMClient interface
func (o *OpenAIClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	slog.Debug("Generating text via OpenAI", "model", o.model)
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	applyParams(&req, params)

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		slog.Error("OpenAI API call failed", "error", err)
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("OpenAI returned no choices or empty content")
		return "", fmt.Errorf("OpenAI returned no choices")
	}
	slog.Debug("Received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}

// ChatStream implements the LLMClient interface.
//
// # Description
//
// Runs the generation loop for one turn. Each round streams deltas from the
// model; when the model requests tool calls, they are executed in order and
// their results appended to the prompt before the next round. After
// MaxToolRounds rounds the tools are withheld so the final round must
// produce an answer.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout.
//   - req: Messages, variant, tool registry, and generation parameters.
//   - callback: Receives token, thinking, tool_call, and tool_result
//     events in generation order.
//
// # Outputs
//
//   - error: First stream or callback failure, or a request for a tool
//     the registry does not know. Nil on a completed answer.
//
// # Limitations
//
//   - A tool name the registry does not know aborts the turn; results
//     from unknown code paths must never reach the prompt. A known tool
//     that fails internally does not abort: its error is delivered to
//     the model as a result payload and the round continues.
func (o *OpenAIClient) ChatStream(ctx context.Context, req ChatRequest, callback StreamCallback) error {
	model := o.modelFor(req.Variant)
	msgs := toOpenAIMessages(req.Messages)
	slog.Debug("Starting chat stream", "model", model, "messages", len(msgs))

	for round := 0; ; round++ {
		apiReq := openai.ChatCompletionRequest{
			Model:    model,
			Messages: msgs,
		}
		applyParams(&apiReq, req.Params)

		// Withhold tools on the overflow round to force a final answer.
		toolsEnabled := req.Tools != nil && round < MaxToolRounds
		if toolsEnabled {
			apiReq.Tools = toolSpecs(req.Tools)
		}

		calls, err := o.streamOneRound(ctx, apiReq, callback)
		if err != nil {
			return err
		}
		if len(calls) == 0 {
			return nil
		}
		if !toolsEnabled {
			// The model requested tools on a round that offered none.
			return fmt.Errorf("model requested tool calls after tool budget was exhausted")
		}
		if round+1 >= MaxToolRounds {
			slog.Warn("Tool round budget exhausted, forcing final answer", "rounds", round+1)
		}

		assistantMsg := openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			ToolCalls: calls,
		}
		msgs = append(msgs, assistantMsg)

		for _, call := range calls {
			result, err := o.invokeTool(ctx, req, call, callback)
			if err != nil {
				return err
			}
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: call.ID,
				Content:    string(result),
			})
		}
	}
}

// streamOneRound consumes one completion stream, forwarding content deltas
// to the callback and accumulating any tool call deltas into whole calls.
func (o *OpenAIClient) streamOneRound(ctx context.Context, req openai.ChatCompletionRequest,
	callback StreamCallback) ([]openai.ToolCall, error) {
	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		slog.Error("OpenAI stream create failed", "error", err)
		return nil, fmt.Errorf("OpenAI stream create failed: %w", err)
	}
	defer stream.Close()

	var calls []openai.ToolCall
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return calls, nil
		}
		if err != nil {
			return nil, fmt.Errorf("OpenAI stream read failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta

		if delta.ReasoningContent != "" {
			if err := callback(StreamEvent{Type: StreamEventThinking, Content: delta.ReasoningContent}); err != nil {
				return nil, err
			}
		}
		if delta.Content != "" {
			if err := callback(StreamEvent{Type: StreamEventToken, Content: delta.Content}); err != nil {
				return nil, err
			}
		}
		for _, tc := range delta.ToolCalls {
			calls = accumulateToolCall(calls, tc)
		}
	}
}

// invokeTool runs one requested call, bracketing execution with tool_call
// and tool_result events so side events land between them.
func (o *OpenAIClient) invokeTool(ctx context.Context, req ChatRequest,
	call openai.ToolCall, callback StreamCallback) (json.RawMessage, error) {
	tool := req.Tools.Get(call.Function.Name)
	if tool == nil {
		slog.Error("Model requested unknown tool", "tool", call.Function.Name)
		return nil, fmt.Errorf("model requested unknown tool %q", call.Function.Name)
	}

	args := json.RawMessage(call.Function.Arguments)
	if err := callback(StreamEvent{
		Type:        StreamEventToolCall,
		ToolName:    tool.Name(),
		ToolPayload: args,
	}); err != nil {
		return nil, err
	}

	result, execErr := tool.Execute(ctx, req.Exec, args)
	if execErr != nil {
		// A failing tool is reported to the model as an error payload so
		// the round can continue; only unknown tool names abort the turn.
		slog.Warn("Tool execution failed, returning error result",
			"tool", tool.Name(), "error", execErr)
		payload, merr := json.Marshal(map[string]string{"error": execErr.Error()})
		if merr != nil {
			payload = json.RawMessage(`{"error":"tool execution failed"}`)
		}
		result = payload
	}

	if err := callback(StreamEvent{
		Type:        StreamEventToolResult,
		ToolName:    tool.Name(),
		ToolPayload: result,
	}); err != nil {
		return nil, err
	}
	return result, nil
}

// accumulateToolCall merges a streamed tool call delta into the call list.
// The API fragments arguments across deltas keyed by index.
func accumulateToolCall(calls []openai.ToolCall, delta openai.ToolCall) []openai.ToolCall {
	idx := 0
	if delta.Index != nil {
		idx = *delta.Index
	}
	for len(calls) <= idx {
		calls = append(calls, openai.ToolCall{Type: openai.ToolTypeFunction})
	}
	if delta.ID != "" {
		calls[idx].ID = delta.ID
	}
	if delta.Function.Name != "" {
		calls[idx].Function.Name = delta.Function.Name
	}
	calls[idx].Function.Arguments += delta.Function.Arguments
	return calls
}

// toolSpecs renders the registry as OpenAI function definitions.
func toolSpecs(reg *tools.Registry) []openai.Tool {
	list := reg.List()
	specs := make([]openai.Tool, 0, len(list))
	for _, t := range list {
		specs = append(specs, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return specs
}

func toOpenAIMessages(messages []datatypes.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		role := openai.ChatMessageRoleUser
		switch msg.Role {
		case datatypes.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case datatypes.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}
	return out
}

func applyParams(req *openai.ChatCompletionRequest, params GenerationParams) {
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}
}

var _ LLMClient = (*OpenAIClient)(nil)
