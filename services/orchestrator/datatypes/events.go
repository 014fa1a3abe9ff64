// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the storefront orchestrator.
//
// This file defines the event vocabulary shared by the model invoker, the
// stream multiplexer, the resumable channel manager, and the SSE/WebSocket
// transports. One generation turn produces a finite ordered sequence of
// StreamEvents terminated by exactly one "done" or "error" event.
package datatypes

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Event Types
// =============================================================================

// EventType tags a StreamEvent with its variant.
type EventType string

const (
	// EventToken is an assistant text delta.
	EventToken EventType = "token"

	// EventThinking is a reasoning-trace delta (reasoning model variants only).
	EventThinking EventType = "thinking"

	// EventStatus is a human-readable progress update.
	EventStatus EventType = "status"

	// EventSources carries the retrieved product context for the turn.
	EventSources EventType = "sources"

	// EventToolCall records that the model requested a tool invocation.
	EventToolCall EventType = "tool_call"

	// EventToolSide is a UI-bound side effect emitted by a tool while it
	// runs (e.g. partial document content). Side events always appear
	// after the tool_call that spawned them and before its tool_result.
	EventToolSide EventType = "tool_side"

	// EventToolResult carries a tool's result payload back to the client.
	// Tool failures are delivered as results with an error payload, not as
	// stream errors.
	EventToolResult EventType = "tool_result"

	// EventDone terminates a successful stream. It carries the stream and
	// assistant message identities needed for persistence and resume.
	EventDone EventType = "done"

	// EventError terminates a failed stream.
	EventError EventType = "error"
)

// IsTerminal reports whether the event type closes the stream.
func (t EventType) IsTerminal() bool {
	return t == EventDone || t == EventError
}

// =============================================================================
// Stream Event
// =============================================================================

// StreamEvent is the single tagged variant flowing through a generation turn.
//
// # Description
//
// Every event carries identity metadata (Id, CreatedAt) plus the fields
// relevant to its Type; unused fields are omitted from the wire form. The
// same struct is appended verbatim to the durable stream log so a resumed
// subscriber replays exactly what a live subscriber saw.
//
// # Fields
//
//   - Id: UUID v4 assigned at emission, used for deduplication on resume.
//   - Type: Event variant tag.
//   - CreatedAt: Unix milliseconds at emission.
//   - Seq: Position in the stream log, assigned by the channel manager.
//   - Content: Text payload for token/thinking/tool_side events.
//   - Message: Human-readable text for status events.
//   - Error: Sanitized failure description for error events.
//   - ConversationId, StreamId: Owning identities, set on terminal events.
//   - MessageId: Assistant message identity, set on done events.
//   - ToolName, ToolPayload: Tool call/result details.
//   - Sources: Retrieved context snippets for sources events.
//
// # Thread Safety
//
// Events are value types; copies are independent.
type StreamEvent struct {
	Id             string           `json:"id,omitempty"`
	Type           EventType        `json:"type"`
	CreatedAt      int64            `json:"created_at,omitempty"`
	Seq            uint64           `json:"seq,omitempty"`
	Content        string           `json:"content,omitempty"`
	Message        string           `json:"message,omitempty"`
	Error          string           `json:"error,omitempty"`
	ConversationId string           `json:"conversation_id,omitempty"`
	StreamId       string           `json:"stream_id,omitempty"`
	MessageId      string           `json:"message_id,omitempty"`
	ToolName       string           `json:"tool_name,omitempty"`
	ToolPayload    string           `json:"tool_payload,omitempty"`
	Sources        []ContextSnippet `json:"sources,omitempty"`
}

// NewStreamEvent creates an event of the given type with identity metadata set.
func NewStreamEvent(t EventType) StreamEvent {
	return StreamEvent{
		Id:        uuid.New().String(),
		Type:      t,
		CreatedAt: time.Now().UnixMilli(),
	}
}

// TokenEvent builds a token event for the given text delta.
func TokenEvent(content string) StreamEvent {
	ev := NewStreamEvent(EventToken)
	ev.Content = content
	return ev
}

// ThinkingEvent builds a reasoning-trace event.
func ThinkingEvent(content string) StreamEvent {
	ev := NewStreamEvent(EventThinking)
	ev.Content = content
	return ev
}

// StatusEvent builds a progress event with a display message.
func StatusEvent(message string) StreamEvent {
	ev := NewStreamEvent(EventStatus)
	ev.Message = message
	return ev
}

// SourcesEvent builds a sources event carrying retrieved context.
func SourcesEvent(sources []ContextSnippet) StreamEvent {
	ev := NewStreamEvent(EventSources)
	ev.Sources = sources
	return ev
}

// ErrorEvent builds a terminal error event. The message must already be
// sanitized for client display.
func ErrorEvent(errMsg string) StreamEvent {
	ev := NewStreamEvent(EventError)
	ev.Error = errMsg
	return ev
}

// DoneEvent builds the terminal success event.
func DoneEvent(conversationID, streamID, assistantMessageID string) StreamEvent {
	ev := NewStreamEvent(EventDone)
	ev.ConversationId = conversationID
	ev.StreamId = streamID
	ev.MessageId = assistantMessageID
	return ev
}
