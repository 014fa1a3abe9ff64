// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// =============================================================================
// Visibility
// =============================================================================

// Visibility controls who may read a conversation.
type Visibility string

const (
	// VisibilityPrivate restricts reads to the owner.
	VisibilityPrivate Visibility = "private"

	// VisibilityPublic allows any authenticated caller to read.
	VisibilityPublic Visibility = "public"
)

// Valid reports whether v is a known visibility value.
func (v Visibility) Valid() bool {
	return v == VisibilityPrivate || v == VisibilityPublic
}

// =============================================================================
// Conversation
// =============================================================================

// Conversation is one chat thread owned by a single user.
//
// The owner is immutable after creation; only the owner may write, and only
// the owner (or anyone, when visibility is public) may read.
type Conversation struct {
	Id         string     `json:"conversation_id"`
	OwnerId    string     `json:"owner_id"`
	Title      string     `json:"title"`
	Visibility Visibility `json:"visibility"`
	CreatedAt  int64      `json:"created_at"`
}

// CanRead reports whether the given user may read this conversation.
func (c *Conversation) CanRead(userID string) bool {
	return c.Visibility == VisibilityPublic || c.OwnerId == userID
}

// =============================================================================
// Messages
// =============================================================================

// Message roles. Tool results are persisted with RoleTool so history
// replayed to the model keeps its original shape.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// Message is a role/content pair as sent to the model backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// PartType tags a message content part.
type PartType string

const (
	PartText       PartType = "text"
	PartAttachment PartType = "attachment"
	PartToolCall   PartType = "tool_call"
	PartToolResult PartType = "tool_result"
)

// MessagePart is one ordered element of a chat message's content.
//
// Text parts carry Text; attachment parts carry Ref (an opaque attachment
// reference); tool parts carry ToolName and Payload.
type MessagePart struct {
	Type     PartType `json:"type"`
	Text     string   `json:"text,omitempty"`
	Ref      string   `json:"ref,omitempty"`
	ToolName string   `json:"tool_name,omitempty"`
	Payload  string   `json:"payload,omitempty"`
}

// ChatMessage is one persisted message within a conversation.
//
// Identity is assigned by the producer: the client for user messages, the
// orchestrator for assistant messages. Messages within a conversation are
// totally ordered by CreatedAt (Unix milliseconds).
type ChatMessage struct {
	Id             string        `json:"message_id"`
	ConversationId string        `json:"conversation_id"`
	Role           string        `json:"role"`
	Parts          []MessagePart `json:"parts"`
	CreatedAt      int64         `json:"created_at"`
}

// PlainText concatenates the text parts of the message.
func (m *ChatMessage) PlainText() string {
	var out string
	for _, p := range m.Parts {
		if p.Type == PartText {
			out += p.Text
		}
	}
	return out
}

// =============================================================================
// Stream Handle
// =============================================================================

// StreamHandle identifies one generation turn's durable event channel.
//
// Multiple handles may exist per conversation (one per turn); only the most
// recent is offered for resume, all are retained for audit.
type StreamHandle struct {
	Id             string `json:"stream_id"`
	ConversationId string `json:"conversation_id"`
	CreatedAt      int64  `json:"created_at"`
}

// =============================================================================
// Context Snippet
// =============================================================================

// ContextSnippet is one ranked product record retrieved for a query.
//
// Snippets are ephemeral: produced fresh per turn, injected into the model
// instructions, surfaced to the client in a sources event, never persisted.
type ContextSnippet struct {
	ProductId   string  `json:"product_id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Stock       int     `json:"stock"`
	Category    string  `json:"category"`
	Rank        int     `json:"rank"`
}
