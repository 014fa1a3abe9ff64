// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stream turns raw generation callbacks into the ordered event
// sequence a chat turn publishes.
package stream

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/datatypes"
)

// Publisher is the sink a Multiplexer writes finished events into.
//
// Implemented by the resumable channel manager's per-turn channel. Publish
// assigns the event's sequence number and makes it durable before fan-out.
type Publisher interface {
	Publish(ev datatypes.StreamEvent) error
}

// Multiplexer merges the three event producers of one turn (model deltas,
// tool lifecycle, orchestrator status) into a single ordered stream.
//
// # Description
//
// Token deltas pass through a word-boundary smoother; all other events are
// forwarded as-is. Exactly one terminal event is published: the first of
// Done or Fail wins and later emissions are dropped.
//
// # Thread Safety
//
// All methods are safe for concurrent use, though during a turn the model
// callback and tool execution run on one goroutine; only status emission
// from the orchestrator may race with them.
type Multiplexer struct {
	mu             sync.Mutex
	pub            Publisher
	smoother       *Smoother
	conversationID string
	streamID       string
	done           bool
}

// NewMultiplexer creates a multiplexer for one turn's stream.
func NewMultiplexer(pub Publisher, conversationID, streamID string) *Multiplexer {
	m := &Multiplexer{
		pub:            pub,
		conversationID: conversationID,
		streamID:       streamID,
	}
	m.smoother = NewSmoother(func(text string) error {
		return m.pub.Publish(datatypes.TokenEvent(text))
	})
	return m
}

// EmitToken pushes an assistant text delta through the smoother.
func (m *Multiplexer) EmitToken(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return nil
	}
	return m.smoother.Push(text)
}

// EmitThinking publishes a reasoning-trace delta, unsmoothed.
func (m *Multiplexer) EmitThinking(text string) error {
	return m.publish(datatypes.ThinkingEvent(text))
}

// EmitStatus publishes a progress message.
func (m *Multiplexer) EmitStatus(message string) error {
	return m.publish(datatypes.StatusEvent(message))
}

// EmitSources publishes the retrieved context for the turn.
func (m *Multiplexer) EmitSources(sources []datatypes.ContextSnippet) error {
	return m.publish(datatypes.SourcesEvent(sources))
}

// EmitToolCall announces a tool invocation. Buffered tokens are flushed
// first so the call appears after all text the model produced before it.
func (m *Multiplexer) EmitToolCall(toolName string, payload json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return nil
	}
	if err := m.smoother.Flush(); err != nil {
		return err
	}
	ev := datatypes.NewStreamEvent(datatypes.EventToolCall)
	ev.ToolName = toolName
	ev.ToolPayload = string(payload)
	return m.pub.Publish(ev)
}

// EmitToolResult publishes a tool's result payload.
func (m *Multiplexer) EmitToolResult(toolName string, payload json.RawMessage) error {
	ev := datatypes.NewStreamEvent(datatypes.EventToolResult)
	ev.ToolName = toolName
	ev.ToolPayload = string(payload)
	return m.publish(ev)
}

// EmitSide implements tools.SideChannel. Side events are published
// directly, landing between the invocation's tool_call and tool_result
// because tools execute synchronously between those two emissions.
func (m *Multiplexer) EmitSide(toolName string, payload json.RawMessage) error {
	ev := datatypes.NewStreamEvent(datatypes.EventToolSide)
	ev.ToolName = toolName
	ev.Content = string(payload)
	return m.publish(ev)
}

// Done flushes buffered text and publishes the terminal success event.
// Subsequent emissions are no-ops.
func (m *Multiplexer) Done(assistantMessageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return nil
	}
	if err := m.smoother.Flush(); err != nil {
		return err
	}
	m.done = true
	return m.pub.Publish(datatypes.DoneEvent(m.conversationID, m.streamID, assistantMessageID))
}

// Fail publishes the terminal error event with a client-safe message.
// Subsequent emissions are no-ops.
func (m *Multiplexer) Fail(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return nil
	}
	// Drop any partial word; the turn did not complete.
	m.smoother.pending = ""
	m.done = true

	ev := datatypes.ErrorEvent(datatypes.ClientMessageOf(err))
	ev.ConversationId = m.conversationID
	ev.StreamId = m.streamID
	if pubErr := m.pub.Publish(ev); pubErr != nil {
		return fmt.Errorf("publish error event: %w", pubErr)
	}
	return nil
}

// Closed reports whether a terminal event has been published.
func (m *Multiplexer) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

func (m *Multiplexer) publish(ev datatypes.StreamEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return nil
	}
	return m.pub.Publish(ev)
}
