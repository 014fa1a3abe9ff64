// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stream

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/datatypes"
)

// capturePublisher records every published event in order.
type capturePublisher struct {
	events []datatypes.StreamEvent
	err    error
}

func (p *capturePublisher) Publish(ev datatypes.StreamEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *capturePublisher) types() []datatypes.EventType {
	out := make([]datatypes.EventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

func TestMultiplexer_HappyPathOrdering(t *testing.T) {
	pub := &capturePublisher{}
	m := NewMultiplexer(pub, "c1", "s1")

	require.NoError(t, m.EmitStatus("Searching the catalog…"))
	require.NoError(t, m.EmitSources([]datatypes.ContextSnippet{{ProductId: "p1", Name: "Trail Shoe"}}))
	require.NoError(t, m.EmitToken("Here "))
	require.NoError(t, m.EmitToken("you go "))
	require.NoError(t, m.Done("msg-1"))

	assert.Equal(t, []datatypes.EventType{
		datatypes.EventStatus,
		datatypes.EventSources,
		datatypes.EventToken,
		datatypes.EventToken,
		datatypes.EventDone,
	}, pub.types())

	done := pub.events[len(pub.events)-1]
	assert.Equal(t, "c1", done.ConversationId)
	assert.Equal(t, "s1", done.StreamId)
	assert.Equal(t, "msg-1", done.MessageId)
}

func TestMultiplexer_TokenTextSurvivesSmoothing(t *testing.T) {
	pub := &capturePublisher{}
	m := NewMultiplexer(pub, "c1", "s1")

	fragments := []string{"Run", "ning sh", "oes are ", "great"}
	for _, f := range fragments {
		require.NoError(t, m.EmitToken(f))
	}
	require.NoError(t, m.Done("msg-1"))

	var streamed strings.Builder
	for _, ev := range pub.events {
		if ev.Type == datatypes.EventToken {
			streamed.WriteString(ev.Content)
		}
	}
	assert.Equal(t, strings.Join(fragments, ""), streamed.String())
}

func TestMultiplexer_ToolCallFlushesBufferedText(t *testing.T) {
	pub := &capturePublisher{}
	m := NewMultiplexer(pub, "c1", "s1")

	// "Checking" has no trailing whitespace, so it sits in the smoother
	// until something forces a flush.
	require.NoError(t, m.EmitToken("Checking"))
	require.NoError(t, m.EmitToolCall("get_order_details", json.RawMessage(`{"order_id":"o1"}`)))
	require.NoError(t, m.EmitToolResult("get_order_details", json.RawMessage(`{"found":true}`)))
	require.NoError(t, m.Done("msg-1"))

	require.Equal(t, []datatypes.EventType{
		datatypes.EventToken,
		datatypes.EventToolCall,
		datatypes.EventToolResult,
		datatypes.EventDone,
	}, pub.types())
	assert.Equal(t, "Checking", pub.events[0].Content)
	assert.Equal(t, "get_order_details", pub.events[1].ToolName)
}

func TestMultiplexer_SideEventsLandBetweenCallAndResult(t *testing.T) {
	pub := &capturePublisher{}
	m := NewMultiplexer(pub, "c1", "s1")

	require.NoError(t, m.EmitToolCall("create_document", json.RawMessage(`{}`)))
	require.NoError(t, m.EmitSide("create_document", json.RawMessage(`{"document_id":"d1"}`)))
	require.NoError(t, m.EmitToolResult("create_document", json.RawMessage(`{"document_id":"d1"}`)))

	assert.Equal(t, []datatypes.EventType{
		datatypes.EventToolCall,
		datatypes.EventToolSide,
		datatypes.EventToolResult,
	}, pub.types())
}

func TestMultiplexer_ExactlyOneTerminalEvent(t *testing.T) {
	pub := &capturePublisher{}
	m := NewMultiplexer(pub, "c1", "s1")

	require.NoError(t, m.Done("msg-1"))
	assert.True(t, m.Closed())

	// Everything after the terminal event is a silent no-op.
	require.NoError(t, m.Done("msg-2"))
	require.NoError(t, m.Fail(errors.New("late failure")))
	require.NoError(t, m.EmitToken("stray"))
	require.NoError(t, m.EmitStatus("stray"))

	terminals := 0
	for _, ev := range pub.events {
		if ev.Type.IsTerminal() {
			terminals++
		}
	}
	assert.Equal(t, 1, terminals)
	assert.Equal(t, "msg-1", pub.events[len(pub.events)-1].MessageId)
}

func TestMultiplexer_FailDropsPartialWordAndSanitizes(t *testing.T) {
	pub := &capturePublisher{}
	m := NewMultiplexer(pub, "c1", "s1")

	require.NoError(t, m.EmitToken("Half-finished senten"))
	cause := datatypes.NewTurnError(datatypes.ErrCodeTimeout,
		"The response took too long and was cancelled",
		errors.New("dial tcp 10.0.0.5: i/o timeout"))
	require.NoError(t, m.Fail(cause))

	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, datatypes.EventError, ev.Type)
	assert.Equal(t, "The response took too long and was cancelled", ev.Error)
	assert.NotContains(t, ev.Error, "10.0.0.5")
	assert.Equal(t, "c1", ev.ConversationId)
	assert.True(t, m.Closed())
}

func TestMultiplexer_PublishErrorPropagates(t *testing.T) {
	pub := &capturePublisher{err: errors.New("log unavailable")}
	m := NewMultiplexer(pub, "c1", "s1")

	assert.Error(t, m.EmitStatus("status"))
}
