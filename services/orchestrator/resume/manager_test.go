// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resume

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/datatypes"
)

// =============================================================================
// Test Setup
// =============================================================================

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})
	return db
}

// publishTurn writes a simple turn: n token events followed by done.
// Errors are ignored so the helper is safe to run from a goroutine; the
// event-count assertions catch any dropped publish.
func publishTurn(t *testing.T, ch *Channel, tokens int) {
	t.Helper()
	for i := 0; i < tokens; i++ {
		_ = ch.Publish(datatypes.TokenEvent(fmt.Sprintf("tok%d ", i)))
	}
	_ = ch.Publish(datatypes.DoneEvent("c1", ch.ID(), "msg-1"))
}

// drain collects events from a subscription until it closes or times out.
func drain(t *testing.T, events <-chan datatypes.StreamEvent) []datatypes.StreamEvent {
	t.Helper()
	var out []datatypes.StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out draining subscription")
		}
	}
}

// =============================================================================
// Channel Tests
// =============================================================================

func TestChannel_AssignsContiguousSequence(t *testing.T) {
	db := openTestDB(t)
	m := NewManager(db)

	ch, err := m.OpenChannel("s1", "c1")
	require.NoError(t, err)
	publishTurn(t, ch, 3)

	events, err := readLog(db, "s1", 0)
	require.NoError(t, err)
	require.Len(t, events, 4)
	for i, ev := range events {
		assert.Equal(t, uint64(i), ev.Seq)
	}
	assert.Equal(t, datatypes.EventDone, events[3].Type)
}

func TestChannel_DropsPublishAfterTerminal(t *testing.T) {
	db := openTestDB(t)
	m := NewManager(db)

	ch, err := m.OpenChannel("s1", "c1")
	require.NoError(t, err)
	publishTurn(t, ch, 1)

	require.NoError(t, ch.Publish(datatypes.TokenEvent("late ")))

	events, err := readLog(db, "s1", 0)
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.True(t, ch.Closed())
}

func TestManager_DuplicateOpenFails(t *testing.T) {
	m := NewManager(openTestDB(t))

	_, err := m.OpenChannel("s1", "c1")
	require.NoError(t, err)
	_, err = m.OpenChannel("s1", "c1")
	assert.Error(t, err)
}

// =============================================================================
// Subscribe Tests
// =============================================================================

func TestSubscribe_LiveFollowsToTerminal(t *testing.T) {
	m := NewManager(openTestDB(t))
	ch, err := m.OpenChannel("s1", "c1")
	require.NoError(t, err)

	events, err := m.Subscribe(context.Background(), "s1", 0)
	require.NoError(t, err)

	go publishTurn(t, ch, 3)

	got := drain(t, events)
	require.Len(t, got, 4)
	assert.Equal(t, datatypes.EventDone, got[3].Type)
}

func TestSubscribe_ResumeSkipsDeliveredEvents(t *testing.T) {
	db := openTestDB(t)
	m := NewManager(db)
	ch, err := m.OpenChannel("s1", "c1")
	require.NoError(t, err)

	const tokens = 10
	publishTurn(t, ch, tokens)
	m.Release("s1")

	// Client saw events 0..2 before disconnecting; resumes from 3.
	events, err := m.Subscribe(context.Background(), "s1", 3)
	require.NoError(t, err)
	got := drain(t, events)

	require.Len(t, got, tokens+1-3)
	assert.Equal(t, uint64(3), got[0].Seq)
	assert.Equal(t, "tok3 ", got[0].Content)
	assert.Equal(t, datatypes.EventDone, got[len(got)-1].Type)
}

func TestSubscribe_ReplayEqualsLiveDelivery(t *testing.T) {
	db := openTestDB(t)
	m := NewManager(db)
	ch, err := m.OpenChannel("s1", "c1")
	require.NoError(t, err)

	live, err := m.Subscribe(context.Background(), "s1", 0)
	require.NoError(t, err)
	publishTurn(t, ch, 5)
	liveEvents := drain(t, live)
	m.Release("s1")

	replayed, err := m.Subscribe(context.Background(), "s1", 0)
	require.NoError(t, err)
	replayEvents := drain(t, replayed)

	assert.Equal(t, liveEvents, replayEvents)
}

func TestSubscribe_BroadcastToConcurrentSubscribers(t *testing.T) {
	m := NewManager(openTestDB(t))
	ch, err := m.OpenChannel("s1", "c1")
	require.NoError(t, err)

	first, err := m.Subscribe(context.Background(), "s1", 0)
	require.NoError(t, err)
	second, err := m.Subscribe(context.Background(), "s1", 0)
	require.NoError(t, err)

	go publishTurn(t, ch, 5)

	gotFirst := drain(t, first)
	gotSecond := drain(t, second)
	assert.Equal(t, gotFirst, gotSecond)
	assert.Len(t, gotFirst, 6)
}

func TestSubscribe_UnknownStream(t *testing.T) {
	m := NewManager(openTestDB(t))

	_, err := m.Subscribe(context.Background(), "never-opened", 0)
	assert.ErrorIs(t, err, ErrUnknownStream)
}

func TestSubscribe_OrphanedStreamFinalizedWithError(t *testing.T) {
	db := openTestDB(t)
	m := NewManager(db)
	ch, err := m.OpenChannel("s1", "c1")
	require.NoError(t, err)

	// Turn dies mid-generation: tokens but no terminal event, and the
	// live channel disappears as if the process restarted.
	require.NoError(t, ch.Publish(datatypes.TokenEvent("partial ")))
	require.NoError(t, ch.Publish(datatypes.TokenEvent("answer ")))
	m.mu.Lock()
	delete(m.live, "s1")
	m.mu.Unlock()

	events, err := m.Subscribe(context.Background(), "s1", 0)
	require.NoError(t, err)
	got := drain(t, events)

	require.Len(t, got, 3)
	last := got[2]
	assert.Equal(t, datatypes.EventError, last.Type)
	assert.Equal(t, uint64(2), last.Seq)
	assert.Contains(t, last.Error, "interrupted")

	// A second resume sees the already-finalized log unchanged.
	again, err := m.Subscribe(context.Background(), "s1", 0)
	require.NoError(t, err)
	assert.Equal(t, got, drain(t, again))
}

func TestSubscribe_ContextCancellationStopsDelivery(t *testing.T) {
	m := NewManager(openTestDB(t))
	ch, err := m.OpenChannel("s1", "c1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := m.Subscribe(ctx, "s1", 0)
	require.NoError(t, err)

	require.NoError(t, ch.Publish(datatypes.TokenEvent("one ")))
	cancel()

	// The channel must close without a terminal event ever arriving.
	timeout := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("subscription did not close after cancellation")
		}
	}
}

// =============================================================================
// Degraded Mode Tests
// =============================================================================

func TestDegradedMode_LiveOnly(t *testing.T) {
	m := NewManager(nil)
	assert.True(t, m.Degraded())

	ch, err := m.OpenChannel("s1", "c1")
	require.NoError(t, err)

	events, err := m.Subscribe(context.Background(), "s1", 0)
	require.NoError(t, err)
	go publishTurn(t, ch, 2)
	got := drain(t, events)
	assert.Len(t, got, 3)

	m.Release("s1")
	_, err = m.Subscribe(context.Background(), "s1", 0)
	assert.ErrorIs(t, err, ErrUnknownStream)
}
