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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/datatypes"
)

// ErrUnknownStream is returned by Subscribe when the handle has no live
// channel and no stored events.
var ErrUnknownStream = errors.New("unknown stream")

// interruptedMessage is what a resumed client sees when the process died
// mid-generation and the turn can not be completed.
const interruptedMessage = "The response was interrupted before it completed. Please send your message again."

// Manager owns all stream channels in the process.
//
// # Description
//
// One Manager serves the whole service. Each chat turn opens a Channel,
// publishes its events through it, and releases it after the terminal
// event. Subscribers attach by handle ID: a live channel fans out in
// memory; a finished or orphaned channel replays from the Badger log.
//
// # Degraded Mode
//
// When the durable log is unavailable the Manager still brokers live
// fan-out, but nothing survives a restart and only currently-live streams
// can be resumed. Construction logs the degradation once.
//
// # Thread Safety
//
// Safe for concurrent use.
type Manager struct {
	db   *DB // nil in degraded mode
	mu   sync.Mutex
	live map[string]*Channel
}

// NewManager creates a Manager over the given stream log. A nil db enables
// degraded in-memory-only operation.
func NewManager(db *DB) *Manager {
	if db == nil {
		slog.Warn("Stream log unavailable, resume limited to live streams only")
	}
	return &Manager{
		db:   db,
		live: make(map[string]*Channel),
	}
}

// Degraded reports whether the durable log is absent.
func (m *Manager) Degraded() bool { return m.db == nil }

// OpenChannel registers a live channel for a new turn.
//
// Handle IDs are UUIDs minted per turn, so a duplicate means a caller bug.
func (m *Manager) OpenChannel(handleID, conversationID string) (*Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.live[handleID]; exists {
		return nil, fmt.Errorf("stream channel %q already open", handleID)
	}
	ch := newChannel(m.db, handleID, conversationID)
	m.live[handleID] = ch
	return ch, nil
}

// Release drops the live registration for a finished turn. Stored events
// remain resumable until their TTL expires. Releasing an unclosed channel
// strands its subscribers, so callers release only after the terminal
// event is published.
func (m *Manager) Release(handleID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.live[handleID]
	if !ok {
		return
	}
	if !ch.Closed() {
		slog.Warn("Releasing stream channel before terminal event", "stream_id", handleID)
	}
	delete(m.live, handleID)
}

// Subscribe attaches to a stream at the given cursor.
//
// # Description
//
// Events with Seq >= fromSeq are delivered in order on the returned
// channel, which is closed after the terminal event (or when ctx is
// done). Live streams replay their backlog first and then follow; finished
// streams replay from the durable log; streams orphaned by a process
// restart are finalized with an interruption error and then replayed.
//
// # Outputs
//
//   - <-chan datatypes.StreamEvent: Ordered event feed. Closed on
//     completion or context cancellation.
//   - error: ErrUnknownStream if the handle is not live and has no stored
//     events; otherwise a log read failure.
func (m *Manager) Subscribe(ctx context.Context, handleID string, fromSeq uint64) (<-chan datatypes.StreamEvent, error) {
	m.mu.Lock()
	ch, isLive := m.live[handleID]
	m.mu.Unlock()

	if isLive {
		out := make(chan datatypes.StreamEvent, 32)
		go followLive(ctx, ch, fromSeq, out)
		return out, nil
	}

	if m.db == nil {
		return nil, ErrUnknownStream
	}

	exists, closed, err := logState(m.db, handleID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrUnknownStream
	}
	if !closed {
		// The process that owned this stream died before finishing it.
		if err := m.finalizeOrphan(handleID); err != nil {
			return nil, err
		}
	}

	events, err := readLog(m.db, handleID, fromSeq)
	if err != nil {
		return nil, err
	}
	out := make(chan datatypes.StreamEvent, 32)
	go func() {
		defer close(out)
		for _, ev := range events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// finalizeOrphan appends a terminal error event and the closed marker to a
// stream whose owning process never finished it.
func (m *Manager) finalizeOrphan(handleID string) error {
	slog.Warn("Finalizing orphaned stream", "stream_id", handleID)

	stored, err := readLog(m.db, handleID, 0)
	if err != nil {
		return err
	}
	ev := datatypes.ErrorEvent(interruptedMessage)
	ev.StreamId = handleID
	ev.Seq = uint64(len(stored))

	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode interruption event: %w", err)
	}
	err = m.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(eventKey(handleID, ev.Seq), raw)
		marker := badger.NewEntry(closedKey(handleID), []byte{1})
		if m.db.eventTTL > 0 {
			entry = entry.WithTTL(m.db.eventTTL)
			marker = marker.WithTTL(m.db.eventTTL)
		}
		if err := txn.SetEntry(entry); err != nil {
			return err
		}
		return txn.SetEntry(marker)
	})
	if err != nil {
		return fmt.Errorf("finalize orphaned stream: %w", err)
	}
	return nil
}

// followLive streams a live channel into out until the terminal event.
func followLive(ctx context.Context, ch *Channel, fromSeq uint64, out chan<- datatypes.StreamEvent) {
	defer close(out)

	cursor := fromSeq
	for {
		events, closed, notify := ch.snapshot(cursor)
		for _, ev := range events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
		cursor += uint64(len(events))
		if closed {
			return
		}
		select {
		case <-notify:
		case <-ctx.Done():
			return
		}
	}
}
