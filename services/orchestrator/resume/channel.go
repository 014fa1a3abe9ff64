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
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/datatypes"
)

// Key layout in the stream log:
//
//	stream/<handleID>/evt/<seq, 8-byte big endian>  -> JSON StreamEvent
//	stream/<handleID>/closed                        -> single byte marker
//
// Big-endian sequence keys make Badger's lexicographic iteration equal to
// sequence order.
const (
	keyPrefix    = "stream/"
	eventSegment = "/evt/"
	closedSuffix = "/closed"
)

func eventKey(handleID string, seq uint64) []byte {
	key := make([]byte, 0, len(keyPrefix)+len(handleID)+len(eventSegment)+8)
	key = append(key, keyPrefix...)
	key = append(key, handleID...)
	key = append(key, eventSegment...)
	key = binary.BigEndian.AppendUint64(key, seq)
	return key
}

func eventPrefix(handleID string) []byte {
	return []byte(keyPrefix + handleID + eventSegment)
}

func closedKey(handleID string) []byte {
	return []byte(keyPrefix + handleID + closedSuffix)
}

// Channel is the live, in-process side of one turn's event stream.
//
// # Description
//
// Publish assigns each event its sequence number, writes it to the durable
// log, and wakes every attached subscriber. Events are also kept in memory
// for the channel's lifetime so live subscribers never touch Badger.
//
// Publishing is idempotent at the terminal boundary: once a terminal event
// lands, further publishes are dropped with a warning rather than failing
// the turn.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type Channel struct {
	id             string
	conversationID string
	db             *DB // nil in degraded mode

	mu     sync.Mutex
	events []datatypes.StreamEvent
	closed bool
	notify chan struct{}
}

func newChannel(db *DB, handleID, conversationID string) *Channel {
	return &Channel{
		id:             handleID,
		conversationID: conversationID,
		db:             db,
		notify:         make(chan struct{}),
	}
}

// ID returns the stream handle ID this channel serves.
func (c *Channel) ID() string { return c.id }

// Publish appends one event to the stream.
//
// The event's Seq is assigned here. Terminal events additionally write the
// closed marker. A durable-log write failure closes the stream with an
// error rather than silently dropping data.
func (c *Channel) Publish(ev datatypes.StreamEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		slog.Warn("Publish after terminal event dropped",
			"stream_id", c.id, "type", string(ev.Type))
		return nil
	}

	ev.Seq = uint64(len(c.events))
	if ev.StreamId == "" {
		ev.StreamId = c.id
	}

	if c.db != nil {
		if err := c.persist(ev); err != nil {
			return fmt.Errorf("persist stream event: %w", err)
		}
	}

	c.events = append(c.events, ev)
	if ev.Type.IsTerminal() {
		c.closed = true
	}

	// Wake subscribers by closing the current notify channel and
	// installing a fresh one for the next wait cycle.
	close(c.notify)
	c.notify = make(chan struct{})
	return nil
}

func (c *Channel) persist(ev datatypes.StreamEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(eventKey(c.id, ev.Seq), raw)
		if c.db.eventTTL > 0 {
			entry = entry.WithTTL(c.db.eventTTL)
		}
		if err := txn.SetEntry(entry); err != nil {
			return err
		}
		if ev.Type.IsTerminal() {
			marker := badger.NewEntry(closedKey(c.id), []byte{1})
			if c.db.eventTTL > 0 {
				marker = marker.WithTTL(c.db.eventTTL)
			}
			return txn.SetEntry(marker)
		}
		return nil
	})
}

// snapshot returns the events at or after cursor plus the wait state.
func (c *Channel) snapshot(cursor uint64) (events []datatypes.StreamEvent, closed bool, notify <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cursor < uint64(len(c.events)) {
		events = append(events, c.events[cursor:]...)
	}
	return events, c.closed, c.notify
}

// Closed reports whether a terminal event has been published.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// readLog loads stored events for a handle starting at fromSeq, in order.
func readLog(db *DB, handleID string, fromSeq uint64) ([]datatypes.StreamEvent, error) {
	var events []datatypes.StreamEvent
	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = eventPrefix(handleID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(eventKey(handleID, fromSeq)); it.ValidForPrefix(opts.Prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var ev datatypes.StreamEvent
				if err := json.Unmarshal(val, &ev); err != nil {
					return fmt.Errorf("decode event at %s: %w", it.Item().Key(), err)
				}
				events = append(events, ev)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read stream log: %w", err)
	}
	return events, nil
}

// logState reports whether a handle has any stored events and whether its
// closed marker is present.
func logState(db *DB, handleID string) (exists, closed bool, err error) {
	err = db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = eventPrefix(handleID)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		it.Rewind()
		exists = it.ValidForPrefix(opts.Prefix)
		it.Close()

		_, getErr := txn.Get(closedKey(handleID))
		switch getErr {
		case nil:
			closed = true
		case badger.ErrKeyNotFound:
		default:
			return getErr
		}
		return nil
	})
	if err != nil {
		return false, false, fmt.Errorf("inspect stream log: %w", err)
	}
	return exists, closed, nil
}
