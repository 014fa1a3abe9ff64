// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/datatypes"
)

// =============================================================================
// Interface Definition
// =============================================================================

// SSEWriter defines the contract for writing Server-Sent Events to HTTP
// responses.
//
// # Description
//
// SSEWriter abstracts SSE event serialization and writing, enabling
// testability and separation from HTTP response mechanics. Implementations
// handle the SSE wire format (id: seq\nevent: type\ndata: json\n\n)
// internally.
//
// Events arrive already sequenced by the stream log; the writer emits the
// sequence number as the SSE id field so clients can reconnect with their
// last observed cursor.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. The event pump and the
// keepalive ticker write from different goroutines.
//
// # Limitations
//
//   - Must be used with an http.Flusher-compatible ResponseWriter
//   - Response headers must be set before the first write
type SSEWriter interface {
	// WriteEvent writes a single SSE event to the response and flushes.
	WriteEvent(event datatypes.StreamEvent) error

	// WriteKeepAlive sends a comment line to prevent connection timeouts.
	//
	// SSE comments are ignored by clients but keep the TCP connection
	// active through load balancers with idle timeouts (AWS ALB, Nginx
	// default 60s). Comments carry no id and do not advance the cursor.
	WriteKeepAlive() error
}

// =============================================================================
// Struct Definition
// =============================================================================

// sseWriter implements SSEWriter for HTTP SSE responses.
//
// Each event is written in the format:
//
//	id: {seq}
//	event: {type}
//	data: {json}
//
// The writer never mutates the event: what the stream log recorded is what
// goes on the wire, so a resumed subscriber replays byte-identical payloads.
type sseWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

// NewSSEWriter creates an SSEWriter for the given ResponseWriter.
//
// The caller must set SSE headers via SetSSEHeaders before writing.
// Returns an error if the ResponseWriter does not support flushing.
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}

	return &sseWriter{
		writer:  w,
		flusher: flusher,
	}, nil
}

// =============================================================================
// Methods
// =============================================================================

func (w *sseWriter) WriteEvent(event datatypes.StreamEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(w.writer, "id: %d\nevent: %s\ndata: %s\n\n",
		event.Seq, event.Type, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	w.flusher.Flush()
	return nil
}

func (w *sseWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := fmt.Fprint(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}

	w.flusher.Flush()
	return nil
}

// SetSSEHeaders sets the response headers required for SSE streaming.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ SSEWriter = (*sseWriter)(nil)
