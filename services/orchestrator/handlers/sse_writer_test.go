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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/datatypes"
)

// plainWriter is a ResponseWriter without http.Flusher support.
type plainWriter struct {
	header http.Header
}

func (w *plainWriter) Header() http.Header         { return w.header }
func (w *plainWriter) Write(b []byte) (int, error) { return len(b), nil }
func (w *plainWriter) WriteHeader(int)             {}

// =============================================================================
// Constructor Tests
// =============================================================================

func TestNewSSEWriter_RequiresFlusher(t *testing.T) {
	_, err := NewSSEWriter(&plainWriter{header: http.Header{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Flusher")
}

func TestNewSSEWriter_Recorder(t *testing.T) {
	writer, err := NewSSEWriter(httptest.NewRecorder())
	require.NoError(t, err)
	require.NotNil(t, writer)
}

// =============================================================================
// WriteEvent Tests
// =============================================================================

func TestWriteEvent_WireFormat(t *testing.T) {
	rec := httptest.NewRecorder()
	writer, err := NewSSEWriter(rec)
	require.NoError(t, err)

	event := datatypes.StreamEvent{
		Type:           datatypes.EventToken,
		Seq:            7,
		Content:        "hello ",
		ConversationId: "c-1",
		StreamId:       "s-1",
	}
	require.NoError(t, writer.WriteEvent(event))

	body := rec.Body.String()
	require.True(t, strings.HasPrefix(body, "id: 7\nevent: token\ndata: "))
	require.True(t, strings.HasSuffix(body, "\n\n"))

	payload := strings.TrimSuffix(strings.TrimPrefix(body, "id: 7\nevent: token\ndata: "), "\n\n")
	var decoded datatypes.StreamEvent
	require.NoError(t, json.Unmarshal([]byte(payload), &decoded))
	assert.Equal(t, event, decoded)
}

// Replay must produce byte-identical frames: the writer never mutates the
// event it is handed.
func TestWriteEvent_ReplayIdentical(t *testing.T) {
	event := datatypes.StreamEvent{
		Type:     datatypes.EventStatus,
		Seq:      2,
		Message:  "Searching the catalog…",
		StreamId: "s-1",
	}

	frames := make([]string, 2)
	for i := range frames {
		rec := httptest.NewRecorder()
		writer, err := NewSSEWriter(rec)
		require.NoError(t, err)
		require.NoError(t, writer.WriteEvent(event))
		frames[i] = rec.Body.String()
	}

	assert.Equal(t, frames[0], frames[1])
}

func TestWriteEvent_SeqZeroStillFramed(t *testing.T) {
	rec := httptest.NewRecorder()
	writer, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, writer.WriteEvent(datatypes.StreamEvent{
		Type:    datatypes.EventToken,
		Seq:     0,
		Content: "first",
	}))

	assert.True(t, strings.HasPrefix(rec.Body.String(), "id: 0\nevent: token\n"))
}

func TestWriteKeepAlive_CommentFrame(t *testing.T) {
	rec := httptest.NewRecorder()
	writer, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, writer.WriteKeepAlive())
	assert.Equal(t, ": ping\n\n", rec.Body.String())
}

// =============================================================================
// Header Tests
// =============================================================================

func TestSetSSEHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SetSSEHeaders(rec)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", rec.Header().Get("Connection"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
}
