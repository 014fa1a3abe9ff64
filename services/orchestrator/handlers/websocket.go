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
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/orchestrator"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

func sendJSON(ws *websocket.Conn, v interface{}) error {
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

// HandleStreamWebSocket handles GET /v1/chat/ws?conversationId=<id>&lastSeq=<n>.
//
// # Description
//
// WebSocket subscriber onto the same resumable channel the SSE endpoints
// serve. Each stream event is delivered as one JSON message; the connection
// closes after the terminal event. Multiple sockets may follow the same
// stream concurrently; each gets the full remaining sequence.
//
// The socket is receive-only from the client's perspective: turns are
// created over HTTP, viewers attach here.
func (h *ChatHandler) HandleStreamWebSocket(c *gin.Context) {
	authInfo := requireAuth(c)
	if authInfo == nil {
		return
	}

	conversationID := c.Query("conversationId")
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    string(datatypes.ErrCodeMalformedRequest),
			"message": "conversationId is required",
		})
		return
	}

	var fromSeq uint64
	if raw := c.Query("lastSeq"); raw != "" {
		last, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    string(datatypes.ErrCodeMalformedRequest),
				"message": "lastSeq must be a non-negative integer",
			})
			return
		}
		fromSeq = last + 1
	}

	// Policy checks run before the upgrade so denials surface as plain
	// HTTP statuses the client can interpret.
	events, streamID, err := h.orch.Resume(c.Request.Context(), authInfo, conversationID, fromSeq)
	if err != nil {
		if errors.Is(err, orchestrator.ErrNoStream) {
			c.JSON(http.StatusOK, gin.H{"events": []any{}})
			return
		}
		respondTurnError(c, h.metrics, err)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("Failed to upgrade the websocket", "error", err)
		return
	}
	defer ws.Close()
	slog.Info("Websocket subscriber connected",
		"conversation_id", conversationID, "stream_id", streamID)

	h.metrics.SubscriberAttached("websocket")
	defer h.metrics.SubscriberDetached("websocket")

	if err := sendJSON(ws, map[string]interface{}{
		"action":    "stream_attached",
		"stream_id": streamID,
	}); err != nil {
		return
	}

	for ev := range events {
		if err := sendJSON(ws, ev); err != nil {
			h.metrics.RecordClientDisconnect("websocket")
			return
		}
	}
	slog.Info("Websocket subscriber drained stream", "stream_id", streamID)
}
