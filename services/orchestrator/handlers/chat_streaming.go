// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the HTTP surface of the storefront
// orchestrator: turn creation with a live SSE body, stream resume,
// conversation management, and a WebSocket subscriber transport.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianStorefront/pkg/extensions"
	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/middleware"
	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/observability"
	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/orchestrator"
)

var tracer = otel.Tracer("aleutian.orchestrator.handlers")

// keepAliveInterval spaces SSE comment lines during quiet stretches so
// intermediaries with idle timeouts keep the connection open.
const keepAliveInterval = 15 * time.Second

// ChatHandler serves the chat turn and resume endpoints.
type ChatHandler struct {
	orch    *orchestrator.Orchestrator
	metrics *observability.ChatMetrics
}

// NewChatHandler creates a ChatHandler.
func NewChatHandler(orch *orchestrator.Orchestrator, metrics *observability.ChatMetrics) *ChatHandler {
	return &ChatHandler{orch: orch, metrics: metrics}
}

// HandleCreateTurn handles POST /v1/chat/stream.
//
// # Description
//
// Accepts a new user turn, commits it, starts generation, and returns the
// live event stream as SSE. The response body is the same event sequence a
// resumed subscriber would see from sequence zero.
//
// # SSE Event Flow
//
//   - event: status, data: {"type":"status","message":"Searching the catalog…"}
//   - event: sources, data: {"type":"sources","sources":[...]}
//   - event: token, data: {"type":"token","content":"..."}
//   - event: tool_call / tool_side / tool_result during tool use
//   - event: done, data: {"type":"done","message_id":"...","stream_id":"..."}
//   - event: error, data: {"type":"error","error":"..."}
//
// # Status Codes
//
//   - 400: malformed body or validation failure
//   - 401: unauthenticated
//   - 403: caller does not own the conversation
//   - 429: daily quota exceeded
//   - 200: SSE stream
//
// A client disconnect mid-stream does not stop generation; the client
// reconnects through HandleResume with its last observed sequence.
func (h *ChatHandler) HandleCreateTurn(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "HandleCreateTurn")
	defer span.End()

	// Step 0: Authenticated caller from middleware.
	authInfo := middleware.GetAuthInfo(c)
	if authInfo == nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    string(datatypes.ErrCodeUnauthenticated),
			"message": "Authentication required",
		})
		return
	}
	span.SetAttributes(attribute.String("user.id", authInfo.UserID))

	// Step 1: Parse request body.
	var req datatypes.CreateTurnRequest
	if err := c.BindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request body")
		slog.Error("Failed to parse create-turn request", "error", err)
		h.metrics.RecordError(string(datatypes.ErrCodeMalformedRequest))
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    string(datatypes.ErrCodeMalformedRequest),
			"message": "Invalid request body",
		})
		return
	}
	span.SetAttributes(
		attribute.String("conversation.id", req.ConversationId),
		attribute.String("request.variant", req.Variant),
	)

	// Step 2: Start the turn. Validation, ownership, quota, and the user
	// message commit all happen before any bytes stream.
	ref, err := h.orch.StartTurn(ctx, authInfo, &req, hintsFromHeaders(c))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "turn rejected")
		respondTurnError(c, h.metrics, err)
		return
	}
	span.SetAttributes(attribute.String("stream.id", ref.StreamId))

	// Step 3: Subscribe from sequence zero and stream the events out.
	events, err := h.orch.Attach(ctx, ref.StreamId, 0)
	if err != nil {
		// Without a durable log a fast turn can finish and release its
		// channel before the handler attaches. The turn itself succeeded;
		// report the quiet state the resume endpoint uses.
		if errors.Is(err, orchestrator.ErrNoStream) {
			c.JSON(http.StatusOK, gin.H{"events": []any{}})
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "subscribe failed")
		respondTurnError(c, h.metrics, err)
		return
	}

	h.streamSSE(c, events)
}

// HandleResume handles GET /v1/chat/stream?conversationId=<id>&lastSeq=<n>.
//
// # Description
//
// Reattaches to the most recent stream of a conversation, replaying events
// after the caller's cursor and following live output until the terminal
// event. Public conversations are readable by non-owners.
//
// When no stream exists, or its log has expired, responds 200 with an
// informational empty body so clients can render a quiet state instead of
// an error.
func (h *ChatHandler) HandleResume(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "HandleResume")
	defer span.End()

	authInfo := middleware.GetAuthInfo(c)
	if authInfo == nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    string(datatypes.ErrCodeUnauthenticated),
			"message": "Authentication required",
		})
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
	span.SetAttributes(attribute.String("conversation.id", conversationID))

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
		// The cursor names the last event already seen; replay starts
		// after it.
		fromSeq = last + 1
	}

	events, streamID, err := h.orch.Resume(ctx, authInfo, conversationID, fromSeq)
	if err != nil {
		if errors.Is(err, orchestrator.ErrNoStream) {
			c.JSON(http.StatusOK, gin.H{"events": []any{}})
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "resume failed")
		respondTurnError(c, h.metrics, err)
		return
	}
	span.SetAttributes(attribute.String("stream.id", streamID))

	h.streamSSE(c, events)
}

// streamSSE pumps a subscription channel onto the response as SSE with
// keepalive comments, until the channel closes or the client goes away.
func (h *ChatHandler) streamSSE(c *gin.Context, events <-chan datatypes.StreamEvent) {
	SetSSEHeaders(c.Writer)
	writer, err := NewSSEWriter(c.Writer)
	if err != nil {
		slog.Error("Failed to create SSE writer", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    string(datatypes.ErrCodeUpstreamUnavailable),
			"message": "Streaming not supported",
		})
		return
	}

	h.metrics.SubscriberAttached("sse")
	defer h.metrics.SubscriberDetached("sse")

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	span := oteltrace.SpanFromContext(c.Request.Context())
	clientGone := c.Request.Context().Done()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writer.WriteEvent(ev); err != nil {
				// Write failures mean the client is gone. Generation
				// continues; the client resumes from its cursor.
				slog.Debug("SSE write failed, client likely disconnected", "error", err)
				span.AddEvent("client_disconnected")
				h.metrics.RecordClientDisconnect("sse")
				return
			}
		case <-keepAlive.C:
			if err := writer.WriteKeepAlive(); err != nil {
				h.metrics.RecordClientDisconnect("sse")
				return
			}
		case <-clientGone:
			span.AddEvent("client_disconnected")
			h.metrics.RecordClientDisconnect("sse")
			return
		}
	}
}

// hintsFromHeaders extracts optional geo hints forwarded by the edge.
func hintsFromHeaders(c *gin.Context) datatypes.RequestHints {
	return datatypes.RequestHints{
		City:      c.GetHeader("X-Vercel-IP-City"),
		Country:   c.GetHeader("X-Vercel-IP-Country"),
		Latitude:  c.GetHeader("X-Vercel-IP-Latitude"),
		Longitude: c.GetHeader("X-Vercel-IP-Longitude"),
	}
}

// respondTurnError maps an error onto its HTTP status and sanitized body.
func respondTurnError(c *gin.Context, metrics *observability.ChatMetrics, err error) {
	code := datatypes.CodeOf(err)
	metrics.RecordError(string(code))
	c.JSON(code.HTTPStatus(), gin.H{
		"code":    string(code),
		"message": datatypes.ClientMessageOf(err),
	})
}

// requireAuth pulls the caller identity or writes a 401. Shared by the
// conversation management handlers.
func requireAuth(c *gin.Context) *extensions.AuthInfo {
	authInfo := middleware.GetAuthInfo(c)
	if authInfo == nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    string(datatypes.ErrCodeUnauthenticated),
			"message": "Authentication required",
		})
		return nil
	}
	return authInfo
}
