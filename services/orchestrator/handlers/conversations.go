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
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/observability"
	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/orchestrator"
)

// ConversationHandler serves conversation management endpoints.
type ConversationHandler struct {
	orch    *orchestrator.Orchestrator
	metrics *observability.ChatMetrics
}

// NewConversationHandler creates a ConversationHandler.
func NewConversationHandler(orch *orchestrator.Orchestrator,
	metrics *observability.ChatMetrics) *ConversationHandler {
	return &ConversationHandler{orch: orch, metrics: metrics}
}

// HandleDelete handles DELETE /v1/conversations/:conversationId.
//
// Owner only. Removes the conversation and its messages, stream handles,
// and documents, and returns the deleted record.
func (h *ConversationHandler) HandleDelete(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "HandleDeleteConversation")
	defer span.End()

	authInfo := requireAuth(c)
	if authInfo == nil {
		return
	}

	conversationID := c.Param("conversationId")
	span.SetAttributes(attribute.String("conversation.id", conversationID))

	conv, err := h.orch.GetConversation(ctx, authInfo, conversationID)
	if err != nil {
		respondTurnError(c, h.metrics, err)
		return
	}
	if err := h.orch.DeleteConversation(ctx, authInfo, conversationID); err != nil {
		respondTurnError(c, h.metrics, err)
		return
	}

	c.JSON(http.StatusOK, conv)
}

// HandleListMessages handles GET /v1/conversations/:conversationId/messages.
//
// Returns the conversation's messages oldest first. Readable by the owner,
// or by anyone for public conversations.
func (h *ConversationHandler) HandleListMessages(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "HandleListMessages")
	defer span.End()

	authInfo := requireAuth(c)
	if authInfo == nil {
		return
	}

	conversationID := c.Param("conversationId")
	span.SetAttributes(attribute.String("conversation.id", conversationID))

	msgs, err := h.orch.ListMessages(ctx, authInfo, conversationID)
	if err != nil {
		respondTurnError(c, h.metrics, err)
		return
	}
	if msgs == nil {
		msgs = []datatypes.ChatMessage{}
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation_id": conversationID,
		"messages":        msgs,
	})
}

// visibilityRequest is the body for visibility updates.
type visibilityRequest struct {
	Visibility datatypes.Visibility `json:"visibility" binding:"required,oneof=private public"`
}

// HandleUpdateVisibility handles
// PATCH /v1/conversations/:conversationId/visibility. Owner only.
func (h *ConversationHandler) HandleUpdateVisibility(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "HandleUpdateVisibility")
	defer span.End()

	authInfo := requireAuth(c)
	if authInfo == nil {
		return
	}

	conversationID := c.Param("conversationId")
	span.SetAttributes(attribute.String("conversation.id", conversationID))

	var req visibilityRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    string(datatypes.ErrCodeMalformedRequest),
			"message": "visibility must be \"private\" or \"public\"",
		})
		return
	}

	if err := h.orch.UpdateVisibility(ctx, authInfo, conversationID, req.Visibility); err != nil {
		respondTurnError(c, h.metrics, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation_id": conversationID,
		"visibility":      req.Visibility,
	})
}
