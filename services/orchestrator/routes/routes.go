// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianStorefront/pkg/extensions"
	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/handlers"
	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/middleware"
	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/observability"
	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/orchestrator"
)

// SetupRoutes wires the HTTP surface onto the router.
//
// All /v1 routes require authentication; /health and /metrics do not.
func SetupRoutes(router *gin.Engine, orch *orchestrator.Orchestrator,
	authProvider extensions.AuthProvider, metrics *observability.ChatMetrics) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	chat := handlers.NewChatHandler(orch, metrics)
	conversations := handlers.NewConversationHandler(orch, metrics)

	// API version 1 group
	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(authProvider))
	{
		v1.POST("/chat/stream", chat.HandleCreateTurn)
		v1.GET("/chat/stream", chat.HandleResume)
		v1.GET("/chat/ws", chat.HandleStreamWebSocket)

		convGroup := v1.Group("/conversations")
		{
			convGroup.DELETE("/:conversationId", conversations.HandleDelete)
			convGroup.GET("/:conversationId/messages", conversations.HandleListMessages)
			convGroup.PATCH("/:conversationId/visibility", conversations.HandleUpdateVisibility)
		}
	}
}
