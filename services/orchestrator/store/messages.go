// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"

	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/datatypes"
)

// SaveMessage persists one chat message.
//
// # Description
//
// Parts are stored as a JSON blob; a SHA-256 hash of the plain text is
// stored alongside for integrity checks. The owner is denormalized onto
// every message so daily quota aggregates never need a join.
func (s *WeaviateStore) SaveMessage(ctx context.Context, ownerID string, msg datatypes.ChatMessage) error {
	ctx, span := tracer.Start(ctx, "SaveMessage")
	defer span.End()

	partsJSON, err := json.Marshal(msg.Parts)
	if err != nil {
		return fmt.Errorf("failed to encode message parts: %w", err)
	}
	hash := sha256.Sum256([]byte(msg.PlainText()))

	createdAt := msg.CreatedAt
	if createdAt == 0 {
		createdAt = nowMillis()
	}
	properties := map[string]interface{}{
		"message_id":      msg.Id,
		"conversation_id": msg.ConversationId,
		"owner_id":        ownerID,
		"role":            msg.Role,
		"parts":           string(partsJSON),
		"content_hash":    hex.EncodeToString(hash[:]),
		"created_at":      createdAt,
	}
	_, err = s.client.Data().Creator().
		WithClassName("ChatMessage").
		WithProperties(properties).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to save message %s: %w", msg.Id, err)
	}
	slog.Debug("Saved message", "message_id", msg.Id,
		"conversation_id", msg.ConversationId, "role", msg.Role)
	return nil
}

// ListMessages returns a conversation's messages in creation order.
func (s *WeaviateStore) ListMessages(ctx context.Context, conversationID string) ([]datatypes.ChatMessage, error) {
	ctx, span := tracer.Start(ctx, "ListMessages")
	defer span.End()

	where := filters.Where().
		WithPath([]string{"conversation_id"}).
		WithOperator(filters.Equal).
		WithValueString(conversationID)

	sortBy := graphql.Sort{Path: []string{"created_at"}, Order: graphql.Asc}
	fields := []graphql.Field{
		{Name: "message_id"},
		{Name: "conversation_id"},
		{Name: "role"},
		{Name: "parts"},
		{Name: "created_at"},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName("ChatMessage").
		WithFields(fields...).
		WithWhere(where).
		WithSort(sortBy).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate message query failed: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.ChatMessageQueryResponse](result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse message results: %w", err)
	}

	messages := make([]datatypes.ChatMessage, 0, len(parsed.Get.ChatMessage))
	for _, row := range parsed.Get.ChatMessage {
		var parts []datatypes.MessagePart
		if err := json.Unmarshal([]byte(row.Parts), &parts); err != nil {
			slog.Warn("Skipping message with undecodable parts",
				"message_id", row.MessageId, "error", err)
			continue
		}
		messages = append(messages, datatypes.ChatMessage{
			Id:             row.MessageId,
			ConversationId: row.ConversationId,
			Role:           row.Role,
			Parts:          parts,
			CreatedAt:      int64(row.CreatedAt),
		})
	}
	return messages, nil
}

// MessageCountSince counts the user's own messages created after the given
// time, across all their conversations. Used for daily quota enforcement;
// assistant and tool messages don't count against the quota.
func (s *WeaviateStore) MessageCountSince(ctx context.Context, ownerID string, since time.Time) (int, error) {
	ctx, span := tracer.Start(ctx, "MessageCountSince")
	defer span.End()

	ownerFilter := filters.Where().
		WithPath([]string{"owner_id"}).
		WithOperator(filters.Equal).
		WithValueString(ownerID)
	roleFilter := filters.Where().
		WithPath([]string{"role"}).
		WithOperator(filters.Equal).
		WithValueString(datatypes.RoleUser)
	sinceFilter := filters.Where().
		WithPath([]string{"created_at"}).
		WithOperator(filters.GreaterThan).
		WithValueNumber(float64(since.UnixMilli()))

	combined := filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{ownerFilter, roleFilter, sinceFilter})

	result, err := s.client.GraphQL().Aggregate().
		WithClassName("ChatMessage").
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		WithWhere(combined).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("weaviate message count failed: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.AggregateCountResponse](result)
	if err != nil {
		return 0, fmt.Errorf("failed to parse count results: %w", err)
	}
	if len(parsed.Aggregate.ChatMessage) == 0 {
		return 0, nil
	}
	return parsed.Aggregate.ChatMessage[0].Meta.Count, nil
}
