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
	"fmt"

	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"

	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/datatypes"
)

// CreateStreamHandle records a turn's stream identity before generation
// starts, so a reconnecting client can discover it.
func (s *WeaviateStore) CreateStreamHandle(ctx context.Context, handle datatypes.StreamHandle) error {
	ctx, span := tracer.Start(ctx, "CreateStreamHandle")
	defer span.End()

	createdAt := handle.CreatedAt
	if createdAt == 0 {
		createdAt = nowMillis()
	}
	properties := map[string]interface{}{
		"stream_id":       handle.Id,
		"conversation_id": handle.ConversationId,
		"created_at":      createdAt,
	}
	_, err := s.client.Data().Creator().
		WithClassName("StreamHandle").
		WithProperties(properties).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to save stream handle %s: %w", handle.Id, err)
	}
	return nil
}

// LatestStreamHandle returns the newest stream handle for a conversation.
//
// Only the most recent turn is offered for resume; older handles remain
// stored for audit. Returns datatypes.ErrNotFound when the conversation has
// never streamed.
func (s *WeaviateStore) LatestStreamHandle(ctx context.Context, conversationID string) (*datatypes.StreamHandle, error) {
	ctx, span := tracer.Start(ctx, "LatestStreamHandle")
	defer span.End()

	where := filters.Where().
		WithPath([]string{"conversation_id"}).
		WithOperator(filters.Equal).
		WithValueString(conversationID)
	sortBy := graphql.Sort{Path: []string{"created_at"}, Order: graphql.Desc}

	result, err := s.client.GraphQL().Get().
		WithClassName("StreamHandle").
		WithFields(
			graphql.Field{Name: "stream_id"},
			graphql.Field{Name: "conversation_id"},
			graphql.Field{Name: "created_at"},
		).
		WithWhere(where).
		WithSort(sortBy).
		WithLimit(1).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate stream handle query failed: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.StreamHandleQueryResponse](result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stream handle results: %w", err)
	}
	if len(parsed.Get.StreamHandle) == 0 {
		return nil, fmt.Errorf("no streams for conversation %s: %w",
			conversationID, datatypes.ErrNotFound)
	}
	row := parsed.Get.StreamHandle[0]
	return &datatypes.StreamHandle{
		Id:             row.StreamId,
		ConversationId: row.ConversationId,
		CreatedAt:      int64(row.CreatedAt),
	}, nil
}
