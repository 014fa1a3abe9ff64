// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store is the cold persistence layer over Weaviate.
//
// It owns the Conversation, ChatMessage, StreamHandle, Order, and Document
// classes. Commits happen once per turn, after the terminal stream event;
// everything hotter lives in the resume log or in memory.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/datatypes"
)

var tracer = otel.Tracer("aleutian.orchestrator.store")

// WeaviateStore implements conversation persistence over a Weaviate client.
//
// # Thread Safety
//
// Safe for concurrent use. The underlying client pools connections.
type WeaviateStore struct {
	client *weaviate.Client
}

// NewWeaviateStore creates the store. The schema must already exist
// (datatypes.EnsureWeaviateSchema runs at startup).
func NewWeaviateStore(client *weaviate.Client) *WeaviateStore {
	return &WeaviateStore{client: client}
}

// CreateConversation persists a new conversation record.
func (s *WeaviateStore) CreateConversation(ctx context.Context, conv datatypes.Conversation) error {
	ctx, span := tracer.Start(ctx, "CreateConversation")
	defer span.End()

	properties := map[string]interface{}{
		"conversation_id": conv.Id,
		"owner_id":        conv.OwnerId,
		"title":           conv.Title,
		"visibility":      string(conv.Visibility),
		"created_at":      conv.CreatedAt,
	}
	_, err := s.client.Data().Creator().
		WithClassName("Conversation").
		WithProperties(properties).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	slog.Info("Created conversation", "conversation_id", conv.Id, "owner_id", conv.OwnerId)
	return nil
}

// GetConversation loads a conversation by its ID.
//
// Returns datatypes.ErrNotFound (wrapped) when no record matches.
func (s *WeaviateStore) GetConversation(ctx context.Context, conversationID string) (*datatypes.Conversation, error) {
	ctx, span := tracer.Start(ctx, "GetConversation")
	defer span.End()

	result, err := s.conversationRow(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return &datatypes.Conversation{
		Id:         result.ConversationId,
		OwnerId:    result.OwnerId,
		Title:      result.Title,
		Visibility: datatypes.Visibility(result.Visibility),
		CreatedAt:  int64(result.CreatedAt),
	}, nil
}

// UpdateConversationTitle replaces the title, typically once the
// LLM-generated title for the first message arrives.
func (s *WeaviateStore) UpdateConversationTitle(ctx context.Context, conversationID, title string) error {
	return s.mergeConversation(ctx, conversationID, map[string]interface{}{"title": title})
}

// UpdateConversationVisibility switches a conversation between private and
// public.
func (s *WeaviateStore) UpdateConversationVisibility(ctx context.Context, conversationID string,
	visibility datatypes.Visibility) error {
	if !visibility.Valid() {
		return datatypes.NewTurnError(datatypes.ErrCodeMalformedRequest,
			"Unknown visibility value", nil)
	}
	return s.mergeConversation(ctx, conversationID, map[string]interface{}{"visibility": string(visibility)})
}

// DeleteConversation removes the conversation and everything hanging off
// it: messages, stream handles, and documents. The conversation object is
// deleted last so a partial failure leaves the record discoverable.
func (s *WeaviateStore) DeleteConversation(ctx context.Context, conversationID string) error {
	ctx, span := tracer.Start(ctx, "DeleteConversation")
	defer span.End()

	byConversation := filters.Where().
		WithPath([]string{"conversation_id"}).
		WithOperator(filters.Equal).
		WithValueString(conversationID)

	// Dependent classes are independent of each other; delete in parallel.
	g, gCtx := errgroup.WithContext(ctx)
	for _, class := range []string{"ChatMessage", "StreamHandle", "Document"} {
		g.Go(func() error {
			_, err := s.client.Batch().ObjectsBatchDeleter().
				WithClassName(class).
				WithWhere(byConversation).
				Do(gCtx)
			if err != nil {
				return fmt.Errorf("failed to delete %s objects for conversation %s: %w",
					class, conversationID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName("Conversation").
		WithWhere(byConversation).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", conversationID, err)
	}
	slog.Info("Deleted conversation", "conversation_id", conversationID)
	return nil
}

// conversationRow fetches the raw GraphQL row, including the Weaviate UUID
// needed for merges.
func (s *WeaviateStore) conversationRow(ctx context.Context, conversationID string) (*datatypes.ConversationResult, error) {
	where := filters.Where().
		WithPath([]string{"conversation_id"}).
		WithOperator(filters.Equal).
		WithValueString(conversationID)

	fields := []graphql.Field{
		{Name: "conversation_id"},
		{Name: "owner_id"},
		{Name: "title"},
		{Name: "visibility"},
		{Name: "created_at"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}}},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName("Conversation").
		WithFields(fields...).
		WithWhere(where).
		WithLimit(1).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate conversation query failed: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.ConversationQueryResponse](result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse conversation results: %w", err)
	}
	if len(parsed.Get.Conversation) == 0 {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, datatypes.ErrNotFound)
	}
	return &parsed.Get.Conversation[0], nil
}

func (s *WeaviateStore) mergeConversation(ctx context.Context, conversationID string,
	properties map[string]interface{}) error {
	ctx, span := tracer.Start(ctx, "MergeConversation")
	defer span.End()

	row, err := s.conversationRow(ctx, conversationID)
	if err != nil {
		return err
	}
	err = s.client.Data().Updater().
		WithMerge().
		WithClassName("Conversation").
		WithID(row.Additional.ID).
		WithProperties(properties).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to update conversation %s: %w", conversationID, err)
	}
	return nil
}

// nowMillis exists so tests can pin time.
var nowMillis = func() int64 { return time.Now().UnixMilli() }
