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
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"

	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/datatypes"
)

// GetOrder loads one of the owner's orders by its ID.
//
// The owner filter is part of the query, not a post-check, so another
// user's order behaves exactly like a missing one: datatypes.ErrNotFound.
func (s *WeaviateStore) GetOrder(ctx context.Context, ownerID, orderID string) (*datatypes.Order, error) {
	ctx, span := tracer.Start(ctx, "GetOrder")
	defer span.End()

	orderFilter := filters.Where().
		WithPath([]string{"order_id"}).
		WithOperator(filters.Equal).
		WithValueString(orderID)
	ownerFilter := filters.Where().
		WithPath([]string{"owner_id"}).
		WithOperator(filters.Equal).
		WithValueString(ownerID)
	combined := filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{orderFilter, ownerFilter})

	result, err := s.client.GraphQL().Get().
		WithClassName("Order").
		WithFields(
			graphql.Field{Name: "order_id"},
			graphql.Field{Name: "owner_id"},
			graphql.Field{Name: "status"},
			graphql.Field{Name: "items"},
			graphql.Field{Name: "total"},
			graphql.Field{Name: "created_at"},
		).
		WithWhere(combined).
		WithLimit(1).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate order query failed: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.OrderQueryResponse](result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse order results: %w", err)
	}
	if len(parsed.Get.Order) == 0 {
		return nil, fmt.Errorf("order %s: %w", orderID, datatypes.ErrNotFound)
	}

	row := parsed.Get.Order[0]
	var items []datatypes.OrderItem
	if err := json.Unmarshal([]byte(row.Items), &items); err != nil {
		slog.Warn("Order has undecodable items", "order_id", orderID, "error", err)
	}
	return &datatypes.Order{
		Id:        row.OrderId,
		OwnerId:   row.OwnerId,
		Status:    row.Status,
		Items:     items,
		Total:     row.Total,
		CreatedAt: time.UnixMilli(int64(row.CreatedAt)),
	}, nil
}

// CreateDocument persists a chat-created document and returns its ID.
// Implements the create_document tool's sink.
func (s *WeaviateStore) CreateDocument(ctx context.Context, ownerID, conversationID,
	title, kind, content string) (string, error) {
	ctx, span := tracer.Start(ctx, "CreateDocument")
	defer span.End()

	docID := uuid.NewString()
	properties := map[string]interface{}{
		"document_id":     docID,
		"owner_id":        ownerID,
		"conversation_id": conversationID,
		"title":           title,
		"kind":            kind,
		"content":         content,
		"created_at":      nowMillis(),
	}
	_, err := s.client.Data().Creator().
		WithClassName("Document").
		WithProperties(properties).
		Do(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to save document: %w", err)
	}
	slog.Info("Created document", "document_id", docID, "conversation_id", conversationID)
	return docID, nil
}

// GetDocument loads a document by ID, scoped to its owner.
func (s *WeaviateStore) GetDocument(ctx context.Context, ownerID, documentID string) (*datatypes.Document, error) {
	ctx, span := tracer.Start(ctx, "GetDocument")
	defer span.End()

	docFilter := filters.Where().
		WithPath([]string{"document_id"}).
		WithOperator(filters.Equal).
		WithValueString(documentID)
	ownerFilter := filters.Where().
		WithPath([]string{"owner_id"}).
		WithOperator(filters.Equal).
		WithValueString(ownerID)
	combined := filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{docFilter, ownerFilter})

	result, err := s.client.GraphQL().Get().
		WithClassName("Document").
		WithFields(
			graphql.Field{Name: "document_id"},
			graphql.Field{Name: "owner_id"},
			graphql.Field{Name: "conversation_id"},
			graphql.Field{Name: "title"},
			graphql.Field{Name: "kind"},
			graphql.Field{Name: "content"},
			graphql.Field{Name: "created_at"},
		).
		WithWhere(combined).
		WithLimit(1).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate document query failed: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.DocumentQueryResponse](result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document results: %w", err)
	}
	if len(parsed.Get.Document) == 0 {
		return nil, fmt.Errorf("document %s: %w", documentID, datatypes.ErrNotFound)
	}

	row := parsed.Get.Document[0]
	return &datatypes.Document{
		Id:             row.DocumentId,
		OwnerId:        row.OwnerId,
		ConversationId: row.ConversationId,
		Title:          row.Title,
		Kind:           row.Kind,
		Content:        row.Content,
		CreatedAt:      time.UnixMilli(int64(row.CreatedAt)),
	}, nil
}
