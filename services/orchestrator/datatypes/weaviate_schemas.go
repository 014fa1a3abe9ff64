// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"context"
	"log"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

func GetConversationSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:               "Conversation",
		Description:         "One chat thread owned by a single user.",
		Vectorizer:          "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{IndexTimestamps: true},
		Properties: []*models.Property{
			{
				Name:            "conversation_id",
				DataType:        []string{"text"},
				Description:     "The unique ID for the conversation.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "owner_id",
				DataType:        []string{"text"},
				Description:     "The user who created the conversation. Immutable.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:         "title",
				DataType:     []string{"text"},
				Description:  "Short LLM-generated title from the first user message.",
				Tokenization: "word",
			},
			{
				Name:            "visibility",
				DataType:        []string{"text"},
				Description:     "Read scope: 'private' or 'public'.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "created_at",
				DataType:        []string{"number"},
				Description:     "Creation time in Unix milliseconds.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

func GetChatMessageSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:               "ChatMessage",
		Description:         "One persisted message within a conversation.",
		Vectorizer:          "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{IndexTimestamps: true},
		Properties: []*models.Property{
			{
				Name:            "message_id",
				DataType:        []string{"text"},
				Description:     "Producer-assigned message identity. Unique per conversation.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "conversation_id",
				DataType:        []string{"text"},
				Description:     "The owning conversation.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "owner_id",
				DataType:        []string{"text"},
				Description:     "The conversation owner, denormalized for quota aggregates.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "role",
				DataType:        []string{"text"},
				Description:     "Message role: user, assistant, or tool.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:         "parts",
				DataType:     []string{"text"},
				Description:  "JSON-encoded ordered content parts.",
				Tokenization: "word",
			},
			{
				Name:            "content_hash",
				DataType:        []string{"text"},
				Description:     "SHA-256 hash of the message content for integrity checks.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "created_at",
				DataType:        []string{"number"},
				Description:     "Creation time in Unix milliseconds. Orders messages within a conversation.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

func GetStreamHandleSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:               "StreamHandle",
		Description:         "Identity of one generation turn's durable event channel. Retained for audit.",
		Vectorizer:          "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{IndexTimestamps: true},
		Properties: []*models.Property{
			{
				Name:            "stream_id",
				DataType:        []string{"text"},
				Description:     "Opaque stream identity used to key the event log.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "conversation_id",
				DataType:        []string{"text"},
				Description:     "The owning conversation.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "created_at",
				DataType:        []string{"number"},
				Description:     "Creation time in Unix milliseconds. The latest handle is the resumable one.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

func GetProductSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       "Product",
		Description: "A catalog product indexed for semantic retrieval.",
		Properties: []*models.Property{
			{
				Name:            "product_id",
				DataType:        []string{"text"},
				Description:     "The catalog identity of the product.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:         "name",
				DataType:     []string{"text"},
				Description:  "Display name of the product.",
				Tokenization: "word",
			},
			{
				Name:         "description",
				DataType:     []string{"text"},
				Description:  "Free-text product description.",
				Tokenization: "word",
			},
			{
				Name:            "price",
				DataType:        []string{"number"},
				Description:     "Unit price.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "stock",
				DataType:        []string{"int"},
				Description:     "Units in stock.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "category",
				DataType:        []string{"text"},
				Description:     "Catalog category.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
		},
	}
}

func EnsureWeaviateSchema(client *weaviate.Client) {
	// A list of functions that return our schema definitions.
	schemaGetters := []func() *models.Class{
		GetConversationSchema,
		GetChatMessageSchema,
		GetStreamHandleSchema,
		GetProductSchema,
		GetOrderSchema,
		GetDocumentSchema,
	}

	for _, getSchema := range schemaGetters {
		class := getSchema()
		slog.Info("Checking schema", "class", class.Class)

		// Check if the class already exists.
		_, err := client.Schema().ClassGetter().WithClassName(class.Class).Do(context.Background())
		if err != nil {
			// If it doesn't exist, the client returns an error. We can now create it.
			slog.Info("Schema not found, creating it...", "class", class.Class)
			err := client.Schema().ClassCreator().WithClass(class).Do(context.Background())
			if err != nil {
				// If we fail to create it, it's a fatal error.
				log.Fatalf("Failed to create schema for class %s: %v", class.Class, err)
			}
			slog.Info("Successfully created schema", "class", class.Class)
		} else {
			slog.Info("Schema already exists", "class", class.Class)
		}
	}
}
