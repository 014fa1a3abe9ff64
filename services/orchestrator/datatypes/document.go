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
	"time"

	"github.com/weaviate/weaviate/entities/models"
)

// Document is a side artifact created by the model during a turn.
type Document struct {
	Id             string    `json:"document_id"`
	OwnerId        string    `json:"owner_id"`
	ConversationId string    `json:"conversation_id"`
	Title          string    `json:"title"`
	Kind           string    `json:"kind"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// GetDocumentSchema returns the Weaviate class for chat-created documents.
func GetDocumentSchema() *models.Class {
	return &models.Class{
		Class:       "Document",
		Description: "A side document created during a chat turn",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{Name: "document_id", DataType: []string{"text"}, Description: "Unique document identifier"},
			{Name: "owner_id", DataType: []string{"text"}, Description: "User who owns the document"},
			{Name: "conversation_id", DataType: []string{"text"}, Description: "Conversation the document was created in"},
			{Name: "title", DataType: []string{"text"}, Description: "Document title"},
			{Name: "kind", DataType: []string{"text"}, Description: "Document format: text or sheet"},
			{Name: "content", DataType: []string{"text"}, Description: "Full document body"},
			{Name: "created_at", DataType: []string{"number"}, Description: "Creation time in Unix milliseconds"},
		},
	}
}

// DocumentQueryResponse maps the GraphQL Get response for the Document class.
type DocumentQueryResponse struct {
	Get struct {
		Document []DocumentResult `json:"Document"`
	} `json:"Get"`
}

// DocumentResult is a single Document object as returned by GraphQL.
type DocumentResult struct {
	DocumentId     string  `json:"document_id"`
	OwnerId        string  `json:"owner_id"`
	ConversationId string  `json:"conversation_id"`
	Title          string  `json:"title"`
	Kind           string  `json:"kind"`
	Content        string  `json:"content"`
	CreatedAt      float64 `json:"created_at"`
}
