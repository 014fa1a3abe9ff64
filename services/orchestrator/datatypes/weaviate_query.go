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
	"encoding/json"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"
)

// =============================================================================
// Generic GraphQL Response Parser
// =============================================================================

// ParseGraphQLResponse parses a Weaviate GraphQL response into the target type.
//
// # Description
//
// This generic function encapsulates the marshal/unmarshal pattern required to
// convert Weaviate's dynamic response (map[string]models.JSONObject) into a
// strongly-typed Go struct. The target type T must have json tags matching
// the expected response shape.
//
// # Inputs
//
//   - resp: The GraphQL response from the Weaviate client's Do() method.
//
// # Outputs
//
//   - *T: Pointer to the parsed struct.
//   - error: Non-nil if response is nil or parsing fails.
//
// # Limitations
//
//   - Type mismatches result in zero values, not errors.
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}

	return &result, nil
}

// =============================================================================
// Common Weaviate Response Types
// =============================================================================

// ConversationQueryResponse is the typed shape of Conversation class queries.
type ConversationQueryResponse struct {
	Get struct {
		Conversation []ConversationResult `json:"Conversation"`
	} `json:"Get"`
}

// ConversationResult is a single conversation row with its Weaviate UUID.
type ConversationResult struct {
	ConversationId string  `json:"conversation_id"`
	OwnerId        string  `json:"owner_id"`
	Title          string  `json:"title"`
	Visibility     string  `json:"visibility"`
	CreatedAt      float64 `json:"created_at"`
	Additional     struct {
		ID string `json:"id"`
	} `json:"_additional"`
}

// ChatMessageQueryResponse is the typed shape of ChatMessage class queries.
type ChatMessageQueryResponse struct {
	Get struct {
		ChatMessage []ChatMessageResult `json:"ChatMessage"`
	} `json:"Get"`
}

// ChatMessageResult is a single message row.
type ChatMessageResult struct {
	MessageId      string  `json:"message_id"`
	ConversationId string  `json:"conversation_id"`
	OwnerId        string  `json:"owner_id"`
	Role           string  `json:"role"`
	Parts          string  `json:"parts"`
	CreatedAt      float64 `json:"created_at"`
}

// StreamHandleQueryResponse is the typed shape of StreamHandle class queries.
type StreamHandleQueryResponse struct {
	Get struct {
		StreamHandle []StreamHandleResult `json:"StreamHandle"`
	} `json:"Get"`
}

// StreamHandleResult is a single stream handle row.
type StreamHandleResult struct {
	StreamId       string  `json:"stream_id"`
	ConversationId string  `json:"conversation_id"`
	CreatedAt      float64 `json:"created_at"`
}

// ProductQueryResponse is the typed shape of Product class nearText queries.
type ProductQueryResponse struct {
	Get struct {
		Product []ProductResult `json:"Product"`
	} `json:"Get"`
}

// ProductResult is a single retrieved product with its relevance certainty.
type ProductResult struct {
	ProductId   string  `json:"product_id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Stock       int     `json:"stock"`
	Category    string  `json:"category"`
	Additional  struct {
		Certainty float64 `json:"certainty"`
	} `json:"_additional"`
}

// AggregateCountResponse is the typed shape of Aggregate meta count queries.
type AggregateCountResponse struct {
	Aggregate struct {
		ChatMessage []struct {
			Meta struct {
				Count int `json:"count"`
			} `json:"meta"`
		} `json:"ChatMessage"`
	} `json:"Aggregate"`
}
