// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retrieval performs semantic search over the product catalog to
// ground model output in real inventory.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/datatypes"
)

var tracer = otel.Tracer("aleutian.orchestrator.retrieval")

// SearchConfig controls retrieval behavior.
type SearchConfig struct {
	// TopK is the maximum number of products returned per query.
	TopK int

	// MinCertainty drops weak matches. Weaviate certainty is in [0, 1].
	MinCertainty float32

	// MaxQueryLength truncates pathological queries before embedding.
	MaxQueryLength int
}

// DefaultSearchConfig returns production defaults.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		TopK:           5,
		MinCertainty:   0.6,
		MaxQueryLength: 2048,
	}
}

// ProductSearcher retrieves catalog products by semantic similarity.
//
// # Description
//
// Runs nearText queries against the Product class. The class's configured
// vectorizer embeds both products and queries, so no separate embedding
// call is needed here.
//
// # Thread Safety
//
// Safe for concurrent use. The underlying Weaviate client handles
// connection pooling.
type ProductSearcher struct {
	client *weaviate.Client
	config SearchConfig
}

// NewProductSearcher creates a searcher with validated config.
func NewProductSearcher(client *weaviate.Client, config SearchConfig) *ProductSearcher {
	defaults := DefaultSearchConfig()
	if config.TopK < 1 {
		slog.Warn("Invalid TopK config, using default",
			"provided", config.TopK, "default", defaults.TopK)
		config.TopK = defaults.TopK
	}
	if config.MinCertainty < 0 || config.MinCertainty > 1 {
		slog.Warn("Invalid MinCertainty config, using default",
			"provided", config.MinCertainty, "default", defaults.MinCertainty)
		config.MinCertainty = defaults.MinCertainty
	}
	if config.MaxQueryLength < 1 {
		slog.Warn("Invalid MaxQueryLength config, using default",
			"provided", config.MaxQueryLength, "default", defaults.MaxQueryLength)
		config.MaxQueryLength = defaults.MaxQueryLength
	}
	return &ProductSearcher{client: client, config: config}
}

// Search retrieves up to limit products semantically similar to query.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout.
//   - query: The shopper's message text.
//   - limit: Maximum results; values < 1 fall back to the configured TopK.
//
// # Outputs
//
//   - []datatypes.ContextSnippet: Ranked matches, strongest first. Empty
//     slice (not nil error) when nothing clears MinCertainty.
//   - error: Non-nil only when the query itself fails. Callers treat
//     retrieval as best-effort and degrade to an empty context.
func (s *ProductSearcher) Search(ctx context.Context, query string, limit int) ([]datatypes.ContextSnippet, error) {
	ctx, span := tracer.Start(ctx, "ProductSearch")
	defer span.End()

	if limit < 1 {
		limit = s.config.TopK
	}
	if len(query) > s.config.MaxQueryLength {
		slog.Debug("Truncated query for retrieval",
			"originalLen", len(query), "truncatedLen", s.config.MaxQueryLength)
		query = query[:s.config.MaxQueryLength]
	}

	nearText := s.client.GraphQL().NearTextArgBuilder().
		WithConcepts([]string{query}).
		WithCertainty(s.config.MinCertainty)

	fields := []graphql.Field{
		{Name: "product_id"},
		{Name: "name"},
		{Name: "description"},
		{Name: "price"},
		{Name: "stock"},
		{Name: "category"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "certainty"},
		}},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName("Product").
		WithFields(fields...).
		WithNearText(nearText).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		slog.Error("Product search failed", "error", err)
		return nil, fmt.Errorf("weaviate product search failed: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.ProductQueryResponse](result)
	if err != nil {
		slog.Error("Failed to parse product search results", "error", err)
		return nil, fmt.Errorf("failed to parse results: %w", err)
	}

	snippets := make([]datatypes.ContextSnippet, 0, len(parsed.Get.Product))
	for i, p := range parsed.Get.Product {
		snippets = append(snippets, datatypes.ContextSnippet{
			ProductId:   p.ProductId,
			Name:        p.Name,
			Description: p.Description,
			Price:       p.Price,
			Stock:       p.Stock,
			Category:    p.Category,
			Rank:        i + 1,
		})
	}
	slog.Debug("Product search complete", "query_len", len(query), "hits", len(snippets))
	return snippets, nil
}
