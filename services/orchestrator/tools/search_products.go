// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/datatypes"
)

// ProductFinder performs semantic search over the product catalog.
//
// Satisfied by retrieval.ProductSearcher; declared here so the tool does
// not depend on the retrieval package directly.
type ProductFinder interface {
	Search(ctx context.Context, query string, limit int) ([]datatypes.ContextSnippet, error)
}

const searchProductsDefaultLimit = 5

// SearchProductsTool lets the model run ad-hoc catalog searches beyond the
// retrieval that already seeded the system prompt.
type SearchProductsTool struct {
	finder ProductFinder
}

func NewSearchProductsTool(finder ProductFinder) *SearchProductsTool {
	return &SearchProductsTool{finder: finder}
}

func (t *SearchProductsTool) Name() string { return "search_products" }

func (t *SearchProductsTool) Description() string {
	return "Search the product catalog by meaning. Use when the shopper asks about " +
		"products, availability, or prices that are not already in context."
}

func (t *SearchProductsTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "Natural language search query"},
			"limit": {"type": "integer", "description": "Maximum results, 1-10", "minimum": 1, "maximum": 10}
		},
		"required": ["query"]
	}`)
}

// Execute runs the search and returns matching products as JSON. A search
// that matches nothing returns an empty list, not an error.
func (t *SearchProductsTool) Execute(ctx context.Context, ec *ExecContext,
	args json.RawMessage) (json.RawMessage, error) {
	var parsed struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal(args, &parsed); err != nil {
		return nil, fmt.Errorf("search_products: bad arguments: %w", err)
	}
	if parsed.Query == "" {
		return nil, fmt.Errorf("search_products: query is required")
	}
	limit := parsed.Limit
	if limit <= 0 || limit > 10 {
		limit = searchProductsDefaultLimit
	}

	snippets, err := t.finder.Search(ctx, parsed.Query, limit)
	if err != nil {
		return nil, fmt.Errorf("search_products: %w", err)
	}

	// Surface the hit list on the stream so the client can render product
	// cards without waiting for the model to mention them.
	if side, err := json.Marshal(map[string]any{"query": parsed.Query, "products": snippets}); err == nil {
		_ = ec.Side.EmitSide(t.Name(), side)
	}

	result, err := json.Marshal(map[string]any{"products": snippets})
	if err != nil {
		return nil, fmt.Errorf("search_products: encode result: %w", err)
	}
	return result, nil
}

var _ Tool = (*SearchProductsTool)(nil)
