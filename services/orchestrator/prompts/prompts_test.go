// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/datatypes"
)

func TestCompose_EmptyContextIsExplicit(t *testing.T) {
	prompt := Compose(datatypes.RequestHints{}, nil, true)

	assert.Contains(t, prompt, EmptyContextMarker,
		"retrieval finding nothing must be stated, never silently omitted")
	assert.NotContains(t, prompt, "origin of the shopper's request")
}

func TestCompose_SnippetsAreNumberedAndComplete(t *testing.T) {
	snippets := []datatypes.ContextSnippet{
		{ProductId: "p1", Name: "Trail Shoe", Description: "Grippy sole", Price: 89.99, Stock: 4, Category: "footwear"},
		{ProductId: "p2", Name: "Road Shoe", Description: "Light mesh", Price: 120, Stock: 0, Category: "footwear"},
	}
	prompt := Compose(datatypes.RequestHints{}, snippets, true)

	assert.Contains(t, prompt, "1. Trail Shoe (id p1, category footwear): Grippy sole [price 89.99, stock 4]")
	assert.Contains(t, prompt, "2. Road Shoe (id p2, category footwear): Light mesh [price 120.00, stock 0]")
	assert.NotContains(t, prompt, EmptyContextMarker)
}

func TestCompose_HintsBlock(t *testing.T) {
	hints := datatypes.RequestHints{
		City:      "Lisbon",
		Country:   "PT",
		Latitude:  "38.72",
		Longitude: "-9.14",
	}
	prompt := Compose(hints, nil, true)

	assert.Contains(t, prompt, "- city: Lisbon")
	assert.Contains(t, prompt, "- country: PT")
	assert.Contains(t, prompt, "- lat: 38.72")
	assert.Contains(t, prompt, "- lon: -9.14")
}

func TestCompose_ReasoningVariantOmitsArtifacts(t *testing.T) {
	withTools := Compose(datatypes.RequestHints{}, nil, true)
	withoutTools := Compose(datatypes.RequestHints{}, nil, false)

	assert.Contains(t, withTools, "create_document")
	assert.NotContains(t, withoutTools, "create_document")
}

func TestPersona_EnvOverride(t *testing.T) {
	t.Setenv("SYSTEM_ROLE_PROMPT_PERSONA", "You are a terse warehouse robot.")

	prompt := Compose(datatypes.RequestHints{}, nil, true)
	assert.Contains(t, prompt, "terse warehouse robot")
	assert.NotContains(t, prompt, "friendly shopping assistant")
}

func TestTitlePrompt_IncludesMessage(t *testing.T) {
	prompt := TitlePrompt("find running shoes")

	assert.Contains(t, prompt, "find running shoes")
	assert.Contains(t, prompt, "80 characters")
}
