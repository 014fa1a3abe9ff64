// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package prompts assembles the system prompt for a chat turn from the
// assistant persona, the caller's request hints, and the retrieved catalog
// context.
package prompts

import (
	"fmt"
	"os"
	"strings"

	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/datatypes"
)

// EmptyContextMarker is inserted when retrieval found nothing relevant, so
// the model states that plainly instead of inventing products.
const EmptyContextMarker = "No matching products were found in the catalog for this query."

const defaultPersona = `You are a friendly shopping assistant for an online storefront.
Keep your responses concise and helpful. Ground every product claim in the
catalog context below; if the context does not contain an answer, say so
rather than guessing. Prices and stock levels come only from the catalog.`

const artifactsBlock = `When the shopper would benefit from a standalone document (a comparison
table, a gift list, a draft review), use the create_document tool instead of
writing it inline. Keep chat responses short and put long-form content in
documents.`

// Persona returns the assistant persona, overridable through
// SYSTEM_ROLE_PROMPT_PERSONA for white-label deployments.
func Persona() string {
	if p := os.Getenv("SYSTEM_ROLE_PROMPT_PERSONA"); p != "" {
		return p
	}
	return defaultPersona
}

// Compose builds the full system prompt for one turn.
//
// # Inputs
//
//   - hints: Optional geo hints; skipped entirely when empty.
//   - snippets: Retrieved catalog context, already ranked. Empty means
//     retrieval found nothing (or was skipped), and the empty-context
//     marker is inserted instead.
//   - withArtifacts: False for the reasoning variant, which has no tools
//     and must not be told about them.
func Compose(hints datatypes.RequestHints, snippets []datatypes.ContextSnippet,
	withArtifacts bool) string {
	var b strings.Builder
	b.WriteString(Persona())

	if !hints.Empty() {
		b.WriteString("\n\nAbout the origin of the shopper's request:\n")
		if hints.City != "" {
			fmt.Fprintf(&b, "- city: %s\n", hints.City)
		}
		if hints.Country != "" {
			fmt.Fprintf(&b, "- country: %s\n", hints.Country)
		}
		if hints.Latitude != "" || hints.Longitude != "" {
			fmt.Fprintf(&b, "- lat: %s\n- lon: %s\n", hints.Latitude, hints.Longitude)
		}
	}

	b.WriteString("\n\nCatalog context:\n")
	if len(snippets) == 0 {
		b.WriteString(EmptyContextMarker)
		b.WriteString("\n")
	} else {
		for i, s := range snippets {
			fmt.Fprintf(&b, "%d. %s (id %s, category %s): %s [price %.2f, stock %d]\n",
				i+1, s.Name, s.ProductId, s.Category, s.Description, s.Price, s.Stock)
		}
	}

	if withArtifacts {
		b.WriteString("\n")
		b.WriteString(artifactsBlock)
	}
	return b.String()
}

// TitlePrompt asks the model for a short conversation title based on the
// user's first message.
func TitlePrompt(firstMessage string) string {
	return "Generate a short title (at most 80 characters, no quotes, no colon) " +
		"summarizing this message from a shopper:\n\n" + firstMessage
}
