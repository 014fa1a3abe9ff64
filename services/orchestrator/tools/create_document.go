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

	"github.com/google/uuid"
)

// DocumentSink persists documents created during a turn (comparison tables,
// gift lists, draft reviews) so the client can open them after the stream.
type DocumentSink interface {
	CreateDocument(ctx context.Context, ownerID, conversationID, title, kind, content string) (string, error)
}

var documentKinds = map[string]bool{"text": true, "sheet": true}

// CreateDocumentTool lets the model spill long-form output into a side
// artifact instead of flooding the chat transcript.
type CreateDocumentTool struct {
	sink DocumentSink
}

func NewCreateDocumentTool(sink DocumentSink) *CreateDocumentTool {
	return &CreateDocumentTool{sink: sink}
}

func (t *CreateDocumentTool) Name() string { return "create_document" }

func (t *CreateDocumentTool) Description() string {
	return "Create a side document (comparison table, list, draft) the shopper can open " +
		"next to the chat. Use for content longer than a few paragraphs."
}

func (t *CreateDocumentTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"title": {"type": "string", "description": "Short document title"},
			"kind": {"type": "string", "enum": ["text", "sheet"], "description": "Document format"},
			"content": {"type": "string", "description": "Full document body"}
		},
		"required": ["title", "kind", "content"]
	}`)
}

// Execute stores the document and announces it on the side channel so the
// client can render a preview card while generation continues.
func (t *CreateDocumentTool) Execute(ctx context.Context, ec *ExecContext,
	args json.RawMessage) (json.RawMessage, error) {
	var parsed struct {
		Title   string `json:"title"`
		Kind    string `json:"kind"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(args, &parsed); err != nil {
		return nil, fmt.Errorf("create_document: bad arguments: %w", err)
	}
	if parsed.Title == "" || parsed.Content == "" {
		return nil, fmt.Errorf("create_document: title and content are required")
	}
	if !documentKinds[parsed.Kind] {
		parsed.Kind = "text"
	}

	docID, err := t.sink.CreateDocument(ctx, ec.UserID, ec.ConversationID,
		parsed.Title, parsed.Kind, parsed.Content)
	if err != nil {
		return nil, fmt.Errorf("create_document: %w", err)
	}

	if side, err := json.Marshal(map[string]any{
		"document_id": docID,
		"title":       parsed.Title,
		"kind":        parsed.Kind,
	}); err == nil {
		_ = ec.Side.EmitSide(t.Name(), side)
	}

	result, err := json.Marshal(map[string]any{"document_id": docID, "title": parsed.Title})
	if err != nil {
		return nil, fmt.Errorf("create_document: encode result: %w", err)
	}
	return result, nil
}

// NewDocumentID returns a fresh document identifier.
func NewDocumentID() string { return uuid.NewString() }

var _ Tool = (*CreateDocumentTool)(nil)
