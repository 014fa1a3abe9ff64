// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools defines the function-calling surface the model can reach
// during a chat turn.
//
// Each tool is a named, JSON-schema-described operation. The model requests
// an invocation; the generation loop executes it synchronously and feeds the
// result back as a tool message. Tools may additionally push side events
// (document previews, progress) onto the turn's event stream through the
// SideChannel, and those events are interleaved in causal order because
// execution happens between the tool_call and tool_result emissions.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/datatypes"
)

// SideChannel receives out-of-band events produced by a tool while it runs.
//
// # Description
//
// Implemented by the turn's stream multiplexer. Events pushed here appear on
// the client stream (and in the durable log) between the tool_call and
// tool_result events for the invocation that produced them.
//
// # Limitations
//
//   - Emit must not be called after the tool's Execute returns.
type SideChannel interface {
	// EmitSide publishes a tool_side event for the named tool.
	EmitSide(toolName string, payload json.RawMessage) error
}

// ExecContext carries per-turn state into a tool invocation.
type ExecContext struct {
	// UserID is the authenticated caller.
	UserID string

	// ConversationID is the conversation the turn belongs to.
	ConversationID string

	// Hints are optional geo hints forwarded from the request.
	Hints datatypes.RequestHints

	// Side is the turn's side-event sink. Never nil during Execute.
	Side SideChannel
}

// Tool is a single model-invocable operation.
//
// # Description
//
// Name and Parameters are advertised to the model in the completion request;
// Execute runs when the model requests the invocation. Implementations must
// be safe for concurrent use, as one registry is shared across turns.
//
// # Outputs
//
//   - Execute returns a JSON document fed back to the model verbatim.
//     An Execute error does not fail the turn: the invoker converts it
//     into an error-payload result so the model can see the failure and
//     carry on.
type Tool interface {
	Name() string
	Description() string

	// Parameters returns the JSON schema for the tool's arguments object.
	Parameters() json.RawMessage

	Execute(ctx context.Context, ec *ExecContext, args json.RawMessage) (json.RawMessage, error)
}

// =============================================================================
// Registry
// =============================================================================

// Registry holds the tools available to a model variant.
//
// Registration happens once at startup; lookups are read-only afterwards,
// so no locking is needed.
type Registry struct {
	byName map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Tool)}
}

// Register adds a tool. Duplicate names are a programming error.
func (r *Registry) Register(t Tool) error {
	if _, exists := r.byName[t.Name()]; exists {
		return fmt.Errorf("tool %q already registered", t.Name())
	}
	r.byName[t.Name()] = t
	return nil
}

// Get returns the named tool, or nil when unknown.
func (r *Registry) Get(name string) Tool {
	return r.byName[name]
}

// List returns all registered tools in name order.
func (r *Registry) List() []Tool {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		out = append(out, r.byName[name])
	}
	return out
}
