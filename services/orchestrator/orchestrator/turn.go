// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator runs one chat turn end to end: validation, quota,
// retrieval, generation, streaming, and the single commit of the result.
//
// The turn's lifetime is decoupled from the requesting connection. Once
// generation starts it runs to completion (or to the request ceiling) on a
// detached context, publishing into the resumable stream log; clients that
// disconnect reattach through the resume manager without affecting the
// turn.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/AleutianStorefront/pkg/extensions"
	"github.com/AleutianAI/AleutianStorefront/services/llm"
	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/observability"
	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/prompts"
	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/resume"
	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/stream"
	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/tools"

	"github.com/google/uuid"
)

var tracer = otel.Tracer("aleutian.orchestrator.turn")

// DefaultRequestCeiling bounds a turn's total wall time. Generation hitting
// the ceiling fails the turn with a timeout event; it never hangs a stream.
const DefaultRequestCeiling = 60 * time.Second

// quotaWindow is the trailing window for the daily message quota.
const quotaWindow = 24 * time.Hour

// TurnStore is the persistence surface a turn needs.
//
// Satisfied by store.WeaviateStore; narrowed here so tests can fake it.
type TurnStore interface {
	GetConversation(ctx context.Context, conversationID string) (*datatypes.Conversation, error)
	CreateConversation(ctx context.Context, conv datatypes.Conversation) error
	UpdateConversationTitle(ctx context.Context, conversationID, title string) error
	UpdateConversationVisibility(ctx context.Context, conversationID string, visibility datatypes.Visibility) error
	DeleteConversation(ctx context.Context, conversationID string) error
	SaveMessage(ctx context.Context, ownerID string, msg datatypes.ChatMessage) error
	ListMessages(ctx context.Context, conversationID string) ([]datatypes.ChatMessage, error)
	MessageCountSince(ctx context.Context, ownerID string, since time.Time) (int, error)
	CreateStreamHandle(ctx context.Context, handle datatypes.StreamHandle) error
	LatestStreamHandle(ctx context.Context, conversationID string) (*datatypes.StreamHandle, error)
}

// ContextSearcher retrieves catalog context for a turn. Satisfied by
// retrieval.ProductSearcher.
type ContextSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]datatypes.ContextSnippet, error)
}

// Config tunes the orchestrator.
type Config struct {
	// RequestCeiling bounds total turn wall time. Zero means the default.
	RequestCeiling time.Duration

	// TitleGeneration enables async LLM titles for new conversations.
	TitleGeneration bool
}

// Orchestrator coordinates the full chat turn pipeline.
//
// # Thread Safety
//
// Safe for concurrent use; each turn carries its own state.
type Orchestrator struct {
	llm      llm.LLMClient
	store    TurnStore
	searcher ContextSearcher
	streams  *resume.Manager
	registry *tools.Registry
	metrics  *observability.ChatMetrics
	config   Config
}

// NewOrchestrator wires the turn pipeline.
func NewOrchestrator(llmClient llm.LLMClient, st TurnStore, searcher ContextSearcher,
	streams *resume.Manager, registry *tools.Registry,
	metrics *observability.ChatMetrics, config Config) *Orchestrator {
	if config.RequestCeiling <= 0 {
		config.RequestCeiling = DefaultRequestCeiling
	}
	return &Orchestrator{
		llm:      llmClient,
		store:    st,
		searcher: searcher,
		streams:  streams,
		registry: registry,
		metrics:  metrics,
		config:   config,
	}
}

// TurnRef identifies a started turn.
type TurnRef struct {
	ConversationId string
	StreamId       string
}

// StartTurn validates and commits the user's message, then launches
// generation in the background.
//
// # Description
//
// Runs the pre-stream phase synchronously: request validation, conversation
// load-or-create, ownership check, daily quota, user message persistence,
// and stream handle creation. Failures here surface as TurnErrors the
// handler maps to terminal HTTP statuses.
//
// Generation then proceeds on a context detached from the request, bounded
// by the configured ceiling, so client disconnects never abort a turn.
//
// # Edge Cases
//
//   - Writing to a public conversation owned by someone else is forbidden;
//     public visibility widens reads only.
//   - A caller exactly at the quota limit is allowed one more turn.
func (o *Orchestrator) StartTurn(ctx context.Context, user *extensions.AuthInfo,
	req *datatypes.CreateTurnRequest, hints datatypes.RequestHints) (*TurnRef, error) {
	ctx, span := tracer.Start(ctx, "StartTurn")
	defer span.End()

	req.EnsureDefaults()
	if err := req.Validate(); err != nil {
		var te *datatypes.TurnError
		if errors.As(err, &te) {
			return nil, te
		}
		return nil, datatypes.NewTurnError(datatypes.ErrCodeMalformedRequest,
			"Request validation failed", err)
	}

	conv, isNew, err := o.loadOrCreateConversation(ctx, user, req)
	if err != nil {
		return nil, err
	}

	if err := o.checkQuota(ctx, user); err != nil {
		return nil, err
	}

	userMsg := datatypes.ChatMessage{
		Id:             req.Message.Id,
		ConversationId: conv.Id,
		Role:           datatypes.RoleUser,
		Parts:          req.Message.Parts,
		CreatedAt:      time.Now().UnixMilli(),
	}
	if err := o.store.SaveMessage(ctx, user.UserID, userMsg); err != nil {
		return nil, datatypes.NewTurnError(datatypes.ErrCodePersistenceFailure,
			"Your message could not be saved", err)
	}

	streamID := uuid.New().String()
	handle := datatypes.StreamHandle{
		Id:             streamID,
		ConversationId: conv.Id,
		CreatedAt:      time.Now().UnixMilli(),
	}
	if err := o.store.CreateStreamHandle(ctx, handle); err != nil {
		return nil, datatypes.NewTurnError(datatypes.ErrCodePersistenceFailure,
			"The response stream could not be registered", err)
	}

	ch, err := o.streams.OpenChannel(streamID, conv.Id)
	if err != nil {
		return nil, datatypes.NewTurnError(datatypes.ErrCodePersistenceFailure,
			"The response stream could not be opened", err)
	}

	// Generation survives the request connection. WithoutCancel keeps
	// trace linkage while dropping the caller's cancellation.
	genCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.config.RequestCeiling)
	go func() {
		defer cancel()
		o.runGeneration(genCtx, user, req, conv, hints, ch, streamID)
	}()

	if isNew && o.config.TitleGeneration {
		titleCtx, titleCancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		go func() {
			defer titleCancel()
			o.generateTitle(titleCtx, conv.Id, req.Message.PlainText())
		}()
	}

	return &TurnRef{ConversationId: conv.Id, StreamId: streamID}, nil
}

func (o *Orchestrator) loadOrCreateConversation(ctx context.Context,
	user *extensions.AuthInfo, req *datatypes.CreateTurnRequest) (*datatypes.Conversation, bool, error) {
	conv, err := o.store.GetConversation(ctx, req.ConversationId)
	if err == nil {
		if conv.OwnerId != user.UserID {
			return nil, false, datatypes.NewTurnError(datatypes.ErrCodeForbidden,
				"You do not have access to this conversation", nil)
		}
		return conv, false, nil
	}
	if !errors.Is(err, datatypes.ErrNotFound) {
		return nil, false, datatypes.NewTurnError(datatypes.ErrCodePersistenceFailure,
			"The conversation could not be loaded", err)
	}

	created := datatypes.Conversation{
		Id:         req.ConversationId,
		OwnerId:    user.UserID,
		Title:      "New conversation",
		Visibility: req.Visibility,
		CreatedAt:  time.Now().UnixMilli(),
	}
	if err := o.store.CreateConversation(ctx, created); err != nil {
		return nil, false, datatypes.NewTurnError(datatypes.ErrCodePersistenceFailure,
			"The conversation could not be created", err)
	}
	return &created, true, nil
}

func (o *Orchestrator) checkQuota(ctx context.Context, user *extensions.AuthInfo) error {
	count, err := o.store.MessageCountSince(ctx, user.UserID, time.Now().Add(-quotaWindow))
	if err != nil {
		return datatypes.NewTurnError(datatypes.ErrCodePersistenceFailure,
			"Your usage could not be checked", err)
	}
	ent := datatypes.EntitlementsFor(datatypes.UserType(user.UserType))
	if count > ent.MaxMessagesPerDay {
		o.metrics.RecordQuotaRejection(user.UserType)
		return datatypes.NewTurnError(datatypes.ErrCodeRateLimited,
			"You have exceeded your daily message limit. Please try again later.", nil)
	}
	return nil
}

// runGeneration executes the streaming phase of a turn.
func (o *Orchestrator) runGeneration(ctx context.Context, user *extensions.AuthInfo,
	req *datatypes.CreateTurnRequest, conv *datatypes.Conversation,
	hints datatypes.RequestHints, ch *resume.Channel, streamID string) {
	ctx, span := tracer.Start(ctx, "RunGeneration")
	defer span.End()

	started := time.Now()
	o.metrics.StreamStarted()
	defer o.metrics.StreamEnded()
	defer o.streams.Release(streamID)

	mux := stream.NewMultiplexer(ch, conv.Id, streamID)

	acc, err := NewAnswerAccumulator()
	if err != nil {
		slog.Error("Failed to allocate answer accumulator", "error", err)
		o.failTurn(mux, req.Variant, started, err)
		return
	}
	defer acc.Destroy()

	_ = mux.EmitStatus("Searching the catalog…")
	snippets := o.retrieveContext(ctx, req)
	_ = mux.EmitSources(snippets)

	messages := o.buildPromptMessages(ctx, req, conv, hints, snippets)

	withTools := req.Variant != datatypes.VariantReasoning
	var registry *tools.Registry
	if withTools {
		registry = o.registry
	}

	var sawFirstToken bool
	callback := func(ev llm.StreamEvent) error {
		switch ev.Type {
		case llm.StreamEventToken:
			if !sawFirstToken {
				sawFirstToken = true
				o.metrics.RecordTimeToFirstToken(req.Variant, time.Since(started).Seconds())
			}
			if err := acc.Write(ev.Content); err != nil {
				return err
			}
			return mux.EmitToken(ev.Content)
		case llm.StreamEventThinking:
			return mux.EmitThinking(ev.Content)
		case llm.StreamEventToolCall:
			return mux.EmitToolCall(ev.ToolName, ev.ToolPayload)
		case llm.StreamEventToolResult:
			o.metrics.RecordToolInvocation(ev.ToolName, true)
			return mux.EmitToolResult(ev.ToolName, ev.ToolPayload)
		}
		return fmt.Errorf("unhandled stream event type %q", ev.Type)
	}

	chatReq := llm.ChatRequest{
		Messages: messages,
		Variant:  req.Variant,
		Tools:    registry,
		Exec: &tools.ExecContext{
			UserID:         user.UserID,
			ConversationID: conv.Id,
			Hints:          hints,
			Side:           mux,
		},
	}
	if err := o.llm.ChatStream(ctx, chatReq, callback); err != nil {
		o.failTurn(mux, req.Variant, started, err)
		return
	}

	answer, contentHash, err := acc.Finalize()
	if err != nil {
		o.failTurn(mux, req.Variant, started, err)
		return
	}

	var assistantID string
	if answer == "" {
		slog.Warn("No assistant content to commit, skipping save",
			"conversation_id", conv.Id, "stream_id", streamID)
	} else {
		assistantID = datatypes.NewMessageID()
		assistantMsg := datatypes.ChatMessage{
			Id:             assistantID,
			ConversationId: conv.Id,
			Role:           datatypes.RoleAssistant,
			Parts:          []datatypes.MessagePart{{Type: datatypes.PartText, Text: answer}},
			CreatedAt:      time.Now().UnixMilli(),
		}
		// The answer has already been delivered; a commit failure must not
		// retract it. The stream still terminates normally.
		if err := o.store.SaveMessage(ctx, user.UserID, assistantMsg); err != nil {
			slog.Error("Assistant message commit failed",
				"conversation_id", conv.Id, "stream_id", streamID,
				"message_id", assistantID, "error", err)
			o.metrics.RecordError(string(datatypes.ErrCodePersistenceFailure))
		}
	}

	if err := mux.Done(assistantID); err != nil {
		slog.Error("Failed to publish done event", "stream_id", streamID, "error", err)
	}
	o.metrics.RecordTurn(req.Variant, true)
	o.metrics.RecordTurnDuration(req.Variant, time.Since(started).Seconds(), true)
	slog.Info("Turn complete", "conversation_id", conv.Id, "stream_id", streamID,
		"assistant_message_id", assistantID, "content_hash", contentHash[:16],
		"duration_ms", time.Since(started).Milliseconds())
}

// retrieveContext runs catalog retrieval. Best-effort: failures degrade to
// an empty context rather than failing the turn.
func (o *Orchestrator) retrieveContext(ctx context.Context, req *datatypes.CreateTurnRequest) []datatypes.ContextSnippet {
	snippets, err := o.searcher.Search(ctx, req.Message.PlainText(), 0)
	if err != nil {
		slog.Warn("Catalog retrieval failed, continuing without context", "error", err)
		snippets = nil
	}
	o.metrics.RecordRetrievalHits(len(snippets))
	return snippets
}

// buildPromptMessages assembles the system prompt plus conversation history
// ending with the current user message.
func (o *Orchestrator) buildPromptMessages(ctx context.Context, req *datatypes.CreateTurnRequest,
	conv *datatypes.Conversation, hints datatypes.RequestHints,
	snippets []datatypes.ContextSnippet) []datatypes.Message {
	withArtifacts := req.Variant != datatypes.VariantReasoning
	system := prompts.Compose(hints, snippets, withArtifacts)
	messages := []datatypes.Message{{Role: datatypes.RoleSystem, Content: system}}

	history, err := o.store.ListMessages(ctx, conv.Id)
	if err != nil {
		slog.Warn("History load failed, generating from current message only", "error", err)
		history = nil
	}

	sawCurrent := false
	for _, msg := range history {
		// Tool transcripts are replayed as part of the assistant turns
		// they produced; skip the raw records.
		if msg.Role != datatypes.RoleUser && msg.Role != datatypes.RoleAssistant {
			continue
		}
		text := msg.PlainText()
		if text == "" {
			continue
		}
		messages = append(messages, datatypes.Message{Role: msg.Role, Content: text})
		if msg.Id == req.Message.Id {
			sawCurrent = true
		}
	}
	if !sawCurrent {
		messages = append(messages, datatypes.Message{
			Role:    datatypes.RoleUser,
			Content: req.Message.PlainText(),
		})
	}
	return messages
}

// failTurn classifies err, publishes the terminal error event, and records
// metrics.
func (o *Orchestrator) failTurn(mux *stream.Multiplexer, variant string,
	started time.Time, err error) {
	turnErr := classifyTurnError(err)
	slog.Error("Turn failed", "variant", variant,
		"error_code", string(turnErr.Code), "error", err)

	o.metrics.RecordError(string(turnErr.Code))
	o.metrics.RecordTurn(variant, false)
	o.metrics.RecordTurnDuration(variant, time.Since(started).Seconds(), false)

	if failErr := mux.Fail(turnErr); failErr != nil {
		slog.Error("Failed to publish error event", "error", failErr)
	}
}

// classifyTurnError maps an arbitrary generation failure onto the error
// taxonomy, defaulting to upstream_unavailable.
func classifyTurnError(err error) *datatypes.TurnError {
	var te *datatypes.TurnError
	if errors.As(err, &te) {
		return te
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return datatypes.NewTurnError(datatypes.ErrCodeTimeout,
			"The response took too long and was cancelled", err)
	}
	return datatypes.NewTurnError(datatypes.ErrCodeUpstreamUnavailable,
		"The model service is currently unavailable", err)
}

// generateTitle asks the model for a conversation title and stores it.
// Failures are logged and swallowed; the placeholder title remains.
func (o *Orchestrator) generateTitle(ctx context.Context, conversationID, firstMessage string) {
	maxTokens := 64
	title, err := o.llm.Generate(ctx, prompts.TitlePrompt(firstMessage),
		llm.GenerationParams{MaxTokens: &maxTokens})
	if err != nil {
		slog.Warn("Title generation failed", "conversation_id", conversationID, "error", err)
		return
	}
	title = strings.TrimSpace(strings.Trim(strings.TrimSpace(title), `"`))
	if title == "" {
		return
	}
	if len(title) > 80 {
		title = title[:80]
	}
	if err := o.store.UpdateConversationTitle(ctx, conversationID, title); err != nil {
		slog.Warn("Title update failed", "conversation_id", conversationID, "error", err)
	}
}
