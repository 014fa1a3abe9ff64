// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the request types for the streaming chat endpoints
// together with their validation rules and the per-tier entitlements used
// by the daily quota check.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Constants for Security Compliance
// =============================================================================

const (
	// MaxMessageContentBytes is the maximum size of a single message part,
	// bounding memory per request.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// MaxMessageParts is the maximum number of parts in a user message.
	MaxMessageParts = 20
)

// Model variants selectable per turn.
const (
	VariantChat      = "chat-model"
	VariantReasoning = "chat-model-reasoning"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// turnValidate is the validator instance for turn request datatypes.
// Initialized in init() with custom validators.
var turnValidate *validator.Validate

func init() {
	turnValidate = validator.New()

	// Custom validator for message part size
	_ = turnValidate.RegisterValidation("maxbytes", validatePartMaxBytes)
}

// validatePartMaxBytes enforces the byte limit on text parts. Byte length is
// checked, not rune count, so memory stays bounded.
func validatePartMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageContentBytes
}

// =============================================================================
// Create-Turn Request
// =============================================================================

// IncomingMessage is the client-authored user message for one turn.
//
// The client assigns the message identity; the orchestrator persists it
// verbatim so retries with the same id are detectable downstream.
type IncomingMessage struct {
	Id    string        `json:"id" validate:"required,uuid4"`
	Parts []MessagePart `json:"parts" validate:"required,min=1,max=20,dive"`
}

// PlainText concatenates the text parts of the incoming message. This is
// the retrieval query for the turn.
func (m *IncomingMessage) PlainText() string {
	var out string
	for _, p := range m.Parts {
		if p.Type == PartText {
			out += p.Text
		}
	}
	return out
}

// CreateTurnRequest is the body of POST /v1/chat/stream.
//
// # Fields
//
//   - ConversationId: Required. Target conversation (UUID v4). Created with
//     the caller as owner when it does not exist yet.
//   - Message: Required. The new user message for this turn.
//   - Variant: Optional. Model variant; defaults to the standard chat model.
//   - Visibility: Optional. Applied only when the conversation is created.
//   - Timestamp: Optional. Client clock in Unix milliseconds, audit only.
//
// # Validation
//
// Uses go-playground/validator. Text parts are limited to 32KB each;
// part counts are bounded; identities must be UUID v4.
type CreateTurnRequest struct {
	ConversationId string          `json:"conversation_id" validate:"required,uuid4"`
	Message        IncomingMessage `json:"message" validate:"required"`
	Variant        string          `json:"variant" validate:"omitempty,oneof=chat-model chat-model-reasoning"`
	Visibility     Visibility      `json:"visibility" validate:"omitempty,oneof=private public"`
	Timestamp      int64           `json:"timestamp" validate:"omitempty,gt=0"`
}

// Validate validates the request after JSON binding.
func (r *CreateTurnRequest) Validate() error {
	if err := turnValidate.Struct(r); err != nil {
		return err
	}
	for i := range r.Message.Parts {
		if r.Message.Parts[i].Type == PartText &&
			len(r.Message.Parts[i].Text) > MaxMessageContentBytes {
			return &TurnError{
				Code:    ErrCodeMalformedRequest,
				Message: "message part exceeds the 32KB limit",
			}
		}
	}
	return nil
}

// EnsureDefaults populates optional fields not supplied by the client.
func (r *CreateTurnRequest) EnsureDefaults() {
	if r.Variant == "" {
		r.Variant = VariantChat
	}
	if r.Visibility == "" {
		r.Visibility = VisibilityPrivate
	}
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}
}

// =============================================================================
// Request Hints
// =============================================================================

// RequestHints carries situational context folded into the prompt. Values
// come from edge headers when present and are best-effort.
type RequestHints struct {
	City      string `json:"city,omitempty"`
	Country   string `json:"country,omitempty"`
	Latitude  string `json:"latitude,omitempty"`
	Longitude string `json:"longitude,omitempty"`
}

// Empty reports whether no hint fields are set.
func (h RequestHints) Empty() bool {
	return h == RequestHints{}
}

// =============================================================================
// Entitlements
// =============================================================================

// UserType selects a quota tier.
type UserType string

const (
	UserTypeGuest   UserType = "guest"
	UserTypeRegular UserType = "regular"
)

// Entitlements bounds a user tier's daily usage. The quota is derived by
// counting the user's messages in the trailing 24 hours; a caller sitting
// exactly at the limit is allowed one more turn.
type Entitlements struct {
	MaxMessagesPerDay int
}

// EntitlementsByUserType maps each tier to its limits.
var EntitlementsByUserType = map[UserType]Entitlements{
	UserTypeGuest:   {MaxMessagesPerDay: 20},
	UserTypeRegular: {MaxMessagesPerDay: 100},
}

// EntitlementsFor returns the tier limits for t, defaulting unknown tiers
// to guest.
func EntitlementsFor(t UserType) Entitlements {
	if e, ok := EntitlementsByUserType[t]; ok {
		return e
	}
	return EntitlementsByUserType[UserTypeGuest]
}

// NewMessageID generates a producer-assigned message identity.
func NewMessageID() string {
	return uuid.New().String()
}
