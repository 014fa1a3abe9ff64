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
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTurnRequest() CreateTurnRequest {
	return CreateTurnRequest{
		ConversationId: uuid.NewString(),
		Message: IncomingMessage{
			Id: uuid.NewString(),
			Parts: []MessagePart{
				{Type: PartText, Text: "find running shoes"},
			},
		},
	}
}

// =============================================================================
// Validation Tests
// =============================================================================

func TestCreateTurnRequest_Valid(t *testing.T) {
	req := validTurnRequest()
	req.EnsureDefaults()

	require.NoError(t, req.Validate())
}

func TestCreateTurnRequest_MissingConversationId(t *testing.T) {
	req := validTurnRequest()
	req.ConversationId = ""
	req.EnsureDefaults()

	assert.Error(t, req.Validate())
}

func TestCreateTurnRequest_NonUUIDIdentities(t *testing.T) {
	req := validTurnRequest()
	req.ConversationId = "not-a-uuid"
	req.EnsureDefaults()
	assert.Error(t, req.Validate())

	req = validTurnRequest()
	req.Message.Id = "42"
	req.EnsureDefaults()
	assert.Error(t, req.Validate())
}

func TestCreateTurnRequest_EmptyParts(t *testing.T) {
	req := validTurnRequest()
	req.Message.Parts = nil
	req.EnsureDefaults()

	assert.Error(t, req.Validate())
}

func TestCreateTurnRequest_TooManyParts(t *testing.T) {
	req := validTurnRequest()
	req.Message.Parts = nil
	for i := 0; i <= MaxMessageParts; i++ {
		req.Message.Parts = append(req.Message.Parts, MessagePart{Type: PartText, Text: "x"})
	}
	req.EnsureDefaults()

	assert.Error(t, req.Validate())
}

func TestCreateTurnRequest_OversizedPart(t *testing.T) {
	req := validTurnRequest()
	req.Message.Parts[0].Text = strings.Repeat("a", MaxMessageContentBytes+1)
	req.EnsureDefaults()

	err := req.Validate()
	require.Error(t, err)

	var te *TurnError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, ErrCodeMalformedRequest, te.Code)
}

func TestCreateTurnRequest_PartAtLimit(t *testing.T) {
	req := validTurnRequest()
	req.Message.Parts[0].Text = strings.Repeat("a", MaxMessageContentBytes)
	req.EnsureDefaults()

	assert.NoError(t, req.Validate())
}

func TestCreateTurnRequest_InvalidVariant(t *testing.T) {
	req := validTurnRequest()
	req.Variant = "chat-model-turbo"

	assert.Error(t, req.Validate())
}

func TestCreateTurnRequest_InvalidVisibility(t *testing.T) {
	req := validTurnRequest()
	req.Visibility = "unlisted"

	assert.Error(t, req.Validate())
}

// =============================================================================
// Defaults Tests
// =============================================================================

func TestEnsureDefaults(t *testing.T) {
	req := validTurnRequest()
	req.EnsureDefaults()

	assert.Equal(t, VariantChat, req.Variant)
	assert.Equal(t, VisibilityPrivate, req.Visibility)
	assert.Greater(t, req.Timestamp, int64(0))
}

func TestEnsureDefaults_PreservesExplicitValues(t *testing.T) {
	req := validTurnRequest()
	req.Variant = VariantReasoning
	req.Visibility = VisibilityPublic
	req.Timestamp = 1700000000000
	req.EnsureDefaults()

	assert.Equal(t, VariantReasoning, req.Variant)
	assert.Equal(t, VisibilityPublic, req.Visibility)
	assert.Equal(t, int64(1700000000000), req.Timestamp)
}

// =============================================================================
// PlainText Tests
// =============================================================================

func TestPlainText_ConcatenatesTextParts(t *testing.T) {
	msg := IncomingMessage{
		Parts: []MessagePart{
			{Type: PartText, Text: "find "},
			{Type: PartAttachment, Ref: "img-1"},
			{Type: PartText, Text: "running shoes"},
		},
	}

	assert.Equal(t, "find running shoes", msg.PlainText())
}

func TestPlainText_NoTextParts(t *testing.T) {
	msg := IncomingMessage{
		Parts: []MessagePart{{Type: PartAttachment, Ref: "img-1"}},
	}

	assert.Empty(t, msg.PlainText())
}

// =============================================================================
// Entitlements Tests
// =============================================================================

func TestEntitlementsFor(t *testing.T) {
	assert.Equal(t, 20, EntitlementsFor(UserTypeGuest).MaxMessagesPerDay)
	assert.Equal(t, 100, EntitlementsFor(UserTypeRegular).MaxMessagesPerDay)

	// Unknown tiers fall back to the guest quota.
	assert.Equal(t, 20, EntitlementsFor(UserType("vip")).MaxMessagesPerDay)
}

func TestNewMessageID_UniqueUUIDs(t *testing.T) {
	a := NewMessageID()
	b := NewMessageID()

	assert.NotEqual(t, a, b)
	_, err := uuid.Parse(a)
	assert.NoError(t, err)
}
