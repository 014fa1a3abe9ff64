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
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// HTTP Status Mapping Tests
// =============================================================================

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeUnauthenticated, http.StatusUnauthorized},
		{ErrCodeForbidden, http.StatusForbidden},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeRateLimited, http.StatusTooManyRequests},
		{ErrCodeMalformedRequest, http.StatusBadRequest},
		{ErrCodeTimeout, http.StatusGatewayTimeout},
		{ErrCodeUpstreamUnavailable, http.StatusInternalServerError},
		{ErrCodePersistenceFailure, http.StatusInternalServerError},
		{ErrorCode("something_else"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.HTTPStatus())
		})
	}
}

// =============================================================================
// TurnError Tests
// =============================================================================

func TestTurnError_ErrorString(t *testing.T) {
	withCause := NewTurnError(ErrCodeTimeout, "took too long", errors.New("context deadline exceeded"))
	assert.Equal(t, "timeout: took too long: context deadline exceeded", withCause.Error())

	withoutCause := NewTurnError(ErrCodeForbidden, "not yours", nil)
	assert.Equal(t, "forbidden: not yours", withoutCause.Error())
}

func TestTurnError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := NewTurnError(ErrCodePersistenceFailure, "could not save", cause)

	assert.ErrorIs(t, err, cause)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrCodeRateLimited,
		CodeOf(NewTurnError(ErrCodeRateLimited, "slow down", nil)))

	// Wrapped TurnErrors still classify.
	wrapped := fmt.Errorf("handler: %w", NewTurnError(ErrCodeNotFound, "gone", nil))
	assert.Equal(t, ErrCodeNotFound, CodeOf(wrapped))

	// Uncoded errors fall back to upstream_unavailable.
	assert.Equal(t, ErrCodeUpstreamUnavailable, CodeOf(errors.New("dial tcp: refused")))
}

func TestClientMessageOf_NeverLeaksInternals(t *testing.T) {
	internal := errors.New("dial tcp 10.0.0.5:8080: connection refused")

	msg := ClientMessageOf(internal)
	assert.NotContains(t, msg, "10.0.0.5")
	assert.NotEmpty(t, msg)

	coded := NewTurnError(ErrCodeUpstreamUnavailable, "The model service is currently unavailable", internal)
	assert.Equal(t, "The model service is currently unavailable", ClientMessageOf(coded))
}

// =============================================================================
// Event Taxonomy Tests
// =============================================================================

func TestEventType_IsTerminal(t *testing.T) {
	assert.True(t, EventDone.IsTerminal())
	assert.True(t, EventError.IsTerminal())
	assert.False(t, EventToken.IsTerminal())
	assert.False(t, EventStatus.IsTerminal())
	assert.False(t, EventSources.IsTerminal())
}

func TestDoneEvent_CarriesIdentities(t *testing.T) {
	ev := DoneEvent("c-1", "s-1", "m-1")

	require.Equal(t, EventDone, ev.Type)
	assert.Equal(t, "c-1", ev.ConversationId)
	assert.Equal(t, "s-1", ev.StreamId)
	assert.Equal(t, "m-1", ev.MessageId)
	assert.NotEmpty(t, ev.Id)
	assert.Greater(t, ev.CreatedAt, int64(0))
}
