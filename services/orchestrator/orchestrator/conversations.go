// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"context"
	"errors"

	"github.com/AleutianAI/AleutianStorefront/pkg/extensions"
	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianStorefront/services/orchestrator/resume"
)

// ErrNoStream indicates a conversation has no resumable stream. Callers
// render this as an informational empty response, not a failure.
var ErrNoStream = errors.New("no resumable stream")

// loadReadable loads a conversation and enforces read visibility: owners
// always read, public conversations read for anyone.
func (o *Orchestrator) loadReadable(ctx context.Context, user *extensions.AuthInfo,
	conversationID string) (*datatypes.Conversation, error) {
	conv, err := o.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, datatypes.ErrNotFound) {
			return nil, datatypes.NewTurnError(datatypes.ErrCodeNotFound,
				"Conversation not found", err)
		}
		return nil, datatypes.NewTurnError(datatypes.ErrCodePersistenceFailure,
			"The conversation could not be loaded", err)
	}
	if !conv.CanRead(user.UserID) {
		return nil, datatypes.NewTurnError(datatypes.ErrCodeForbidden,
			"You do not have access to this conversation", nil)
	}
	return conv, nil
}

// loadOwned loads a conversation and enforces owner-only access for
// mutating operations.
func (o *Orchestrator) loadOwned(ctx context.Context, user *extensions.AuthInfo,
	conversationID string) (*datatypes.Conversation, error) {
	conv, err := o.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, datatypes.ErrNotFound) {
			return nil, datatypes.NewTurnError(datatypes.ErrCodeNotFound,
				"Conversation not found", err)
		}
		return nil, datatypes.NewTurnError(datatypes.ErrCodePersistenceFailure,
			"The conversation could not be loaded", err)
	}
	if conv.OwnerId != user.UserID {
		return nil, datatypes.NewTurnError(datatypes.ErrCodeForbidden,
			"You do not have access to this conversation", nil)
	}
	return conv, nil
}

// GetConversation returns a conversation the caller may read.
func (o *Orchestrator) GetConversation(ctx context.Context, user *extensions.AuthInfo,
	conversationID string) (*datatypes.Conversation, error) {
	return o.loadReadable(ctx, user, conversationID)
}

// ListMessages returns the messages of a conversation the caller may read,
// oldest first.
func (o *Orchestrator) ListMessages(ctx context.Context, user *extensions.AuthInfo,
	conversationID string) ([]datatypes.ChatMessage, error) {
	if _, err := o.loadReadable(ctx, user, conversationID); err != nil {
		return nil, err
	}
	msgs, err := o.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, datatypes.NewTurnError(datatypes.ErrCodePersistenceFailure,
			"Messages could not be loaded", err)
	}
	return msgs, nil
}

// UpdateVisibility changes a conversation's visibility. Owner only.
func (o *Orchestrator) UpdateVisibility(ctx context.Context, user *extensions.AuthInfo,
	conversationID string, visibility datatypes.Visibility) error {
	if _, err := o.loadOwned(ctx, user, conversationID); err != nil {
		return err
	}
	if err := o.store.UpdateConversationVisibility(ctx, conversationID, visibility); err != nil {
		return datatypes.NewTurnError(datatypes.ErrCodePersistenceFailure,
			"Visibility could not be updated", err)
	}
	return nil
}

// DeleteConversation removes a conversation and all dependent records.
// Owner only; public visibility never grants deletion.
func (o *Orchestrator) DeleteConversation(ctx context.Context, user *extensions.AuthInfo,
	conversationID string) error {
	if _, err := o.loadOwned(ctx, user, conversationID); err != nil {
		return err
	}
	if err := o.store.DeleteConversation(ctx, conversationID); err != nil {
		return datatypes.NewTurnError(datatypes.ErrCodePersistenceFailure,
			"The conversation could not be deleted", err)
	}
	return nil
}

// Resume reattaches to the most recent stream of a conversation.
//
// # Description
//
// Locates the conversation's latest stream handle and subscribes from the
// caller's cursor. Events already past the cursor replay immediately from
// the durable log; a still-live stream then follows in real time. A stream
// whose producer died is finalized with an interrupted error event before
// replay, so resumers always observe a terminal event.
//
// # Edge Cases
//
//   - A conversation with no streams yet returns ErrNoStream.
//   - A handle whose log has expired returns ErrNoStream. Clients see an
//     informational empty state rather than an error in both cases.
func (o *Orchestrator) Resume(ctx context.Context, user *extensions.AuthInfo,
	conversationID string, fromSeq uint64) (<-chan datatypes.StreamEvent, string, error) {
	if _, err := o.loadReadable(ctx, user, conversationID); err != nil {
		o.metrics.RecordResume("denied")
		return nil, "", err
	}

	handle, err := o.store.LatestStreamHandle(ctx, conversationID)
	if err != nil {
		if errors.Is(err, datatypes.ErrNotFound) {
			o.metrics.RecordResume("no_stream")
			return nil, "", ErrNoStream
		}
		o.metrics.RecordResume("error")
		return nil, "", datatypes.NewTurnError(datatypes.ErrCodePersistenceFailure,
			"The stream handle could not be loaded", err)
	}

	events, err := o.streams.Subscribe(ctx, handle.Id, fromSeq)
	if err != nil {
		if errors.Is(err, resume.ErrUnknownStream) {
			o.metrics.RecordResume("expired")
			return nil, "", ErrNoStream
		}
		o.metrics.RecordResume("error")
		return nil, "", datatypes.NewTurnError(datatypes.ErrCodePersistenceFailure,
			"The stream could not be resumed", err)
	}
	o.metrics.RecordResume("ok")
	return events, handle.Id, nil
}

// Attach subscribes to a stream the caller just started. Skips the policy
// and handle lookup that Resume performs; the turn pipeline already
// established ownership.
func (o *Orchestrator) Attach(ctx context.Context, streamID string, fromSeq uint64) (<-chan datatypes.StreamEvent, error) {
	events, err := o.streams.Subscribe(ctx, streamID, fromSeq)
	if err != nil {
		if errors.Is(err, resume.ErrUnknownStream) {
			return nil, ErrNoStream
		}
		return nil, datatypes.NewTurnError(datatypes.ErrCodePersistenceFailure,
			"The stream could not be opened", err)
	}
	return events, nil
}
