// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extensions defines the pluggable identity surface of the
// storefront orchestrator.
//
// The open source build ships a no-op provider that authenticates every
// request as a local user; enterprise deployments implement AuthProvider
// against a real identity provider (Okta, Auth0, Azure AD) without any
// changes to the handlers.
package extensions

import (
	"context"
	"errors"
)

// ErrUnauthorized is returned (possibly wrapped) by AuthProvider
// implementations when a token is missing, malformed, or expired.
var ErrUnauthorized = errors.New("unauthorized")

// =============================================================================
// Auth Types
// =============================================================================

// AuthInfo contains the authenticated caller's identity.
//
// # Fields
//
//   - UserID: Unique identifier for the user. Never empty.
//   - Email: Optional email address.
//   - UserType: Quota tier ("guest", "regular"). Defaults to guest when
//     the provider does not supply one.
type AuthInfo struct {
	UserID   string
	Email    string
	UserType string
}

// AuthProvider validates authentication tokens and returns user identity.
//
// Implementations must be safe for concurrent use by multiple goroutines.
//
// # Open Source Behavior
//
// The default NopAuthProvider always returns a valid "local-user" in the
// regular tier, so the service functions without identity infrastructure.
type AuthProvider interface {
	// Validate checks if the token is valid and returns the user's identity.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation and timeout control.
	//   - token: The bearer token (JWT, session ID, API key, etc.).
	//
	// # Outputs
	//
	//   - *AuthInfo: User identity information if valid.
	//   - error: ErrUnauthorized (or wrapped) if invalid.
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// NopAuthProvider is the default authentication provider for open source.
//
// It always returns a valid local user in the regular tier, enabling the
// service to function without any authentication infrastructure.
//
// Thread-safe: this implementation has no mutable state.
type NopAuthProvider struct{}

// Validate always returns a valid local user. The token parameter is
// ignored; any value (including empty string) authenticates.
func (p *NopAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return &AuthInfo{
		UserID:   "local-user",
		UserType: "regular",
	}, nil
}

// StaticTokenAuthProvider authenticates a fixed token-to-user mapping.
//
// Intended for small self-hosted deployments and for tests; tokens are
// compared verbatim, so callers must supply them over TLS only.
type StaticTokenAuthProvider struct {
	// Users maps bearer tokens to identities.
	Users map[string]AuthInfo
}

// Validate looks the token up in the static table.
func (p *StaticTokenAuthProvider) Validate(_ context.Context, token string) (*AuthInfo, error) {
	info, ok := p.Users[token]
	if !ok {
		return nil, ErrUnauthorized
	}
	out := info
	return &out, nil
}

// Compile-time interface compliance checks.
var (
	_ AuthProvider = (*NopAuthProvider)(nil)
	_ AuthProvider = (*StaticTokenAuthProvider)(nil)
)
