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
)

// =============================================================================
// Error Taxonomy
// =============================================================================

// ErrorCode classifies a turn failure for HTTP mapping and metrics.
//
// Codes surfaced before generation begins map to a terminal HTTP response;
// failures after the first event are delivered as a single error event on
// the already-open stream instead.
type ErrorCode string

const (
	ErrCodeUnauthenticated     ErrorCode = "unauthenticated"
	ErrCodeForbidden           ErrorCode = "forbidden"
	ErrCodeNotFound            ErrorCode = "not_found"
	ErrCodeRateLimited         ErrorCode = "rate_limited"
	ErrCodeMalformedRequest    ErrorCode = "malformed_request"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeTimeout             ErrorCode = "timeout"
	ErrCodePersistenceFailure  ErrorCode = "persistence_failure"
)

// HTTPStatus maps the code to its pre-stream HTTP response status.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeMalformedRequest:
		return http.StatusBadRequest
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ErrNotFound is the shared sentinel for lookups that matched nothing.
// Callers classify with errors.Is and decide the HTTP mapping themselves.
var ErrNotFound = errors.New("not found")

// TurnError wraps a cause with its taxonomy code and a client-safe message.
type TurnError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *TurnError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *TurnError) Unwrap() error {
	return e.Cause
}

// NewTurnError builds a TurnError. Message must be safe for client display;
// internal details belong in cause only.
func NewTurnError(code ErrorCode, message string, cause error) *TurnError {
	return &TurnError{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the taxonomy code from err, or upstream_unavailable when
// err carries no code.
func CodeOf(err error) ErrorCode {
	var te *TurnError
	if errors.As(err, &te) {
		return te.Code
	}
	return ErrCodeUpstreamUnavailable
}

// ClientMessageOf extracts the client-safe message from err, falling back to
// a generic message so internal details never leak to clients.
func ClientMessageOf(err error) string {
	var te *TurnError
	if errors.As(err, &te) && te.Message != "" {
		return te.Message
	}
	return "An error occurred while processing your request"
}
