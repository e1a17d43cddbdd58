// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable: clients branch on them, while the
// accompanying message is for display. Every error body is an ErrorResponse
// (see response.go).
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "conflict",
//	  "message": "username already taken. Try 'alice4821' or another name.",
//	  "suggestion": "alice4821"
//	}
package handlers

const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeUnauthorized       = "unauthorized"
	ErrCodeNotFound           = "not_found"
	ErrCodeConflict           = "conflict"
	ErrCodeInvalidCredentials = "invalid_credentials"
	ErrCodeRateLimited        = "rate_limited"
	ErrCodeInternal           = "internal_error"
	ErrCodeMethodNotAllowed   = "method_not_allowed"

	// ErrCodeUpstreamUnavailable is only surfaced by the stateless proxy;
	// session appends fold model failures into an assistant turn instead.
	ErrCodeUpstreamUnavailable = "upstream_unavailable"
)
