// Package handlers provides HTTP handler implementations for the public API.
//
// This file holds the response helpers shared by every endpoint. Errors always
// leave through fail(), which writes the ErrorResponse envelope and logs 5xx
// with the request-scoped logger.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-empatalk-backend/internal/http/middleware"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Echo of X-Request-ID, for correlating with server logs
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go)
	Code string `json:"code" example:"not_found"`
	// Human-readable message
	Message string `json:"message" example:"chat not found"`
}

// ConflictResponse is returned with 409 when a username is taken.
type ConflictResponse struct {
	ErrorResponse
	// Free alternative name, when one was found
	Suggestion string `json:"suggestion,omitempty" example:"alice4821"`
}

// UpstreamErrorResponse is returned by the proxy when the model service fails.
type UpstreamErrorResponse struct {
	ErrorResponse
	Detail string `json:"detail,omitempty" example:"model service timed out"`
}

// MessageResponse carries a plain confirmation.
type MessageResponse struct {
	Message string `json:"message" example:"Password changed successfully"`
}

func envelope(c *gin.Context, code, msg string) ErrorResponse {
	return ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	}
}

// fail aborts with an ErrorResponse. Statuses >= 500 are logged at error
// level.
func fail(c *gin.Context, status int, code, msg string) {
	logServerError(c, status, code, msg)
	c.AbortWithStatusJSON(status, envelope(c, code, msg))
}

// failWith aborts with a caller-built body that embeds an ErrorResponse.
func failWith(c *gin.Context, status int, code, msg string, body any) {
	logServerError(c, status, code, msg)
	c.AbortWithStatusJSON(status, body)
}

func logServerError(c *gin.Context, status int, code, msg string) {
	if status < http.StatusInternalServerError {
		return
	}
	middleware.LoggerFrom(c).Error().
		Int("status", status).
		Str("code", code).
		Str("message", msg).
		Msg("api error")
}

// Fail is the exported variant of fail, used by the router for NoRoute and
// NoMethod.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
