// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides the request ID injector, panic recovery and access to the
// request-scoped zerolog logger that RedactingLogger attaches.
//
// Recommended order: RequestID, RedactingLogger, Recovery, so that panics
// are logged with the correlation ID.
package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	loggerKey       = "logger"

	// maxQueryLogLength caps the logged raw query in bytes.
	maxQueryLogLength = 2048
)

// RequestID reuses an incoming X-Request-ID or generates a UUIDv4, echoes it
// on the response and stores it under "requestID".
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// Recovery turns a panic into a JSON 500 with code "internal_error" and logs
// the stack trace. If the handler already wrote a response only the status
// is forced.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid, _ := c.Get(requestIDKey)
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header(requestIDHeader, asString(rid))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": asString(rid),
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger, enriched with user_id once
// RequireAuth has run. Without a stored logger the global one is used.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	var base zerolog.Logger
	v, _ := c.Get(loggerKey)
	if lg, ok := v.(*zerolog.Logger); ok && lg != nil {
		base = *lg
	} else {
		rid, _ := c.Get(requestIDKey)
		base = log.With().Str("request_id", asString(rid)).Logger()
	}
	if uid := userIDFromCtx(c); uid != "" {
		l := base.With().Str("user_id", uid).Logger()
		return &l
	}
	return &base
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// truncate cuts s to max bytes plus an ellipsis; max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
