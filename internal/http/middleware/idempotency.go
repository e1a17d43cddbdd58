// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file validates the Idempotency-Key header on turn appends. A valid key
// is stashed on the context; when a lookup reports that the same
// (user, session, key) already completed, the request is flagged as a replay
// and exempted from rate limiting. Serving the replay is left to the handler.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the client's key.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"
)

var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the validated key, if the request carried one.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether IdempotencyValidator found a completed request
// for this key.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions configures key validation. Expiry is the lookup's job.
type IdempotencyOptions struct {
	// MaxLen caps the key length; <= 0 means 200.
	MaxLen int
	// Pattern restricts allowed characters; nil means ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
}

// IdempotencyLookup reports whether a still-valid record exists for
// (userID, sessionID, key) at now. Errors are treated as a miss.
type IdempotencyLookup func(ctx context.Context, userID, sessionID, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator must run after RequireAuth: without an authenticated
// user the key is validated and stashed but never looked up. The session ID
// comes from the ":id" route parameter.
//
// A malformed key is rejected with 400 and code "bad_request".
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			rid, _ := c.Get(requestIDKey)
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": asString(rid),
				"code":       "bad_request",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		uid := userIDFromCtx(c)
		if lookup != nil && uid != "" {
			sessionID := c.Param("id")
			if exists, _ := lookup(c.Request.Context(), uid, sessionID, key, time.Now().UTC()); exists {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}

// userIDFromCtx returns the authenticated user ID, or "".
func userIDFromCtx(c *gin.Context) string {
	if v, ok := c.Get(CtxKeyUserID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
