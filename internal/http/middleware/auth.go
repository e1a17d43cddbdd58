// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the bearer-token gate in front of every session-scoped
// route. The token check itself is delegated to an Authenticator so the
// middleware stays free of storage and signing concerns.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-empatalk-backend/internal/domain"
)

// Context keys set by RequireAuth.
const (
	CtxKeyUserID = "userID"
	CtxKeyUser   = "user"
)

// Authenticator resolves a raw bearer token to the owning user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

// RequireAuth rejects requests without a valid "Authorization: Bearer <token>"
// header with 401. On success the user ID is stored under "userID" and the
// user record under "user".
func RequireAuth(authn Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := bearerToken(c.GetHeader("Authorization"))
		if tok == "" {
			unauthorized(c)
			return
		}
		u, err := authn.Authenticate(c.Request.Context(), tok)
		if err != nil || u == nil {
			unauthorized(c)
			return
		}
		c.Set(CtxKeyUserID, u.ID)
		c.Set(CtxKeyUser, u)
		c.Next()
	}
}

// UserFrom returns the user attached by RequireAuth, if any.
func UserFrom(c *gin.Context) (*domain.User, bool) {
	v, ok := c.Get(CtxKeyUser)
	if !ok {
		return nil, false
	}
	u, ok := v.(*domain.User)
	return u, ok && u != nil
}

// bearerToken extracts the token from an Authorization header value. The
// scheme is matched case-insensitively.
func bearerToken(h string) string {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(h), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}

func unauthorized(c *gin.Context) {
	rid, _ := c.Get(requestIDKey)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": asString(rid),
		"code":       "unauthorized",
		"message":    "not authorized",
	})
}
