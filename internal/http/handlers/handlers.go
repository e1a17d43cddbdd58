// Package handlers implements the EmpaTalk HTTP endpoints.
//
// Handlers are transport-thin: they bind and validate input, call a service
// through the narrow interfaces below, and translate service errors into
// statuses and ErrorResponse envelopes. Routes behind RequireAuth read the
// caller from the Gin context; nothing here parses tokens.
package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-empatalk-backend/internal/domain"
	"github.com/tbourn/go-empatalk-backend/internal/http/middleware"
	"github.com/tbourn/go-empatalk-backend/internal/inference"
	"github.com/tbourn/go-empatalk-backend/internal/services"
)

// AccountService covers registration, login and profile changes.
type AccountService interface {
	Register(ctx context.Context, name, email, password string) (*services.AuthResult, error)
	Login(ctx context.Context, identifier, password string) (*services.AuthResult, error)
	Me(ctx context.Context, userID string) (*domain.User, error)
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
	UpdateUsername(ctx context.Context, userID, name string) (*domain.User, error)
}

// SessionService covers the chat session lifecycle.
type SessionService interface {
	Create(ctx context.Context, userID, userName string, initial []domain.Turn) (*domain.ChatSession, error)
	Get(ctx context.Context, userID, sessionID string) (*domain.ChatSession, error)
	List(ctx context.Context, userID string) ([]domain.ChatSession, error)
	Delete(ctx context.Context, userID, sessionID string) error
	Append(ctx context.Context, userID, sessionID, question string) (*domain.ChatSession, error)
}

// FeedbackService records ratings.
type FeedbackService interface {
	Submit(ctx context.Context, userID string, in services.FeedbackInput) (*domain.Feedback, error)
}

// ProxyService is the stateless model pass-through.
type ProxyService interface {
	Chat(ctx context.Context, message string, history []inference.Message) (*inference.Reply, error)
	Ping(ctx context.Context) (map[string]any, error)
}

// SessionStats backs the weak ETag of the session list. Optional.
type SessionStats interface {
	SessionsStats(ctx context.Context, userID string) (count int64, maxUpdatedAt *time.Time, err error)
}

// ReplayStore persists completed appends for Idempotency-Key replay.
// Optional; without it keys are validated but never replayed.
type ReplayStore interface {
	// Lookup reports whether an unexpired record exists for the key.
	Lookup(ctx context.Context, userID, sessionID, key string, now time.Time) (ok bool, err error)
	Save(ctx context.Context, userID, sessionID, key, turnID string, status int) error
}

// Handlers groups every endpoint. Stats and Replays may be nil.
type Handlers struct {
	accounts AccountService
	sessions SessionService
	feedback FeedbackService
	proxy    ProxyService

	Stats   SessionStats
	Replays ReplayStore

	// Banner is served by GET /.
	Banner string
}

// New binds handlers to their services.
func New(accounts AccountService, sessions SessionService, feedback FeedbackService, proxy ProxyService) *Handlers {
	return &Handlers{
		accounts: accounts,
		sessions: sessions,
		feedback: feedback,
		proxy:    proxy,
		Banner:   "EmpaTalk API is running",
	}
}

// userID returns the authenticated caller. Routes using it sit behind
// RequireAuth, so it is never empty in practice.
func userID(c *gin.Context) string {
	return c.GetString(middleware.CtxKeyUserID)
}

// userName returns the caller's display name, or "".
func userName(c *gin.Context) string {
	if u, ok := middleware.UserFrom(c); ok {
		return u.Name
	}
	return ""
}
