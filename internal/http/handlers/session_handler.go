// Chat session HTTP handlers.
//
//   - GET    /chat        (list, weak ETag)
//   - GET    /chat/{id}   (fetch, weak ETag)
//   - POST   /chat/new    (create)
//   - POST   /chat/{id}   (append a turn, Idempotency-Key replay)
//   - DELETE /chat/{id}   (delete)
package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/tbourn/go-empatalk-backend/internal/domain"
	"github.com/tbourn/go-empatalk-backend/internal/http/middleware"
	"github.com/tbourn/go-empatalk-backend/internal/services"
)

// HeaderIdempotencyReplayed marks a response served from a stored append.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

// TurnInput is one client-supplied turn for a new session.
type TurnInput struct {
	Question string         `json:"question" example:"How do I calm down before exams?"`
	Answer   string         `json:"answer" example:"Try a short breathing exercise first."`
	Meta     map[string]any `json:"meta,omitempty"`
}

// CreateSessionRequest optionally seeds the session. "chat" is accepted as
// an alias of "turns".
type CreateSessionRequest struct {
	Turns []TurnInput `json:"turns"`
	Chat  []TurnInput `json:"chat,omitempty"`
}

// AppendTurnRequest carries the user's next question.
type AppendTurnRequest struct {
	Question string `json:"question" example:"Who are you?"`
}

// ListSessions godoc
// @ID          listSessions
// @Summary     List chat sessions
// @Description Returns every session owned by the caller, with turns. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Chats
// @Produce     json
// @Security    BearerAuth
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"  example(W/\"sessions:u1:2:1700000000000000000\")
// @Success     200  {array}   domain.ChatSession
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     401  {object}  handlers.ErrorResponse  "Not authorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chat [get]
func (h *Handlers) ListSessions(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)

	// ETag pre-check, skipped when stats are unavailable.
	if h.Stats != nil {
		if count, maxTS, err := h.Stats.SessionsStats(ctx, uid); err == nil {
			etag := listETag(uid, count, maxTS)
			c.Header("ETag", etag)
			if etagMatches(c.GetHeader("If-None-Match"), etag) {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, err := h.sessions.List(ctx, uid)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not list chats")
		return
	}
	ok(c, http.StatusOK, items)
}

// GetSession godoc
// @ID          getSession
// @Summary     Fetch a chat session
// @Tags        Chats
// @Produce     json
// @Security    BearerAuth
// @Param       id             path    string  true   "Session ID"  format(uuid)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Success     200  {object}  domain.ChatSession
// @Header      200  {string}  ETag  "Weak ETag for the session"
// @Success     304  {string}  string  "Not Modified"
// @Failure     401  {object}  handlers.ErrorResponse  "Not authorized"
// @Failure     404  {object}  handlers.ErrorResponse  "Chat not found"
// @Router      /chat/{id} [get]
func (h *Handlers) GetSession(c *gin.Context) {
	sess, err := h.sessions.Get(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		sessionError(c, err)
		return
	}

	etag := sessionETag(sess)
	c.Header("ETag", etag)
	if etagMatches(c.GetHeader("If-None-Match"), etag) {
		c.Status(http.StatusNotModified)
		return
	}
	ok(c, http.StatusOK, sess)
}

// CreateSession godoc
// @ID          createSession
// @Summary     Start a chat session
// @Description Without a body (or with no turns) the session opens with a welcome turn greeting the caller. Supplied turns are stored as given and each needs an answer.
// @Tags        Chats
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.CreateSessionRequest  false  "Initial turns"
// @Success     200   {object}  domain.ChatSession
// @Failure     400   {object}  handlers.ErrorResponse  "Invalid turns"
// @Failure     401   {object}  handlers.ErrorResponse  "Not authorized"
// @Failure     500   {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chat/new [post]
func (h *Handlers) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	in := req.Turns
	if len(in) == 0 {
		in = req.Chat
	}

	var initial []domain.Turn
	for _, t := range in {
		turn := domain.Turn{Question: t.Question, Answer: t.Answer}
		if len(t.Meta) > 0 {
			turn.Meta = datatypes.JSONMap(t.Meta)
		}
		initial = append(initial, turn)
	}

	sess, err := h.sessions.Create(c.Request.Context(), userID(c), userName(c), initial)
	if err != nil {
		sessionError(c, err)
		return
	}
	ok(c, http.StatusOK, sess)
}

// AppendTurn godoc
// @ID          appendTurn
// @Summary     Ask a question in a session
// @Description Appends a turn answered by the identity rules or the model and returns the whole session. Model failures become an apology turn, not an error. A repeated Idempotency-Key returns the current session without asking again.
// @Tags        Chats
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id               path    string  true   "Session ID"  format(uuid)
// @Param       Idempotency-Key  header  string  false  "Deduplicates retries"  example(6b3f5c1e-1)
// @Param       body             body    handlers.AppendTurnRequest  true  "Question"
// @Success     200  {object}  domain.ChatSession
// @Header      200  {string}  Idempotency-Replayed  "true when served from a previous append"
// @Failure     400  {object}  handlers.ErrorResponse  "Empty or too long question"
// @Failure     401  {object}  handlers.ErrorResponse  "Not authorized"
// @Failure     404  {object}  handlers.ErrorResponse  "Chat not found"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Router      /chat/{id} [post]
func (h *Handlers) AppendTurn(c *gin.Context) {
	ctx := c.Request.Context()
	uid, sid := userID(c), c.Param("id")

	var req AppendTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "question is required")
		return
	}

	key, hasKey := middleware.GetIdempotencyKey(c)
	if hasKey {
		replay := middleware.IsReplay(c)
		if !replay && h.Replays != nil {
			replay, _ = h.Replays.Lookup(ctx, uid, sid, key, time.Now().UTC())
		}
		if replay {
			sess, err := h.sessions.Get(ctx, uid, sid)
			if err != nil {
				sessionError(c, err)
				return
			}
			c.Header(HeaderIdempotencyReplayed, "true")
			ok(c, http.StatusOK, sess)
			return
		}
	}

	sess, err := h.sessions.Append(ctx, uid, sid, req.Question)
	if err != nil {
		sessionError(c, err)
		return
	}

	if hasKey && h.Replays != nil && len(sess.Turns) > 0 {
		last := sess.Turns[len(sess.Turns)-1]
		if err := h.Replays.Save(ctx, uid, sid, key, last.ID, http.StatusOK); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Str("session_id", sid).Msg("idempotency record not stored")
		}
	}
	ok(c, http.StatusOK, sess)
}

// DeleteSession godoc
// @ID          deleteSession
// @Summary     Delete a chat session
// @Tags        Chats
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Session ID"  format(uuid)
// @Success     200  {object}  handlers.MessageResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Not authorized"
// @Failure     404  {object}  handlers.ErrorResponse  "Chat not found"
// @Router      /chat/{id} [delete]
func (h *Handlers) DeleteSession(c *gin.Context) {
	if err := h.sessions.Delete(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		sessionError(c, err)
		return
	}
	ok(c, http.StatusOK, MessageResponse{Message: "Chat deleted successfully"})
}

func sessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "chat not found")
	case errors.Is(err, services.ErrEmptyQuestion):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "question is required")
	case errors.Is(err, services.ErrTooLong),
		errors.Is(err, services.ErrInvalidTurn):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}

func listETag(uid string, count int64, maxTS *time.Time) string {
	var ts int64
	if maxTS != nil {
		ts = maxTS.UnixNano()
	}
	return fmt.Sprintf(`W/"sessions:%s:%d:%d"`, uid, count, ts)
}

// sessionETag changes whenever a turn is appended: the count grows and
// AppendTurn bumps UpdatedAt.
func sessionETag(s *domain.ChatSession) string {
	latest := s.UpdatedAt
	for _, t := range s.Turns {
		if t.At.After(latest) {
			latest = t.At
		}
	}
	return fmt.Sprintf(`W/"session:%s:%d:%d"`, s.ID, len(s.Turns), latest.UnixNano())
}

// etagMatches implements weak comparison against an If-None-Match list.
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, cand := range strings.Split(header, ",") {
		cand = strings.TrimSpace(cand)
		if cand == "*" || cand == etag {
			return true
		}
	}
	return false
}
