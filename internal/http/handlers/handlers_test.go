package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-empatalk-backend/internal/domain"
	"github.com/tbourn/go-empatalk-backend/internal/http/middleware"
	"github.com/tbourn/go-empatalk-backend/internal/inference"
	"github.com/tbourn/go-empatalk-backend/internal/services"
)

// ---- stubs ----

type stubAccounts struct {
	register       func(name, email, password string) (*services.AuthResult, error)
	login          func(identifier, password string) (*services.AuthResult, error)
	me             func(userID string) (*domain.User, error)
	changePassword func(userID, oldPw, newPw string) error
	updateUsername func(userID, name string) (*domain.User, error)
}

func (s stubAccounts) Register(_ context.Context, name, email, password string) (*services.AuthResult, error) {
	return s.register(name, email, password)
}
func (s stubAccounts) Login(_ context.Context, identifier, password string) (*services.AuthResult, error) {
	return s.login(identifier, password)
}
func (s stubAccounts) Me(_ context.Context, userID string) (*domain.User, error) { return s.me(userID) }
func (s stubAccounts) ChangePassword(_ context.Context, userID, oldPw, newPw string) error {
	return s.changePassword(userID, oldPw, newPw)
}
func (s stubAccounts) UpdateUsername(_ context.Context, userID, name string) (*domain.User, error) {
	return s.updateUsername(userID, name)
}

type stubSessions struct {
	create  func(userID, userName string, initial []domain.Turn) (*domain.ChatSession, error)
	get     func(userID, id string) (*domain.ChatSession, error)
	list    func(userID string) ([]domain.ChatSession, error)
	del     func(userID, id string) error
	appendQ func(userID, id, question string) (*domain.ChatSession, error)
}

func (s stubSessions) Create(_ context.Context, userID, userName string, initial []domain.Turn) (*domain.ChatSession, error) {
	return s.create(userID, userName, initial)
}
func (s stubSessions) Get(_ context.Context, userID, id string) (*domain.ChatSession, error) {
	return s.get(userID, id)
}
func (s stubSessions) List(_ context.Context, userID string) ([]domain.ChatSession, error) {
	return s.list(userID)
}
func (s stubSessions) Delete(_ context.Context, userID, id string) error { return s.del(userID, id) }
func (s stubSessions) Append(_ context.Context, userID, id, question string) (*domain.ChatSession, error) {
	return s.appendQ(userID, id, question)
}

type stubFeedback struct {
	submit func(userID string, in services.FeedbackInput) (*domain.Feedback, error)
}

func (s stubFeedback) Submit(_ context.Context, userID string, in services.FeedbackInput) (*domain.Feedback, error) {
	return s.submit(userID, in)
}

type stubProxy struct {
	chat func(message string, history []inference.Message) (*inference.Reply, error)
	ping func() (map[string]any, error)
}

func (s stubProxy) Chat(_ context.Context, message string, history []inference.Message) (*inference.Reply, error) {
	return s.chat(message, history)
}
func (s stubProxy) Ping(context.Context) (map[string]any, error) { return s.ping() }

type stubStats struct {
	count int64
	max   *time.Time
	err   error
}

func (s stubStats) SessionsStats(context.Context, string) (int64, *time.Time, error) {
	return s.count, s.max, s.err
}

type memReplays struct {
	saved map[string]string
}

func (m *memReplays) Lookup(_ context.Context, userID, sessionID, key string, _ time.Time) (bool, error) {
	_, ok := m.saved[userID+"|"+sessionID+"|"+key]
	return ok, nil
}

func (m *memReplays) Save(_ context.Context, userID, sessionID, key, turnID string, _ int) error {
	if m.saved == nil {
		m.saved = map[string]string{}
	}
	m.saved[userID+"|"+sessionID+"|"+key] = turnID
	return nil
}

// ---- helpers ----

// testUser is injected the way RequireAuth would.
var testUser = &domain.User{ID: "u-1", Name: "alice", Email: "alice@example.com"}

func newEngine(authed bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestID())
	if authed {
		r.Use(func(c *gin.Context) {
			c.Set(middleware.CtxKeyUserID, testUser.ID)
			c.Set(middleware.CtxKeyUser, testUser)
			c.Next()
		})
	}
	return r
}

func doJSON(r http.Handler, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	if er.RequestID == "" {
		t.Fatalf("error envelope missing request_id: %s", w.Body.String())
	}
	return er
}
