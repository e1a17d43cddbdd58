package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-empatalk-backend/internal/domain"
	"github.com/tbourn/go-empatalk-backend/internal/http/middleware"
	"github.com/tbourn/go-empatalk-backend/internal/services"
)

func sessionRoutes(h *Handlers) *gin.Engine {
	r := newEngine(true)
	r.GET("/chat", h.ListSessions)
	r.POST("/chat/new", h.CreateSession)
	r.GET("/chat/:id", h.GetSession)
	r.POST("/chat/:id", middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil), h.AppendTurn)
	r.DELETE("/chat/:id", h.DeleteSession)
	return r
}

func sampleSession(id string, n int) *domain.ChatSession {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := &domain.ChatSession{ID: id, UserID: testUser.ID, CreatedAt: base, UpdatedAt: base}
	for i := 0; i < n; i++ {
		s.Turns = append(s.Turns, domain.Turn{
			ID:       id + "-t" + string(rune('0'+i)),
			Position: i,
			Question: "q",
			Answer:   "a",
			At:       base.Add(time.Duration(i) * time.Second),
		})
	}
	return s
}

func TestListSessions_ETagAnd304(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	calls := 0
	h := New(nil, stubSessions{
		list: func(uid string) ([]domain.ChatSession, error) {
			calls++
			return []domain.ChatSession{*sampleSession("s1", 1)}, nil
		},
	}, nil, nil)
	h.Stats = stubStats{count: 1, max: &ts}
	r := sessionRoutes(h)

	w := doJSON(r, http.MethodGet, "/chat", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	etag := w.Header().Get("ETag")
	want := listETag(testUser.ID, 1, &ts)
	if etag != want {
		t.Fatalf("etag=%q want %q", etag, want)
	}
	var items []domain.ChatSession
	if err := json.Unmarshal(w.Body.Bytes(), &items); err != nil || len(items) != 1 {
		t.Fatalf("items=%v err=%v", items, err)
	}

	w = doJSON(r, http.MethodGet, "/chat", "", map[string]string{"If-None-Match": `W/"other", ` + etag})
	if w.Code != http.StatusNotModified {
		t.Fatalf("status=%d want 304", w.Code)
	}
	if calls != 1 {
		t.Fatalf("list must not run on 304, calls=%d", calls)
	}
}

func TestListSessions_StatsErrorFallsThrough(t *testing.T) {
	h := New(nil, stubSessions{
		list: func(string) ([]domain.ChatSession, error) { return []domain.ChatSession{}, nil },
	}, nil, nil)
	h.Stats = stubStats{err: errors.New("stats down")}
	r := sessionRoutes(h)

	w := doJSON(r, http.MethodGet, "/chat", "", map[string]string{"If-None-Match": "*"})
	if w.Code != http.StatusOK || w.Header().Get("ETag") != "" {
		t.Fatalf("status=%d etag=%q", w.Code, w.Header().Get("ETag"))
	}
	if w.Body.String() != "[]" {
		t.Fatalf("body=%s", w.Body.String())
	}
}

func TestGetSession_ETagChangesWithTurns(t *testing.T) {
	n := 1
	h := New(nil, stubSessions{
		get: func(uid, id string) (*domain.ChatSession, error) {
			if id != "s1" {
				return nil, services.ErrSessionNotFound
			}
			return sampleSession(id, n), nil
		},
	}, nil, nil)
	r := sessionRoutes(h)

	w := doJSON(r, http.MethodGet, "/chat/s1", "", nil)
	first := w.Header().Get("ETag")
	if w.Code != http.StatusOK || first == "" {
		t.Fatalf("status=%d etag=%q", w.Code, first)
	}

	w = doJSON(r, http.MethodGet, "/chat/s1", "", map[string]string{"If-None-Match": first})
	if w.Code != http.StatusNotModified {
		t.Fatalf("status=%d want 304", w.Code)
	}

	n = 2
	w = doJSON(r, http.MethodGet, "/chat/s1", "", map[string]string{"If-None-Match": first})
	if w.Code != http.StatusOK || w.Header().Get("ETag") == first {
		t.Fatalf("etag must change after append: status=%d", w.Code)
	}

	w = doJSON(r, http.MethodGet, "/chat/missing", "", nil)
	if w.Code != http.StatusNotFound || decodeError(t, w).Message != "chat not found" {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestCreateSession_EmptyBodyAndAlias(t *testing.T) {
	var gotName string
	var gotTurns []domain.Turn
	h := New(nil, stubSessions{
		create: func(uid, name string, initial []domain.Turn) (*domain.ChatSession, error) {
			gotName, gotTurns = name, initial
			for _, turn := range initial {
				if turn.Answer == "" {
					return nil, services.ErrInvalidTurn
				}
			}
			return sampleSession("new", 1), nil
		},
	}, nil, nil)
	r := sessionRoutes(h)

	w := doJSON(r, http.MethodPost, "/chat/new", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("empty body: status=%d body=%s", w.Code, w.Body.String())
	}
	if gotName != testUser.Name || len(gotTurns) != 0 {
		t.Fatalf("name=%q turns=%d", gotName, len(gotTurns))
	}

	w = doJSON(r, http.MethodPost, "/chat/new", `{"chat":[{"question":"hi","answer":"hello","meta":{"rule":"x"}}]}`, nil)
	if w.Code != http.StatusOK || len(gotTurns) != 1 {
		t.Fatalf("alias: status=%d turns=%d", w.Code, len(gotTurns))
	}
	if gotTurns[0].Meta["rule"] != "x" {
		t.Fatalf("meta not forwarded: %v", gotTurns[0].Meta)
	}

	w = doJSON(r, http.MethodPost, "/chat/new", `{"turns":[{"question":"hi"}]}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unanswered turn: status=%d", w.Code)
	}

	w = doJSON(r, http.MethodPost, "/chat/new", `{"turns":`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad json: status=%d", w.Code)
	}
}

func TestAppendTurn_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"empty", services.ErrEmptyQuestion, http.StatusBadRequest},
		{"too long", services.ErrTooLong, http.StatusBadRequest},
		{"not found", services.ErrSessionNotFound, http.StatusNotFound},
		{"store", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := New(nil, stubSessions{
				appendQ: func(string, string, string) (*domain.ChatSession, error) { return nil, tc.err },
			}, nil, nil)
			w := doJSON(sessionRoutes(h), http.MethodPost, "/chat/s1", `{"question":"x"}`, nil)
			if w.Code != tc.status {
				t.Fatalf("status=%d want %d", w.Code, tc.status)
			}
			decodeError(t, w)
		})
	}
}

func TestAppendTurn_IdempotentReplay(t *testing.T) {
	appends := 0
	sess := sampleSession("s1", 1)
	h := New(nil, stubSessions{
		appendQ: func(uid, id, q string) (*domain.ChatSession, error) {
			appends++
			next := sampleSession(id, len(sess.Turns)+1)
			sess = next
			return next, nil
		},
		get: func(uid, id string) (*domain.ChatSession, error) { return sess, nil },
	}, nil, nil)
	replays := &memReplays{}
	h.Replays = replays
	r := sessionRoutes(h)
	hdr := map[string]string{middleware.HeaderIdempotencyKey: "retry-1"}

	w := doJSON(r, http.MethodPost, "/chat/s1", `{"question":"how are you?"}`, hdr)
	if w.Code != http.StatusOK || w.Header().Get(HeaderIdempotencyReplayed) != "" {
		t.Fatalf("first: status=%d replayed=%q", w.Code, w.Header().Get(HeaderIdempotencyReplayed))
	}
	if got := replays.saved[testUser.ID+"|s1|retry-1"]; got != sess.Turns[len(sess.Turns)-1].ID {
		t.Fatalf("saved turn=%q", got)
	}

	w = doJSON(r, http.MethodPost, "/chat/s1", `{"question":"how are you?"}`, hdr)
	if w.Code != http.StatusOK || w.Header().Get(HeaderIdempotencyReplayed) != "true" {
		t.Fatalf("replay: status=%d replayed=%q", w.Code, w.Header().Get(HeaderIdempotencyReplayed))
	}
	if appends != 1 {
		t.Fatalf("append ran %d times", appends)
	}
	var got domain.ChatSession
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if len(got.Turns) != 2 {
		t.Fatalf("replayed session turns=%d", len(got.Turns))
	}
}

func TestAppendTurn_MalformedKey(t *testing.T) {
	h := New(nil, stubSessions{}, nil, nil)
	w := doJSON(sessionRoutes(h), http.MethodPost, "/chat/s1", `{"question":"x"}`,
		map[string]string{middleware.HeaderIdempotencyKey: "has spaces"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestDeleteSession(t *testing.T) {
	h := New(nil, stubSessions{
		del: func(uid, id string) error {
			if id != "s1" {
				return services.ErrSessionNotFound
			}
			return nil
		},
	}, nil, nil)
	r := sessionRoutes(h)

	w := doJSON(r, http.MethodDelete, "/chat/s1", "", nil)
	var msg MessageResponse
	_ = json.Unmarshal(w.Body.Bytes(), &msg)
	if w.Code != http.StatusOK || msg.Message != "Chat deleted successfully" {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}

	w = doJSON(r, http.MethodDelete, "/chat/other", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestEtagMatches(t *testing.T) {
	cases := []struct {
		header, etag string
		want         bool
	}{
		{"", `W/"a"`, false},
		{`W/"a"`, `W/"a"`, true},
		{`W/"b", W/"a"`, `W/"a"`, true},
		{"*", `W/"a"`, true},
		{`W/"b"`, `W/"a"`, false},
	}
	for _, tc := range cases {
		if got := etagMatches(tc.header, tc.etag); got != tc.want {
			t.Errorf("etagMatches(%q, %q)=%v want %v", tc.header, tc.etag, got, tc.want)
		}
	}
}
