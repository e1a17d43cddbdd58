package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountsByRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())
	r.GET("/chat/:id", func(c *gin.Context) { c.String(http.StatusOK, "hello") })
	r.DELETE("/chat/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	baseGet := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/chat/:id", "200"))
	baseDel := testutil.ToFloat64(httpReqs.WithLabelValues("DELETE", "/chat/:id", "204"))
	base404 := testutil.ToFloat64(httpReqs.WithLabelValues("GET", unmatchedRoute, "404"))

	for _, tc := range []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/chat/a", http.StatusOK},
		{http.MethodGet, "/chat/b", http.StatusOK},
		{http.MethodDelete, "/chat/a", http.StatusNoContent},
		{http.MethodGet, "/nope/1", http.StatusNotFound},
		{http.MethodGet, "/nope/2", http.StatusNotFound},
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		if w.Code != tc.want {
			t.Fatalf("%s %s -> %d, want %d", tc.method, tc.path, w.Code, tc.want)
		}
	}

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/chat/:id", "200")); got != baseGet+2 {
		t.Fatalf("GET /chat/:id = %v, want %v", got, baseGet+2)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("DELETE", "/chat/:id", "204")); got != baseDel+1 {
		t.Fatalf("DELETE /chat/:id = %v, want %v", got, baseDel+1)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", unmatchedRoute, "404")); got != base404+2 {
		t.Fatalf("unmatched 404 = %v, want %v", got, base404+2)
	}
	if got := testutil.ToFloat64(httpInflight); got != 0 {
		t.Fatalf("inflight = %v, want 0", got)
	}
}
