package inference

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestGenerate_SendsMessageAndHistory(t *testing.T) {
	var got GenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"text":"hi there","model":"qwen-1.5"}`))
	}))
	defer srv.Close()

	base := testutil.ToFloat64(upstreamCalls.WithLabelValues(endpointGenerate, outcomeOK))

	c := NewClient(srv.URL+"/", time.Second)
	require.Equal(t, srv.URL, c.BaseURL())
	reply, err := c.Generate(context.Background(), GenerateRequest{
		Message: "hello",
		History: []Message{{Role: RoleUser, Content: "q"}, {Role: RoleAssistant, Content: "a"}},
	})
	require.NoError(t, err)
	require.Equal(t, "hi there", reply.Text)
	require.Equal(t, "qwen-1.5", reply.Model)
	require.Equal(t, "hello", got.Message)
	require.Len(t, got.History, 2)
	require.Equal(t, base+1, testutil.ToFloat64(upstreamCalls.WithLabelValues(endpointGenerate, outcomeOK)))
}

func TestGenerate_NilHistorySentAsEmptyList(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&raw)
		_, _ = w.Write([]byte(`{"text":""}`))
	}))
	defer srv.Close()

	reply, err := NewClient(srv.URL, time.Second).Generate(context.Background(), GenerateRequest{Message: "x"})
	require.NoError(t, err)
	require.Empty(t, reply.Text)
	require.Empty(t, reply.Model)
	require.Equal(t, []any{}, raw["history"])
}

func TestGenerate_FailureKinds(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"detail":"loading"}`))
		}))
		defer srv.Close()

		_, err := NewClient(srv.URL, time.Second).Generate(context.Background(), GenerateRequest{Message: "x"})
		ue, ok := AsUpstream(err)
		require.True(t, ok)
		require.Equal(t, KindStatus, ue.Kind)
		require.Equal(t, http.StatusServiceUnavailable, ue.StatusCode)
		require.Contains(t, ue.Body, "loading")
		require.Contains(t, ue.Error(), "503")
	})

	t.Run("malformed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}))
		defer srv.Close()

		_, err := NewClient(srv.URL, time.Second).Generate(context.Background(), GenerateRequest{Message: "x"})
		ue, ok := AsUpstream(err)
		require.True(t, ok)
		require.Equal(t, KindMalformed, ue.Kind)
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		_, err := NewClient(srv.URL, 50*time.Millisecond).Generate(context.Background(), GenerateRequest{Message: "x"})
		ue, ok := AsUpstream(err)
		require.True(t, ok)
		require.Equal(t, KindTimeout, ue.Kind)
	})

	t.Run("transport", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		url := srv.URL
		srv.Close()

		_, err := NewClient(url, time.Second).Generate(context.Background(), GenerateRequest{Message: "x"})
		ue, ok := AsUpstream(err)
		require.True(t, ok)
		require.Equal(t, KindTransport, ue.Kind)
		require.NotNil(t, errors.Unwrap(ue))
	})
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"ok","model":"qwen"}`))
	}))
	defer srv.Close()

	out, err := NewClient(srv.URL, time.Second).Health(context.Background())
	require.NoError(t, err)
	require.Equal(t, "qwen", out["model"])

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()
	_, err = NewClient(down.URL, time.Second).Health(context.Background())
	ue, ok := AsUpstream(err)
	require.True(t, ok)
	require.Equal(t, KindStatus, ue.Kind)
}

func TestUpstreamError_Message(t *testing.T) {
	require.Equal(t, "model service: malformed", (&UpstreamError{Kind: KindMalformed}).Error())
	require.Contains(t, (&UpstreamError{Kind: KindTransport, Err: errors.New("refused")}).Error(), "refused")
	_, ok := AsUpstream(errors.New("plain"))
	require.False(t, ok)
}
