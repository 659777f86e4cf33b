package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/liliang-cn/lexrag/internal/config"
	"github.com/liliang-cn/lexrag/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, handler http.Handler, apiKey string) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(config.BackendConfig{
		BaseURL:        srv.URL + "/",
		APIKey:         apiKey,
		RequestTimeout: 2 * time.Second,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return c
}

func TestClient_SessionCalls(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions/new", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.Header.Get("X-API-Key"))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(domain.SessionSummary{ID: "s1", Title: "New Session"})
	})
	mux.HandleFunc("GET /sessions", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"s1","title":"New Session","turns":0},{"id":"s2","title":"Contracts","turns":3}]`))
	})
	mux.HandleFunc("DELETE /sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "s1" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"detail":"Session not found"}`))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok","sessions_active":2}`))
	})
	c := newTestClient(t, mux, "k")
	ctx := context.Background()

	created, err := c.CreateSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionSummary{ID: "s1", Title: "New Session"}, created)

	sessions, err := c.ListSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.SessionSummary{
		{ID: "s1", Title: "New Session"},
		{ID: "s2", Title: "Contracts", Turns: 3},
	}, sessions)

	health, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Health{Status: "ok", SessionsActive: 2}, health)

	require.NoError(t, c.DeleteSession(ctx, "s1"))

	err = c.DeleteSession(ctx, "s9")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, err, domain.ErrBackendRejected)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, "Session not found", statusErr.Detail)
}

func TestClient_OpenChat(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req domain.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, domain.ChatRequest{SessionID: "s1", Query: "hi"}, req)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Write([]byte("{\"type\":\"done\"}\n"))
	})
	c := newTestClient(t, handler, "")

	body, err := c.OpenChat(context.Background(), domain.ChatRequest{SessionID: "s1", Query: "hi"})
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "{\"type\":\"done\"}\n", string(data))
}

func TestClient_StatusErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantDetail string
		wantIs     error
	}{
		{"detail string", http.StatusNotFound, `{"detail":"Session not found. Create one first."}`, "Session not found. Create one first.", domain.ErrNotFound},
		{"validation list", http.StatusUnprocessableEntity, `{"detail":[{"msg":"field required"},{"msg":"bad type"}]}`, "field required; bad type", domain.ErrInvalidRequest},
		{"error field", http.StatusUnauthorized, `{"error":"unauthorized"}`, "unauthorized", domain.ErrUnauthorized},
		{"empty body", http.StatusBadRequest, ``, "Bad Request", domain.ErrInvalidRequest},
		{"html body", http.StatusBadGateway, `<html>bad gateway</html>`, "Bad Gateway", domain.ErrBackendRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			c := newTestClient(t, handler, "")

			_, err := c.OpenChat(context.Background(), domain.ChatRequest{SessionID: "s1", Query: "q"})
			var statusErr *StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tt.status, statusErr.StatusCode)
			assert.Equal(t, tt.wantDetail, statusErr.Detail)
			assert.ErrorIs(t, err, tt.wantIs)
			assert.ErrorIs(t, err, domain.ErrBackendRejected)
		})
	}
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(config.BackendConfig{BaseURL: url}, nil)
	require.NoError(t, err)

	_, err = c.ListSessions(context.Background())
	assert.ErrorIs(t, err, domain.ErrTransportUnreachable)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "GET /sessions", transportErr.Op)
}

func TestClient_RequestTimeout(t *testing.T) {
	release := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	c, err := New(config.BackendConfig{BaseURL: srv.URL, RequestTimeout: 50 * time.Millisecond}, nil)
	require.NoError(t, err)

	_, err = c.Health(context.Background())
	assert.ErrorIs(t, err, domain.ErrTransportUnreachable)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestClient_DecodeFailure(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	})
	c := newTestClient(t, handler, "")

	_, err := c.Health(context.Background())
	assert.ErrorContains(t, err, "failed to decode GET /health response")
}
