package api

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/lexrag/internal/backend"
	"github.com/liliang-cn/lexrag/internal/domain"
	"github.com/liliang-cn/lexrag/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, cfg RouterConfig) (*httptest.Server, *backend.Service) {
	t.Helper()
	svc := backend.NewService(backend.Config{}, zaptest.NewLogger(t))
	srv := httptest.NewServer(SetupRouter(svc, cfg, zaptest.NewLogger(t)))
	t.Cleanup(srv.Close)
	return srv, svc
}

func do(t *testing.T, method, url, body string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	srv, svc := newTestServer(t, RouterConfig{})
	svc.CreateSession()

	resp := do(t, http.MethodGet, srv.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, domain.Health{Status: "ok", SessionsActive: 1}, decode[domain.Health](t, resp))
}

func TestSessionsLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, RouterConfig{})

	resp := do(t, http.MethodPost, srv.URL+"/sessions/new", "", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[domain.SessionSummary](t, resp)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "New Session", created.Title)

	resp = do(t, http.MethodGet, srv.URL+"/sessions", "", nil)
	assert.Equal(t, []domain.SessionSummary{created}, decode[[]domain.SessionSummary](t, resp))

	resp = do(t, http.MethodDelete, srv.URL+"/sessions/"+created.ID, "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodDelete, srv.URL+"/sessions/"+created.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Session not found", decode[domain.ErrorDetail](t, resp).Detail)

	resp = do(t, http.MethodGet, srv.URL+"/sessions", "", nil)
	assert.Empty(t, decode[[]domain.SessionSummary](t, resp))
}

func TestChat_Streams(t *testing.T) {
	srv, svc := newTestServer(t, RouterConfig{})
	sess := svc.CreateSession()

	body := `{"session_id":"` + sess.ID + `","query":"  What does Article 21 protect?  "}`
	resp := do(t, http.MethodPost, srv.URL+"/chat", body, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "no", resp.Header.Get("X-Accel-Buffering"))

	var events []domain.Event
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		ev := protocol.DecodeEvent(scanner.Text())
		require.NotEqual(t, domain.EventSkip, ev.Type(), "line %q", scanner.Text())
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())

	require.NotEmpty(t, events)
	assert.Equal(t, domain.EventStrategy, events[0].Type())
	assert.Equal(t, domain.DoneEvent{}, events[len(events)-1])

	sources, ok := events[len(events)-2].(domain.SourcesEvent)
	require.True(t, ok)
	require.NotEmpty(t, sources.Sources)
	assert.Equal(t, "Constitution of India", sources.Sources[0].Title)
	assert.Equal(t, "10", sources.Sources[0].Page.Display())

	summary := svc.ListSessions()[0]
	assert.Equal(t, 1, summary.Turns)
	assert.Equal(t, "What does Article 21 protect?", summary.Title)
}

func TestChat_Rejections(t *testing.T) {
	srv, svc := newTestServer(t, RouterConfig{})
	sess := svc.CreateSession()

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantDetail string
	}{
		{"empty query", `{"session_id":"` + sess.ID + `","query":"   "}`, http.StatusBadRequest, "Query cannot be empty"},
		{"unknown session", `{"session_id":"nope","query":"hello"}`, http.StatusNotFound, "Session not found. Create one first."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, http.MethodPost, srv.URL+"/chat", tt.body, nil)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantDetail, decode[domain.ErrorDetail](t, resp).Detail)
		})
	}

	t.Run("malformed body", func(t *testing.T) {
		resp := do(t, http.MethodPost, srv.URL+"/chat", `{"query":"hello"}`, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})
}

func TestAuth(t *testing.T) {
	srv, _ := newTestServer(t, RouterConfig{APIKey: "secret"})

	resp := do(t, http.MethodGet, srv.URL+"/sessions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/sessions", "", http.Header{"X-Api-Key": {"secret"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/sessions", "", http.Header{"Authorization": {"Bearer secret"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Health stays open
	resp = do(t, http.MethodGet, srv.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	srv, _ := newTestServer(t, RouterConfig{AllowOrigins: []string{"http://localhost:5173"}})

	resp := do(t, http.MethodOptions, srv.URL+"/chat", "", http.Header{"Origin": {"http://localhost:5173"}})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "DELETE")

	resp = do(t, http.MethodGet, srv.URL+"/health", "", http.Header{"Origin": {"http://evil.example.com"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}
