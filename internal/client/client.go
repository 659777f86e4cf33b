package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/liliang-cn/lexrag/internal/config"
	"github.com/liliang-cn/lexrag/internal/domain"
	"go.uber.org/zap"
)

// maxErrorBody caps how much of a failed response is read for its detail
const maxErrorBody = 64 << 10

// Client talks to the question-answering backend over HTTP
type Client struct {
	baseURL        *url.URL
	apiKey         string
	requestTimeout time.Duration
	httpClient     *http.Client
	logger         *zap.Logger
}

// New creates a backend client.
// Streaming responses are bounded only by the caller's context; every other call
// also gets cfg.RequestTimeout.
func New(cfg config.BackendConfig, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:        base,
		apiKey:         cfg.APIKey,
		requestTimeout: cfg.RequestTimeout,
		httpClient:     &http.Client{},
		logger:         logger,
	}, nil
}

// WithHTTPClient replaces the underlying HTTP client
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Health returns the backend health report
func (c *Client) Health(ctx context.Context) (domain.Health, error) {
	var health domain.Health
	err := c.call(ctx, http.MethodGet, "/health", nil, &health)
	return health, err
}

// CreateSession creates a new backend session
func (c *Client) CreateSession(ctx context.Context) (domain.SessionSummary, error) {
	var summary domain.SessionSummary
	err := c.call(ctx, http.MethodPost, "/sessions/new", nil, &summary)
	return summary, err
}

// ListSessions returns all backend sessions in backend order
func (c *Client) ListSessions(ctx context.Context) ([]domain.SessionSummary, error) {
	var sessions []domain.SessionSummary
	if err := c.call(ctx, http.MethodGet, "/sessions", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// DeleteSession deletes a backend session.
// An unknown session yields an error matching domain.ErrNotFound.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(id), nil, nil)
}

// OpenChat posts a query and returns the open NDJSON body of a successful response.
// The caller owns the body.
func (c *Client) OpenChat(ctx context.Context, req domain.ChatRequest) (io.ReadCloser, error) {
	resp, err := c.do(ctx, http.MethodPost, "/chat", req)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	c.logger.Debug("Chat stream opened",
		zap.String("session_id", req.SessionID),
		zap.String("content_type", resp.Header.Get("Content-Type")),
	)
	return resp.Body, nil
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	resp, err := c.do(ctx, method, path, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in any) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	endpoint := c.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json, application/x-ndjson")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("Backend request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, &TransportError{Op: method + " " + path, Err: err}
	}
	return resp, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	detail := extractDetail(data)
	if detail == "" {
		detail = http.StatusText(resp.StatusCode)
	}
	if detail == "" {
		detail = resp.Status
	}
	return &StatusError{StatusCode: resp.StatusCode, Detail: detail}
}

// extractDetail understands {"detail": "..."}, validation lists of {"msg": ...}
// and {"error": "..."} bodies
func extractDetail(data []byte) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}

	if len(body.Detail) > 0 {
		var s string
		if err := json.Unmarshal(body.Detail, &s); err == nil {
			return s
		}
		var items []struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal(body.Detail, &items); err == nil {
			msgs := make([]string, 0, len(items))
			for _, it := range items {
				if it.Msg != "" {
					msgs = append(msgs, it.Msg)
				}
			}
			return strings.Join(msgs, "; ")
		}
	}
	return body.Error
}
