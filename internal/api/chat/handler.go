package chat

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/lexrag/internal/backend"
	"github.com/liliang-cn/lexrag/internal/domain"
	"github.com/liliang-cn/lexrag/internal/protocol"
	"go.uber.org/zap"
)

// Handler handles session and chat requests
type Handler struct {
	backend *backend.Service
	logger  *zap.Logger
}

// NewHandler creates a new chat handler
func NewHandler(backendService *backend.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{backend: backendService, logger: logger}
}

// RegisterRoutes registers session and chat routes
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/sessions/new", h.CreateSession)
	r.GET("/sessions", h.ListSessions)
	r.DELETE("/sessions/:id", h.DeleteSession)
	r.POST("/chat", h.Chat)
}

// CreateSession creates an empty session
func (h *Handler) CreateSession(c *gin.Context) {
	c.JSON(http.StatusCreated, h.backend.CreateSession())
}

// ListSessions returns session metadata without message content
func (h *Handler) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, h.backend.ListSessions())
}

// DeleteSession removes a session
func (h *Handler) DeleteSession(c *gin.Context) {
	if !h.backend.DeleteSession(c.Param("id")) {
		c.JSON(http.StatusNotFound, domain.ErrorDetail{Detail: "Session not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Chat streams the answer to a query as NDJSON
func (h *Handler) Chat(c *gin.Context) {
	var req domain.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": []gin.H{{"msg": err.Error()}}})
		return
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		c.JSON(http.StatusBadRequest, domain.ErrorDetail{Detail: "Query cannot be empty"})
		return
	}
	if !h.backend.HasSession(req.SessionID) {
		c.JSON(http.StatusNotFound, domain.ErrorDetail{Detail: "Session not found. Create one first."})
		return
	}

	// Set NDJSON headers
	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events := make(chan domain.Event)
	go func() {
		defer close(events)
		err := h.backend.Stream(ctx, req.SessionID, query, func(ev domain.Event) error {
			select {
			case events <- ev:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil && ctx.Err() == nil {
			h.logger.Warn("Chat stream failed", zap.String("session_id", req.SessionID), zap.Error(err))
		}
	}()

	c.Stream(func(w io.Writer) bool {
		ev, ok := <-events
		if !ok {
			return false // End stream
		}
		line, err := protocol.EncodeEvent(ev)
		if err != nil {
			h.logger.Error("Failed to encode event", zap.Error(err))
			return true
		}
		if _, err := w.Write(line); err != nil {
			return false
		}
		return true
	})

	// The client may have gone away; stop the producer and let it exit
	cancel()
	for range events {
	}
}
