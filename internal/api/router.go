package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/lexrag/internal/api/chat"
	"github.com/liliang-cn/lexrag/internal/api/middleware"
	"github.com/liliang-cn/lexrag/internal/backend"
	"github.com/liliang-cn/lexrag/internal/domain"
	"go.uber.org/zap"
)

// RouterConfig holds configuration for the router
type RouterConfig struct {
	APIKey       string
	AllowOrigins []string
}

// SetupRouter sets up the Gin router
func SetupRouter(backendService *backend.Service, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(logger))

	// CORS middleware
	r.Use(middleware.CORS(cfg.AllowOrigins))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, domain.Health{Status: "ok", SessionsActive: backendService.ActiveCount()})
	})

	// Sessions and chat (API key only when configured)
	chatHandler := chat.NewHandler(backendService, logger)
	protected := r.Group("/")
	protected.Use(middleware.Auth(cfg.APIKey))
	chatHandler.RegisterRoutes(protected)

	return r
}
