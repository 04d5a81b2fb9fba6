package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"vendorsec-backend/internal/analyses"
	"vendorsec-backend/internal/chat"
	"vendorsec-backend/internal/export"
	"vendorsec-backend/internal/frameworks"
	"vendorsec-backend/internal/llm"
	"vendorsec-backend/internal/services/health"
	"vendorsec-backend/internal/sessions"
	"vendorsec-backend/internal/shared/config"
	"vendorsec-backend/internal/shared/metrics"
	"vendorsec-backend/internal/shared/server/middleware"
	"vendorsec-backend/internal/shared/server/respond"
)

// multipart framing on top of the largest accepted file
const uploadBodySlack = 1 << 20

// RouterDeps carries the handlers built by bootstrap. Nil handlers are skipped.
type RouterDeps struct {
	Config          config.Config
	SessionHandler  *sessions.Handler
	AnalysisHandler *analyses.Handler
	ChatHandler     *chat.Handler
	ExportHandler   *export.Handler
	LLMHandler      *llm.Handler
	Health          *health.Service
	RateLimiter     *middleware.RateLimiter
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	cfg := deps.Config

	r.Use(
		middleware.RequestID(),
		middleware.SessionContext(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.SecurityHeaders(),
		middleware.BodyLimit(cfg.MaxFileSizeBytes+uploadBodySlack),
		middleware.CORS(cfg.CORSAllowOrigin),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		rep := deps.Health.Status(c.Request.Context())
		status := http.StatusOK
		if !rep.OK {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, rep)
	})

	limited := api.Group("")
	limited.Use(middleware.RateLimit(middleware.RateLimitConfig{
		Rules: map[string]middleware.RateLimitRule{
			"DEFAULT": middleware.RuleFromWindow(cfg.RateLimitRequests, cfg.RateLimitWindow),
		},
		// streams are long lived and status polls have their own window
		GroupFor: func(c *gin.Context) string {
			p := c.FullPath()
			if strings.HasSuffix(p, "/stream") || strings.HasSuffix(p, "/status") {
				return "UNLIMITED"
			}
			return ""
		},
		Limiter: deps.RateLimiter,
	}))

	frameworks.RegisterRoutes(limited)
	if deps.SessionHandler != nil {
		deps.SessionHandler.RegisterRoutes(limited)
	}
	if deps.AnalysisHandler != nil {
		deps.AnalysisHandler.RegisterRoutes(limited)
	}
	if deps.ChatHandler != nil {
		deps.ChatHandler.RegisterRoutes(limited)
	}
	if deps.ExportHandler != nil {
		deps.ExportHandler.RegisterRoutes(limited)
	}
	if deps.LLMHandler != nil {
		deps.LLMHandler.RegisterRoutes(limited)
	}

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
