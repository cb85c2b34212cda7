package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-prep/internal/config"
	"github.com/stemsi/exstem-prep/internal/handler"
	"github.com/stemsi/exstem-prep/internal/metrics"
	"github.com/stemsi/exstem-prep/internal/middleware"
	"github.com/stemsi/exstem-prep/internal/response"
	"github.com/stemsi/exstem-prep/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Session  *handler.SessionHandler
	History  *handler.HistoryHandler
	Question *handler.QuestionHandler
	WS       *handler.WSHandler
	System   *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// startLimiter throttles session starts per IP; each start fans out into
// generator calls.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	m *metrics.Metrics,
	startLimiter *middleware.RateLimiter,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// Restrict to AllowedOrigins when set; otherwise allow all for development.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(m.Middleware())

	router.GET("/health", handlers.System.Health)
	router.GET("/metrics", m.Handler())

	// ─── 1. Candidate Group (JWT) ──────────────────────────────────────
	candidateAPI := router.Group("/api/v1/candidate")
	candidateAPI.Use(
		middleware.RequireCandidateJWT(authService),
		middleware.Brotli(5),
		middleware.NoStore(),
	)
	{
		candidateAPI.POST("/sessions", startLimiter.Middleware(), handlers.Session.StartSession)
		candidateAPI.GET("/sessions/:session_id", handlers.Session.GetSession)
		candidateAPI.POST("/sessions/:session_id/answers", handlers.Session.SelectOption)
		candidateAPI.POST("/sessions/:session_id/advance", handlers.Session.AdvanceWindow)
		candidateAPI.POST("/sessions/:session_id/submit", handlers.Session.Submit)
		candidateAPI.POST("/sessions/:session_id/bookmarks", handlers.Session.ToggleBookmark)
		candidateAPI.DELETE("/sessions/:session_id", handlers.Session.LeaveSession)

		candidateAPI.GET("/attempts", handlers.History.ListAttempts)
		candidateAPI.GET("/bookmarks", handlers.History.ListBookmarks)
	}

	// ─── 2. WebSocket Group (Candidate WS Auth) ────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireCandidateWSAuth(authService))
	{
		ws.GET("/candidate/sessions/:session_id/stream", handlers.WS.SessionStream)
	}

	// ─── 3. Admin Group (JWT) ──────────────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService))
	{
		adminAPI.POST("/questions", handlers.Question.SeedQuestions)
		adminAPI.GET("/questions/counts", handlers.Question.CountQuestions)
		adminAPI.GET("/system/status", handlers.System.StatusSSE)
	}

	return router
}
