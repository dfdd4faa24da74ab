package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rurallearn/rurallearn-backend/internal/config"
	"github.com/rurallearn/rurallearn-backend/internal/handler"
	"github.com/rurallearn/rurallearn-backend/internal/middleware"
	"github.com/rurallearn/rurallearn-backend/internal/model"
	"github.com/rurallearn/rurallearn-backend/internal/response"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth          *handler.AuthHandler
	Test          *handler.TestHandler
	StudentPortal *handler.StudentPortalHandler
	Monitor       *handler.MonitorHandler
	WS            *handler.WSHandler
	System        *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// limiter may be nil, which disables auth rate limiting.
func SetupRouter(
	tokens middleware.TokenValidator,
	handlers *Handlers,
	limiter *middleware.RateLimiter,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Request ID first so the logger and every response carry it.
	router.Use(response.RequestIDMiddleware())
	if cfg.OTelEnabled {
		router.Use(otelgin.Middleware(cfg.OTelServiceName))
	}
	router.Use(middleware.RequestLogger(log))

	router.GET("/health", handlers.System.Health)

	rateLimited := func(route string) gin.HandlerFunc {
		if limiter == nil {
			return func(c *gin.Context) { c.Next() }
		}
		return limiter.Middleware(route)
	}
	requireAuth := middleware.RequireAuth(tokens)

	// ─── 1. Auth Group ─────────────────────────────────────────────────
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/signup", rateLimited("signup"), handlers.Auth.Signup)
		auth.POST("/login", rateLimited("login"), handlers.Auth.Login)
		auth.POST("/refresh", handlers.Auth.Refresh)

		auth.POST("/logout", requireAuth, handlers.Auth.Logout)
		auth.GET("/me", requireAuth, handlers.Auth.Me)
	}

	// ─── 2. Teacher Group ──────────────────────────────────────────────
	teacherAPI := router.Group("/api/v1/teacher")
	teacherAPI.Use(requireAuth, middleware.RequireRole(model.RoleTeacher))
	{
		teacherAPI.POST("/tests", handlers.Test.CreateTest)
		teacherAPI.GET("/tests/:id", handlers.Test.GetTest)
		teacherAPI.GET("/tests/:id/sessions", handlers.Test.ListSessions)
		teacherAPI.GET("/tests/:id/monitor", handlers.Monitor.MonitorTestSSE)
	}

	// ─── 3. Student Group ──────────────────────────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(requireAuth, middleware.RequireRole(model.RoleStudent))
	{
		studentAPI.GET("/tests/:id", handlers.StudentPortal.GetPaper)
		studentAPI.POST("/tests/:id/sessions", handlers.StudentPortal.IssueSession)

		studentAPI.GET("/sessions/:id", handlers.StudentPortal.GetSession)
		studentAPI.POST("/sessions/:id/start", handlers.StudentPortal.StartSession)
		studentAPI.POST("/sessions/:id/infractions", handlers.StudentPortal.LogInfraction)
		studentAPI.PUT("/sessions/:id/answers", handlers.StudentPortal.SaveAnswers)
		studentAPI.POST("/sessions/:id/submit", handlers.StudentPortal.SubmitSession)

		studentAPI.POST("/quizzes/:id/submit", handlers.StudentPortal.SubmitQuiz)

		studentAPI.GET("/attempts", handlers.StudentPortal.ListAttempts)
		studentAPI.GET("/attempts/:id", handlers.StudentPortal.GetAttempt)
	}

	// ─── 4. WebSocket Group ────────────────────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(requireAuth, middleware.RequireRole(model.RoleStudent))
	{
		ws.GET("/student/sessions/:id/stream", handlers.WS.SessionStream)
	}

	return router
}
