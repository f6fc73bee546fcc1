package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/ielts-listening/internal/config"
	"github.com/stemsi/ielts-listening/internal/handler"
	"github.com/stemsi/ielts-listening/internal/middleware"
	"github.com/stemsi/ielts-listening/internal/response"
	"github.com/stemsi/ielts-listening/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Listening *handler.ListeningHandler
	WS        *handler.WSHandler
	System    *handler.SystemHandler
}

// audioMaxAge lets the browser reuse fetched audio ranges within one sitting.
const audioMaxAge = 3600

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID", "Range"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Content-Range", "Accept-Ranges"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", handlers.System.Health)

	// Manual submit is rate limited per user.
	submitLimiter := middleware.NewRateLimiter(cfg.SubmitRatePerMinute, time.Minute)

	// ─── 1. Listening Group (JWT) ──────────────────────────────────────
	listening := router.Group("/api/v1/listening")
	listening.Use(middleware.RequireJWT(authService))
	{
		listening.GET("/attempts", middleware.NoStore(), handlers.Listening.ListAttempts)

		exam := listening.Group("/exams/:exam_id")
		{
			exam.GET("/audio", middleware.PrivateCache(audioMaxAge), handlers.Listening.StreamAudio)

			state := exam.Group("")
			state.Use(middleware.NoStore(), middleware.Brotli())
			{
				state.POST("/open", handlers.Listening.OpenExam)
				state.DELETE("", handlers.Listening.CloseExam)
				state.POST("/start", handlers.Listening.StartExam)
				state.GET("/status", handlers.Listening.GetStatus)
				state.GET("/parts/:part", handlers.Listening.GetPart)
				state.GET("/progress", handlers.Listening.GetProgress)

				state.PUT("/answers/:number", handlers.Listening.SetAnswer)
				state.POST("/checkbox", handlers.Listening.ToggleCheckbox)
				state.POST("/drag", handlers.Listening.Drag)
				state.POST("/hard/:number", handlers.Listening.ToggleHard)

				state.GET("/highlights", handlers.Listening.ListHighlights)
				state.POST("/highlights", handlers.Listening.AddHighlight)
				state.DELETE("/highlights/:highlight_id", handlers.Listening.DeleteHighlight)

				state.POST("/submit", submitLimiter.Middleware(), handlers.Listening.SubmitExam)
			}
		}
	}

	// ─── 2. WebSocket Group (WS Auth) ──────────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireWSAuth(authService))
	{
		ws.GET("/listening/exams/:exam_id/stream", handlers.WS.ListeningStream)
	}

	return router
}
