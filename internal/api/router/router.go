package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ideaboard/ideaboard/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		ctx := c.Request.Context()

		dbStatus := "healthy"
		if err := deps.DBClient.HealthCheck(ctx); err != nil {
			dbStatus = "unhealthy"
		}

		redisStatus := "healthy"
		if err := deps.RedisClient.HealthCheck(ctx); err != nil {
			redisStatus = "unhealthy"
		}

		status := http.StatusOK
		if dbStatus != "healthy" || redisStatus != "healthy" {
			status = http.StatusServiceUnavailable
		}

		c.JSON(status, gin.H{
			"status":   "healthy",
			"service":  "ideaboard-api-service",
			"database": dbStatus,
			"redis":    redisStatus,
		})
	})

	h := handler.NewHandler(deps)

	// Webhook routes receive voice agent tool calls
	webhook := r.Group("/webhook")
	webhook.Use(APIKeyMiddleware(deps.APIKey))
	{
		// POST /webhook/idea - Enqueue an idea card
		webhook.POST("/idea", h.PostIdea)

		// POST /webhook/answer - Enqueue a survey answer
		webhook.POST("/answer", h.PostAnswer)
	}

	// API v1 routes
	v1 := r.Group("/api/v1")
	v1.Use(APIKeyMiddleware(deps.APIKey))
	{
		queueGroup := v1.Group("/queue")
		{
			// GET /api/v1/queue/status - Queue depths
			queueGroup.GET("/status", h.QueueStatus)

			// GET /api/v1/queue/jobs/:job_id - Job state
			queueGroup.GET("/jobs/:job_id", h.GetQueueJob)

			// POST /api/v1/queue/jobs/:job_id/requeue - Requeue a failed job
			queueGroup.POST("/jobs/:job_id/requeue", h.RequeueJob)
		}

		survey := v1.Group("/survey")
		{
			// GET /api/v1/survey/sessions - List sessions
			survey.GET("/sessions", h.ListSessions)

			// GET /api/v1/survey/sessions/:conversation_id - Session detail
			survey.GET("/sessions/:conversation_id", h.GetSession)

			// POST /api/v1/survey/sessions/:conversation_id/complete - Operator completion
			survey.POST("/sessions/:conversation_id/complete", h.CompleteSession)

			// GET /api/v1/survey/stats - Aggregate counters
			survey.GET("/stats", h.GetStats)

			// GET /api/v1/survey/export - CSV/JSON export
			survey.GET("/export", h.ExportAnswers)
		}

		sessions := v1.Group("/sessions")
		{
			// GET /api/v1/sessions/:session_id/state - Ephemeral activity view
			sessions.GET("/:session_id/state", h.GetSessionState)
		}
	}

	return r
}
