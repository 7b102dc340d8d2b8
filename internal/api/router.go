package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/draft-staging-api/internal/config"
	"github.com/draft-staging-api/internal/preview"
	"github.com/draft-staging-api/internal/service"
	"github.com/draft-staging-api/internal/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const serviceName = "draft-staging-api"

// Options carries the router's collaborators. Nil fields get defaults.
type Options struct {
	Authorizer Authorizer
	Renderer   preview.Renderer
	Metrics    *telemetry.Metrics
	Now        func() time.Time

	// HealthCheck reports whether the backend is reachable
	HealthCheck func(ctx context.Context) error
}

// NewRouter creates and configures the Gin router
func NewRouter(services *service.Services, cfg *config.Config, log zerolog.Logger, opts Options) *gin.Engine {
	// Set Gin mode
	gin.SetMode(gin.ReleaseMode)

	if opts.Authorizer == nil {
		opts.Authorizer = NewStaticTokenAuthorizer(cfg.Auth.AdminToken)
	}
	if opts.Renderer == nil {
		opts.Renderer = preview.NewGoldmark()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	metrics := telemetry.OrNoop(opts.Metrics)

	router := gin.New()

	// Middleware
	router.Use(recoveryMiddleware(log))
	router.Use(loggingMiddleware(log))
	router.Use(metricsMiddleware(metrics))
	router.Use(corsMiddleware())

	// Handlers
	postHandler := NewPostHandler(services, opts.Renderer, opts.Now, log)
	buildHandler := NewBuildHandler(services, log)
	articleHandler := NewArticleHandler(services, log)

	// Health check
	router.GET("/health", healthCheck(opts.HealthCheck, log))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/stats", buildHandler.Stats)

	// API v1
	v1 := router.Group("/v1")
	{
		// Public catalog
		articles := v1.Group("/articles")
		{
			articles.GET("", articleHandler.ListArticles)
			articles.GET("/:slug", articleHandler.GetArticle)
		}

		// Scheduled hook, callable by an external cron
		v1.GET("/cron/nightly-build", buildHandler.Nightly)

		admin := v1.Group("/admin", authMiddleware(opts.Authorizer, log))
		{
			posts := admin.Group("/posts")
			{
				posts.GET("", postHandler.ListPosts)
				posts.POST("", postHandler.CreatePost)
				posts.GET("/:slug", postHandler.GetPost)
				posts.PUT("/:slug", postHandler.SavePost)
				posts.DELETE("/:slug", postHandler.DeletePost)
				posts.POST("/:slug/publish", postHandler.PublishPost)
				posts.POST("/:slug/unpublish", postHandler.UnpublishPost)
				posts.POST("/:slug/preview", postHandler.PreviewPost)
			}

			build := admin.Group("/build")
			{
				build.POST("/trigger", buildHandler.Trigger)
				build.POST("/materialize", buildHandler.Materialize)
			}
		}
	}

	return router
}

// healthCheck returns the health status
func healthCheck(check func(ctx context.Context) error, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				log.Warn().Err(err).Msg("Health check failed")
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":    "unhealthy",
					"timestamp": time.Now().Format(time.RFC3339),
					"service":   serviceName,
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().Format(time.RFC3339),
			"service":   serviceName,
		})
	}
}

// recoveryMiddleware handles panics
func recoveryMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().Interface("error", err).Msg("Panic recovered")
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Internal server error",
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}

// loggingMiddleware logs requests
func loggingMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		event := log.Info()
		if statusCode >= 400 {
			event = log.Warn()
		}
		if statusCode >= 500 {
			event = log.Error()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", statusCode).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Msg("Request completed")
	}
}

// metricsMiddleware records request counts and latency per route template
func metricsMiddleware(metrics *telemetry.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		metrics.HTTPRequests.With(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPDuration.With(method, route).Observe(time.Since(start).Seconds())
	}
}

// corsMiddleware handles CORS
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
