package api

import (
	"net/http"
	"time"

	"github.com/draft-staging-api/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// BuildHandler handles build, materialization and nightly endpoints
type BuildHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewBuildHandler creates a new BuildHandler
func NewBuildHandler(services *service.Services, log zerolog.Logger) *BuildHandler {
	return &BuildHandler{
		services: services,
		log:      log.With().Str("handler", "build").Logger(),
	}
}

// Trigger handles POST /v1/admin/build/trigger
func (h *BuildHandler) Trigger(c *gin.Context) {
	result, err := h.services.Build.Trigger(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Materialize handles POST /v1/admin/build/materialize. Item failures are
// part of a successful response.
func (h *BuildHandler) Materialize(c *gin.Context) {
	result, err := h.services.Materializer.Run(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Nightly handles GET /v1/cron/nightly-build
func (h *BuildHandler) Nightly(c *gin.Context) {
	result, err := h.services.Build.Nightly(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Stats handles GET /stats
func (h *BuildHandler) Stats(c *gin.Context) {
	pending, err := h.services.Build.Pending(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"pending":   pending,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
