package api

import (
	"errors"
	"net/http"

	"github.com/draft-staging-api/internal/deploy"
	"github.com/draft-staging-api/internal/preview"
	"github.com/draft-staging-api/internal/service"
	"github.com/draft-staging-api/internal/validation"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// respondError maps a service error onto its HTTP status
func respondError(c *gin.Context, log zerolog.Logger, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		respondInvalid(c, verr.Errors)
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrMaterializeInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, preview.ErrEmptyContent):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Content is required for preview"})
	case errors.Is(err, service.ErrStorageUnavailable):
		log.Error().Err(err).Msg("Storage unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Storage temporarily unavailable"})
	case errors.Is(err, deploy.ErrHookFailed):
		log.Error().Err(err).Msg("Deploy hook failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	case errors.Is(err, deploy.ErrNotConfigured):
		log.Error().Err(err).Msg("Deploy hook missing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Msg("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func respondInvalid(c *gin.Context, errs []validation.ValidationError) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":  "Invalid input",
		"errors": errs,
	})
}
