package api

import (
	"net/http"
	"time"

	"github.com/draft-staging-api/internal/preview"
	"github.com/draft-staging-api/internal/service"
	"github.com/draft-staging-api/internal/validation"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// PostHandler handles the admin post endpoints
type PostHandler struct {
	services *service.Services
	renderer preview.Renderer
	now      func() time.Time
	log      zerolog.Logger
}

// NewPostHandler creates a new PostHandler
func NewPostHandler(services *service.Services, renderer preview.Renderer, now func() time.Time, log zerolog.Logger) *PostHandler {
	return &PostHandler{
		services: services,
		renderer: renderer,
		now:      now,
		log:      log.With().Str("handler", "posts").Logger(),
	}
}

// ListPosts handles GET /v1/admin/posts
func (h *PostHandler) ListPosts(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Catalog.AdminPosts(c.Request.Context()))
}

// CreatePost handles POST /v1/admin/posts
func (h *PostHandler) CreatePost(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}
	in, errs := validation.DecodeDraftInput(body)
	if len(errs) > 0 {
		respondInvalid(c, errs)
		return
	}

	post, err := h.services.Drafts.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"post":    post,
		"message": "Post created successfully and saved to database.",
	})
}

// GetPost handles GET /v1/admin/posts/:slug
func (h *PostHandler) GetPost(c *gin.Context) {
	post, err := h.services.Catalog.AdminPost(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "post": post})
}

// SavePost handles PUT /v1/admin/posts/:slug. A static article without a
// draft gets an overriding draft.
func (h *PostHandler) SavePost(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}
	patch, errs := validation.DecodeDraftPatch(body)
	if len(errs) > 0 {
		respondInvalid(c, errs)
		return
	}

	post, err := h.services.Drafts.Save(c.Request.Context(), c.Param("slug"), patch)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"post":    post,
		"message": "Post saved.",
	})
}

// DeletePost handles DELETE /v1/admin/posts/:slug
func (h *PostHandler) DeletePost(c *gin.Context) {
	slug := c.Param("slug")
	outcome, err := h.services.Deletions.Delete(c.Request.Context(), slug)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	message := "Temporary post deleted successfully."
	if outcome == service.MarkedStatic {
		message = "Static post marked for deletion at the next build."
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"outcome": outcome,
		"message": message,
	})
}

// PublishPost handles POST /v1/admin/posts/:slug/publish
func (h *PostHandler) PublishPost(c *gin.Context) {
	slug := c.Param("slug")
	post, err := h.services.Drafts.Publish(c.Request.Context(), slug)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"post":    post,
		"message": "Post \"" + post.Title + "\" published successfully! It's now live at /articles/" + post.Slug,
	})
}

// UnpublishPost handles POST /v1/admin/posts/:slug/unpublish
func (h *PostHandler) UnpublishPost(c *gin.Context) {
	post, err := h.services.Drafts.Unpublish(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"post":    post,
		"message": "Post \"" + post.Title + "\" moved back to drafts.",
	})
}

// PreviewPost handles POST /v1/admin/posts/:slug/preview. Nothing is stored.
func (h *PostHandler) PreviewPost(c *gin.Context) {
	var req preview.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Content is required for preview"})
		return
	}

	p, err := preview.Build(h.renderer, req, h.now())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "preview": p})
}
