package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ErrUnauthorized is returned by an Authorizer that rejects a request
var ErrUnauthorized = errors.New("unauthorized")

// Authorizer decides whether a request may use the admin routes. Session
// issuance lives outside this service; an Authorizer only checks what the
// caller presents.
type Authorizer interface {
	Authorize(r *http.Request) error
}

// StaticTokenAuthorizer accepts a single bearer token
type StaticTokenAuthorizer struct {
	token []byte
}

// NewStaticTokenAuthorizer creates an authorizer for token. An empty token
// rejects every request.
func NewStaticTokenAuthorizer(token string) *StaticTokenAuthorizer {
	return &StaticTokenAuthorizer{token: []byte(token)}
}

func (a *StaticTokenAuthorizer) Authorize(r *http.Request) error {
	if len(a.token) == 0 {
		return ErrUnauthorized
	}
	header := r.Header.Get("Authorization")
	presented, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(presented)), a.token) != 1 {
		return ErrUnauthorized
	}
	return nil
}

func authMiddleware(auth Authorizer, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := auth.Authorize(c.Request); err != nil {
			log.Warn().Str("path", c.Request.URL.Path).Str("client_ip", c.ClientIP()).Msg("Rejected admin request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}
