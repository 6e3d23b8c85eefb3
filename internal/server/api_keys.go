package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/smallbiznis/creditline/internal/apikey/domain"
)

type createAPIKeyRequest struct {
	Name      string     `json:"name"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (s *Server) ListAPIKeys(c *gin.Context) {
	keys, err := s.apiKeySvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"api_keys": keys})
}

func (s *Server) CreateAPIKey(c *gin.Context) {
	var req createAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.apiKeySvc.Create(c.Request.Context(), apikeydomain.CreateRequest{
		Name:      req.Name,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) RevokeAPIKey(c *gin.Context) {
	keyID := strings.TrimSpace(c.Param("key_id"))
	if err := s.apiKeySvc.Revoke(c.Request.Context(), keyID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
