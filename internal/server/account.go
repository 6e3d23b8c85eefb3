package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) ExportAccount(c *gin.Context) {
	userID, ok := userIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	export, err := s.accountSvc.Export(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="account-export.json"`)
	c.JSON(http.StatusOK, export)
}

func (s *Server) DeleteAccount(c *gin.Context) {
	userID, ok := userIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if err := s.accountSvc.Delete(c.Request.Context(), userID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
