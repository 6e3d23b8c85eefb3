package server

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/smallbiznis/creditline/internal/apikey/domain"
	"github.com/smallbiznis/creditline/internal/observability/logger"
	obscontext "github.com/smallbiznis/creditline/internal/observability/context"
	"github.com/smallbiznis/creditline/internal/usercontext"
	"go.uber.org/zap"
)

const contextUserIDKey = "user_id"

// APIKeyRequired authenticates requests with a bearer API key.
// The user identity is derived solely from the api_keys table.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := c.Request.Context()
		userID, err := s.apiKeySvc.Authenticate(ctx, parts[1])
		if err != nil {
			if !errors.Is(err, apikeydomain.ErrUnauthorized) {
				logger.FromContext(ctx).Error("api key lookup failed", zap.Error(err))
			}
			AbortWithError(c, err)
			return
		}

		ctx = usercontext.WithUserID(ctx, userID)
		ctx = obscontext.WithUserID(ctx, userID)
		c.Set(contextUserIDKey, userID)

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func userIDFromRequest(c *gin.Context) (string, bool) {
	return usercontext.UserIDFromContext(c.Request.Context())
}
