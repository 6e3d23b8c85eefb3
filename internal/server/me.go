package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	profiledomain "github.com/smallbiznis/creditline/internal/profile/domain"
)

type meResponse struct {
	User    meUser                 `json:"user"`
	Profile *profiledomain.Profile `json:"profile"`
	Plan    profiledomain.PlanInfo `json:"plan"`
}

type meUser struct {
	ID string `json:"id"`
}

// GetMe returns the caller's identity, stored profile (null when none exists
// yet) and the plan that allowances are resolved from.
func (s *Server) GetMe(c *gin.Context) {
	userID, ok := userIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	ctx := c.Request.Context()
	profile, err := s.profiles.Get(ctx, s.db, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	info, err := s.profiles.GetPlan(ctx, s.db, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, meResponse{
		User:    meUser{ID: userID},
		Profile: profile,
		Plan:    info,
	})
}
