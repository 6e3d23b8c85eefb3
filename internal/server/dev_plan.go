package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/creditline/internal/plan"
	profiledomain "github.com/smallbiznis/creditline/internal/profile/domain"
)

type setDevPlanRequest struct {
	PlanID     string `json:"plan_id"`
	PlanStatus string `json:"plan_status"`
}

// SetDevPlan overrides the caller's subscription state so allowances can be
// exercised without the billing integration.
func (s *Server) SetDevPlan(c *gin.Context) {
	if s.cfg.IsProduction() {
		AbortWithError(c, ErrNotFound)
		return
	}

	userID, ok := userIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req setDevPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	info := profiledomain.PlanInfo{
		PlanID:     plan.Normalize(plan.ID(req.PlanID)),
		PlanStatus: plan.NormalizeStatus(plan.Status(req.PlanStatus)),
	}
	if err := s.profiles.SetPlan(c.Request.Context(), s.db, userID, info, s.clock.Now()); err != nil {
		AbortWithError(c, err)
		return
	}

	allowance, err := s.usageSvc.Allowance(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"plan_id":     info.PlanID,
		"plan_status": info.PlanStatus,
		"allowance":   allowance,
	})
}
