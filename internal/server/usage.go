package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	obstracing "github.com/smallbiznis/creditline/internal/observability/tracing"
	usagedomain "github.com/smallbiznis/creditline/internal/usage/domain"
)

const usageOutcomeConsumed = "consumed"

type consumeUsageRequest struct {
	Feature  string         `json:"feature"`
	Amount   *float64       `json:"amount"`
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) ConsumeUsage(c *gin.Context) {
	userID, ok := userIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req consumeUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Amount == nil {
		AbortWithError(c, newValidationError("amount", "required", "amount is required"))
		return
	}
	if feature := strings.TrimSpace(req.Feature); feature != "" {
		c.Set(obstracing.UsageFeatureKey, feature)
	}
	c.Set(obstracing.UsageAmountKey, *req.Amount)

	allowance, err := s.usageSvc.Consume(c.Request.Context(), usagedomain.ConsumeRequest{
		UserID:   userID,
		Feature:  req.Feature,
		Amount:   *req.Amount,
		Metadata: req.Metadata,
	})
	if err != nil {
		c.Set(obstracing.UsageOutcomeKey, string(usagedomain.KindOf(err)))
		AbortWithError(c, err)
		return
	}
	c.Set(obstracing.UsageOutcomeKey, usageOutcomeConsumed)

	c.JSON(http.StatusOK, gin.H{"allowance": allowance})
}

func (s *Server) GetUsage(c *gin.Context) {
	userID, ok := userIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	allowance, err := s.usageSvc.Allowance(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"allowance": allowance})
}

func (s *Server) ListUsageEvents(c *gin.Context) {
	userID, ok := userIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var pageSize int32
	if raw := strings.TrimSpace(c.Query("page_size")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || parsed < 0 {
			AbortWithError(c, newValidationError("page_size", "invalid_page_size", "invalid page size"))
			return
		}
		pageSize = int32(parsed)
	}

	resp, err := s.usageSvc.ListEvents(c.Request.Context(), usagedomain.ListEventsRequest{
		UserID:      userID,
		PeriodStart: c.Query("period_start"),
		PageToken:   c.Query("page_token"),
		PageSize:    pageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
