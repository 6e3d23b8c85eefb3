package server

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/creditline/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/creditline/internal/observability/metrics"
	"github.com/smallbiznis/creditline/internal/ratelimit"
	"go.uber.org/zap"
)

// APIRateLimit applies the general per-user bucket to every authenticated route.
func (s *Server) APIRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.enforceRateLimit(c, s.apiLimiter)
	}
}

// UsageConsumeRateLimit applies the stricter per-user bucket to debits.
func (s *Server) UsageConsumeRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.enforceRateLimit(c, s.usageLimiter)
	}
}

func (s *Server) enforceRateLimit(c *gin.Context, limiter *ratelimit.Limiter) {
	if !limiter.Enabled() {
		c.Next()
		return
	}

	userID, ok := userIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	endpoint := normalizeRateLimitEndpoint(c)
	ctx := c.Request.Context()

	result, err := limiter.Allow(ctx, userID)
	if err != nil {
		logger.FromContext(ctx).Warn("rate limit check failed",
			zap.String("scope", limiter.Scope()),
			zap.Error(err),
		)
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	if !result.Allowed {
		denyRateLimit(c, endpoint, rateLimitReason(limiter), retryAfterSeconds(result.RetryAfter.Seconds()), s.obsMetrics)
		return
	}

	recordRateLimitAllowed(ctx, endpoint, s.obsMetrics)
	c.Next()
}

func rateLimitReason(limiter *ratelimit.Limiter) string {
	return limiter.Scope() + "-user-rate"
}

func denyRateLimit(c *gin.Context, endpoint, reason string, retryAfter int, metrics *obsmetrics.Metrics) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Info("rate limit exceeded",
		zap.String("reason", reason),
		zap.String("endpoint", endpoint),
		zap.Int("retry_after_seconds", retryAfter),
	)
	recordRateLimitDenied(ctx, endpoint, reason, metrics)

	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.Header("X-Rate-Limited-Reason", reason)
	AbortWithError(c, ErrRateLimited)
}

func retryAfterSeconds(seconds float64) int {
	if seconds <= 1 {
		return 1
	}
	return int(math.Ceil(seconds))
}

func recordRateLimitAllowed(ctx context.Context, endpoint string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitAllowed(ctx, endpoint)
}

func recordRateLimitDenied(ctx context.Context, endpoint, reason string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitDenied(ctx, endpoint, reason)
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
