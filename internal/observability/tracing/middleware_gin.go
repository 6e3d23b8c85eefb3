package tracing

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/creditline/internal/observability/context"
	"github.com/smallbiznis/creditline/internal/usercontext"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Gin keys the usage handlers fill in for the request span.
const (
	UsageFeatureKey = "usage_feature"
	UsageOutcomeKey = "usage_outcome"
	UsageAmountKey  = "usage_amount"
)

// GinMiddleware opens one server span per request. Attributes describing
// the caller and the debit are attached after the handler chain, since
// auth and the usage handlers only learn them there.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("creditline/http")
	return func(c *gin.Context) {
		method := strings.ToUpper(c.Request.Method)
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			if member, err := baggage.NewMember("request_id", requestID); err == nil {
				if bag, err := baggage.New(member); err == nil {
					ctx = baggage.ContextWithBaggage(ctx, bag)
				}
			}
			span.SetAttributes(attribute.String("request_id", requestID))
		}

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + method + " " + route)
		span.SetAttributes(SafeAttributes(requestAttributes(c, route, status, time.Since(start))...)...)

		if status >= http.StatusInternalServerError {
			if lastErr := c.Errors.Last(); lastErr != nil {
				if safeErr := SafeError(lastErr.Err); safeErr != nil {
					span.RecordError(safeErr)
				}
			}
			span.SetStatus(codes.Error, "request error")
		}
	}
}

func requestAttributes(c *gin.Context, route string, status int, elapsed time.Duration) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", c.Request.Method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", status),
		attribute.Int64("http.server_duration_ms", elapsed.Milliseconds()),
	}
	if userID, ok := usercontext.UserIDFromContext(c.Request.Context()); ok {
		attrs = append(attrs, attribute.String("enduser.id", userID))
	}
	if feature := c.GetString(UsageFeatureKey); feature != "" {
		attrs = append(attrs, attribute.String("usage.feature", feature))
	}
	if outcome := c.GetString(UsageOutcomeKey); outcome != "" {
		attrs = append(attrs, attribute.String("usage.outcome", outcome))
	}
	if amount, ok := c.Get(UsageAmountKey); ok {
		if v, ok := amount.(float64); ok {
			attrs = append(attrs, attribute.Float64("usage.amount", v))
		}
	}
	return attrs
}
