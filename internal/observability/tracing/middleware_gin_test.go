package tracing

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/creditline/internal/usercontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })
	return recorder
}

func spanAttrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func authenticateAs(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(usercontext.WithUserID(c.Request.Context(), userID))
		c.Next()
	}
}

func TestGinMiddlewareTagsConsumeSpan(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := recordSpans(t)

	r := gin.New()
	r.Use(GinMiddleware())
	r.POST("/api/usage/consume", authenticateAs("user-7"), func(c *gin.Context) {
		c.Set(UsageFeatureKey, "summarize")
		c.Set(UsageAmountKey, 2.5)
		c.Set(UsageOutcomeKey, "usage_limit_exceeded")
		c.Status(http.StatusPaymentRequired)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/usage/consume", nil))
	require.Equal(t, http.StatusPaymentRequired, w.Code)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "HTTP POST /api/usage/consume", spans[0].Name())
	assert.NotEqual(t, codes.Error, spans[0].Status().Code)

	attrs := spanAttrs(spans[0])
	assert.Equal(t, "user-7", attrs["enduser.id"].AsString())
	assert.Equal(t, "summarize", attrs["usage.feature"].AsString())
	assert.Equal(t, "usage_limit_exceeded", attrs["usage.outcome"].AsString())
	assert.InDelta(t, 2.5, attrs["usage.amount"].AsFloat64(), 1e-9)
	assert.Equal(t, int64(http.StatusPaymentRequired), attrs["http.status_code"].AsInt64())
}

func TestGinMiddlewareAnonymousRequestHasNoUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := recordSpans(t)

	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	attrs := spanAttrs(spans[0])
	assert.NotContains(t, attrs, attribute.Key("enduser.id"))
	assert.NotContains(t, attrs, attribute.Key("usage.outcome"))
	assert.Equal(t, "/health", attrs["http.route"].AsString())
}

func TestGinMiddlewareRecordsServerFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := recordSpans(t)

	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/api/usage", func(c *gin.Context) {
		_ = c.Error(errors.New("storage_unavailable: dial tcp 10.0.0.5:5432: refused"))
		c.Status(http.StatusServiceUnavailable)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/usage", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	require.Len(t, spans[0].Events(), 1)
	for _, kv := range spans[0].Events()[0].Attributes {
		if kv.Key == "exception.message" {
			assert.Equal(t, "storage_unavailable", kv.Value.AsString())
		}
	}
}
