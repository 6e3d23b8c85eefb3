// Package obscontext carries request-scoped identifiers used by logs, traces and metrics.
package obscontext

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
)

type requestIDKey struct{}
type userIDKey struct{}
type correlationIDKey struct{}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey{})
}

func WithUserID(ctx context.Context, userID string) context.Context {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDKey{}, userID)
}

func UserIDFromContext(ctx context.Context) string {
	return stringValue(ctx, userIDKey{})
}

// WithCorrelationID stores an explicit correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationIDKey{}, id)
}

func CorrelationIDFromContext(ctx context.Context) string {
	return stringValue(ctx, correlationIDKey{})
}

// EnsureCorrelationID guarantees a correlation ID on the context, generating a ULID when missing.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	if cid := CorrelationIDFromContext(ctx); cid != "" {
		return ctx, cid
	}
	cid := ulid.Make().String()
	return WithCorrelationID(ctx, cid), cid
}

func stringValue(ctx context.Context, key any) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}
