package metrics

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("feature", "chat"),
		attribute.String("user_id", "456"),
		attribute.String("outcome", "success"),
	)
	require.Len(t, attrs, 2)
	keys := []attribute.Key{attrs[0].Key, attrs[1].Key}
	assert.Contains(t, keys, attribute.Key("feature"))
	assert.Contains(t, keys, attribute.Key("outcome"))
}

func TestFeatureLabel(t *testing.T) {
	assert.Equal(t, "chat.completion", FeatureLabel(" Chat.Completion "))
	assert.Equal(t, "other", FeatureLabel(""))
	assert.Equal(t, "other", FeatureLabel("has spaces"))
	assert.Equal(t, "other", FeatureLabel(strings.Repeat("a", 100)))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordUsageConsume(context.Background(), "chat", OutcomeSuccess, 3)
	m.RecordRateLimitAllowed(context.Background(), "usage_consume")
	m.RecordRateLimitDenied(context.Background(), "usage_consume", "limit")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "test"}, noop.NewMeterProvider())
	require.NoError(t, err)
	m.RecordUsageConsume(context.Background(), "chat", OutcomeSuccess, 3)
}
