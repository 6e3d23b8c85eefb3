package observability

import (
	"testing"
	"time"

	"github.com/smallbiznis/creditline/internal/config"
	"github.com/smallbiznis/creditline/internal/observability/logger"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDerivesFromAppConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")

	cfg := LoadConfig(config.Config{
		AppVersion:        " 1.2.3 ",
		Environment:       "production",
		LogLevel:          "warn",
		LogFormat:         "console",
		OtelEnabled:       true,
		OTLPEndpoint:      "collector:4317",
		OtelSamplingRatio: 4,
		DBSlowQueryMillis: 250,
	})

	assert.Equal(t, "creditline", cfg.ServiceName)
	assert.Equal(t, "1.2.3", cfg.Version)
	assert.Equal(t, "warn", cfg.LogLevel, "environment is read only by internal/config")
	assert.Equal(t, "grpc", cfg.OtelExporterProtocol)
	assert.InDelta(t, 0.1, cfg.OtelSamplingRatio, 1e-9)
	assert.False(t, cfg.Debug())

	assert.Equal(t, logger.QueryLogConfig{SlowThreshold: 250 * time.Millisecond}, cfg.QueryLog())
	assert.Equal(t, "collector:4317", cfg.Tracing().ExporterEndpoint)
	assert.True(t, cfg.Metrics().Enabled)
	assert.False(t, cfg.Logger().IncludeStackOnError)
}

func TestDebugInDevelopment(t *testing.T) {
	cfg := LoadConfig(config.Config{Environment: "Development", LogLevel: "info"})
	assert.True(t, cfg.Debug())
	assert.True(t, cfg.QueryLog().Verbose)

	cfg = LoadConfig(config.Config{Environment: "production", LogLevel: "DEBUG"})
	assert.True(t, cfg.Debug())
}
