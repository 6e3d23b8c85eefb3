package observability

import (
	"strings"
	"time"

	"github.com/smallbiznis/creditline/internal/config"
	"github.com/smallbiznis/creditline/internal/observability/logger"
	"github.com/smallbiznis/creditline/internal/observability/metrics"
	"github.com/smallbiznis/creditline/internal/observability/tracing"
)

// Config is the slice of the application config the log, trace and
// metric providers need.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64

	SlowQueryThreshold time.Duration
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "creditline"
	}
	ratio := cfg.OtelSamplingRatio
	if ratio < 0 || ratio > 1 {
		ratio = 0.1
	}
	protocol := cfg.OTLPProtocol
	if protocol == "" {
		protocol = "grpc"
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             cfg.LogLevel,
		LogFormat:            cfg.LogFormat,
		OtelEnabled:          cfg.OtelEnabled,
		OtelExporterEndpoint: cfg.OTLPEndpoint,
		OtelExporterProtocol: protocol,
		OtelSamplingRatio:    ratio,
		SlowQueryThreshold:   time.Duration(cfg.DBSlowQueryMillis) * time.Millisecond,
	}
}

// Debug is true for an explicit debug level or any non-shared environment.
func (c Config) Debug() bool {
	if strings.EqualFold(c.LogLevel, "debug") {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func (c Config) Logger() logger.Config {
	return logger.Config{
		ServiceName:         c.ServiceName,
		Environment:         c.Environment,
		Version:             c.Version,
		Level:               c.LogLevel,
		Format:              c.LogFormat,
		Debug:               c.Debug(),
		IncludeCaller:       true,
		IncludeStackOnError: c.Debug(),
	}
}

// QueryLog logs every statement in debug runs and only the noteworthy ones otherwise.
func (c Config) QueryLog() logger.QueryLogConfig {
	return logger.QueryLogConfig{
		Verbose:       c.Debug(),
		SlowThreshold: c.SlowQueryThreshold,
	}
}

func (c Config) Tracing() tracing.Config {
	return tracing.Config{
		Enabled:          c.OtelEnabled,
		ServiceName:      c.ServiceName,
		ServiceVersion:   c.Version,
		Environment:      c.Environment,
		ExporterEndpoint: c.OtelExporterEndpoint,
		ExporterProtocol: c.OtelExporterProtocol,
		SamplingRatio:    c.OtelSamplingRatio,
	}
}

func (c Config) Metrics() metrics.Config {
	return metrics.Config{
		Enabled:          c.OtelEnabled,
		ExporterEndpoint: c.OtelExporterEndpoint,
		ExporterProtocol: c.OtelExporterProtocol,
		ServiceName:      c.ServiceName,
		Environment:      c.Environment,
	}
}
