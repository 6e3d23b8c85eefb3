package observability

import (
	"github.com/smallbiznis/creditline/internal/observability/logger"
	"github.com/smallbiznis/creditline/internal/observability/metrics"
	"github.com/smallbiznis/creditline/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	gormlogger "gorm.io/gorm/logger"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		Config.Logger,
		Config.Tracing,
		Config.Metrics,
		logger.New,
		newQueryLogger,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
		metrics.LedgerWithConfig,
	),
	// Nothing else asks for these; force construction so the globals are installed.
	fx.Invoke(func(*sdktrace.TracerProvider, *metrics.LedgerMetrics) {}),
)

func newQueryLogger(cfg Config) gormlogger.Interface {
	return logger.NewQueryLogger(cfg.QueryLog())
}
