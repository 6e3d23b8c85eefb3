package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	usageConsume     metric.Int64Counter
	creditsDebited   metric.Int64Counter
	rateLimitAllowed metric.Int64Counter
	rateLimitDenied  metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "creditline"
	}
	meter := provider.Meter(name)

	usageConsume, err := meter.Int64Counter("creditline_usage_consume_total",
		metric.WithDescription("Usage consume attempts by outcome."))
	if err != nil {
		return nil, err
	}
	creditsDebited, err := meter.Int64Counter("creditline_usage_credits_debited_total",
		metric.WithDescription("Credits debited from usage balances."))
	if err != nil {
		return nil, err
	}
	rateLimitAllowed, err := meter.Int64Counter("creditline_rate_limit_allowed_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("creditline_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		usageConsume:     usageConsume,
		creditsDebited:   creditsDebited,
		rateLimitAllowed: rateLimitAllowed,
		rateLimitDenied:  rateLimitDenied,
	}, nil
}

// RecordUsageConsume counts one consume attempt. Debited credits are only
// added for successful attempts.
func (m *Metrics) RecordUsageConsume(ctx context.Context, feature, outcome string, credits int64) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("feature", FeatureLabel(feature)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.usageConsume.Add(ctx, 1, metric.WithAttributes(attrs...))
	if outcome == OutcomeSuccess && credits > 0 {
		m.creditsDebited.Add(ctx, credits, metric.WithAttributes(
			FilterAttributes(attribute.String("feature", FeatureLabel(feature)))...,
		))
	}
}

// RecordRateLimitAllowed increments rate limit allow counts.
func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("endpoint", strings.TrimSpace(endpoint)))
	m.rateLimitAllowed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

const (
	OutcomeSuccess       = "success"
	OutcomeLimitExceeded = "limit_exceeded"
	OutcomeInvalid       = "invalid_request"
	OutcomeStorageError  = "storage_error"
)

const maxFeatureLabelLen = 48

var allowedLabelKeys = map[attribute.Key]struct{}{
	"feature":     {},
	"outcome":     {},
	"endpoint":    {},
	"status_code": {},
	"method":      {},
	"route":       {},
	"reason":      {},
}

// FeatureLabel keeps client-supplied feature names from exploding label cardinality.
func FeatureLabel(feature string) string {
	feature = strings.ToLower(strings.TrimSpace(feature))
	if feature == "" || len(feature) > maxFeatureLabelLen {
		return "other"
	}
	for _, r := range feature {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
		default:
			return "other"
		}
	}
	return feature
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
