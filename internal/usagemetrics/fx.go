package usagemetrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/creditline/internal/clock"
	"github.com/smallbiznis/creditline/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultPushInterval = time.Minute

var Module = fx.Module("usage.metrics",
	fx.Provide(NewPusher),
	fx.Invoke(Register),
)

// Register starts the background push loop when a pusher is configured.
// Push failures are logged and never affect request handling.
func Register(lc fx.Lifecycle, cfg config.Config, pusher Pusher, db *gorm.DB, clk clock.Clock, logger *zap.Logger) {
	if pusher == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("usage.metrics")

	registry := prometheus.NewRegistry()
	collector := NewCollector(registry, db, clk)

	interval := time.Duration(cfg.UsageMetrics.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = defaultPushInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Info("starting usage metrics push", zap.Duration("interval", interval))
			go func() {
				defer close(done)
				ticker := time.NewTicker(interval)
				defer ticker.Stop()

				pushOnce(ctx, collector, pusher, registry, logger)
				for {
					select {
					case <-ticker.C:
						pushOnce(ctx, collector, pusher, registry, logger)
					case <-ctx.Done():
						logger.Info("stopping usage metrics push")
						return
					}
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

func pushOnce(ctx context.Context, collector *Collector, pusher Pusher, registry *prometheus.Registry, logger *zap.Logger) {
	pushCtx, cancel := context.WithTimeout(ctx, defaultPushTimeout)
	defer cancel()

	if err := collector.Refresh(pushCtx); err != nil {
		logger.Warn("usage metrics refresh failed", zap.Error(err))
		return
	}
	if err := pusher.Push(pushCtx, registry); err != nil {
		logger.Warn("usage metrics push failed", zap.Error(err))
	}
}
