// Package usagemetrics publishes period-level ledger totals to an external
// Prometheus collector on a fixed interval.
package usagemetrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/creditline/internal/clock"
	usagedomain "github.com/smallbiznis/creditline/internal/usage/domain"
	"github.com/smallbiznis/creditline/internal/usage/period"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Collector keeps gauges describing the current period in sync with the ledger.
type Collector struct {
	db    *gorm.DB
	clock clock.Clock

	activeUsers    prometheus.Gauge
	exhaustedUsers prometheus.Gauge
	creditsUsed    prometheus.Gauge
	creditsGranted prometheus.Gauge
}

type periodTotals struct {
	ActiveUsers    int64
	ExhaustedUsers int64
	CreditsUsed    int64
	CreditsGranted int64
}

func NewCollector(registry *prometheus.Registry, db *gorm.DB, clk clock.Clock) *Collector {
	c := &Collector{
		db:    db,
		clock: clk,
		activeUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "creditline_period_active_users",
			Help: "Users with a usage balance in the current period.",
		}),
		exhaustedUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "creditline_period_exhausted_users",
			Help: "Users who have used their whole allowance this period.",
		}),
		creditsUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "creditline_period_credits_used",
			Help: "Credits consumed across all users this period.",
		}),
		creditsGranted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "creditline_period_credits_granted",
			Help: "Credits granted across all users this period.",
		}),
	}
	registry.MustRegister(c.activeUsers, c.exhaustedUsers, c.creditsUsed, c.creditsGranted)
	return c
}

// Refresh reloads the gauges from the balances of the current period.
func (c *Collector) Refresh(ctx context.Context) error {
	current := period.Current(c.clock.Now())

	var totals periodTotals
	err := c.db.WithContext(ctx).
		Model(&usagedomain.UsageBalance{}).
		Select(`COUNT(*) AS active_users,
			COALESCE(SUM(CASE WHEN credits_used >= credits_total THEN 1 ELSE 0 END), 0) AS exhausted_users,
			COALESCE(SUM(credits_used), 0) AS credits_used,
			COALESCE(SUM(credits_total), 0) AS credits_granted`).
		Where("period_start = ?", datatypes.Date(current.Start)).
		Scan(&totals).Error
	if err != nil {
		return err
	}

	c.activeUsers.Set(float64(totals.ActiveUsers))
	c.exhaustedUsers.Set(float64(totals.ExhaustedUsers))
	c.creditsUsed.Set(float64(totals.CreditsUsed))
	c.creditsGranted.Set(float64(totals.CreditsGranted))
	return nil
}
