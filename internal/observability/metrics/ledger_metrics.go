package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	LedgerReasonDeadlineExceeded     = "deadline_exceeded"
	LedgerReasonCanceled             = "canceled"
	LedgerReasonDBLockTimeout        = "db_lock_timeout"
	LedgerReasonSerializationFailure = "serialization_failure"
	LedgerReasonDeadlock             = "deadlock"
	LedgerReasonUniqueViolation      = "unique_violation"
	LedgerReasonConnection           = "connection"
	LedgerReasonUnknown              = "unknown"
)

// LedgerMetrics captures usage ledger store health for Prometheus scraping.
type LedgerMetrics struct {
	consumeDuration *prometheus.HistogramVec
	storageErrors   *prometheus.CounterVec
	limitRejections prometheus.Counter
}

var (
	ledgerMetricsOnce sync.Once
	ledgerMetrics     *LedgerMetrics
)

// Ledger returns the process-wide ledger metrics registered on the default registerer.
func Ledger() *LedgerMetrics {
	return LedgerWithConfig(Config{})
}

// LedgerWithConfig returns the process-wide ledger metrics using config labels.
func LedgerWithConfig(cfg Config) *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerMetrics = NewLedgerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return ledgerMetrics
}

// NewLedgerMetrics registers the ledger collectors on registerer.
func NewLedgerMetrics(registerer prometheus.Registerer, cfg Config) *LedgerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "creditline"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &LedgerMetrics{
		consumeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "creditline_ledger_consume_duration_seconds",
			Help:        "Latency of the atomic consume transaction by outcome.",
			Buckets:     []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		storageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "creditline_ledger_storage_errors_total",
			Help:        "Ledger store failures by classified reason.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		limitRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "creditline_ledger_limit_rejections_total",
			Help:        "Debits rejected because they would exceed the period allowance.",
			ConstLabels: constLabels,
		}),
	}

	m.consumeDuration = registerOrExisting(registerer, m.consumeDuration)
	m.storageErrors = registerOrExisting(registerer, m.storageErrors)
	m.limitRejections = registerOrExisting(registerer, m.limitRejections)
	return m
}

func registerOrExisting[C prometheus.Collector](registerer prometheus.Registerer, collector C) C {
	if err := registerer.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return collector
}

// ObserveConsume records the duration of one consume transaction.
func (m *LedgerMetrics) ObserveConsume(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.consumeDuration.WithLabelValues(strings.TrimSpace(outcome)).Observe(duration.Seconds())
	if outcome == OutcomeLimitExceeded {
		m.limitRejections.Inc()
	}
}

// IncStorageError counts a ledger store failure under its classified reason.
func (m *LedgerMetrics) IncStorageError(err error) {
	if m == nil || err == nil {
		return
	}
	m.storageErrors.WithLabelValues(ClassifyLedgerError(err)).Inc()
}

// ClassifyLedgerError maps storage errors to low-cardinality reasons.
func ClassifyLedgerError(err error) string {
	if err == nil {
		return LedgerReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return LedgerReasonDeadlineExceeded
	}
	if errors.Is(err, context.Canceled) {
		return LedgerReasonCanceled
	}
	if isUniqueViolation(err) {
		return LedgerReasonUniqueViolation
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03":
			return LedgerReasonDBLockTimeout
		case "40001":
			return LedgerReasonSerializationFailure
		case "40P01":
			return LedgerReasonDeadlock
		}
		if strings.HasPrefix(pgErr.Code, "08") {
			return LedgerReasonConnection
		}
		return LedgerReasonUnknown
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || errors.Is(err, gorm.ErrInvalidDB) {
		return LedgerReasonConnection
	}
	return LedgerReasonUnknown
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
