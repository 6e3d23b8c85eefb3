package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ConsumeParams is a fully resolved debit handed to the ledger store.
type ConsumeParams struct {
	EventID      snowflake.ID
	UserID       string
	Feature      string
	Amount       int64
	CreditsTotal int64
	PeriodStart  time.Time
	PeriodEnd    time.Time
	Metadata     map[string]any
	Now          time.Time
}

type EventFilter struct {
	UserID      string
	PeriodStart *time.Time
	BeforeID    *snowflake.ID
	Limit       int
}

// Repository is the usage ledger store. Every method takes the handle to run
// on so callers can compose it into a wider transaction.
type Repository interface {
	// Consume creates the period balance if absent, then increments it and
	// appends the event in one transaction. It fails with
	// ErrUsageLimitExceeded, leaving nothing behind, when the debit does not fit.
	Consume(ctx context.Context, db *gorm.DB, params ConsumeParams) (*UsageBalance, error)
	GetBalance(ctx context.Context, db *gorm.DB, userID string, periodStart time.Time) (*UsageBalance, error)
	ListBalances(ctx context.Context, db *gorm.DB, userID string) ([]UsageBalance, error)
	ListEvents(ctx context.Context, db *gorm.DB, filter EventFilter) ([]*UsageEvent, error)
	DeleteByUser(ctx context.Context, db *gorm.DB, userID string) error
}
