// Package domain contains the usage ledger models and contracts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// UsageBalance is the credit ledger of one user for one calendar month.
// CreditsTotal is fixed when the row is created and never rewritten.
type UsageBalance struct {
	UserID       string         `gorm:"type:text;primaryKey" json:"user_id"`
	PeriodStart  datatypes.Date `gorm:"primaryKey" json:"period_start"`
	PeriodEnd    datatypes.Date `gorm:"not null" json:"period_end"`
	CreditsTotal int64          `gorm:"not null" json:"credits_total"`
	CreditsUsed  int64          `gorm:"not null" json:"credits_used"`
	CreatedAt    time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (UsageBalance) TableName() string { return "usage_balances" }

// UsageEvent records a single successful debit. Rows are append-only.
type UsageEvent struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	UserID      string            `gorm:"type:text;not null;index:idx_usage_events_user_period,priority:1" json:"user_id"`
	Feature     string            `gorm:"type:text;not null" json:"feature"`
	Amount      int64             `gorm:"not null" json:"amount"`
	PeriodStart datatypes.Date    `gorm:"not null;index:idx_usage_events_user_period,priority:2" json:"period_start"`
	Metadata    datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt   time.Time         `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (UsageEvent) TableName() string { return "usage_events" }

// Allowance is the externally visible view of a period's balance.
type Allowance struct {
	PeriodStart      string `json:"periodStart"`
	PeriodEnd        string `json:"periodEnd"`
	CreditsTotal     int64  `json:"creditsTotal"`
	CreditsUsed      int64  `json:"creditsUsed"`
	CreditsRemaining int64  `json:"creditsRemaining"`
}
