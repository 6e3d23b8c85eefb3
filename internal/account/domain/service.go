// Package domain describes the account-level data operations.
package domain

import (
	"context"
	"errors"
	"time"

	profiledomain "github.com/smallbiznis/creditline/internal/profile/domain"
	usagedomain "github.com/smallbiznis/creditline/internal/usage/domain"
)

// Export is everything stored about one user.
type Export struct {
	UserID        string                     `json:"user_id"`
	ExportedAt    time.Time                  `json:"exported_at"`
	Profile       *profiledomain.Profile     `json:"profile"`
	UsageBalances []usagedomain.UsageBalance `json:"usage_balances"`
	UsageEvents   []usagedomain.UsageEvent   `json:"usage_events"`
}

type Service interface {
	Export(ctx context.Context, userID string) (*Export, error)
	// Delete removes the profile, API keys and usage ledger of userID atomically.
	// It is repeatable: a debit authenticated before the call may commit after
	// it, and running Delete again removes what that debit wrote.
	Delete(ctx context.Context, userID string) error
}

var ErrInvalidUser = errors.New("invalid_user")
