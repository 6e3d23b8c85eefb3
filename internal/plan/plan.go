// Package plan resolves the monthly credit allowance granted by a plan tier.
package plan

import "strings"

type ID string

const (
	Free    ID = "free"
	Starter ID = "starter"
	Pro     ID = "pro"
)

type Status string

const (
	StatusFree              Status = "free"
	StatusTrialing          Status = "trialing"
	StatusActive            Status = "active"
	StatusPastDue           Status = "past_due"
	StatusCanceled          Status = "canceled"
	StatusUnpaid            Status = "unpaid"
	StatusIncomplete        Status = "incomplete"
	StatusIncompleteExpired Status = "incomplete_expired"
	StatusPaused            Status = "paused"
)

// Limit describes what a plan grants per period.
type Limit struct {
	CreditsMonthly int64 `mapstructure:"creditsMonthly" json:"credits_monthly"`
}

// Catalog maps plan ids to their limits.
type Catalog map[ID]Limit

// DefaultCatalog is the built-in allowance table.
func DefaultCatalog() Catalog {
	return Catalog{
		Free:    {CreditsMonthly: 50},
		Starter: {CreditsMonthly: 500},
		Pro:     {CreditsMonthly: 2000},
	}
}

// Resolver turns a (plan, status) pair into a credit allowance.
type Resolver interface {
	CreditsFor(planID ID, status Status) int64
}

// IsActiveStatus reports whether a paid subscription in this status grants credits.
func IsActiveStatus(status Status) bool {
	return status == StatusTrialing || status == StatusActive
}

// CreditsFor applies the allowance rules against the catalog. The free plan
// always grants its allowance; paid plans only while active or trialing.
func (c Catalog) CreditsFor(planID ID, status Status) int64 {
	planID = Normalize(planID)
	limit, ok := c[planID]
	if !ok {
		return 0
	}
	if planID == Free {
		return limit.CreditsMonthly
	}
	if !IsActiveStatus(NormalizeStatus(status)) {
		return 0
	}
	return limit.CreditsMonthly
}

func Normalize(id ID) ID {
	return ID(strings.ToLower(strings.TrimSpace(string(id))))
}

func NormalizeStatus(status Status) Status {
	return Status(strings.ToLower(strings.TrimSpace(string(status))))
}
