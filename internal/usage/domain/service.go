package domain

import (
	"context"

	"github.com/smallbiznis/creditline/pkg/db/pagination"
)

type ConsumeRequest struct {
	UserID   string         `json:"-"`
	Feature  string         `json:"feature"`
	Amount   float64        `json:"amount"`
	Metadata map[string]any `json:"metadata"`
}

type ListEventsRequest struct {
	UserID      string `json:"-"`
	PeriodStart string `json:"period_start"`
	PageToken   string `json:"page_token"`
	PageSize    int32  `json:"page_size"`
}

type ListEventsResponse struct {
	pagination.PageInfo
	Events []UsageEvent `json:"events"`
}

type Service interface {
	// Consume debits amount credits from the caller's current period.
	Consume(context.Context, ConsumeRequest) (*Allowance, error)
	// Allowance reports the current period's balance without writing.
	Allowance(ctx context.Context, userID string) (*Allowance, error)
	ListEvents(context.Context, ListEventsRequest) (ListEventsResponse, error)
}
