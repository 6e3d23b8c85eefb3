package domain

import (
	"errors"
)

var (
	ErrInvalidRequest      = errors.New("invalid_request")
	ErrUsageLimitExceeded  = errors.New("usage_limit_exceeded")
	ErrStorageUnavailable  = errors.New("storage_unavailable")
	ErrInvalidUsageAmount  = errors.New("invalid_usage_amount")
	ErrInvalidUsageTotal   = errors.New("invalid_usage_total")
	ErrInvalidUser         = errors.New("invalid_user")
	ErrInvalidFeature      = errors.New("invalid_feature")
	ErrInvalidPageToken    = errors.New("invalid_page_token")
	ErrInvalidPeriodFilter = errors.New("invalid_period_start")
)

// Kind is the coarse class of a usage failure.
type Kind string

const (
	KindInvalidRequest     Kind = "invalid_request"
	KindUsageLimitExceeded Kind = "usage_limit_exceeded"
	KindStorageUnavailable Kind = "storage_unavailable"
)

// KindOf classifies err. Anything not recognised as a request or limit
// failure is treated as a storage failure. A nil error has no kind.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUsageLimitExceeded):
		return KindUsageLimitExceeded
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrInvalidUsageAmount),
		errors.Is(err, ErrInvalidUsageTotal):
		return KindInvalidRequest
	default:
		return KindStorageUnavailable
	}
}

// Invalid wraps a specific validation failure so it also matches ErrInvalidRequest.
func Invalid(reason error) error {
	return &invalidError{reason: reason}
}

type invalidError struct {
	reason error
}

func (e *invalidError) Error() string { return e.reason.Error() }

func (e *invalidError) Unwrap() []error { return []error{ErrInvalidRequest, e.reason} }
