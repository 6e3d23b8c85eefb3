package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"limit", ErrUsageLimitExceeded, KindUsageLimitExceeded},
		{"wrapped limit", fmt.Errorf("consume: %w", ErrUsageLimitExceeded), KindUsageLimitExceeded},
		{"invalid request", ErrInvalidRequest, KindInvalidRequest},
		{"invalid feature", Invalid(ErrInvalidFeature), KindInvalidRequest},
		{"store amount", ErrInvalidUsageAmount, KindInvalidRequest},
		{"store total", ErrInvalidUsageTotal, KindInvalidRequest},
		{"storage", fmt.Errorf("%w: %w", ErrStorageUnavailable, errors.New("conn refused")), KindStorageUnavailable},
		{"canceled", context.Canceled, KindStorageUnavailable},
		{"unknown", errors.New("boom"), KindStorageUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestInvalidMatchesBothSentinels(t *testing.T) {
	err := Invalid(ErrInvalidFeature)

	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.ErrorIs(t, err, ErrInvalidFeature)
	assert.Equal(t, "invalid_feature", err.Error())
}
