package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrentSameMonthIsIdempotent(t *testing.T) {
	first := Current(time.Date(2024, time.January, 15, 23, 59, 59, 0, time.UTC))
	second := Current(time.Date(2024, time.January, 16, 0, 0, 1, 0, time.UTC))

	assert.Equal(t, first, second)
	assert.Equal(t, "2024-01-01", first.StartDate())
	assert.Equal(t, "2024-01-31", first.EndDate())
}

func TestCurrentContiguousAcrossMonths(t *testing.T) {
	jan := Current(time.Date(2024, time.January, 31, 12, 0, 0, 0, time.UTC))
	feb := Current(time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC))

	assert.Equal(t, "2024-02-01", feb.StartDate())
	assert.Equal(t, "2024-02-29", feb.EndDate())
	assert.Equal(t, jan.End.AddDate(0, 0, 1), feb.Start)
	assert.Equal(t, feb, jan.Next())
}

func TestCurrentUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*60*60)
	// 2024-03-01 05:00 local is still February in UTC.
	p := Current(time.Date(2024, time.March, 1, 5, 0, 0, 0, loc))

	assert.Equal(t, "2024-02-01", p.StartDate())
	assert.Equal(t, "2024-02-29", p.EndDate())
}

func TestCurrentDecemberRollover(t *testing.T) {
	p := Current(time.Date(2023, time.December, 31, 23, 0, 0, 0, time.UTC))

	assert.Equal(t, "2023-12-01", p.StartDate())
	assert.Equal(t, "2023-12-31", p.EndDate())
	assert.Equal(t, "2024-01-01", p.Next().StartDate())
}

func TestParse(t *testing.T) {
	p, err := Parse("2024-02-10")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-01", p.StartDate())
	assert.Equal(t, "2024-02-29", p.EndDate())

	_, err = Parse("02/10/2024")
	assert.Error(t, err)
}
