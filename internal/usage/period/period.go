// Package period derives the calendar-month usage period for a point in time.
package period

import "time"

// DateLayout is the date-only wire format used for period boundaries.
const DateLayout = "2006-01-02"

// Period is a closed range of calendar days in UTC.
type Period struct {
	Start time.Time
	End   time.Time
}

// Current returns the UTC calendar month containing now.
func Current(now time.Time) Period {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	// Day 0 of the next month normalizes to the last day of this one.
	end := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, time.UTC)
	return Period{Start: start, End: end}
}

func (p Period) StartDate() string {
	return p.Start.Format(DateLayout)
}

func (p Period) EndDate() string {
	return p.End.Format(DateLayout)
}

// Next returns the period immediately after p.
func (p Period) Next() Period {
	return Current(p.End.AddDate(0, 0, 1))
}

// Parse returns the period containing the given YYYY-MM-DD date.
func Parse(date string) (Period, error) {
	day, err := time.Parse(DateLayout, date)
	if err != nil {
		return Period{}, err
	}
	return Current(day), nil
}
