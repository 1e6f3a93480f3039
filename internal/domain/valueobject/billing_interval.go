package valueobject

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidBillingInterval = errors.New("invalid billing interval")
)

// BillingInterval is the unit a plan renews in.
type BillingInterval string

const (
	IntervalDay   BillingInterval = "DAY"
	IntervalWeek  BillingInterval = "WEEK"
	IntervalMonth BillingInterval = "MONTH"
	IntervalYear  BillingInterval = "YEAR"
)

// NewBillingInterval parses an interval name. Providers are inconsistent in
// case ("month", "MONTH"), so the input is upper-cased first.
func NewBillingInterval(interval string) (BillingInterval, error) {
	bi := BillingInterval(strings.ToUpper(strings.TrimSpace(interval)))
	if !bi.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidBillingInterval, interval)
	}
	return bi, nil
}

// String returns the string representation of the interval
func (i BillingInterval) String() string {
	return string(i)
}

// IsValid returns true if the interval is one of the known units
func (i BillingInterval) IsValid() bool {
	switch i {
	case IntervalDay, IntervalWeek, IntervalMonth, IntervalYear:
		return true
	default:
		return false
	}
}

// Advance returns start moved forward by count intervals using calendar
// arithmetic. MONTH and YEAR keep the day-of-month and clamp to the last day
// of the target month when that day does not exist, so Jan 31 + 1 MONTH is
// Feb 29 (leap) or Feb 28, never Mar 2. The result is in UTC.
func (i BillingInterval) Advance(start time.Time, count int) time.Time {
	start = start.UTC()
	switch i {
	case IntervalDay:
		return start.AddDate(0, 0, count)
	case IntervalWeek:
		return start.AddDate(0, 0, 7*count)
	case IntervalMonth:
		return addMonthsClamped(start, count)
	case IntervalYear:
		return addMonthsClamped(start, 12*count)
	default:
		return start
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	// First of the target month never overflows.
	firstOfTarget := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, months, 0)
	day := t.Day()
	if last := daysIn(firstOfTarget.Year(), firstOfTarget.Month()); day > last {
		day = last
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
