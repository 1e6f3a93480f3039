package valueobject_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediz-app/mediz-billing/internal/domain/valueobject"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestBillingIntervalAdvance(t *testing.T) {
	tests := []struct {
		name     string
		interval valueobject.BillingInterval
		count    int
		start    time.Time
		want     time.Time
	}{
		{"month end clamps to leap day", valueobject.IntervalMonth, 1, date(2024, 1, 31), date(2024, 2, 29)},
		{"month end clamps to feb 28", valueobject.IntervalMonth, 1, date(2023, 1, 31), date(2023, 2, 28)},
		{"mid month keeps day", valueobject.IntervalMonth, 1, date(2024, 5, 1), date(2024, 6, 1)},
		{"thirty first into thirty day month", valueobject.IntervalMonth, 1, date(2024, 3, 31), date(2024, 4, 30)},
		{"quarterly across year end", valueobject.IntervalMonth, 3, date(2024, 11, 30), date(2025, 2, 28)},
		{"yearly", valueobject.IntervalYear, 1, date(2023, 3, 10), date(2024, 3, 10)},
		{"yearly from leap day", valueobject.IntervalYear, 1, date(2024, 2, 29), date(2025, 2, 28)},
		{"four years from leap day", valueobject.IntervalYear, 4, date(2024, 2, 29), date(2028, 2, 29)},
		{"daily", valueobject.IntervalDay, 7, date(2024, 2, 25), date(2024, 3, 3)},
		{"weekly", valueobject.IntervalWeek, 2, date(2024, 12, 25), date(2025, 1, 8)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.interval.Advance(tt.start, tt.count)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestBillingIntervalAdvancePreservesTimeOfDay(t *testing.T) {
	start := time.Date(2024, 1, 31, 13, 45, 10, 0, time.FixedZone("BRT", -3*3600))

	got := valueobject.IntervalMonth.Advance(start, 1)

	// 13:45 BRT is 16:45 UTC on the same day.
	assert.Equal(t, time.Date(2024, 2, 29, 16, 45, 10, 0, time.UTC), got)
	assert.Equal(t, time.UTC, got.Location())
}

func TestNewBillingInterval(t *testing.T) {
	t.Run("case insensitive", func(t *testing.T) {
		bi, err := valueobject.NewBillingInterval(" month ")
		require.NoError(t, err)
		assert.Equal(t, valueobject.IntervalMonth, bi)
	})

	t.Run("rejects unknown unit", func(t *testing.T) {
		_, err := valueobject.NewBillingInterval("fortnight")
		assert.ErrorIs(t, err, valueobject.ErrInvalidBillingInterval)
	})
}
