package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "fno-ledger/internal/errors"
	"fno-ledger/internal/models"
)

func fy2024(t *testing.T, opts ...Option) *Calendar {
	t.Helper()
	cal, err := New(models.Date(2024, 4, 1), models.Date(2025, 3, 31), opts...)
	require.NoError(t, err)
	return cal
}

func TestNew_RejectsInvertedHorizon(t *testing.T) {
	_, err := New(models.Date(2024, 4, 2), models.Date(2024, 4, 1))
	assert.True(t, apperrors.Is(err, apperrors.ErrInputValidation))
}

func TestBusinessDays(t *testing.T) {
	// 2024-04-17 is Ram Navami
	cal := fy2024(t, WithHolidays(models.Date(2024, 4, 17)))

	days := cal.BusinessDays(models.Date(2024, 4, 12), models.Date(2024, 4, 19))
	want := []time.Time{
		models.Date(2024, 4, 12),
		models.Date(2024, 4, 15),
		models.Date(2024, 4, 16),
		models.Date(2024, 4, 18),
		models.Date(2024, 4, 19),
	}
	assert.Equal(t, want, days)

	assert.True(t, cal.IsHoliday(models.Date(2024, 4, 17)))
	assert.False(t, cal.IsBusinessDay(models.Date(2024, 4, 13)))
	assert.Equal(t, []time.Time{models.Date(2024, 4, 17)}, cal.Holidays())
}

func TestBusinessDays_ClippedToHorizon(t *testing.T) {
	cal := fy2024(t)

	days := cal.BusinessDays(models.Date(2024, 3, 25), models.Date(2024, 4, 2))
	require.Len(t, days, 2)
	assert.Equal(t, cal.Start(), days[0])

	tail := cal.BusinessDays(models.Date(2025, 3, 28), models.Date(2025, 4, 4))
	assert.Equal(t, []time.Time{models.Date(2025, 3, 28), models.Date(2025, 3, 31)}, tail)
	assert.Empty(t, cal.BusinessDays(models.Date(2024, 5, 2), models.Date(2024, 5, 1)))
}

func TestMonthEndRules(t *testing.T) {
	// 2024-08-31 is a Saturday; 2024-10-31 (Thursday) is Diwali
	cal := fy2024(t, WithHolidays(models.Date(2024, 10, 31)))

	assert.Equal(t, models.Date(2024, 8, 30), cal.LastBusinessDayOfMonth(2024, time.August))
	assert.Equal(t, models.Date(2024, 4, 25), cal.LastThursdayOfMonth(2024, time.April))
	assert.Equal(t, models.Date(2024, 10, 30), cal.LastThursdayOfMonth(2024, time.October))
	assert.Equal(t, models.Date(2024, 12, 31), cal.LastBusinessDayOfMonth(2024, time.December))
}

func TestDateOf_UsesExchangeTimezone(t *testing.T) {
	cal := fy2024(t)

	// 20:00 UTC on the 15th is already the 16th in India
	ts := time.Date(2024, 4, 15, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, models.Date(2024, 4, 16), cal.DateOf(ts))

	utc := fy2024(t, WithLocation(time.UTC))
	assert.Equal(t, models.Date(2024, 4, 15), utc.DateOf(ts))
}

func TestParseHolidays(t *testing.T) {
	days, err := ParseHolidays([]string{"2024-04-17", "2024-05-01"})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{models.Date(2024, 4, 17), models.Date(2024, 5, 1)}, days)

	_, err = ParseHolidays([]string{"17/04/2024"})
	assert.True(t, apperrors.Is(err, apperrors.ErrInputValidation))
}
