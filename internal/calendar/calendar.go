// Package calendar provides the business-day calendar used to expand lots into daily positions.
package calendar

import (
	"fmt"
	"sort"
	"time"

	apperrors "fno-ledger/internal/errors"
	"fno-ledger/internal/models"
	"fno-ledger/pkg/utils"
)

// Calendar is a read-only exchange calendar bounded by an analysis horizon.
// Business days are weekdays that are not configured holidays.
type Calendar struct {
	start    time.Time
	end      time.Time
	location *time.Location
	holidays map[time.Time]bool
}

// Option configures a Calendar.
type Option func(*Calendar)

// WithHolidays marks the given civil dates as non-business days.
func WithHolidays(days ...time.Time) Option {
	return func(c *Calendar) {
		for _, d := range days {
			c.holidays[models.DateOf(d, nil)] = true
		}
	}
}

// WithLocation sets the timezone used to derive civil dates from timestamps.
func WithLocation(loc *time.Location) Option {
	return func(c *Calendar) {
		if loc != nil {
			c.location = loc
		}
	}
}

// New creates a calendar for the horizon [start, end].
func New(start, end time.Time, opts ...Option) (*Calendar, error) {
	start = models.DateOf(start, nil)
	end = models.DateOf(end, nil)
	if end.Before(start) {
		return nil, apperrors.NewValidationError("end_date", models.FormatDate(end),
			fmt.Sprintf("must not be before start_date %s", models.FormatDate(start)))
	}
	c := &Calendar{
		start:    start,
		end:      end,
		location: utils.IndiaLocation,
		holidays: make(map[time.Time]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ParseHolidays parses YYYY-MM-DD strings.
func ParseHolidays(values []string) ([]time.Time, error) {
	days := make([]time.Time, 0, len(values))
	for _, v := range values {
		d, err := time.Parse(models.DateLayout, v)
		if err != nil {
			return nil, apperrors.NewValidationError("holidays", v, "expected YYYY-MM-DD")
		}
		days = append(days, d)
	}
	return days, nil
}

// Start returns the first day of the horizon.
func (c *Calendar) Start() time.Time { return c.start }

// End returns the last day of the horizon.
func (c *Calendar) End() time.Time { return c.end }

// Location returns the exchange timezone.
func (c *Calendar) Location() *time.Location { return c.location }

// Holidays returns the configured holidays in ascending order.
func (c *Calendar) Holidays() []time.Time {
	days := make([]time.Time, 0, len(c.holidays))
	for d := range c.holidays {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

// IsHoliday reports whether d is a configured holiday.
func (c *Calendar) IsHoliday(d time.Time) bool {
	return c.holidays[models.DateOf(d, nil)]
}

// IsBusinessDay reports whether d is a trading day, ignoring the horizon bounds.
func (c *Calendar) IsBusinessDay(d time.Time) bool {
	d = models.DateOf(d, nil)
	return !utils.IsWeekend(d) && !c.holidays[d]
}

// BusinessDays returns the business days in [from, to] clipped to the horizon.
func (c *Calendar) BusinessDays(from, to time.Time) []time.Time {
	from = models.DateOf(from, nil)
	to = models.DateOf(to, nil)
	if from.Before(c.start) {
		from = c.start
	}
	if to.After(c.end) {
		to = c.end
	}
	var days []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if c.IsBusinessDay(d) {
			days = append(days, d)
		}
	}
	return days
}

// PreviousBusinessDay returns d if it is a business day, else the closest earlier one.
func (c *Calendar) PreviousBusinessDay(d time.Time) time.Time {
	d = models.DateOf(d, nil)
	for !c.IsBusinessDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// LastBusinessDayOfMonth returns the last trading day of the month.
func (c *Calendar) LastBusinessDayOfMonth(year int, month time.Month) time.Time {
	// Day 0 of next month is the last day of this one
	return c.PreviousBusinessDay(models.Date(year, month+1, 0))
}

// LastThursdayOfMonth returns the month's last Thursday, moved back to the
// previous trading day when that Thursday is a holiday.
func (c *Calendar) LastThursdayOfMonth(year int, month time.Month) time.Time {
	d := models.Date(year, month+1, 0)
	for d.Weekday() != time.Thursday {
		d = d.AddDate(0, 0, -1)
	}
	return c.PreviousBusinessDay(d)
}

// DateOf returns the civil date of a timestamp in the exchange timezone.
func (c *Calendar) DateOf(t time.Time) time.Time {
	return models.DateOf(t, c.location)
}
