// Package book expands ledger lots into the daily position book.
package book

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"fno-ledger/internal/calendar"
	"fno-ledger/internal/ledger"
	"fno-ledger/internal/models"
)

// Build emits one snapshot per business day of each lot's active window.
//
// The window runs from the later of the open date and the horizon start to
// the earlier of the close date (or expiry, when never closed) and expiry.
// A lot that was partially closed ends its window at its last close date.
// Snapshots are ordered by date, then contract, then lot sequence.
func Build(cal *calendar.Calendar, lots []models.Lot) []models.PositionSnapshot {
	var out []models.PositionSnapshot

	for _, lot := range lots {
		expiry := lot.Key.Expiry
		start := lot.OpenDate
		if start.Before(cal.Start()) {
			start = cal.Start()
		}
		end := expiry
		if lot.CloseDate != nil && lot.CloseDate.Before(expiry) {
			end = *lot.CloseDate
		}

		for _, day := range cal.BusinessDays(start, end) {
			out = append(out, models.PositionSnapshot{
				Date:          day,
				Key:           lot.Key,
				Quantity:      lot.SignedQty(),
				Side:          lot.Direction,
				AvgEntryPrice: lot.OpenPrice,
				Status:        statusOn(lot, day),
				LotSeq:        lot.Seq,
				ClosedQty:     lot.CloseQty,
				OpenDate:      lot.OpenDate,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Key.Less(b.Key) {
			return true
		}
		if b.Key.Less(a.Key) {
			return false
		}
		return a.LotSeq < b.LotSeq
	})
	return out
}

func statusOn(lot models.Lot, day time.Time) models.PositionStatus {
	expiry := lot.Key.Expiry
	switch {
	case day.Equal(expiry) && (lot.CloseDate == nil || lot.CloseDate.After(expiry)):
		return models.StatusExpired
	case lot.CloseDate != nil && day.Equal(*lot.CloseDate):
		return models.StatusClosed
	default:
		return models.StatusActive
	}
}

// ByDate groups snapshots by day, preserving order within a day.
func ByDate(snapshots []models.PositionSnapshot) ([]time.Time, map[time.Time][]models.PositionSnapshot) {
	var days []time.Time
	groups := make(map[time.Time][]models.PositionSnapshot)
	for _, s := range snapshots {
		if _, ok := groups[s.Date]; !ok {
			days = append(days, s.Date)
		}
		groups[s.Date] = append(groups[s.Date], s)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days, groups
}

// OpenOn replays the trades executed up to and including day and returns the
// lots still holding quantity at the end of it. Lots whose contract expired
// before day are left out.
func OpenOn(trades []models.Trade, day time.Time) []models.Lot {
	day = models.DateOf(day, nil)

	var upto []models.Trade
	for _, t := range trades {
		if !t.TradeDate.After(day) {
			upto = append(upto, t)
		}
	}

	state, _, _ := ledger.Replay(upto, zerolog.Nop())

	var open []models.Lot
	for _, lot := range state.AllLots() {
		if lot.IsOpen() && !lot.Key.Expiry.Before(day) {
			open = append(open, lot)
		}
	}
	return open
}
