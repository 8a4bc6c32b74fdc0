package pnl

import (
	"time"

	"github.com/shopspring/decimal"

	"fno-ledger/internal/models"
)

type legKey struct {
	date       time.Time
	underlying string
	expiry     time.Time
	strike     int
	typ        models.OptionType
}

// Attribute books pnl records to the strategies active on their date. A
// strategy collects the records of its legs dated on its own day, so days
// with no close or expiry book zero. A leg repeated within one strategy
// counts once. Booked pnl is rounded to two decimals.
func Attribute(records []models.PnLRecord, strategies []models.StrategyRecord) []models.StrategyPnL {
	sums := make(map[legKey]decimal.Decimal)
	for _, r := range records {
		if !r.Key.Strike.Valid {
			continue
		}
		k := legKey{
			date:       r.Date,
			underlying: r.Key.Underlying,
			expiry:     r.Key.Expiry,
			strike:     r.Key.Strike.Value,
			typ:        r.Key.OptionType,
		}
		sums[k] = sums[k].Add(r.Realized)
	}

	out := make([]models.StrategyPnL, 0, len(strategies))
	for _, s := range strategies {
		booked := decimal.Zero
		seen := make(map[legKey]bool, len(s.Legs))
		for _, leg := range s.Legs {
			k := legKey{
				date:       s.Date,
				underlying: s.Underlying,
				expiry:     legExpiry(s, leg),
				strike:     leg.Strike,
				typ:        leg.OptionType,
			}
			if seen[k] {
				continue
			}
			seen[k] = true
			booked = booked.Add(sums[k])
		}
		out = append(out, models.StrategyPnL{
			Date:       s.Date,
			StrategyID: s.ID,
			Type:       s.Type,
			Underlying: s.Underlying,
			Legs:       s.Legs,
			PnLBooked:  booked.Round(2),
		})
	}
	return out
}

func legExpiry(s models.StrategyRecord, leg models.Leg) time.Time {
	if !leg.Expiry.IsZero() {
		return leg.Expiry
	}
	if len(s.Expiries) > 0 {
		return s.Expiries[0]
	}
	return time.Time{}
}

// ByDate sums realized pnl per day.
func ByDate(records []models.PnLRecord) map[time.Time]decimal.Decimal {
	out := make(map[time.Time]decimal.Decimal)
	for _, r := range records {
		out[r.Date] = out[r.Date].Add(r.Realized)
	}
	return out
}
