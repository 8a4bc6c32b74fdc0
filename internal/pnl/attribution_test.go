package pnl

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fno-ledger/internal/models"
)

func record(date time.Time, strike int, typ models.OptionType, exp time.Time, amount string) models.PnLRecord {
	return models.PnLRecord{
		Date: date,
		Key: models.ContractKey{
			Underlying: "NIFTY",
			Expiry:     exp,
			Strike:     models.NewStrike(strike),
			OptionType: typ,
		},
		Realized: decimal.RequireFromString(amount),
	}
}

func strategy(id string, date time.Time, typ models.StrategyType, legs ...models.Leg) models.StrategyRecord {
	return models.StrategyRecord{
		ID:         id,
		Date:       date,
		Underlying: "NIFTY",
		Expiries:   []time.Time{expiry},
		Type:       typ,
		Legs:       legs,
	}
}

func TestAttribute_BooksOnlyOnEventDay(t *testing.T) {
	d2 := models.Date(2024, 4, 2)
	d3 := models.Date(2024, 4, 3)
	records := []models.PnLRecord{record(d3, 22300, models.Call, expiry, "200")}
	legs := []models.Leg{{Strike: 22300, OptionType: models.Call, Quantity: 10}}

	out := Attribute(records, []models.StrategyRecord{
		strategy("a", d2, models.NakedCallBuy, legs...),
		strategy("b", d3, models.NakedCallBuy, legs...),
	})

	require.Len(t, out, 2)
	assert.True(t, out[0].PnLBooked.IsZero(), "no close on day 2")
	assert.Equal(t, "200", out[1].PnLBooked.String())
	assert.Equal(t, "b", out[1].StrategyID)
	assert.Equal(t, models.NakedCallBuy, out[1].Type)
}

func TestAttribute_SumsLegsAndRounds(t *testing.T) {
	d := models.Date(2024, 4, 3)
	records := []models.PnLRecord{
		record(d, 22300, models.Call, expiry, "100.125"),
		record(d, 22300, models.Call, expiry, "0.004"),
		record(d, 22000, models.Put, expiry, "-50.5"),
		record(d, 22500, models.Call, expiry, "999"),
	}

	out := Attribute(records, []models.StrategyRecord{
		strategy("s", d, models.Strangle,
			models.Leg{Strike: 22300, OptionType: models.Call, Quantity: -10},
			models.Leg{Strike: 22000, OptionType: models.Put, Quantity: -10},
		),
	})

	require.Len(t, out, 1)
	assert.Equal(t, "49.63", out[0].PnLBooked.StringFixed(2))
}

func TestAttribute_MatchesExpiryAndCountsLegOnce(t *testing.T) {
	d := models.Date(2024, 4, 3)
	later := models.Date(2024, 4, 25)
	records := []models.PnLRecord{
		record(d, 22300, models.Call, expiry, "10"),
		record(d, 22300, models.Call, later, "7"),
	}
	leg := models.Leg{Strike: 22300, OptionType: models.Call, Quantity: 10}

	out := Attribute(records, []models.StrategyRecord{
		strategy("dup", d, models.NakedCallBuy, leg, leg),
		{
			ID:         "cal",
			Date:       d,
			Underlying: "NIFTY",
			Expiries:   []time.Time{expiry, later},
			Type:       models.CalendarSpread,
			Legs: []models.Leg{
				{Strike: 22300, OptionType: models.Call, Quantity: 10, Expiry: expiry},
				{Strike: 22300, OptionType: models.Call, Quantity: 10, Expiry: later},
			},
		},
	})

	require.Len(t, out, 2)
	assert.Equal(t, "10", out[0].PnLBooked.String())
	assert.Equal(t, "17", out[1].PnLBooked.String())
}

func TestByDate(t *testing.T) {
	d := models.Date(2024, 4, 3)
	totals := ByDate([]models.PnLRecord{
		record(d, 1, models.Call, expiry, "1.5"),
		record(d, 2, models.Put, expiry, "2"),
		record(expiry, 2, models.Put, expiry, "-4"),
	})
	assert.Equal(t, "3.5", totals[d].String())
	assert.Equal(t, "-4", totals[expiry].String())
}

// Each strategy sharing a contract books that contract's whole daily pnl, so
// strategy totals can exceed the realized total for the day.
func TestAttribute_SharedContractBooksInEveryStrategy(t *testing.T) {
	d := expiry
	records := []models.PnLRecord{
		record(d, 22000, models.Put, expiry, "-250"),
		record(d, 22000, models.Put, expiry, "-250"),
	}
	leg := models.Leg{Strike: 22000, OptionType: models.Put, Quantity: 5}

	out := Attribute(records, []models.StrategyRecord{
		strategy("NakedPutBuy", d, models.NakedPutBuy, leg),
		strategy("NakedPutBuy#2", d, models.NakedPutBuy, leg),
	})

	require.Len(t, out, 2)
	assert.Equal(t, "-500", out[0].PnLBooked.String())
	assert.Equal(t, "-500", out[1].PnLBooked.String())

	booked := out[0].PnLBooked.Add(out[1].PnLBooked)
	realized := ByDate(records)[d]
	assert.Equal(t, "-1000", booked.String())
	assert.Equal(t, "-500", realized.String())
}
