package ledger

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fno-ledger/internal/models"
)

var testExpiry = models.Date(2024, 4, 25)

func trade(id string, dir models.Direction, qty int, price float64, day int) models.Trade {
	return models.Trade{
		ID:            id,
		Symbol:        "NIFTY24APR22300CE",
		Underlying:    "NIFTY",
		Expiry:        testExpiry,
		Strike:        models.NewStrike(22300),
		OptionType:    models.Call,
		Direction:     dir,
		Quantity:      qty,
		Price:         decimal.NewFromFloat(price),
		TradeDate:     models.Date(2024, 4, day),
		ExecutionTime: time.Date(2024, 4, day, 5, 0, 0, 0, time.UTC),
	}
}

func TestApply_FIFOOrder(t *testing.T) {
	s := NewState()

	e1 := s.Apply(trade("e1", models.Buy, 10, 100, 1))
	e2 := s.Apply(trade("e2", models.Buy, 10, 110, 2))
	x := s.Apply(trade("x", models.Sell, 15, 120, 3))

	assert.Equal(t, Entry, e1.Classification)
	assert.Equal(t, Entry, e2.Classification)
	assert.Equal(t, 10, e1.OpenedQty)

	assert.Equal(t, Exit, x.Classification)
	assert.Equal(t, 15, x.MatchedQty)
	assert.Zero(t, x.OpenedQty)
	assert.False(t, x.Flipped)
	require.Len(t, x.Closed, 2)
	assert.Equal(t, LotRef{Key: x.Key, Seq: 0, Qty: 10}, x.Closed[0])
	assert.Equal(t, LotRef{Key: x.Key, Seq: 1, Qty: 5}, x.Closed[1])

	lots := s.Lots(x.Key)
	require.Len(t, lots, 2)
	assert.Equal(t, 10, lots[0].CloseQty)
	assert.False(t, lots[0].IsOpen())
	assert.Equal(t, 5, lots[1].CloseQty)
	assert.Equal(t, 5, lots[1].RemainingQty())
	assert.Equal(t, models.Date(2024, 4, 3), *lots[1].CloseDate)
	assert.True(t, decimal.NewFromInt(120).Equal(lots[1].ClosePrice.Decimal))
	assert.True(t, decimal.NewFromInt(600).Equal(lots[1].CloseValue))
	assert.Equal(t, []string{"x"}, lots[0].CloseTradeIDs)
}

func TestApply_OverCloseFlips(t *testing.T) {
	s := NewState()

	s.Apply(trade("e1", models.Buy, 10, 100, 1))
	x := s.Apply(trade("x", models.Sell, 15, 90, 2))

	assert.Equal(t, PartialExit, x.Classification)
	assert.Equal(t, 10, x.MatchedQty)
	assert.Equal(t, 5, x.OpenedQty)
	assert.True(t, x.Flipped)
	require.NotNil(t, x.Opened)
	assert.Equal(t, 1, x.Opened.Seq)

	lots := s.Lots(x.Key)
	require.Len(t, lots, 2)
	assert.Equal(t, models.Short, lots[1].Direction)
	assert.Equal(t, 5, lots[1].OpenQty)
	assert.True(t, lots[1].Flipped)
	assert.Equal(t, "x", lots[1].OpenTradeID)

	// the short lot is now the most recent one, so a further sell adds to it
	add := s.Apply(trade("a", models.Sell, 5, 95, 3))
	assert.Equal(t, Entry, add.Classification)
}

func TestApply_UnmatchedExitAfterFullClose(t *testing.T) {
	s := NewState()

	s.Apply(trade("e1", models.Buy, 10, 100, 1))
	full := s.Apply(trade("x1", models.Sell, 10, 110, 2))
	again := s.Apply(trade("x2", models.Sell, 5, 105, 3))

	assert.Equal(t, Exit, full.Classification)
	assert.Equal(t, UnmatchedExit, again.Classification)
	assert.Zero(t, again.MatchedQty)
	assert.Empty(t, again.Closed)
	assert.Equal(t, 5, again.OpenedQty)
	assert.True(t, again.Flipped)

	opened, closed := s.Totals(again.Key)
	assert.Equal(t, 15, opened)
	assert.Equal(t, 10, closed)
}

func TestApply_SameDirectionAfterClosedLotIsEntry(t *testing.T) {
	s := NewState()

	s.Apply(trade("e1", models.Buy, 10, 100, 1))
	s.Apply(trade("x1", models.Sell, 10, 110, 2))
	e2 := s.Apply(trade("e2", models.Buy, 5, 100, 3))

	assert.Equal(t, Entry, e2.Classification)
	assert.Len(t, s.Lots(e2.Key), 2)
}

func TestApply_LastFillSetsCloseFields(t *testing.T) {
	s := NewState()

	s.Apply(trade("e1", models.Sell, 10, 100, 1))
	s.Apply(trade("x1", models.Buy, 4, 80, 2))
	s.Apply(trade("x2", models.Buy, 6, 70, 4))

	lots := s.Lots(trade("", models.Buy, 1, 1, 1).Key())
	require.Len(t, lots, 1)
	assert.Equal(t, models.Date(2024, 4, 4), *lots[0].CloseDate)
	assert.True(t, decimal.NewFromInt(70).Equal(lots[0].ClosePrice.Decimal))
	assert.True(t, decimal.NewFromInt(740).Equal(lots[0].CloseValue))
	assert.Equal(t, []string{"x1", "x2"}, lots[0].CloseTradeIDs)
}

func TestLots_ReturnsCopies(t *testing.T) {
	s := NewState()
	app := s.Apply(trade("e1", models.Buy, 10, 100, 1))
	s.Apply(trade("x1", models.Sell, 3, 110, 2))

	lots := s.Lots(app.Key)
	lots[0].CloseQty = 99
	*lots[0].CloseDate = time.Time{}

	fresh := s.Lots(app.Key)
	assert.Equal(t, 3, fresh[0].CloseQty)
	assert.Equal(t, models.Date(2024, 4, 2), *fresh[0].CloseDate)
}

func TestReplay_Summary(t *testing.T) {
	trades := []models.Trade{
		trade("e1", models.Buy, 10, 100, 1),
		trade("e2", models.Buy, 10, 110, 2),
		trade("x1", models.Sell, 5, 120, 3),
		trade("x2", models.Sell, 20, 120, 4),
		trade("x3", models.Buy, 5, 120, 5),
	}

	state, apps, summary := Replay(trades, zerolog.Nop())

	require.Len(t, apps, 5)
	assert.Equal(t, Summary{Entries: 2, Exits: 2, PartialExits: 1, Flips: 1}, summary)
	assert.Len(t, state.Keys(), 1)
	assert.Len(t, state.AllLots(), 3)
}

func TestState_KeysAreOrdered(t *testing.T) {
	s := NewState()
	put := trade("p", models.Buy, 1, 1, 1)
	put.OptionType = models.Put
	low := trade("l", models.Buy, 1, 1, 1)
	low.Strike = models.NewStrike(22000)

	s.Apply(trade("c", models.Buy, 1, 1, 1))
	s.Apply(put)
	s.Apply(low)

	keys := s.Keys()
	require.Len(t, keys, 3)
	assert.Equal(t, 22000, keys[0].Strike.Value)
	assert.Equal(t, models.Call, keys[1].OptionType)
	assert.Equal(t, models.Put, keys[2].OptionType)
}

// Property: closing never exceeds opening, and open exposure tracks the net signed quantity.
func TestProperty_QuantityConservation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("close <= open and net exposure == net traded", prop.ForAll(
		func(qtys []int) bool {
			s := NewState()
			net := 0
			var key models.ContractKey
			for i, q := range qtys {
				if q == 0 {
					continue
				}
				dir := models.Buy
				if q < 0 {
					dir = models.Sell
				}
				tr := trade(fmt.Sprintf("t%d", i), dir, abs(q), 100, 1+i%20)
				key = tr.Key()
				app := s.Apply(tr)
				if app.MatchedQty+app.OpenedQty != tr.Quantity {
					return false
				}
				net += q
			}

			opened, closed := s.Totals(key)
			if closed > opened {
				return false
			}
			exposure := 0
			for _, lot := range s.Lots(key) {
				exposure += lot.Direction.Sign() * lot.RemainingQty()
			}
			return exposure == net
		},
		gen.SliceOf(gen.IntRange(-50, 50)),
	))

	properties.TestingRun(t)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
