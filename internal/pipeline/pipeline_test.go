package pipeline

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fno-ledger/internal/calendar"
	"fno-ledger/internal/ledger"
	"fno-ledger/internal/models"
	"fno-ledger/internal/normalize"
)

func raw(sym, side, qty, price, exec string) models.RawTrade {
	return models.RawTrade{
		Symbol:             sym,
		TradeType:          side,
		Quantity:           qty,
		Price:              price,
		OrderExecutionTime: exec,
		Exchange:           "NFO",
		Segment:            "FO",
	}
}

func condorBook() []models.RawTrade {
	return []models.RawTrade{
		raw("NIFTY2441822500CE", "sell", "50", "100", "2024-04-15 09:20:00"),
		raw("NIFTY2441822700CE", "buy", "50", "40", "2024-04-15 09:20:01"),
		raw("NIFTY2441822000PE", "sell", "50", "90", "2024-04-15 09:20:02"),
		raw("NIFTY2441821800PE", "buy", "50", "30", "2024-04-15 09:20:03"),
		raw("NIFTY2441822500CE", "buy", "50", "60", "2024-04-16 11:00:00"),
		raw("NOTASYMBOL", "buy", "50", "60", "2024-04-16 11:00:00"),
	}
}

func runOptions(t *testing.T) Options {
	t.Helper()
	cal, err := calendar.New(models.Date(2024, 4, 1), models.Date(2025, 3, 31))
	require.NoError(t, err)
	return Options{Calendar: cal, ExpiryRule: normalize.LastBusinessDay, Workers: 2, Logger: zerolog.Nop()}
}

func booked(res *Result, day int, typ models.StrategyType) (decimal.Decimal, bool) {
	for _, sp := range res.StrategyPnL {
		if sp.Date.Equal(models.Date(2024, 4, day)) && sp.Type == typ {
			return sp.PnLBooked, true
		}
	}
	return decimal.Zero, false
}

func TestRun_EndToEnd(t *testing.T) {
	res, err := Run(context.Background(), condorBook(), runOptions(t))
	require.NoError(t, err)

	s := res.Summary
	assert.Equal(t, 6, s.Rows)
	assert.Equal(t, 5, s.Accepted)
	assert.Equal(t, 1, s.Dropped())
	assert.Equal(t, 1, s.ParseFailures)
	assert.Equal(t, ledger.Summary{Entries: 4, Exits: 1}, s.Ledger)
	assert.Zero(t, s.MatchAnomalies)
	assert.Zero(t, s.OpenEntries)
	assert.Equal(t, "3000", s.TotalRealized.String())
	assert.NotEmpty(t, res.RunID)
	assert.Len(t, res.Lots, 4)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, 6, res.Dropped[0].Row)

	// both condor days carry all four legs; the short call closes on the 16th
	pnl, ok := booked(res, 15, models.IronCondor)
	require.True(t, ok)
	assert.True(t, pnl.IsZero())

	pnl, ok = booked(res, 16, models.IronCondor)
	require.True(t, ok)
	assert.Equal(t, "2000", pnl.String())

	pnl, ok = booked(res, 18, models.BearPutSpread)
	require.True(t, ok)
	assert.Equal(t, "3000", pnl.String())

	pnl, ok = booked(res, 18, models.NakedCallBuy)
	require.True(t, ok)
	assert.Equal(t, "-2000", pnl.String())

	total := decimal.Zero
	for _, sp := range res.StrategyPnL {
		total = total.Add(sp.PnLBooked)
	}
	assert.Equal(t, s.TotalRealized.String(), total.String(), "every event lands on a strategy")
}

func TestRun_IsDeterministic(t *testing.T) {
	first, err := Run(context.Background(), condorBook(), runOptions(t))
	require.NoError(t, err)
	second, err := Run(context.Background(), condorBook(), runOptions(t))
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	require.Equal(t, len(first.Strategies), len(second.Strategies))
	for i := range first.Strategies {
		assert.Equal(t, first.Strategies[i].ID, second.Strategies[i].ID)
	}
	for i := range first.Trades {
		assert.Equal(t, first.Trades[i].ID, second.Trades[i].ID)
	}
}

func TestRun_RequiresCalendar(t *testing.T) {
	_, err := Run(context.Background(), nil, Options{Logger: zerolog.Nop()})
	require.Error(t, err)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, condorBook(), runOptions(t))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_EmptyInput(t *testing.T) {
	res, err := Run(context.Background(), nil, runOptions(t))
	require.NoError(t, err)
	assert.Zero(t, res.Summary.Rows)
	assert.Empty(t, res.Strategies)
	assert.True(t, res.Summary.TotalRealized.IsZero())
}
