package normalize

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fno-ledger/internal/calendar"
	"fno-ledger/internal/models"
)

func newTestNormalizer(t *testing.T, rule ExpiryRule) *Normalizer {
	t.Helper()
	cal, err := calendar.New(models.Date(2024, 4, 1), models.Date(2025, 3, 31),
		calendar.WithHolidays(models.Date(2024, 4, 25)))
	require.NoError(t, err)
	return New(cal, rule, zerolog.Nop())
}

func row(sym, side, qty, price, exec string) models.RawTrade {
	return models.RawTrade{
		Symbol:             sym,
		TradeType:          side,
		Quantity:           qty,
		Price:              price,
		OrderExecutionTime: exec,
		Exchange:           "NFO",
	}
}

func TestNormalize_CoercesFields(t *testing.T) {
	n := newTestNormalizer(t, LastBusinessDay)

	r := row("NIFTY2450522650PE", "buy", "50", "101.50", "2024-05-02T10:15:00")
	trades, report := n.Normalize([]models.RawTrade{r})

	require.Len(t, trades, 1)
	assert.Equal(t, 1, report.Accepted)
	assert.Zero(t, report.DroppedCount())

	tr := trades[0]
	assert.Equal(t, "NIFTY", tr.Underlying)
	assert.Equal(t, models.Date(2024, 5, 5), tr.Expiry)
	assert.Equal(t, models.NewStrike(22650), tr.Strike)
	assert.Equal(t, models.Put, tr.OptionType)
	assert.Equal(t, models.Buy, tr.Direction)
	assert.Equal(t, 50, tr.Quantity)
	assert.True(t, decimal.RequireFromString("101.5").Equal(tr.Price))
	// 10:15 IST is 04:45 UTC
	assert.Equal(t, time.Date(2024, 5, 2, 4, 45, 0, 0, time.UTC), tr.ExecutionTime)
	assert.Equal(t, models.Date(2024, 5, 2), tr.TradeDate)
	assert.NotEmpty(t, tr.ID)
	assert.Equal(t, 1, report.ExpirySources[ExpiryFromSymbol])
}

func TestNormalize_ExpiryPrecedence(t *testing.T) {
	n := newTestNormalizer(t, LastBusinessDay)

	source := row("NIFTY24APR22300CE", "BUY", "25", "100", "2024-04-02 09:30:00")
	source.ExpiryDate = "18-04-2024"
	monthly := row("NIFTY24APR22300CE", "BUY", "25", "100", "2024-04-02 09:31:00")

	trades, report := n.Normalize([]models.RawTrade{source, monthly})
	require.Len(t, trades, 2)

	assert.Equal(t, models.Date(2024, 4, 18), trades[0].Expiry, "source column wins")
	assert.Equal(t, models.Date(2024, 4, 30), trades[1].Expiry, "monthly falls back to last business day")
	assert.Equal(t, 1, report.ExpirySources[ExpiryFromSource])
	assert.Equal(t, 1, report.ExpirySources[ExpiryFromMonthEnd])
}

func TestNormalize_LastThursdayRuleSkipsHoliday(t *testing.T) {
	n := newTestNormalizer(t, LastThursday)

	trades, _ := n.Normalize([]models.RawTrade{
		row("NIFTY24APR22300CE", "BUY", "25", "100", "2024-04-02 09:30:00"),
	})
	require.Len(t, trades, 1)
	// 25 Apr 2024 is the last Thursday but a configured holiday
	assert.Equal(t, models.Date(2024, 4, 24), trades[0].Expiry)
}

func TestNormalize_DropsAndCounts(t *testing.T) {
	n := newTestNormalizer(t, LastBusinessDay)

	rows := []models.RawTrade{
		row("NIFTY24APR22300CE", "BUY", "25", "100", "2024-04-02 09:30:00"),
		row("GARBAGE", "BUY", "25", "100", "2024-04-02 09:30:00"),
		row("NIFTY24APR22300CE", "HOLD", "25", "100", "2024-04-02 09:30:00"),
		row("NIFTY24APR22300CE", "SELL", "-5", "100", "2024-04-02 09:30:00"),
		row("NIFTY24APR22300CE", "SELL", "5", "abc", "2024-04-02 09:30:00"),
		row("NIFTY24APR22300CE", "SELL", "5", "10", ""),
		row("NIFTY2423122000CE", "SELL", "5", "10", "2024-02-01 09:30:00"),
	}

	trades, report := n.Normalize(rows)

	assert.Len(t, trades, 1)
	assert.Equal(t, 7, report.Total)
	assert.Equal(t, 1, report.Accepted)
	assert.Equal(t, 6, report.DroppedCount())
	assert.Equal(t, 1, report.ParseFailures)
	assert.Equal(t, 1, report.MissingFields["direction"])
	assert.Equal(t, 1, report.MissingFields["quantity"])
	assert.Equal(t, 1, report.MissingFields["price"])
	assert.Equal(t, 1, report.MissingFields["execution_time"])
	assert.Equal(t, 1, report.MissingFields["expiry_date"])

	assert.Equal(t, 2, report.Dropped[0].Row)
	assert.Equal(t, DropParseFailure, report.Dropped[0].Reason)
}

func TestNormalize_StableTimeOrder(t *testing.T) {
	n := newTestNormalizer(t, LastBusinessDay)

	rows := []models.RawTrade{
		row("NIFTY24APR22300CE", "BUY", "10", "100", "2024-04-02 10:00:00"),
		row("NIFTY24APR22400CE", "BUY", "10", "100", "2024-04-02 09:00:00"),
		row("NIFTY24APR22500CE", "BUY", "10", "100", "2024-04-02 10:00:00"),
	}

	trades, _ := n.Normalize(rows)
	require.Len(t, trades, 3)
	assert.Equal(t, 22400, trades[0].Strike.Value)
	assert.Equal(t, 22300, trades[1].Strike.Value, "ties keep input order")
	assert.Equal(t, 22500, trades[2].Strike.Value)
}

func TestNormalize_TradeIDs(t *testing.T) {
	n := newTestNormalizer(t, LastBusinessDay)

	rows := []models.RawTrade{
		row("NIFTY24APR22300CE", "BUY", "10", "100.0", "2024-04-02 10:00:00"),
		row("NIFTY24APR22300CE", "BUY", "10", "100", "2024-04-02 10:00:05"),
	}

	first, _ := n.Normalize(rows)
	second, _ := n.Normalize(rows)

	require.Len(t, first, 2)
	assert.NotEqual(t, first[0].ID, first[1].ID, "equal fills on one day keep distinct ids")
	assert.Equal(t, first[0].ID, second[0].ID, "replays reproduce ids")
	assert.Equal(t, first[1].ID, second[1].ID)
}

func TestNormalize_TradeDateColumnWithoutTime(t *testing.T) {
	n := newTestNormalizer(t, LastBusinessDay)

	r := row("NIFTY24APR22300CE", "SELL", "10", "100", "")
	r.TradeDate = "03-04-2024"

	trades, report := n.Normalize([]models.RawTrade{r})
	require.Len(t, trades, 1, "%+v", report.Dropped)
	assert.Equal(t, models.Date(2024, 4, 3), trades[0].TradeDate)
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"75", 75, true},
		{" 75 ", 75, true},
		{"75.0", 75, true},
		{"75.5", 0, false},
		{"0", 0, false},
		{"-1", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseQuantity(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got, tt.in)
		}
	}
}

// Property: every input row is either accepted or reported as dropped.
func TestProperty_NoSilentLoss(t *testing.T) {
	n := newTestNormalizer(t, LastBusinessDay)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	symbols := []string{"NIFTY24APR22300CE", "NIFTY2450522650PE", "BAD", "", "BANKNIFTY24MAY48000PE"}
	sides := []string{"BUY", "SELL", "", "x"}
	qtys := []string{"10", "0", "25.0", "abc"}

	properties.Property("accepted + dropped == total", prop.ForAll(
		func(picks []int) bool {
			rows := make([]models.RawTrade, len(picks))
			for i, p := range picks {
				rows[i] = row(symbols[p%len(symbols)], sides[p%len(sides)], qtys[p%len(qtys)], "12.5", "2024-04-02 10:00:00")
			}
			trades, report := n.Normalize(rows)
			return len(trades)+report.DroppedCount() == len(rows) &&
				report.Accepted == len(trades) &&
				report.Total == len(rows)
		},
		gen.SliceOf(gen.IntRange(0, 1000)),
	))

	properties.TestingRun(t)
}
