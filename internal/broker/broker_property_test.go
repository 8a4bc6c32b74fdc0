package broker

import (
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"fno-ledger/internal/calendar"
	"fno-ledger/internal/models"
	"fno-ledger/internal/normalize"
)

// Property: any Kite fill mapped to a raw row normalizes back to the same
// symbol, side and quantity.
func TestProperty_KiteRowsNormalize(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	cal, err := calendar.New(models.Date(2024, 4, 1), models.Date(2025, 3, 31))
	if err != nil {
		t.Fatal(err)
	}
	norm := normalize.New(cal, normalize.LastBusinessDay, zerolog.Nop())

	symbols := []string{"NIFTY24APR22300CE", "NIFTY2450522650PE", "BANKNIFTY24MAY48000PE", "FINNIFTY24D2423500CE"}

	tradeGen := gen.Struct(reflect.TypeOf(kiteconnect.Trade{}), map[string]gopter.Gen{
		"TradingSymbol":   gen.OneConstOf(symbols[0], symbols[1], symbols[2], symbols[3]),
		"TransactionType": gen.OneConstOf("BUY", "SELL"),
		"Quantity":        gen.IntRange(1, 1800).Map(func(q int) float64 { return float64(q) }),
		"AveragePrice":    gen.IntRange(5, 90000).Map(func(p int) float64 { return float64(p) / 100 }),
	})

	properties.Property("symbol, side and quantity survive the mapping", prop.ForAll(
		func(trade kiteconnect.Trade) bool {
			trade.FillTimestamp.Time = time.Date(2024, 4, 10, 10, 0, 0, 0, time.UTC)
			rows := FromKiteTrades(kiteconnect.Trades{trade})
			trades, report := norm.Normalize(rows)
			if len(trades) != 1 || report.DroppedCount() != 0 {
				t.Logf("dropped: %+v", report.Dropped)
				return false
			}
			got := trades[0]
			return got.Symbol == trade.TradingSymbol &&
				string(got.Direction) == trade.TransactionType &&
				got.Quantity == int(trade.Quantity)
		},
		tradeGen,
	))

	properties.TestingRun(t)
}
