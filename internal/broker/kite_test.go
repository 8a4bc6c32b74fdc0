package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"
	kitemodels "github.com/zerodha/gokiteconnect/v4/models"

	apperrors "fno-ledger/internal/errors"
	"fno-ledger/pkg/utils"
)

type fakeFetcher struct {
	trades   kiteconnect.Trades
	failures int
	calls    int
}

func (f *fakeFetcher) GetTrades() (kiteconnect.Trades, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("gateway timeout")
	}
	return f.trades, nil
}

func fastRetry(k *KiteTradebook) {
	k.retry = utils.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1}
}

func kiteTrade(sym, side string, qty, price float64, fill time.Time) kiteconnect.Trade {
	return kiteconnect.Trade{
		TradingSymbol:   sym,
		Exchange:        "NFO",
		TransactionType: side,
		Quantity:        qty,
		AveragePrice:    price,
		TradeID:         "T1",
		OrderID:         "O1",
		FillTimestamp:   kitemodels.Time{Time: fill},
	}
}

func TestFromKiteTrades(t *testing.T) {
	fill := time.Date(2024, 4, 15, 9, 20, 5, 0, time.UTC)
	exch := kiteTrade("NIFTY2441822300PE", "SELL", 25, 88.05, time.Time{})
	exch.ExchangeTimestamp = kitemodels.Time{Time: time.Date(2024, 4, 15, 9, 21, 0, 0, time.UTC)}

	rows := FromKiteTrades(kiteconnect.Trades{
		kiteTrade("NIFTY2441822500CE", "BUY", 50, 101.5, fill),
		exch,
	})

	require.Len(t, rows, 2)
	assert.Equal(t, "NIFTY2441822500CE", rows[0].Symbol)
	assert.Equal(t, "BUY", rows[0].TradeType)
	assert.Equal(t, "50", rows[0].Quantity)
	assert.Equal(t, "101.5", rows[0].Price)
	assert.Equal(t, "2024-04-15 09:20:05", rows[0].OrderExecutionTime)
	assert.Equal(t, "2024-04-15", rows[0].TradeDate)
	assert.Equal(t, "NFO", rows[0].Exchange)
	assert.Equal(t, 1, rows[0].Row)

	assert.Equal(t, "2024-04-15 09:21:00", rows[1].OrderExecutionTime, "falls back to exchange time")
	assert.Equal(t, 2, rows[1].Row)
}

func TestKiteTradebook_RetriesTransientFailures(t *testing.T) {
	fetcher := &fakeFetcher{
		trades:   kiteconnect.Trades{kiteTrade("NIFTY24APR22300CE", "BUY", 50, 100, time.Now())},
		failures: 2,
	}
	src := NewKiteTradebook(fetcher, zerolog.Nop())
	fastRetry(src)

	rows, err := src.Trades(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, 3, fetcher.calls)
	assert.Equal(t, "kite", src.Name())
}

func TestKiteTradebook_GivesUp(t *testing.T) {
	fetcher := &fakeFetcher{failures: 10}
	src := NewKiteTradebook(fetcher, zerolog.Nop())
	fastRetry(src)

	_, err := src.Trades(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, fetcher.calls)
}

func TestNewKiteClient_RequiresCredentials(t *testing.T) {
	_, err := NewKiteClient(KiteConfig{APIKey: "key"})
	assert.True(t, apperrors.Is(err, apperrors.ErrInputValidation))

	client, err := NewKiteClient(KiteConfig{APIKey: "key", AccessToken: "token"})
	require.NoError(t, err)
	assert.NotNil(t, client)
}
