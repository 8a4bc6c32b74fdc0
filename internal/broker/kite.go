package broker

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	apperrors "fno-ledger/internal/errors"
	"fno-ledger/internal/models"
	"fno-ledger/pkg/utils"
)

// kiteTimeLayout is the wall-clock layout the normalizer reads in exchange time.
const kiteTimeLayout = "2006-01-02 15:04:05"

// TradeFetcher is the part of the Kite client the adapter needs.
type TradeFetcher interface {
	GetTrades() (kiteconnect.Trades, error)
}

// KiteConfig holds credentials for an already authorized Kite session.
type KiteConfig struct {
	APIKey      string
	AccessToken string
}

// NewKiteClient creates a Kite Connect client with the session token set.
func NewKiteClient(cfg KiteConfig) (*kiteconnect.Client, error) {
	if cfg.APIKey == "" || cfg.AccessToken == "" {
		return nil, apperrors.NewValidationError("kite", "", "api_key and access_token are required")
	}
	client := kiteconnect.New(cfg.APIKey)
	client.SetAccessToken(cfg.AccessToken)
	return client, nil
}

// KiteTradebook reads the day's tradebook from Kite Connect.
type KiteTradebook struct {
	client TradeFetcher
	retry  utils.RetryConfig
	logger zerolog.Logger
}

// NewKiteTradebook creates a source backed by client.
func NewKiteTradebook(client TradeFetcher, logger zerolog.Logger) *KiteTradebook {
	return &KiteTradebook{
		client: client,
		retry:  utils.DefaultRetryConfig(),
		logger: logger.With().Str("source", "kite").Logger(),
	}
}

// Name identifies the source.
func (k *KiteTradebook) Name() string {
	return "kite"
}

// Trades fetches the tradebook, retrying transient failures with backoff.
func (k *KiteTradebook) Trades(ctx context.Context) ([]models.RawTrade, error) {
	start := time.Now()
	trades, err := utils.RetryWithResult(ctx, k.retry, func() (kiteconnect.Trades, error) {
		return k.client.GetTrades()
	})
	if err != nil {
		k.logger.Error().Err(err).Dur("duration", time.Since(start)).Msg("Tradebook fetch failed")
		return nil, apperrors.Wrapf(err, "failed to get trades after %d attempts", k.retry.MaxAttempts)
	}

	rows := FromKiteTrades(trades)
	k.logger.Info().Int("rows", len(rows)).Dur("duration", time.Since(start)).Msg("Tradebook fetched")
	return rows, nil
}

// FromKiteTrades maps Kite trades to raw rows. Kite reports one row per fill;
// the fill timestamp wins over the exchange timestamp when both are set.
func FromKiteTrades(trades kiteconnect.Trades) []models.RawTrade {
	rows := make([]models.RawTrade, len(trades))
	for i, t := range trades {
		executed := t.FillTimestamp.Time
		if executed.IsZero() {
			executed = t.ExchangeTimestamp.Time
		}
		var execStr, dateStr string
		if !executed.IsZero() {
			execStr = executed.Format(kiteTimeLayout)
			dateStr = executed.Format(models.DateLayout)
		}

		rows[i] = models.RawTrade{
			Symbol:             t.TradingSymbol,
			TradeDate:          dateStr,
			Exchange:           t.Exchange,
			TradeType:          t.TransactionType,
			Quantity:           strconv.FormatFloat(t.Quantity, 'f', -1, 64),
			Price:              decimal.NewFromFloat(t.AveragePrice).String(),
			TradeID:            t.TradeID,
			OrderID:            t.OrderID,
			OrderExecutionTime: execStr,
			Row:                i + 1,
		}
	}
	return rows
}
