// Package broker provides the trade sources that feed the ledger.
package broker

import (
	"context"

	"fno-ledger/internal/logging"
	"fno-ledger/internal/models"
)

// TradeSource delivers raw tradebook rows in source order.
type TradeSource interface {
	// Trades returns every row the source holds. Rows are numbered from 1.
	Trades(ctx context.Context) ([]models.RawTrade, error)

	// Name identifies the source in logs and run records.
	Name() string
}

// Collect reads each source in turn and concatenates their rows. Row numbers
// stay relative to the source the row came from.
func Collect(ctx context.Context, sources ...TradeSource) ([]models.RawTrade, error) {
	logger := logging.FromContext(ctx)
	var rows []models.RawTrade
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		got, err := src.Trades(ctx)
		if err != nil {
			return nil, err
		}
		logger.Debug().Str("source", src.Name()).Int("rows", len(got)).Msg("Source read")
		rows = append(rows, got...)
	}
	return rows, nil
}
