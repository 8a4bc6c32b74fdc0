// Package pnl computes realized pnl per contract and books it to strategies.
//
// Each contract is matched independently: exits consume the oldest entries
// first, and entries still open at expiry settle against zero. Money math
// uses shopspring/decimal throughout.
package pnl

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	apperrors "fno-ledger/internal/errors"
	"fno-ledger/internal/ledger"
	"fno-ledger/internal/logging"
	"fno-ledger/internal/models"
)

// OpenEntry is entry quantity with no exit whose contract expires after the as-of date.
type OpenEntry struct {
	Key       models.ContractKey
	TradeID   string
	Direction models.Direction
	Quantity  int
	Price     decimal.Decimal
	Date      time.Time
}

// Result holds the realized pnl of a run.
type Result struct {
	Records   []models.PnLRecord
	Open      []OpenEntry
	Anomalies int // exit quantity that found no entry to match
	Total     decimal.Decimal
}

// Engine matches ledger applications into pnl records.
type Engine struct {
	asOf    time.Time
	workers int
	logger  zerolog.Logger // used when the context carries no logger
}

// New creates an Engine. Entries expiring on or before asOf are settled.
func New(asOf time.Time, workers int, logger zerolog.Logger) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		asOf:    models.DateOf(asOf, nil),
		workers: workers,
		logger:  logger,
	}
}

type event struct {
	trade models.Trade
	app   ledger.Application
}

type entry struct {
	tradeID   string
	direction models.Direction
	qty       int
	price     decimal.Decimal
	date      time.Time
}

type keyResult struct {
	records   []models.PnLRecord
	open      []OpenEntry
	anomalies int
}

// Realize pairs trades with their ledger applications (same index) and matches
// them per contract, in parallel across contracts. The first invalid pairing
// stops the run and is returned as a *errors.PairingError. A logger attached
// to ctx takes precedence over the one given to New.
func (e *Engine) Realize(ctx context.Context, trades []models.Trade, apps []ledger.Application) (*Result, error) {
	logger := logging.WithStage(logging.FromContextOr(ctx, e.logger), "pnl")

	if len(trades) != len(apps) {
		return nil, apperrors.NewValidationError("applications", len(apps),
			"must pair one to one with trades")
	}

	var keys []models.ContractKey
	byKey := make(map[string][]event)
	for i, t := range trades {
		ks := t.Key().String()
		if _, ok := byKey[ks]; !ok {
			keys = append(keys, t.Key())
		}
		byKey[ks] = append(byKey[ks], event{trade: t, app: apps[i]})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	results := make([]keyResult, len(keys))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, key := range keys {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := e.matchKey(logger, key, byKey[key.String()])
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{Total: decimal.Zero}
	for _, r := range results {
		res.Records = append(res.Records, r.records...)
		res.Open = append(res.Open, r.open...)
		res.Anomalies += r.anomalies
	}
	sort.SliceStable(res.Records, func(i, j int) bool {
		return res.Records[i].Date.Before(res.Records[j].Date)
	})
	for _, r := range res.Records {
		res.Total = res.Total.Add(r.Realized)
	}

	logger.Info().
		Int("records", len(res.Records)).
		Int("open_entries", len(res.Open)).
		Int("anomalies", res.Anomalies).
		Str("total", res.Total.StringFixed(2)).
		Msg("PnL realized")
	return res, nil
}

func (e *Engine) matchKey(logger zerolog.Logger, key models.ContractKey, events []event) (keyResult, error) {
	var (
		out   keyResult
		queue []entry
	)

	for _, ev := range events {
		t, app := ev.trade, ev.app

		remaining := app.MatchedQty
		for remaining > 0 && len(queue) > 0 {
			head := &queue[0]
			if head.direction == t.Direction {
				return keyResult{}, apperrors.NewPairingError(key.String(),
					head.tradeID, string(head.direction), t.ID, string(t.Direction))
			}
			n := min(remaining, head.qty)
			out.records = append(out.records, models.PnLRecord{
				Date:         t.TradeDate,
				Key:          key,
				Kind:         models.PnLClose,
				EntryTradeID: head.tradeID,
				ExitTradeID:  t.ID,
				Quantity:     n,
				EntryPrice:   head.price,
				ExitPrice:    t.Price,
				Realized:     realized(head.direction, head.price, t.Price, n),
			})
			remaining -= n
			head.qty -= n
			if head.qty == 0 {
				queue = queue[1:]
			}
		}
		if remaining > 0 {
			out.anomalies += remaining
			cl := logging.WithContract(logger, key.String())
			cl.Warn().
				Str("trade_id", t.ID).
				Int("unmatched_qty", remaining).
				Msg("Exit found no entry to match")
		}

		if app.OpenedQty > 0 {
			queue = append(queue, entry{
				tradeID:   t.ID,
				direction: t.Direction,
				qty:       app.OpenedQty,
				price:     t.Price,
				date:      t.TradeDate,
			})
		}
	}

	for _, en := range queue {
		if key.Expiry.After(e.asOf) {
			out.open = append(out.open, OpenEntry{
				Key:       key,
				TradeID:   en.tradeID,
				Direction: en.direction,
				Quantity:  en.qty,
				Price:     en.price,
				Date:      en.date,
			})
			continue
		}
		out.records = append(out.records, models.PnLRecord{
			Date:         key.Expiry,
			Key:          key,
			Kind:         models.PnLExpiry,
			EntryTradeID: en.tradeID,
			Quantity:     en.qty,
			EntryPrice:   en.price,
			ExitPrice:    decimal.Zero,
			Realized:     realized(en.direction, en.price, decimal.Zero, en.qty),
		})
	}
	return out, nil
}

// realized is (exit - entry) * qty for a long entry, (entry - exit) * qty for a short one.
func realized(entryDir models.Direction, entryPrice, exitPrice decimal.Decimal, qty int) decimal.Decimal {
	q := decimal.NewFromInt(int64(qty))
	if entryDir == models.Buy {
		return exitPrice.Sub(entryPrice).Mul(q)
	}
	return entryPrice.Sub(exitPrice).Mul(q)
}
