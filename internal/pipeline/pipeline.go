// Package pipeline runs a tradebook through normalization, lot matching, the
// daily book, strategy classification and pnl attribution.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fno-ledger/internal/book"
	"fno-ledger/internal/calendar"
	apperrors "fno-ledger/internal/errors"
	"fno-ledger/internal/ledger"
	"fno-ledger/internal/logging"
	"fno-ledger/internal/metrics"
	"fno-ledger/internal/models"
	"fno-ledger/internal/normalize"
	"fno-ledger/internal/pnl"
	"fno-ledger/internal/strategy"
)

// Options configures a run.
type Options struct {
	Calendar   *calendar.Calendar
	ExpiryRule normalize.ExpiryRule
	Workers    int
	Logger     zerolog.Logger
}

// Summary aggregates the recoverable conditions and counts of one run.
type Summary struct {
	Rows            int
	Accepted        int
	ParseFailures   int
	MissingFields   map[string]int
	Ledger          ledger.Summary
	Snapshots       int
	NullStrikeSnaps int
	Strategies      map[models.StrategyType]int
	PnLRecords      int
	OpenEntries     int
	MatchAnomalies  int // exit quantity the pnl pass could not pair
	TotalRealized   decimal.Decimal
}

// Dropped returns the number of rows excluded during normalization.
func (s Summary) Dropped() int {
	return s.Rows - s.Accepted
}

// Result is everything a run produces.
type Result struct {
	RunID        string
	Trades       []models.Trade
	Applications []ledger.Application
	Ledger       *ledger.State
	Lots         []models.Lot
	Snapshots    []models.PositionSnapshot
	Strategies   []models.StrategyRecord
	PnL          *pnl.Result
	StrategyPnL  []models.StrategyPnL
	Dropped      []normalize.Dropped
	Summary      Summary
}

// Run executes every stage over rows. Bad rows are counted, never fatal;
// only an invalid entry/exit pairing or cancellation aborts the run.
func Run(ctx context.Context, rows []models.RawTrade, opts Options) (*Result, error) {
	if opts.Calendar == nil {
		return nil, apperrors.NewValidationError("calendar", nil, "a calendar is required")
	}

	res := &Result{RunID: uuid.NewString()}
	logger := logging.WithRun(opts.Logger, res.RunID)
	ctx = logging.WithLogger(ctx, logger)

	started := time.Now()
	stage := time.Now()
	trades, report := normalize.New(opts.Calendar, opts.ExpiryRule, logger).Normalize(rows)
	res.Trades = trades
	res.Dropped = report.Dropped
	metrics.ObserveStage("normalize", stage)

	stage = time.Now()
	state, apps, ledgerSummary := ledger.Replay(trades, logger)
	res.Ledger = state
	res.Applications = apps
	res.Lots = state.AllLots()
	metrics.ObserveStage("ledger", stage)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stage = time.Now()
	res.Snapshots = book.Build(opts.Calendar, res.Lots)
	metrics.ObserveStage("book", stage)
	logging.LogStageDone(logger, "book", len(res.Snapshots), time.Since(stage))

	stage = time.Now()
	res.Strategies = strategy.New(opts.Workers, logger).Classify(res.Snapshots)
	metrics.ObserveStage("strategy", stage)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stage = time.Now()
	realized, err := pnl.New(opts.Calendar.End(), opts.Workers, logger).Realize(ctx, trades, apps)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		return nil, apperrors.Wrap(err, "pnl attribution")
	}
	res.PnL = realized
	res.StrategyPnL = pnl.Attribute(realized.Records, res.Strategies)
	metrics.ObserveStage("pnl", stage)

	res.Summary = summarize(report, ledgerSummary, res)
	record(res.Summary)

	logger.Info().
		Int("rows", res.Summary.Rows).
		Int("dropped", res.Summary.Dropped()).
		Int("lots", len(res.Lots)).
		Int("strategies", len(res.Strategies)).
		Str("realized", res.Summary.TotalRealized.StringFixed(2)).
		Dur("duration", time.Since(started)).
		Msg("Run completed")

	return res, nil
}

func summarize(report normalize.Report, ls ledger.Summary, res *Result) Summary {
	s := Summary{
		Rows:           report.Total,
		Accepted:       report.Accepted,
		ParseFailures:  report.ParseFailures,
		MissingFields:  report.MissingFields,
		Ledger:         ls,
		Snapshots:      len(res.Snapshots),
		Strategies:     strategy.CountByType(res.Strategies),
		PnLRecords:     len(res.PnL.Records),
		OpenEntries:    len(res.PnL.Open),
		MatchAnomalies: res.PnL.Anomalies,
		TotalRealized:  res.PnL.Total,
	}
	for _, snap := range res.Snapshots {
		if !snap.Key.Strike.Valid {
			s.NullStrikeSnaps++
		}
	}
	return s
}

func record(s Summary) {
	metrics.RunsTotal.WithLabelValues("ok").Inc()
	metrics.RowsTotal.WithLabelValues("accepted").Add(float64(s.Accepted))
	metrics.RowsTotal.WithLabelValues(string(normalize.DropParseFailure)).Add(float64(s.ParseFailures))
	metrics.RowsTotal.WithLabelValues(string(normalize.DropMissingField)).Add(float64(s.Dropped() - s.ParseFailures))

	metrics.TradeClassifications.WithLabelValues(string(ledger.Entry)).Add(float64(s.Ledger.Entries))
	metrics.TradeClassifications.WithLabelValues(string(ledger.Exit)).Add(float64(s.Ledger.Exits))
	metrics.TradeClassifications.WithLabelValues(string(ledger.PartialExit)).Add(float64(s.Ledger.PartialExits))
	metrics.TradeClassifications.WithLabelValues(string(ledger.UnmatchedExit)).Add(float64(s.Ledger.UnmatchedExits))
	metrics.Flips.Add(float64(s.Ledger.Flips))

	for typ, n := range s.Strategies {
		metrics.StrategiesTotal.WithLabelValues(string(typ)).Add(float64(n))
	}
	metrics.OpenEntries.Set(float64(s.OpenEntries))
}
