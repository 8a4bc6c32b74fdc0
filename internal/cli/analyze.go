package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fno-ledger/internal/broker"
	"fno-ledger/internal/calendar"
	"fno-ledger/internal/logging"
	"fno-ledger/internal/metrics"
	"fno-ledger/internal/models"
	"fno-ledger/internal/pipeline"
	"fno-ledger/internal/store"
)

func newAnalyzeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [tradebook.csv...]",
		Short: "Run the full ledger pipeline over a tradebook",
		Long: `Replay tradebook rows into FIFO lots, build the daily position book,
classify strategies and attribute realized pnl.

Rows come from Zerodha Console tradebook CSV exports, from the Kite Connect
tradebook of the configured session (--kite), or both.`,
		Example: `  fno-ledger analyze tradebook-FY2024.csv
  fno-ledger analyze q1.csv q2.csv --save
  fno-ledger analyze --kite --save --show-dropped`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx = logging.WithLogger(ctx, app.Logger)

			useKite, _ := cmd.Flags().GetBool("kite")
			save, _ := cmd.Flags().GetBool("save")
			showDropped, _ := cmd.Flags().GetBool("show-dropped")

			sources, err := app.sources(args, useKite)
			if err != nil {
				output.Error("%v", err)
				return err
			}

			cal, err := app.Config.Calendar()
			if err != nil {
				return err
			}

			if app.Config.Metrics.Enabled {
				stop := app.serveMetrics(ctx)
				defer stop()
			}

			if useKite && !output.IsJSON() {
				output.Info("Fetching tradebook from Kite...")
			}
			started := time.Now()
			rows, err := broker.Collect(ctx, sources...)
			if err != nil {
				output.Error("Failed to read trades: %v", err)
				return err
			}

			res, err := pipeline.Run(ctx, rows, pipeline.Options{
				Calendar:   cal,
				ExpiryRule: app.Config.ExpiryRule(),
				Workers:    app.Config.Analysis.Workers,
				Logger:     app.Logger,
			})
			if err != nil {
				output.Error("Analysis failed: %v", err)
				return err
			}

			if save {
				if err := app.saveRun(ctx, res, cal, sourceNames(sources)); err != nil {
					output.Error("Failed to save run: %v", err)
					return err
				}
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"run_id":  res.RunID,
					"saved":   save,
					"summary": res.Summary,
					"dropped": droppedRows(res),
				})
			}

			printSummary(output, res)
			if showDropped && len(res.Dropped) > 0 {
				output.Println()
				printDropped(output, res)
			}
			if save {
				output.Println()
				output.Success("✓ Saved run %s", res.RunID)
			}
			output.Dim("Completed in %s", FormatDuration(time.Since(started)))
			return nil
		},
	}

	cmd.Flags().Bool("kite", false, "fetch the tradebook from Kite Connect")
	cmd.Flags().Bool("save", false, "save the run to the sqlite store")
	cmd.Flags().Bool("show-dropped", false, "list rows excluded during normalization")

	return cmd
}

// sources builds the trade sources for the given files and the Kite flag.
func (a *App) sources(files []string, useKite bool) ([]broker.TradeSource, error) {
	var sources []broker.TradeSource
	for _, f := range files {
		sources = append(sources, broker.NewTradebookFile(f))
	}
	if useKite {
		client, err := broker.NewKiteClient(broker.KiteConfig{
			APIKey:      a.Config.Kite.APIKey,
			AccessToken: a.Config.Kite.AccessToken,
		})
		if err != nil {
			return nil, fmt.Errorf("kite not configured (set KITE_API_KEY and KITE_ACCESS_TOKEN): %w", err)
		}
		sources = append(sources, broker.NewKiteTradebook(client, a.Logger))
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no trade source: pass tradebook files or --kite")
	}
	return sources, nil
}

// serveMetrics exposes Prometheus metrics until the returned stop is called.
func (a *App) serveMetrics(ctx context.Context) func() {
	mctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := metrics.Serve(mctx, a.Config.Metrics.ListenAddr); err != nil {
			a.Logger.Warn().Err(err).Str("addr", a.Config.Metrics.ListenAddr).Msg("Metrics endpoint failed")
		}
	}()
	a.Logger.Info().Str("addr", a.Config.Metrics.ListenAddr).Msg("Serving metrics")
	return func() {
		cancel()
		<-done
	}
}

func (a *App) saveRun(ctx context.Context, res *pipeline.Result, cal *calendar.Calendar, source string) error {
	st, err := a.Store()
	if err != nil {
		return err
	}
	return st.SaveRun(ctx, storedRun(res, cal, source))
}

// storedRun converts a pipeline result into its persisted form.
func storedRun(res *pipeline.Result, cal *calendar.Calendar, source string) *store.Run {
	return &store.Run{
		Info: store.RunInfo{
			ID:            res.RunID,
			CreatedAt:     time.Now().UTC(),
			Source:        source,
			StartDate:     cal.Start(),
			EndDate:       cal.End(),
			Rows:          res.Summary.Rows,
			Accepted:      res.Summary.Accepted,
			Strategies:    len(res.Strategies),
			TotalRealized: res.Summary.TotalRealized,
		},
		Trades:      res.Trades,
		Lots:        res.Lots,
		Snapshots:   res.Snapshots,
		Strategies:  res.Strategies,
		PnL:         res.PnL.Records,
		StrategyPnL: res.StrategyPnL,
	}
}

func sourceNames(sources []broker.TradeSource) string {
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = s.Name()
	}
	return strings.Join(names, ",")
}

func printSummary(output *Output, res *pipeline.Result) {
	s := res.Summary

	output.Bold("Run %s", res.RunID)
	output.Println()

	output.Bold("Normalization")
	output.Printf("  Rows:            %d\n", s.Rows)
	output.Printf("  Accepted:        %d\n", s.Accepted)
	output.Printf("  Dropped:         %d (unparsed symbol %d)\n", s.Dropped(), s.ParseFailures)
	for _, field := range sortedKeys(s.MissingFields) {
		output.Printf("    missing %-12s %d\n", field+":", s.MissingFields[field])
	}
	output.Println()

	output.Bold("Ledger")
	output.Printf("  Entries:         %d\n", s.Ledger.Entries)
	output.Printf("  Exits:           %d\n", s.Ledger.Exits)
	output.Printf("  Partial Exits:   %d\n", s.Ledger.PartialExits)
	output.Printf("  Unmatched Exits: %d\n", s.Ledger.UnmatchedExits)
	if s.Ledger.Flips > 0 {
		output.Warning("  Flips:           %d", s.Ledger.Flips)
	}
	output.Printf("  Lots:            %d\n", len(res.Lots))
	output.Printf("  Snapshots:       %d (null strike %d)\n", s.Snapshots, s.NullStrikeSnaps)
	output.Println()

	output.Bold("Strategies")
	table := NewTable(output, "Type", "Count")
	types := make([]string, 0, len(s.Strategies))
	for typ := range s.Strategies {
		types = append(types, string(typ))
	}
	sort.Strings(types)
	for _, typ := range types {
		table.AddRow(typ, fmt.Sprintf("%d", s.Strategies[models.StrategyType(typ)]))
	}
	if table.Len() == 0 {
		output.Dim("  none")
	} else {
		table.Render()
	}
	output.Println()

	output.Bold("PnL")
	output.Printf("  Events:          %d\n", s.PnLRecords)
	output.Printf("  Open Entries:    %d\n", s.OpenEntries)
	if s.MatchAnomalies > 0 {
		output.Warning("  Unpaired Qty:    %d", s.MatchAnomalies)
	}
	output.Printf("  Realized:        %s (%s)\n", output.FormatPnL(s.TotalRealized), FormatCompact(s.TotalRealized))
}

func printDropped(output *Output, res *pipeline.Result) {
	output.Bold("Dropped Rows")
	table := NewTable(output, "Row", "Symbol", "Reason", "Detail")
	for _, d := range res.Dropped {
		detail := ""
		if d.Err != nil {
			detail = output.DimText(TruncateString(d.Err.Error(), 60))
		}
		table.AddRow(fmt.Sprintf("%d", d.Row), d.Symbol, string(d.Reason), detail)
	}
	table.Render()
}

type droppedRow struct {
	Row    int    `json:"row"`
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
	Error  string `json:"error,omitempty"`
}

func droppedRows(res *pipeline.Result) []droppedRow {
	rows := make([]droppedRow, len(res.Dropped))
	for i, d := range res.Dropped {
		rows[i] = droppedRow{Row: d.Row, Symbol: d.Symbol, Reason: string(d.Reason)}
		if d.Err != nil {
			rows[i].Error = d.Err.Error()
		}
	}
	return rows
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
