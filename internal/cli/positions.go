package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fno-ledger/internal/book"
	"fno-ledger/internal/broker"
	"fno-ledger/internal/logging"
	"fno-ledger/internal/models"
	"fno-ledger/internal/normalize"
	"fno-ledger/internal/store"
)

func newPositionsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "positions [tradebook.csv...]",
		Short: "End-of-day open positions for a date",
		Long: `List the lots still open at the end of a day, per contract.

Trades come from the given tradebook files, or from a saved run (--run,
default the latest). With --book the saved daily position book for the date
is shown instead, including lots that closed or expired that day.`,
		Example: `  fno-ledger positions --date 2024-04-18 tradebook.csv
  fno-ledger positions --date 2024-04-18 --run 3f1c...
  fno-ledger positions --date 2024-04-18 --book`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx = logging.WithLogger(ctx, app.Logger)

			dateFlag, _ := cmd.Flags().GetString("date")
			runID, _ := cmd.Flags().GetString("run")
			showBook, _ := cmd.Flags().GetBool("book")

			day, err := parseDateFlag("date", dateFlag)
			if err != nil {
				return err
			}
			if day.IsZero() {
				return fmt.Errorf("--date is required")
			}

			if showBook {
				return app.showBook(ctx, output, runID, day)
			}

			trades, err := app.tradesFor(ctx, args, runID)
			if err != nil {
				output.Error("%v", err)
				return err
			}

			lots := book.OpenOn(trades, day)
			if output.IsJSON() {
				return output.JSON(lots)
			}

			output.Bold("Open Positions - %s", FormatDate(day))
			if len(lots) == 0 {
				output.Dim("No open positions")
				return nil
			}
			table := NewTable(output, "Contract", "Side", "Open Qty", "Price", "Opened", "Lot")
			for _, lot := range lots {
				table.AddRow(
					FormatContract(lot.Key),
					output.Side(lot.Direction),
					fmt.Sprintf("%d", lot.RemainingQty()),
					FormatPrice(lot.OpenPrice),
					FormatDate(lot.OpenDate),
					fmt.Sprintf("%d", lot.Seq),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().String("date", "", "day to report (YYYY-MM-DD)")
	cmd.Flags().String("run", "", "saved run id (default: latest)")
	cmd.Flags().Bool("book", false, "show the saved daily position book for the date")

	return cmd
}

// tradesFor normalizes the given tradebook files, or loads the trades of a
// saved run when no file is given.
func (a *App) tradesFor(ctx context.Context, files []string, runID string) ([]models.Trade, error) {
	if len(files) > 0 {
		sources := make([]broker.TradeSource, len(files))
		for i, f := range files {
			sources[i] = broker.NewTradebookFile(f)
		}
		rows, err := broker.Collect(ctx, sources...)
		if err != nil {
			return nil, err
		}
		cal, err := a.Config.Calendar()
		if err != nil {
			return nil, err
		}
		trades, _ := normalize.New(cal, a.Config.ExpiryRule(), a.Logger).Normalize(rows)
		return trades, nil
	}

	st, err := a.Store()
	if err != nil {
		return nil, err
	}
	id, err := a.resolveRun(ctx, st, runID)
	if err != nil {
		return nil, err
	}
	return st.GetTrades(ctx, id)
}

func (a *App) showBook(ctx context.Context, output *Output, runID string, day time.Time) error {
	st, err := a.Store()
	if err != nil {
		return err
	}
	id, err := a.resolveRun(ctx, st, runID)
	if err != nil {
		return err
	}
	snaps, err := st.GetSnapshots(ctx, store.SnapshotFilter{RunID: id, Date: day})
	if err != nil {
		return err
	}
	if output.IsJSON() {
		return output.JSON(snaps)
	}

	output.Bold("Position Book - %s", FormatDate(day))
	if len(snaps) == 0 {
		output.Dim("No positions")
		return nil
	}
	table := NewTable(output, "Contract", "Qty", "Avg Price", "Status", "Closed", "Opened", "Lot")
	for _, p := range snaps {
		table.AddRow(
			FormatContract(p.Key),
			FormatQuantity(p.Quantity),
			FormatPrice(p.AvgEntryPrice),
			output.Status(p.Status),
			fmt.Sprintf("%d", p.ClosedQty),
			FormatDate(p.OpenDate),
			fmt.Sprintf("%d", p.LotSeq),
		)
	}
	table.Render()
	return nil
}
